// Package boltdb keeps blocks in a single bbolt database file.
package boltdb

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	structchunk "github.com/LifeboatLLC/SparseHDF5"
)

const StoreType = "BoltStore"

// Bucket names
var (
	objectsBucketName = []byte("objects") // Contains stored objects <key>=<bytes>
)

// Store implements structchunk.Store on a bbolt database. Size reports the
// length of the stored value.
type Store struct {
	db *bolt.DB
}

var _ structchunk.Store = (*Store)(nil)

// NewStore creates a new or opens an existing database file.
func NewStore(dbfile string) (*Store, error) {
	if err := ensureDirectory(filepath.Dir(dbfile)); err != nil {
		return nil, err
	}

	db, err := bolt.Open(dbfile, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", dbfile)
	}
	s := &Store{db: db}
	if err := s.initDatabase(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize database")
	}
	return s, nil
}

func ensureDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0700)
	}

	return nil
}

func (s *Store) initDatabase() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucketName)
		return err
	})
}

func (s *Store) Type() string { return StoreType }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucketName).Get([]byte(key))
		if v == nil {
			return errors.Wrap(structchunk.ErrNotfound, key)
		}
		// values are only valid for the life of the transaction
		val = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(val)), nil
}

func (s *Store) Put(_ context.Context, key string, val io.Reader) error {
	d, err := io.ReadAll(val)
	if err != nil {
		return errors.Wrapf(err, "failed to read value for %q", key)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(objectsBucketName).Put([]byte(key), d); err != nil {
			return errors.Wrapf(err, "failed to insert object with key %q", key)
		}
		return nil
	})
}

func (s *Store) Size(_ context.Context, key string) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(objectsBucketName).Get([]byte(key))
		if v == nil {
			return errors.Wrap(structchunk.ErrNotfound, key)
		}
		n = int64(len(v))
		return nil
	})
	return n, err
}

func (s *Store) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(objectsBucketName).Delete([]byte(key)); err != nil {
			return errors.Wrapf(err, "failed to delete object with key %q", key)
		}
		return nil
	})
}

// List returns the keys starting with prefix in ascending order.
func (s *Store) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucketName).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}
