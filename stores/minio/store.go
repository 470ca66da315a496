// Package minio keeps blocks as objects of a MinIO or S3-compatible bucket.
package minio

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	structchunk "github.com/LifeboatLLC/SparseHDF5"
)

const StoreType = "MinioStore"

// Store implements structchunk.Store on an object bucket. Size reports the
// object size.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ structchunk.Store = (*Store)(nil)

// NewStore creates a store over an existing client.
// rootPrefix is prepended to all keys (e.g. "runs/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

// Dial connects to the endpoint of cfg and makes sure the bucket exists.
func Dial(ctx context.Context, cfg structchunk.StoreConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create client for %s", cfg.Endpoint)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "make bucket %s", cfg.Bucket)
		}
	}
	return NewStore(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *Store) Type() string { return StoreType }

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

func notFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *Store) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy, stat to surface a missing key now
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if notFound(err) {
			return nil, errors.Wrap(structchunk.ErrNotfound, name)
		}
		return nil, err
	}
	return obj, nil
}

func (s *Store) Put(ctx context.Context, name string, val io.Reader) error {
	d, err := io.ReadAll(val)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(d), int64(len(d)), minio.PutObjectOptions{})
	return err
}

func (s *Store) Size(ctx context.Context, name string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if notFound(err) {
			return 0, errors.Wrap(structchunk.ErrNotfound, name)
		}
		return 0, err
	}
	return info.Size, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !notFound(err) {
		return err
	}
	return nil
}

// List returns all keys with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.prefix + prefix
	if s.prefix != "" && !strings.HasSuffix(s.prefix, "/") {
		fullPrefix = s.prefix + "/" + prefix
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}
