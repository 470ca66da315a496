// Package stores opens the Store backend named by a StoreConfig.
package stores

import (
	"context"

	"github.com/pkg/errors"

	structchunk "github.com/LifeboatLLC/SparseHDF5"
	"github.com/LifeboatLLC/SparseHDF5/stores/boltdb"
	"github.com/LifeboatLLC/SparseHDF5/stores/minio"
)

// Open returns the store of cfg and a function releasing it.
func Open(ctx context.Context, cfg structchunk.StoreConfig) (structchunk.Store, func() error, error) {
	nop := func() error { return nil }
	if err := cfg.Validate(); err != nil {
		return nil, nop, err
	}
	switch cfg.Type {
	case structchunk.StoreMemory:
		return structchunk.NewMemoryStore(), nop, nil
	case structchunk.StoreLocal:
		s, err := structchunk.NewLocalStore(cfg.Path)
		if err != nil {
			return nil, nop, errors.Wrapf(err, "open local store %s", cfg.Path)
		}
		return s, nop, nil
	case structchunk.StoreBolt:
		s, err := boltdb.NewStore(cfg.Path)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil
	case structchunk.StoreMinio:
		s, err := minio.Dial(ctx, cfg)
		if err != nil {
			return nil, nop, err
		}
		return s, nop, nil
	}
	return nil, nop, errors.Errorf("unsupported store type %q", cfg.Type)
}
