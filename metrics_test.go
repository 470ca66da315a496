package structchunk

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewStoreMetrics(reg)
	require.NoError(t, err)
	s := NewInstrumentedStore(NewMemoryStore(), m)
	assert.Equal(t, MemoryStoreType, s.Type())

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", bytes.NewReader([]byte("hello"))))
	rc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	_, err = io.ReadAll(rc)
	require.NoError(t, err)
	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotfound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues(MemoryStoreType, "put")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ops.WithLabelValues(MemoryStoreType, "get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errs.WithLabelValues(MemoryStoreType, "get")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytes.WithLabelValues(MemoryStoreType, "write")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytes.WithLabelValues(MemoryStoreType, "read")))

	// a second registration of the same metrics fails
	_, err = NewStoreMetrics(reg)
	assert.Error(t, err)
}

func TestInstrumentedRunner(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewStoreMetrics(reg)
	require.NoError(t, err)

	r, err := NewRunner(smallConfig(), NewInstrumentedStore(NewMemoryStore(), m))
	require.NoError(t, err)
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	// five levels, each with a group marker, attributes and six blocks of meta and chunk
	assert.Equal(t, float64(5*(2+6*2)), testutil.ToFloat64(m.ops.WithLabelValues(MemoryStoreType, "put")))
	assert.Equal(t, float64(5*6), testutil.ToFloat64(m.ops.WithLabelValues(MemoryStoreType, "size")))
}
