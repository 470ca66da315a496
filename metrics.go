package structchunk

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "structchunk"
	metricsSubsystem = "store"
)

// StoreMetrics are the counters an InstrumentedStore updates. One set may
// be shared by several stores.
type StoreMetrics struct {
	ops      *prometheus.CounterVec
	errs     *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewStoreMetrics creates the store metrics and registers them with reg.
func NewStoreMetrics(reg prometheus.Registerer) (*StoreMetrics, error) {
	m := &StoreMetrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "operations_total",
				Help:      "Store operations. Broken down by store type and operation.",
			},
			[]string{"store", "op"},
		),
		errs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "errors_total",
				Help:      "Failed store operations. Broken down by store type and operation.",
			},
			[]string{"store", "op"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "bytes_total",
				Help:      "Bytes moved through the store. Broken down by store type and direction.",
			},
			[]string{"store", "direction"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "operation_duration_seconds",
				Help:      "Duration of store operations. Broken down by store type and operation.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"store", "op"},
		),
	}
	for _, c := range []prometheus.Collector{m.ops, m.errs, m.bytes, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// InstrumentedStore counts the operations and bytes of the store it wraps.
type InstrumentedStore struct {
	Store
	m *StoreMetrics
}

var _ Store = (*InstrumentedStore)(nil)

func NewInstrumentedStore(s Store, m *StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{Store: s, m: m}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	t := s.Store.Type()
	s.m.ops.WithLabelValues(t, op).Inc()
	s.m.duration.WithLabelValues(t, op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.m.errs.WithLabelValues(t, op).Inc()
	}
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	start := time.Now()
	defer func() { s.observe("get", start, err) }()
	rc, err = s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: rc, c: s.m.bytes.WithLabelValues(s.Store.Type(), "read")}, nil
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, val io.Reader) (err error) {
	start := time.Now()
	defer func() { s.observe("put", start, err) }()
	cr := &countingReader{ReadCloser: io.NopCloser(val), c: s.m.bytes.WithLabelValues(s.Store.Type(), "write")}
	return s.Store.Put(ctx, key, cr)
}

func (s *InstrumentedStore) Size(ctx context.Context, key string) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe("size", start, err) }()
	return s.Store.Size(ctx, key)
}

func (s *InstrumentedStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()
	return s.Store.Delete(ctx, key)
}

func (s *InstrumentedStore) List(ctx context.Context, prefix string) (keys []string, err error) {
	start := time.Now()
	defer func() { s.observe("list", start, err) }()
	return s.Store.List(ctx, prefix)
}

type countingReader struct {
	io.ReadCloser
	c prometheus.Counter
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.c.Add(float64(n))
	return n, err
}
