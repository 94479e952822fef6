package metrics

import (
	"context"
	"io"
	"time"

	"github.com/reelworks/reelpress/internal/storage"
)

var (
	_ storage.Storage     = (*InstrumentedStorage)(nil)
	_ storage.LocalPather = (*InstrumentedStorage)(nil)
)

// InstrumentedStorage wraps a Storage and records per-operation counters
// and latency. It forwards LocalPath when the wrapped backend supports it.
type InstrumentedStorage struct {
	inner storage.Storage
}

func NewInstrumentedStorage(inner storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{inner: inner}
}

func observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StorageOps.WithLabelValues(op, status).Inc()
	StorageOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStorage) Put(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error) {
	start := time.Now()
	location, err := s.inner.Put(ctx, key, reader, contentType, size)
	observe("put", start, err)
	return location, err
}

func (s *InstrumentedStorage) FetchToLocal(ctx context.Context, key, localPath string) error {
	start := time.Now()
	err := s.inner.FetchToLocal(ctx, key, localPath)
	observe("fetch", start, err)
	return err
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, key)
	observe("exists", start, err)
	return ok, err
}

func (s *InstrumentedStorage) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	start := time.Now()
	info, err := s.inner.Stat(ctx, key)
	observe("stat", start, err)
	return info, err
}

func (s *InstrumentedStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	start := time.Now()
	u, err := s.inner.URL(ctx, key, expiry)
	observe("url", start, err)
	return u, err
}

func (s *InstrumentedStorage) HealthCheck(ctx context.Context) error {
	start := time.Now()
	err := s.inner.HealthCheck(ctx)
	observe("health", start, err)
	return err
}

func (s *InstrumentedStorage) LocalPath(key string) (string, bool) {
	if lp, ok := s.inner.(storage.LocalPather); ok {
		return lp.LocalPath(key)
	}
	return "", false
}
