package video

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store for tests, enforcing the same
// transition rules as the Postgres implementation.
type MemoryStore struct {
	mu     sync.Mutex
	videos map[string]Video
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{videos: make(map[string]Video)}
}

func (s *MemoryStore) Create(ctx context.Context, v *Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Status == "" {
		v.Status = StatusUploaded
	}
	if !v.Status.valid() {
		return fmt.Errorf("create video %s: invalid status %q", v.ID, v.Status)
	}
	if _, ok := s.videos[v.ID]; ok {
		return fmt.Errorf("create video %s: already exists", v.ID)
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.videos[v.ID] = *v
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, fmt.Errorf("get video %s: %w", id, ErrNotFound)
	}
	return &v, nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(id, StatusProcessing, func(v *Video) {})
}

func (s *MemoryStore) SetDuration(ctx context.Context, id string, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return fmt.Errorf("set duration for %s: %w", id, ErrNotFound)
	}
	v.DurationSeconds = seconds
	v.UpdatedAt = time.Now().UTC()
	s.videos[id] = v
	return nil
}

func (s *MemoryStore) MarkProcessed(ctx context.Context, id, outputKey string, duration float64) error {
	return s.update(id, StatusProcessed, func(v *Video) {
		v.OutputKey = outputKey
		v.ProcessedDuration = duration
		v.FailureReason = ""
	})
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.update(id, StatusFailed, func(v *Video) {
		v.FailureReason = clampReason(reason)
	})
}

func (s *MemoryStore) Reset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return fmt.Errorf("update video %s: %w", id, ErrNotFound)
	}
	if v.Status != StatusFailed && v.Status != StatusUploaded {
		return fmt.Errorf("update video %s: %w", id, ErrInvalidTransition)
	}
	v.Status = StatusUploaded
	v.FailureReason = ""
	v.OutputKey = ""
	v.ProcessedDuration = 0
	v.UpdatedAt = time.Now().UTC()
	s.videos[id] = v
	return nil
}

func (s *MemoryStore) update(id string, to Status, apply func(*Video)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return fmt.Errorf("update video %s: %w", id, ErrNotFound)
	}
	if !canTransition(v.Status, to) {
		return fmt.Errorf("update video %s (%s -> %s): %w", id, v.Status, to, ErrInvalidTransition)
	}
	v.Status = to
	apply(&v)
	v.UpdatedAt = time.Now().UTC()
	s.videos[id] = v
	return nil
}
