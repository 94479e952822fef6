package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage is an in-memory Storage for tests. FailOn lets a test force
// an error on a specific operation name ("put", "fetch", "delete", "stat",
// "exists", "url").
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]memObject

	FailOn map[string]error
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]memObject),
		FailOn:  make(map[string]error),
	}
}

func (s *MemoryStorage) fail(op string) error {
	if err, ok := s.FailOn[op]; ok {
		return err
	}
	return nil
}

func (s *MemoryStorage) Put(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("put"); err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	s.objects[key] = memObject{data: data, contentType: contentType}
	return "mem://" + key, nil
}

func (s *MemoryStorage) FetchToLocal(ctx context.Context, key, localPath string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("fetch"); err != nil {
		return err
	}
	obj, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("fetch %q: %w", key, ErrNotFound)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, obj.data, 0o644)
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete"); err != nil {
		return err
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("exists"); err != nil {
		return false, err
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("stat"); err != nil {
		return ObjectInfo{}, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("stat %q: %w", key, ErrNotFound)
	}
	return ObjectInfo{Size: int64(len(obj.data)), ContentType: obj.contentType}, nil
}

func (s *MemoryStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("url"); err != nil {
		return "", err
	}
	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("url %q: %w", key, ErrNotFound)
	}
	return "mem://" + key, nil
}

func (s *MemoryStorage) HealthCheck(ctx context.Context) error {
	return nil
}

// Object returns a stored object's bytes, for assertions.
func (s *MemoryStorage) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Len reports how many objects are stored.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
