package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

var (
	_ Storage     = (*LocalStorage)(nil)
	_ LocalPather = (*LocalStorage)(nil)
)

// LocalStorage implements Storage on a base directory. Keys map directly to
// relative paths under the base. Writes go through a rename so readers never
// observe a partially written object.
type LocalStorage struct {
	base string
}

func NewLocalStorage(base string) (*LocalStorage, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &LocalStorage{base: abs}, nil
}

func (s *LocalStorage) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.base, filepath.FromSlash(key)), nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dir for %q: %w", key, err)
	}
	f, err := renameio.NewPendingFile(p, renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("open pending file for %q: %w", key, err)
	}
	defer f.Cleanup() //nolint:errcheck // no-op after CloseAtomicallyReplace

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("write %q: %w", key, err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("commit %q: %w", key, err)
	}
	return p, nil
}

func (s *LocalStorage) FetchToLocal(ctx context.Context, key, localPath string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	src, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("fetch %q: %w", key, ErrNotFound)
		}
		return fmt.Errorf("fetch %q: %w", key, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		// Do not leave a truncated file where a caller might find it.
		dst.Close()
		os.Remove(localPath)
		return fmt.Errorf("copy %q: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", key, err)
	}
	return true, nil
}

func (s *LocalStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	p, err := s.path(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectInfo{}, fmt.Errorf("stat %q: %w", key, ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("stat %q: %w", key, err)
	}
	return ObjectInfo{Size: info.Size()}, nil
}

func (s *LocalStorage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("url %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("url %q: %w", key, err)
	}
	return "file://" + filepath.ToSlash(p), nil
}

func (s *LocalStorage) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.base)
	if err != nil {
		return fmt.Errorf("storage health: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage health: %q is not a directory", s.base)
	}
	return nil
}

// LocalPath reports the on-disk path of an existing object, letting the
// pipeline hand the file to the renderer without copying it first.
func (s *LocalStorage) LocalPath(key string) (string, bool) {
	p, err := s.path(key)
	if err != nil {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}
