package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

// ObjectInfo describes a stored object. Size is what the verification step
// compares against the locally rendered artifact.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Storage is the backend-agnostic contract the pipeline is built on. The
// backend is chosen once at process start and injected; pipeline code never
// branches on the backend type.
type Storage interface {
	// Put writes the payload under key, creating intermediate namespaces as
	// needed, and returns the canonical location. Re-putting the same key
	// overwrites.
	Put(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error)

	// FetchToLocal materializes the object's bytes at localPath, creating
	// parent directories. Returns ErrNotFound if the object does not exist.
	FetchToLocal(ctx context.Context, key, localPath string) error

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// URL returns an access URL for the object: a signed, expiring URL on
	// object storage, a file URL on the local backend.
	URL(ctx context.Context, key string, expiry time.Duration) (string, error)

	HealthCheck(ctx context.Context) error
}

// LocalPather is implemented by backends whose objects already live on the
// local filesystem; the pipeline uses it to reference inputs directly
// instead of copying them into scratch.
type LocalPather interface {
	LocalPath(key string) (string, bool)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// New builds the configured backend. backend is "local" or "minio";
// basePath applies only to the local backend.
func New(backend, basePath string, cfg Config) (Storage, error) {
	switch backend {
	case "local":
		return NewLocalStorage(basePath)
	case "minio":
		return NewMinIOStorage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
