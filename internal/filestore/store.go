// Package filestore defines the object storage contract used to resolve
// spreadsheet resources that do not live on the local filesystem.
//
// Resources are addressed with object URIs of the form s3://bucket/key.
// Providers (currently MinIO) implement Store; callers depend only on this package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	obj, err := store.GetObject(ctx, "fixtures", "orders.xlsx")
package filestore

import (
	"context"
	"strings"

	"github.com/koustreak/rowsource/internal/errs"
)

// Scheme is the URI scheme of object store resources.
const Scheme = "s3://"

// Store is the read-only interface all object storage providers implement.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)
}

// IsObjectURI reports whether path uses the object store scheme.
func IsObjectURI(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseObjectURI splits s3://bucket/key into its bucket and key.
func ParseObjectURI(uri string) (bucket, key string, err error) {
	if !IsObjectURI(uri) {
		return "", "", errs.Newf(errs.ErrKindInvalidInput, "not an object URI: %q", uri)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errs.Newf(errs.ErrKindInvalidInput, "object URI %q must be s3://bucket/key", uri)
	}
	return bucket, key, nil
}

// ObjectURI is the inverse of ParseObjectURI.
func ObjectURI(bucket, key string) string {
	return Scheme + bucket + "/" + key
}
