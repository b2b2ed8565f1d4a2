package filestore

import (
	"io"
	"time"
)

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Bucket is the bucket holding the object.
	Bucket string

	// Key is the full object path within the bucket (e.g. "fixtures/orders.xlsx").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type.
	ContentType string

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time
}

// URI returns the s3://bucket/key form of the object address.
func (o *ObjectInfo) URI() string {
	return ObjectURI(o.Bucket, o.Key)
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}
