package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/filestore"
)

// Resource is a resolved backing resource that can be validated and read.
type Resource interface {
	// URI identifies the resource for diagnostics.
	URI() string

	// Validate checks that the resource exists and is readable.
	Validate(ctx context.Context) error

	// Open returns a reader over the resource content. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Resolver turns a configured path into a Resource. It looks on the
// filesystem first, then in Bundled, and routes s3:// URIs to Store.
type Resolver struct {
	// Bundled holds resources shipped with the binary (for example an embed.FS).
	Bundled fs.FS

	// Store serves s3://bucket/key paths.
	Store filestore.Store
}

// Resolve never touches the network. When a path is found neither on disk nor
// in Bundled, the filesystem path is returned as-is so that Validate reports it.
func (r *Resolver) Resolve(path string) (Resource, error) {
	if path == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "resource path is empty")
	}

	if filestore.IsObjectURI(path) {
		bucket, key, err := filestore.ParseObjectURI(path)
		if err != nil {
			return nil, err
		}
		if r == nil || r.Store == nil {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: no object store configured", path)
		}
		return &objectResource{store: r.Store, bucket: bucket, key: key}, nil
	}

	if _, err := os.Stat(path); err == nil {
		return &fileResource{path: path}, nil
	}

	if r != nil && r.Bundled != nil {
		name := filepath.ToSlash(filepath.Clean(path))
		if _, err := fs.Stat(r.Bundled, name); err == nil {
			return &bundledResource{fsys: r.Bundled, name: name}, nil
		}
	}

	return &fileResource{path: path}, nil
}

// --- filesystem ---

type fileResource struct {
	path string
}

func (f *fileResource) URI() string {
	if abs, err := filepath.Abs(f.path); err == nil {
		return "file://" + filepath.ToSlash(abs)
	}
	return "file://" + filepath.ToSlash(f.path)
}

func (f *fileResource) Validate(_ context.Context) error {
	info, err := os.Stat(f.path)
	if err != nil {
		return mapFSError(err, f.path)
	}
	if info.IsDir() {
		return errs.Newf(errs.ErrKindInvalidInput, "can't read file [%s]: is a directory", f.path)
	}
	fh, err := os.Open(f.path)
	if err != nil {
		return mapFSError(err, f.path)
	}
	return fh.Close()
}

func (f *fileResource) Open(_ context.Context) (io.ReadCloser, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, mapFSError(err, f.path)
	}
	return fh, nil
}

// --- bundled ---

type bundledResource struct {
	fsys fs.FS
	name string
}

func (b *bundledResource) URI() string { return "bundle:///" + b.name }

func (b *bundledResource) Validate(_ context.Context) error {
	if _, err := fs.Stat(b.fsys, b.name); err != nil {
		return mapFSError(err, b.name)
	}
	return nil
}

func (b *bundledResource) Open(_ context.Context) (io.ReadCloser, error) {
	fh, err := b.fsys.Open(b.name)
	if err != nil {
		return nil, mapFSError(err, b.name)
	}
	return fh, nil
}

// --- object store ---

type objectResource struct {
	store  filestore.Store
	bucket string
	key    string
}

func (o *objectResource) URI() string { return filestore.ObjectURI(o.bucket, o.key) }

func (o *objectResource) Validate(ctx context.Context) error {
	_, err := o.store.StatObject(ctx, o.bucket, o.key)
	return err
}

func (o *objectResource) Open(ctx context.Context) (io.ReadCloser, error) {
	return o.store.GetObject(ctx, o.bucket, o.key)
}

func mapFSError(err error, path string) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return errs.Wrapf(errs.ErrKindNotFound, err, "could not find file for path [%s]", path)
	case errors.Is(err, fs.ErrPermission):
		return errs.Wrapf(errs.ErrKindPermissionDenied, err, "can't read file [%s]", path)
	default:
		return errs.Wrapf(errs.ErrKindResourceFailed, err, "can't read file [%s]", path)
	}
}
