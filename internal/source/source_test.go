package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/rowsource/internal/errs"
	"github.com/koustreak/rowsource/internal/filestore"
	"github.com/koustreak/rowsource/internal/model"
)

func TestOptions_Negotiate(t *testing.T) {
	m, err := model.NewGenericStringModel("t", []string{"a"}, []int{0})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Options)
		check  func(error) bool
	}{
		{"defaults", func(*Options) {}, func(err error) bool { return err == nil }},
		{"explicit model", func(o *Options) { o.Model = m }, func(err error) bool { return err == nil }},
		{"model and keys", func(o *Options) { o.Model = m; o.KeyColumnNames = []string{"a"} }, errs.IsInvalidInput},
		{"column subset", func(o *Options) { o.ReadColumnIdxs = []int{} }, errs.IsUnsupported},
		{"unsorted", func(o *Options) { o.IsSorted = false }, errs.IsUnsupported},
		{"eager validation is supported", func(o *Options) { o.ValidateLazily = false }, func(err error) bool { return err == nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions("book.xlsx", "Data")
			tt.mutate(&opts)
			assert.True(t, tt.check(opts.Negotiate()))
		})
	}
}

func TestLifecycle(t *testing.T) {
	var l Lifecycle
	assert.Equal(t, StateUnopened, l.State())
	assert.True(t, errs.IsInvalidState(l.EnsureOpen("src", "read")))

	proceed, err := l.BeginOpen("src")
	require.NoError(t, err)
	assert.True(t, proceed)
	l.Opened()
	assert.True(t, l.IsOpen())

	proceed, err = l.BeginOpen("src")
	require.NoError(t, err)
	assert.False(t, proceed, "open is idempotent")

	l.Closed()
	err = l.EnsureOpen("src", "close")
	assert.True(t, errs.IsInvalidState(err))
	assert.Contains(t, err.Error(), "after close")

	_, err = l.BeginOpen("src")
	assert.True(t, errs.IsInvalidState(err), "closed sources do not reopen")
}

func TestResolveKeyIndices(t *testing.T) {
	header := []string{"id", "name", "amount", "region"}

	got, err := ResolveKeyIndices(header, []string{"region", "id"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, got)

	got, err = ResolveKeyIndices(header, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ResolveKeyIndices(header, []string{"id", "missing"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestResolver_Filesystem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o600))

	res, err := (&Resolver{}).Resolve(path)
	require.NoError(t, err)
	require.NoError(t, res.Validate(context.Background()))
	assert.True(t, strings.HasPrefix(res.URI(), "file://"))

	rc, err := res.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "content", string(body))
}

func TestResolver_Bundled(t *testing.T) {
	r := &Resolver{Bundled: fstest.MapFS{
		"fixtures/book.xlsx": {Data: []byte("bundled")},
	}}

	res, err := r.Resolve("fixtures/book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "bundle:///fixtures/book.xlsx", res.URI())
	require.NoError(t, res.Validate(context.Background()))
}

func TestResolver_MissingKeepsOriginalPath(t *testing.T) {
	r := &Resolver{Bundled: fstest.MapFS{}}

	res, err := r.Resolve("nowhere/book.xlsx")
	require.NoError(t, err)
	assert.Contains(t, res.URI(), "nowhere/book.xlsx")

	err = res.Validate(context.Background())
	assert.True(t, errs.IsNotFound(err))
	assert.Contains(t, err.Error(), "nowhere/book.xlsx")
}

func TestResolver_Directory(t *testing.T) {
	res, err := (&Resolver{}).Resolve(t.TempDir())
	require.NoError(t, err)
	assert.True(t, errs.IsInvalidInput(res.Validate(context.Background())))
}

func TestResolver_EmptyPath(t *testing.T) {
	_, err := (&Resolver{}).Resolve("")
	assert.True(t, errs.IsInvalidInput(err))
}

type fakeStore struct {
	objects map[string][]byte
}

func (s *fakeStore) Ping(context.Context) error { return nil }
func (s *fakeStore) Close() error               { return nil }

func (s *fakeStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (s *fakeStore) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	info, err := s.StatObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return &fakeObject{Reader: bytes.NewReader(s.objects[bucket+"/"+key]), info: info}, nil
}

type fakeObject struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o *fakeObject) Close() error                { return nil }
func (o *fakeObject) Info() *filestore.ObjectInfo { return o.info }

func TestResolver_ObjectStore(t *testing.T) {
	r := &Resolver{Store: &fakeStore{objects: map[string][]byte{"fixtures/book.xlsx": []byte("remote")}}}
	ctx := context.Background()

	res, err := r.Resolve("s3://fixtures/book.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "s3://fixtures/book.xlsx", res.URI())
	require.NoError(t, res.Validate(ctx))

	rc, err := res.Open(ctx)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "remote", string(body))

	missing, err := r.Resolve("s3://fixtures/other.xlsx")
	require.NoError(t, err)
	assert.True(t, errs.IsNotFound(missing.Validate(ctx)))
}

func TestResolver_ObjectStoreNotConfigured(t *testing.T) {
	_, err := (&Resolver{}).Resolve("s3://fixtures/book.xlsx")
	assert.True(t, errs.IsInvalidInput(err))
}
