package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (b *bufferWriter) Close() error {
	b.closed = true
	return b.closeErr
}

func newFakeStore(prefix string, w *bufferWriter) (*BlobStore, *[]string) {
	var names []string
	return &BlobStore{
		bucket: "editais-archive",
		prefix: prefix,
		newWriter: func(_ context.Context, name, _ string) objectWriter {
			names = append(names, name)
			return w
		},
	}, &names
}

func TestPutObjectUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	w := &bufferWriter{}
	store, names := newFakeStore("sources", w)

	uri, err := store.PutObject(context.Background(), "/run-1/abc.txt", "text/plain", strings.NewReader("texto"))
	require.NoError(t, err)
	assert.Equal(t, "gs://editais-archive/sources/run-1/abc.txt", uri)
	assert.Equal(t, []string{"sources/run-1/abc.txt"}, *names)
	assert.Equal(t, "texto", w.String())
	assert.True(t, w.closed)
}

func TestPutObjectSurfacesCloseError(t *testing.T) {
	t.Parallel()

	w := &bufferWriter{closeErr: errors.New("permission denied")}
	store, _ := newFakeStore("", w)

	_, err := store.PutObject(context.Background(), "a.txt", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "permission denied")

	_, err = store.PutObject(context.Background(), " ", "", strings.NewReader("x"))
	require.Error(t, err)
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
