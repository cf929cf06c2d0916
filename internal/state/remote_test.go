package state

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket serves a minimal S3 object API for one bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := b.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0"?><Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testMirror(t *testing.T) (*Mirror, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: make(map[string][]byte)}
	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	mirror, err := NewMirror(MirrorOptions{
		Endpoint:  server.URL,
		Region:    "nbg1",
		Bucket:    "netstate",
		Key:       "deployed-state.json",
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	return mirror, bucket
}

func TestMirror_PushThenPull(t *testing.T) {
	mirror, _ := testMirror(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"validators":{}}`), 0o644))
	require.NoError(t, mirror.Push(context.Background(), src))

	dst := filepath.Join(dir, "pulled.json")
	found, err := mirror.Pull(context.Background(), dst)
	require.NoError(t, err)
	assert.True(t, found)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.JSONEq(t, `{"validators":{}}`, string(data))
}

func TestMirror_PullMissingObjectIsNotAnError(t *testing.T) {
	mirror, _ := testMirror(t)
	dst := filepath.Join(t.TempDir(), "pulled.json")

	found, err := mirror.Pull(context.Background(), dst)
	require.NoError(t, err)
	assert.False(t, found)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "nothing should be written")
}

func TestMirror_PushMissingLocalFile(t *testing.T) {
	mirror, _ := testMirror(t)
	err := mirror.Push(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
