package main

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/dela/mino/proxy"
	"go.dedis.ch/sharefs/store/disk"
	"go.dedis.ch/sharefs/store/remote"
)

func TestOpenBucket(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-storeserver")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	bucket, err := openBucket(dir, "")
	require.NoError(t, err)
	require.IsType(t, &disk.Bucket{}, bucket)

	_, err = openBucket("", "")
	require.EqualError(t, err, "no storage given")

	_, err = openBucket("", "/does/not/exist.json")
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-storeserver")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	bucket, err := disk.NewBucket(dir)
	require.NoError(t, err)

	srv := fakeProxy{mux: http.NewServeMux()}
	register(srv, bucket)

	server := httptest.NewServer(srv.mux)
	defer server.Close()

	client := remote.NewBucket(server.URL)

	err = client.Set("alice/foo", []byte("hello"))
	require.NoError(t, err)

	data, err := bucket.Get("alice/foo")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeProxy struct {
	proxy.Proxy
	mux *http.ServeMux
}

func (p fakeProxy) RegisterHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	p.mux.HandleFunc(path, handler)
}
