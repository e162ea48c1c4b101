package mem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/sharefs/crypto"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

func TestBucket_Scenario(t *testing.T) {
	b := NewBucket()

	_, err := b.Get("a")
	require.True(t, xerrors.Is(err, store.ErrNotFound))

	data := []byte("hello")
	require.NoError(t, b.Set("dir/a", data))
	require.NoError(t, b.Set("dir/b", []byte("world")))
	require.NoError(t, b.Set("other", []byte("!")))

	// The bucket keeps its own copy.
	data[0] = 'j'

	res, err := b.Get("dir/a")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), res)

	found, err := b.Exists("dir/b")
	require.NoError(t, err)
	require.True(t, found)

	keys, err := b.List("dir/")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	require.Equal(t, 11, b.Size())

	require.NoError(t, b.Delete("dir/a"))
	require.NoError(t, b.Delete("dir/a"))

	found, err = b.Exists("dir/a")
	require.NoError(t, err)
	require.False(t, found)

	b.Clear()
	require.Equal(t, 0, b.Size())
}

func TestBucket_UploadDelay(t *testing.T) {
	b := NewBucket()
	b.SetUploadDelay(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, b.Set("a", nil))
	require.True(t, time.Since(start) >= 20*time.Millisecond)
}

func TestBucket_Cost(t *testing.T) {
	b := NewBucket()
	require.Equal(t, 0, b.Cost())

	require.NoError(t, b.Set("alice/foo", make([]byte, 100)))
	require.NoError(t, b.Set("alice/bar", make([]byte, 10)))
	require.Equal(t, 2*crypto.IVSize, b.Cost())

	require.NoError(t, b.Set(store.TablePrefix+"table_alice_bob", make([]byte, 42)))
	require.NoError(t, b.Set(".pki/alice", make([]byte, 80)))
	require.Equal(t, 2*crypto.IVSize+42, b.Cost())
	require.Equal(t, 232, b.Size())
}
