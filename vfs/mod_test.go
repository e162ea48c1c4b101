package vfs

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/sharefs/crypto"
	"go.dedis.ch/sharefs/keystore"
	"go.dedis.ch/sharefs/pki"
	"go.dedis.ch/sharefs/sharing"
	"go.dedis.ch/sharefs/store"
	"go.dedis.ch/sharefs/store/disk"
	_ "go.dedis.ch/sharefs/store/json"
	"golang.org/x/xerrors"
)

func TestFS_ShareAndRevoke(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-vfs")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	bucket, err := disk.NewBucket(dir)
	require.NoError(t, err)

	st := store.New(bucket)
	directory := pki.NewBucketDirectory(bucket)

	alice := makeSharer(t, "alice", st, directory)
	bob := makeSharer(t, "bob", st, directory)

	aliceFS, err := New(alice, dir)
	require.NoError(t, err)

	bobFS, err := New(bob, dir)
	require.NoError(t, err)

	n, err := aliceFS.Write("/foo.txt", []byte("hello world"), 0)
	require.NoError(t, err)
	require.Equal(t, 11, n)

	_, err = aliceFS.Write("/docs/a.txt", []byte("A"), 0)
	require.NoError(t, err)

	entries, err := aliceFS.ReadDir("/")
	require.NoError(t, err)
	require.Equal(t, []string{"docs", "foo.txt", SharedDir}, entries)

	entries, err = aliceFS.ReadDir("/docs")
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, entries)

	// The file written through the filesystem is the one the protocol
	// shares.
	outcome, err := alice.ShareFile("alice/foo.txt", "bob", bob.Identity().Pub)
	require.NoError(t, err)
	require.Equal(t, sharing.Shared, outcome)

	outcome, err = alice.ShareFile("alice/docs/a.txt", "bob", bob.Identity().Pub)
	require.NoError(t, err)
	require.Equal(t, sharing.Shared, outcome)

	entries, err = bobFS.ReadDir("/shared")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, entries)

	entries, err = bobFS.ReadDir("/shared/alice")
	require.NoError(t, err)
	require.Equal(t, []string{"docs", "foo.txt"}, entries)

	entries, err = bobFS.ReadDir("/shared/alice/docs")
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, entries)

	data, err := bobFS.Read("/shared/alice/foo.txt", 100, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)

	data, err = bobFS.Read("/shared/alice/foo.txt", 5, 6)
	require.NoError(t, err)
	require.Equal(t, []byte("world"), data)

	size, err := bobFS.Size("/shared/alice/foo.txt")
	require.NoError(t, err)
	require.Equal(t, int64(11), size)

	_, err = bobFS.Write("/shared/alice/foo.txt", []byte("x"), 0)
	require.True(t, xerrors.Is(err, ErrReadOnly))

	err = bobFS.Unlink("/shared/alice/foo.txt")
	require.True(t, xerrors.Is(err, ErrReadOnly))

	err = bobFS.Truncate("/shared/alice/foo.txt", 0)
	require.True(t, xerrors.Is(err, ErrReadOnly))

	err = bobFS.Create("/shared/alice/bar.txt")
	require.True(t, xerrors.Is(err, ErrReadOnly))

	// The owner keeps writing with the same IV, so the recipient still reads
	// the file.
	_, err = aliceFS.Write("/foo.txt", []byte("HELLO"), 0)
	require.NoError(t, err)

	data, err = bobFS.Read("/shared/alice/foo.txt", 100, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("HELLO world"), data)

	reuploaded, err := alice.RevokeSharedFile("alice/foo.txt", "bob", directory.GetKey)
	require.NoError(t, err)
	require.True(t, reuploaded)

	_, err = bobFS.Read("/shared/alice/foo.txt", 100, 0)
	require.True(t, xerrors.Is(err, sharing.ErrAccessDenied))

	entries, err = bobFS.ReadDir("/shared/alice")
	require.NoError(t, err)
	require.Equal(t, []string{"docs"}, entries)

	data, err = aliceFS.Read("/foo.txt", 100, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("HELLO world"), data)

	data, err = bobFS.Read("/shared/alice/docs/a.txt", 100, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("A"), data)
}

func TestFS_StaleDeliveredKey(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-vfs")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	bucket, err := disk.NewBucket(dir)
	require.NoError(t, err)

	st := store.New(bucket)
	directory := pki.NewBucketDirectory(bucket)

	alice := makeSharer(t, "alice", st, directory)
	bob := makeSharer(t, "bob", st, directory)

	aliceFS, err := New(alice, dir)
	require.NoError(t, err)

	bobFS, err := New(bob, dir)
	require.NoError(t, err)

	_, err = aliceFS.Write("/foo.txt", []byte("hello world"), 0)
	require.NoError(t, err)

	_, err = aliceFS.Write("/bar.txt", []byte("bar"), 0)
	require.NoError(t, err)

	_, err = alice.ShareFile("alice/foo.txt", "bob", bob.Identity().Pub)
	require.NoError(t, err)

	// The file is encrypted again but the table of the recipient is not yet
	// rebuilt, as after an interrupted revocation.
	reuploaded, err := st.ReuploadFile(alice, "alice/foo.txt")
	require.NoError(t, err)
	require.True(t, reuploaded)

	_, err = bobFS.Read("/shared/alice/foo.txt", 100, 0)
	require.True(t, xerrors.Is(err, crypto.ErrPadding))

	// Any later share rebuilds the table with the current keys.
	_, err = alice.ShareFile("alice/bar.txt", "bob", bob.Identity().Pub)
	require.NoError(t, err)

	data, err := bobFS.Read("/shared/alice/foo.txt", 100, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)
}

func TestFS_Paths(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-vfs")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	bucket, err := disk.NewBucket(dir)
	require.NoError(t, err)

	alice := makeSharer(t, "alice", store.New(bucket), pki.NewBucketDirectory(bucket))

	fs, err := New(alice, dir)
	require.NoError(t, err)

	_, err = fs.Read("/", 1, 0)
	require.True(t, xerrors.Is(err, ErrIsDir))

	_, err = fs.Read("/shared/alice", 1, 0)
	require.True(t, xerrors.Is(err, ErrIsDir))

	err = fs.Create("/shared")
	require.True(t, xerrors.Is(err, ErrReadOnly))

	require.NoError(t, fs.Create("/../empty"))

	size, err := fs.Size("empty")
	require.NoError(t, err)
	require.Equal(t, int64(0), size)

	f, err := fs.Open("/empty")
	require.NoError(t, err)
	require.Equal(t, "alice/empty", f.Path())

	_, err = f.Write([]byte("abc"), 0)
	require.NoError(t, err)

	require.NoError(t, fs.Truncate("/empty", 1))

	data, err := fs.Read("/empty", 10, 0)
	require.NoError(t, err)
	require.Equal(t, []byte("a"), data)

	require.NoError(t, fs.Unlink("/empty"))

	entries, err := fs.ReadDir("/")
	require.NoError(t, err)
	require.Equal(t, []string{SharedDir}, entries)

	entries, err = fs.ReadDir("/shared")
	require.NoError(t, err)
	require.Empty(t, entries)

	// Files of others that are not shared are denied.
	_, err = bucket.Get("alice/empty")
	require.True(t, xerrors.Is(err, store.ErrNotFound))

	require.NoError(t, bucket.Set("carol/x", make([]byte, 33)))

	_, err = fs.Read("/shared/carol/x", 1, 0)
	require.True(t, xerrors.Is(err, sharing.ErrAccessDenied))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeSharer(t *testing.T, id string, st store.AccessStore, dir pki.BucketDirectory) *sharing.Sharer {
	identity, err := keystore.NewRandom()
	require.NoError(t, err)

	require.NoError(t, dir.Publish(id, identity.Pub))

	s, err := sharing.NewSharer(id, identity, st)
	require.NoError(t, err)

	return s
}
