package controller

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/dela/cli"
	"go.dedis.ch/dela/cli/node"
	"go.dedis.ch/sharefs/sharing"
	"golang.org/x/xerrors"
)

func TestShareAction_Execute(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	alice := makeEnv(t, dir, "alice")
	makeEnv(t, dir, "bob")

	require.NoError(t, alice.Sharer.UploadFile("alice/foo.txt", []byte("data")))

	out := new(bytes.Buffer)
	action := shareAction{out: out}

	flags := principal(dir, "alice")
	flags.strings["path"] = "alice/foo.txt"
	flags.strings["recipient"] = "bob"

	require.NoError(t, action.Execute(node.Context{Flags: flags}))
	require.Equal(t, "shared\n", out.String())

	out.Reset()
	require.NoError(t, action.Execute(node.Context{Flags: flags}))
	require.Equal(t, "already shared\n", out.String())

	flags.strings["path"] = "alice/unknown"
	err := action.Execute(node.Context{Flags: flags})
	require.EqualError(t, err, "file 'alice/unknown' not found")

	flags.strings["recipient"] = "carol"
	err = action.Execute(node.Context{Flags: flags})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to get key of recipient: ")

	flags.strings["id"] = "a_b"
	err = action.Execute(node.Context{Flags: flags})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to open environment: bad identifier")
}

func TestRevokeAction_Execute(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	alice := makeEnv(t, dir, "alice")
	bob := makeEnv(t, dir, "bob")

	require.NoError(t, alice.Sharer.UploadFile("alice/foo.txt", []byte("data")))

	_, err := alice.Sharer.ShareFile("alice/foo.txt", "bob", bob.Sharer.Identity().Pub)
	require.NoError(t, err)

	out := new(bytes.Buffer)
	action := revokeAction{out: out}

	flags := principal(dir, "alice")
	flags.strings["path"] = "alice/foo.txt"
	flags.strings["recipient"] = "bob"

	require.NoError(t, action.Execute(node.Context{Flags: flags}))
	require.Equal(t, "revoked (file encrypted again: true)\n", out.String())

	err = action.Execute(node.Context{Flags: flags})
	require.EqualError(t, err, "'alice/foo.txt' is not shared with 'bob'")

	paths, err := bob.Sharer.ListFilesSharedWithUs()
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestListAction_Execute(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	alice := makeEnv(t, dir, "alice")
	bob := makeEnv(t, dir, "bob")

	require.NoError(t, alice.Sharer.UploadFile("alice/foo.txt", []byte("data")))
	require.NoError(t, bob.Sharer.UploadFile("bob/bar.txt", []byte("data")))

	_, err := alice.Sharer.ShareFile("alice/foo.txt", "bob", bob.Sharer.Identity().Pub)
	require.NoError(t, err)

	_, err = bob.Sharer.ShareFile("bob/bar.txt", "alice", alice.Sharer.Identity().Pub)
	require.NoError(t, err)

	out := new(bytes.Buffer)
	action := listAction{out: out}

	require.NoError(t, action.Execute(node.Context{Flags: principal(dir, "alice")}))

	var res listing
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	require.Equal(t, sharing.Others{"bob": {"alice/foo.txt"}}, res.SharedByUs)
	require.Equal(t, []string{"bob/bar.txt"}, res.SharedWithUs)
}

func TestRegisterAction_Execute(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	ctx := node.Context{
		Flags:    fakeFlags{strings: map[string]string{"store": dir}},
		Injector: fakeInjector{err: xerrors.New("oops")},
	}

	err := registerAction{}.Execute(ctx)
	require.EqualError(t, err, "failed to resolve proxy: oops")
}

func TestConfig_Open(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	_, err := Config{ID: "alice"}.Open()
	require.EqualError(t, err, "failed to open bucket: no storage given")

	_, err = Config{ID: "alice", StoreDir: dir, KDF: "md5"}.Open()
	require.EqualError(t, err, "failed to get identity: unknown strategy 'md5'")

	_, err = Config{ID: "alice", StoreDir: dir, Format: "XML"}.Open()
	require.EqualError(t, err, "unknown format 'XML'")

	_, err = Config{ID: "others", StoreDir: dir}.Open()
	require.True(t, xerrors.Is(err, sharing.ErrInvalidID))

	env, err := Config{ID: "alice", StoreDir: dir, Format: "GOB"}.Open()
	require.NoError(t, err)

	pub, err := env.Directory.GetKey("alice")
	require.NoError(t, err)
	require.True(t, pub.Equal(env.Sharer.Identity().Pub))
}

func TestConfig_KeyFile(t *testing.T) {
	dir, clean := makeDir(t)
	defer clean()

	keyfile := filepath.Join(dir, "alice.key")

	first, err := Config{ID: "alice", StoreDir: dir, KeyFile: keyfile, Passphrase: "a"}.Open()
	require.NoError(t, err)

	// The key file takes precedence over the passphrase.
	second, err := Config{ID: "alice", StoreDir: dir, KeyFile: keyfile, Passphrase: "b"}.Open()
	require.NoError(t, err)
	require.True(t, first.Sharer.Identity().Equal(second.Sharer.Identity()))

	third, err := Config{ID: "alice", StoreDir: dir, Passphrase: "a", KDF: "pbkdf2"}.Open()
	require.NoError(t, err)
	require.False(t, first.Sharer.Identity().Equal(third.Sharer.Identity()))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDir(t *testing.T) (string, func()) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-controller")
	require.NoError(t, err)

	return dir, func() { os.RemoveAll(dir) }
}

func principal(dir, id string) fakeFlags {
	return fakeFlags{
		strings: map[string]string{
			"id":         id,
			"passphrase": id + " passphrase",
			"kdf":        "legacy",
			"store":      dir,
			"format":     "JSON",
		},
	}
}

func makeEnv(t *testing.T, dir, id string) Env {
	env, err := configFromFlags(principal(dir, id)).Open()
	require.NoError(t, err)

	return env
}

type fakeFlags struct {
	cli.Flags
	strings map[string]string
}

func (f fakeFlags) String(name string) string {
	return f.strings[name]
}

type fakeInjector struct {
	node.Injector
	err error
}

func (i fakeInjector) Resolve(interface{}) error {
	return i.err
}
