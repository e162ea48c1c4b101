package main

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/sharefs/controller"
)

func TestRepl_Scenario(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-sharectl")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	bobOut := new(bytes.Buffer)
	bob, err := newContext(controller.Config{ID: "bob", Passphrase: "b", StoreDir: dir}, bobOut)
	require.NoError(t, err)

	aliceOut := new(bytes.Buffer)
	alice, err := newContext(controller.Config{ID: "alice", Passphrase: "a", StoreDir: dir}, aliceOut)
	require.NoError(t, err)

	repl(alice, strings.NewReader("put alice/foo.txt hello world\nshare alice/foo.txt bob\nlist\nls\nexit\n"))
	require.Contains(t, aliceOut.String(), "shared\n")
	require.Contains(t, aliceOut.String(), "bob: alice/foo.txt\n")
	require.Contains(t, aliceOut.String(), "foo.txt\nshared\n")
	require.True(t, strings.HasSuffix(aliceOut.String(), "bye!\n"))

	repl(bob, strings.NewReader("listwith\ncat alice/foo.txt\nls /shared/alice\n"))
	require.Contains(t, bobOut.String(), "alice/foo.txt\n")
	require.Contains(t, bobOut.String(), "hello world\n")
	require.Contains(t, bobOut.String(), "foo.txt\n")

	aliceOut.Reset()
	repl(alice, strings.NewReader("revoke alice/foo.txt bob\nrevoke alice/foo.txt bob\n"))
	require.Contains(t, aliceOut.String(), "revoked (file encrypted again: true)\n")
	require.Contains(t, aliceOut.String(), "failed to run: 'alice/foo.txt' is not shared with 'bob'\n")

	bobOut.Reset()
	repl(bob, strings.NewReader("cat alice/foo.txt\n"))
	require.Contains(t, bobOut.String(), "failed to run: failed to load: ")
	require.Contains(t, bobOut.String(), "access denied")
}

func TestRepl_Help(t *testing.T) {
	dir, err := ioutil.TempDir(os.TempDir(), "sharefs-sharectl")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	out := new(bytes.Buffer)
	ctx, err := newContext(controller.Config{ID: "alice", StoreDir: dir}, out)
	require.NoError(t, err)

	repl(ctx, strings.NewReader("\nunknown\nshare a\ncat\n"))
	require.Contains(t, out.String(), "available commands:\n- share: ")
	require.Contains(t, out.String(), "- exit: quit the shell\n")
	require.Contains(t, out.String(), "failed to run: usage: share <path> <recipient>\n")
	require.Contains(t, out.String(), "failed to run: usage: cat <path>\n")
}
