package sharing

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("alice"))
	require.NoError(t, ValidateID("bob.smith"))

	for _, id := range []string{"", "a_b", "a/b", ".alice", "others"} {
		err := ValidateID(id)
		require.True(t, xerrors.Is(err, ErrInvalidID), id)
	}

	require.EqualError(t, ValidateID("a_b"), "'a_b' contains '_': invalid identifier")
}

func TestTableName(t *testing.T) {
	require.Equal(t, "table_alice_bob", TableName("alice", "bob"))
	require.Equal(t, "table_alice_others", OthersTableName("alice"))

	owner, recipient, ok := ParseTableName("table_alice_bob")
	require.True(t, ok)
	require.Equal(t, "alice", owner)
	require.Equal(t, "bob", recipient)

	owner, recipient, ok = ParseTableName(OthersTableName("alice"))
	require.True(t, ok)
	require.Equal(t, "alice", owner)
	require.Empty(t, recipient)

	for _, name := range []string{"", "table_alice", "table_a_b_c", "tbl_a_b", "table__b", "table_a_"} {
		_, _, ok = ParseTableName(name)
		require.False(t, ok, name)
	}
}

func TestOwner(t *testing.T) {
	require.Equal(t, "alice", Owner("alice/foo.txt"))
	require.Equal(t, "alice", Owner("alice/a/b"))
	require.Equal(t, "", Owner("foo.txt"))
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "shared", Shared.String())
	require.Equal(t, "already shared", AlreadyShared.String())
	require.Equal(t, "file not found", FileNotFound.String())
	require.Equal(t, "unknown", Outcome(99).String())
}
