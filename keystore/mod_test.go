package keystore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/sharefs/crypto"
)

func TestGenerate_Deterministic(t *testing.T) {
	id1, err := Generate("123", nil)
	require.NoError(t, err)

	id2, err := Generate("123", Legacy{})
	require.NoError(t, err)

	require.True(t, id1.Equal(id2))
	require.Len(t, id1.Sym, crypto.KeySize)
	require.True(t, crypto.Suite.Point().Mul(id1.Priv, nil).Equal(id1.Pub))

	id3, err := Generate("1234", nil)
	require.NoError(t, err)
	require.False(t, id1.Equal(id3))
	require.False(t, id1.Pub.Equal(id3.Pub))
}

func TestGenerate_Strategies(t *testing.T) {
	strategies := []Strategy{
		PBKDF2{Salt: []byte("salt"), Iterations: 10},
		Argon2id{Salt: []byte("salt"), Time: 1, Memory: 1024, Threads: 1},
	}

	legacy, err := Generate("pass", Legacy{})
	require.NoError(t, err)

	for _, s := range strategies {
		id1, err := Generate("pass", s)
		require.NoError(t, err)

		id2, err := Generate("pass", s)
		require.NoError(t, err)

		require.True(t, id1.Equal(id2))
		require.False(t, id1.Equal(legacy))
	}
}

func TestGenerate_BadStrategy(t *testing.T) {
	_, err := Generate("pass", PBKDF2{})
	require.EqualError(t, err, "failed to derive: invalid iterations: 0")

	_, err = Generate("pass", Argon2id{})
	require.EqualError(t, err, "failed to derive: time, memory and threads must be positive")

	_, err = Generate("pass", fakeStrategy{})
	require.EqualError(t, err, "invalid secret length: 3")
}

func TestNewRandom(t *testing.T) {
	id1, err := NewRandom()
	require.NoError(t, err)

	id2, err := NewRandom()
	require.NoError(t, err)

	require.False(t, id1.Equal(id2))
	require.False(t, id1.Equal(Identity{}))
}

func TestStrategyFromName(t *testing.T) {
	s, err := StrategyFromName("", nil)
	require.NoError(t, err)
	require.Equal(t, Legacy{}, s)

	s, err = StrategyFromName("pbkdf2", []byte("alice"))
	require.NoError(t, err)
	require.IsType(t, PBKDF2{}, s)

	s, err = StrategyFromName("argon2id", []byte("alice"))
	require.NoError(t, err)
	require.IsType(t, Argon2id{}, s)

	_, err = StrategyFromName("scrypt", nil)
	require.EqualError(t, err, "unknown strategy 'scrypt'")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeStrategy struct{}

func (fakeStrategy) Derive(string) ([]byte, []byte, error) {
	return []byte("abc"), []byte("seed"), nil
}
