// Package keystore manages the identity of a principal: a symmetric master
// secret and an Ed25519 keypair. An identity is either generated at random or
// derived from a passphrase, and it can be persisted in a key file.
package keystore

import (
	"crypto/rand"
	"crypto/subtle"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/sharefs/crypto"
	"golang.org/x/xerrors"
)

// Identity holds the key material of a principal. It is immutable once
// created.
type Identity struct {
	// Sym is the master secret from which the file keys are derived.
	Sym []byte
	// Priv opens the tables shared with the principal.
	Priv kyber.Scalar
	// Pub is published so that others can share with the principal.
	Pub kyber.Point
}

// Equal returns true when both identities hold the same keys.
func (id Identity) Equal(other Identity) bool {
	if subtle.ConstantTimeCompare(id.Sym, other.Sym) != 1 {
		return false
	}

	if id.Priv == nil || other.Priv == nil || id.Pub == nil || other.Pub == nil {
		return false
	}

	return id.Priv.Equal(other.Priv) && id.Pub.Equal(other.Pub)
}

// Generate derives an identity from a passphrase. The strategy provides the
// master secret and the seed of the deterministic stream the private key is
// picked from, so that a passphrase always gives the same identity.
func Generate(passphrase string, s Strategy) (Identity, error) {
	if s == nil {
		s = Legacy{}
	}

	sym, seed, err := s.Derive(passphrase)
	if err != nil {
		return Identity{}, xerrors.Errorf("failed to derive: %v", err)
	}

	if len(sym) != crypto.KeySize {
		return Identity{}, xerrors.Errorf("invalid secret length: %d", len(sym))
	}

	priv := crypto.Suite.Scalar().Pick(crypto.Suite.XOF(seed))

	return Identity{
		Sym:  sym,
		Priv: priv,
		Pub:  crypto.Suite.Point().Mul(priv, nil),
	}, nil
}

// NewRandom returns an identity from the secure random source.
func NewRandom() (Identity, error) {
	sym := make([]byte, crypto.KeySize)

	_, err := rand.Read(sym)
	if err != nil {
		return Identity{}, xerrors.Errorf("failed to read random: %v", err)
	}

	priv := crypto.Suite.Scalar().Pick(crypto.Suite.RandomStream())

	return Identity{
		Sym:  sym,
		Priv: priv,
		Pub:  crypto.Suite.Point().Mul(priv, nil),
	}, nil
}
