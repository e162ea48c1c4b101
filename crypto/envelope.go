package crypto

import (
	"crypto/rand"
	"crypto/sha256"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/encrypt/ecies"
	"go.dedis.ch/kyber/v3/suites"
	"golang.org/x/xerrors"
)

// gcmTagSize is the size of the authentication tag appended by ECIES.
const gcmTagSize = 16

// Suite is the Kyber suite of the principals' keypairs.
var Suite = suites.MustFind("Ed25519")

// EnvelopeHeaderSize returns the size of the wrapped session key at the
// beginning of an envelope.
func EnvelopeHeaderSize() int {
	return Suite.PointLen() + KeySize + gcmTagSize
}

// EnvelopeEncrypt encrypts data for the owner of pub. A fresh session key is
// wrapped with ECIES and the data is encrypted under the session key. The
// result is wrapped session key || iv || ciphertext.
func EnvelopeEncrypt(data []byte, pub kyber.Point) ([]byte, error) {
	session := make([]byte, KeySize)

	_, err := rand.Read(session)
	if err != nil {
		return nil, xerrors.Errorf("failed to read random: %v", err)
	}

	wrapped, err := ecies.Encrypt(Suite, pub, session, sha256.New)
	if err != nil {
		return nil, xerrors.Errorf("failed to wrap session key: %v", err)
	}

	ciphertext, err := SymmetricEncrypt(data, session, nil)
	if err != nil {
		return nil, xerrors.Errorf("failed to encrypt data: %v", err)
	}

	return append(wrapped, ciphertext...), nil
}

// EnvelopeDecrypt opens an envelope created by EnvelopeEncrypt. It returns an
// error wrapping ErrDecryption when priv is not the right key.
func EnvelopeDecrypt(blob []byte, priv kyber.Scalar) ([]byte, error) {
	n := EnvelopeHeaderSize()
	if len(blob) < n {
		return nil, xerrors.Errorf("envelope of %d bytes: %w", len(blob), ErrDecryption)
	}

	session, err := ecies.Decrypt(Suite, priv, blob[:n], sha256.New)
	if err != nil {
		return nil, xerrors.Errorf("failed to unwrap session key: %w", ErrDecryption)
	}

	data, err := SymmetricDecrypt(blob[n:], session)
	if err != nil {
		return nil, xerrors.Errorf("failed to decrypt data: %w", ErrDecryption)
	}

	return data, nil
}
