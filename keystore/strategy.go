package keystore

import (
	"crypto/sha256"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/xerrors"
)

// Strategy derives the key material of an identity from a passphrase. It
// returns the 32-byte master secret and the seed of the private key.
type Strategy interface {
	Derive(passphrase string) (sym []byte, seed []byte, err error)
}

// Legacy hashes the passphrase for the master secret and seeds the private
// key with the passphrase itself. It is compatible with the identities
// created before the other strategies existed but a weak passphrase gives a
// weak identity.
//
// - implements Strategy
type Legacy struct{}

// Derive implements Strategy.
func (Legacy) Derive(passphrase string) ([]byte, []byte, error) {
	sym := sha256.Sum256([]byte(passphrase))

	return sym[:], []byte(passphrase), nil
}

// PBKDF2 derives 64 bytes with PBKDF2-SHA256, the first half being the master
// secret and the second half the seed.
//
// - implements Strategy
type PBKDF2 struct {
	Salt       []byte
	Iterations int
}

// Derive implements Strategy.
func (s PBKDF2) Derive(passphrase string) ([]byte, []byte, error) {
	if s.Iterations <= 0 {
		return nil, nil, xerrors.Errorf("invalid iterations: %d", s.Iterations)
	}

	out := pbkdf2.Key([]byte(passphrase), s.Salt, s.Iterations, 64, sha256.New)

	return out[:32], out[32:], nil
}

// Argon2id derives 64 bytes with Argon2id, the first half being the master
// secret and the second half the seed. Memory is in KiB.
//
// - implements Strategy
type Argon2id struct {
	Salt    []byte
	Time    uint32
	Memory  uint32
	Threads uint8
}

// Derive implements Strategy.
func (s Argon2id) Derive(passphrase string) ([]byte, []byte, error) {
	if s.Time == 0 || s.Memory == 0 || s.Threads == 0 {
		return nil, nil, xerrors.New("time, memory and threads must be positive")
	}

	out := argon2.IDKey([]byte(passphrase), s.Salt, s.Time, s.Memory, s.Threads, 64)

	return out[:32], out[32:], nil
}

// StrategyFromName returns the strategy for one of "legacy", "pbkdf2" or
// "argon2id". The salt is used by the last two.
func StrategyFromName(name string, salt []byte) (Strategy, error) {
	switch name {
	case "", "legacy":
		return Legacy{}, nil
	case "pbkdf2":
		return PBKDF2{Salt: salt, Iterations: 100000}, nil
	case "argon2id":
		return Argon2id{Salt: salt, Time: 1, Memory: 64 * 1024, Threads: 4}, nil
	default:
		return nil, xerrors.Errorf("unknown strategy '%s'", name)
	}
}
