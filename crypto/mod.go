// Package crypto implements the primitives used to protect files and sharing
// tables: AES-CTR with an explicit block counter, PKCS#7 padding, the hybrid
// envelope used to deliver tables to a recipient and the record format of an
// encrypted file.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/xerrors"
)

const (
	// BlockSize is the size of a cipher block. Every encrypted length is a
	// multiple of it.
	BlockSize = aes.BlockSize

	// IVSize is the size of the initialization vector of a file or a table.
	IVSize = BlockSize

	// KeySize is the size of the symmetric keys (AES-256).
	KeySize = 32
)

var (
	// ErrPadding is returned when the padding of a decrypted message is
	// inconsistent, which is the usual symptom of a wrong key.
	ErrPadding = xerrors.New("invalid padding")

	// ErrDecryption is returned when an envelope cannot be opened with the
	// given private key.
	ErrDecryption = xerrors.New("decryption failed")

	// ErrShortCiphertext is returned when a ciphertext is too short to
	// contain its IV or is not block aligned.
	ErrShortCiphertext = xerrors.New("ciphertext too short")
)

// FileKey returns the key of a file: SHA-256(iv || secret). The same pair
// always gives the same key.
func FileKey(iv, secret []byte) []byte {
	h := sha256.New()
	h.Write(iv)
	h.Write(secret)

	return h.Sum(nil)
}

// RandomIV returns a fresh random IV.
func RandomIV() ([]byte, error) {
	iv := make([]byte, IVSize)

	_, err := rand.Read(iv)
	if err != nil {
		return nil, xerrors.Errorf("failed to read random: %v", err)
	}

	return iv, nil
}

// NewStream returns an AES-CTR stream keyed by key whose initial counter is
// the big-endian integer iv + block. A block at position n of a message
// encrypted from counter iv can therefore be processed on its own with
// NewStream(key, iv, n).
func NewStream(key, iv []byte, block uint64) (cipher.Stream, error) {
	if len(iv) != IVSize {
		return nil, xerrors.Errorf("invalid iv length: %d", len(iv))
	}

	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, xerrors.Errorf("failed to create cipher: %v", err)
	}

	return cipher.NewCTR(c, counterAt(iv, block)), nil
}

// counterAt adds block to the 128-bit big-endian counter iv, modulo 2^128.
func counterAt(iv []byte, block uint64) []byte {
	ctr := make([]byte, len(iv))
	copy(ctr, iv)

	carry := block
	for i := len(ctr) - 1; i >= 0 && carry > 0; i-- {
		sum := uint64(ctr[i]) + (carry & 0xff)
		ctr[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}

	return ctr
}

// SymmetricEncrypt pads and encrypts data. The IV is generated when nil. It
// returns iv || ciphertext.
func SymmetricEncrypt(data, key, iv []byte) ([]byte, error) {
	if iv == nil {
		var err error
		iv, err = RandomIV()
		if err != nil {
			return nil, err
		}
	}

	stream, err := NewStream(key, iv, 0)
	if err != nil {
		return nil, err
	}

	padded := Pad(data)

	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	stream.XORKeyStream(out[IVSize:], padded)

	return out, nil
}

// SymmetricDecrypt reverses SymmetricEncrypt. ErrPadding is returned when the
// key is not the one used to encrypt.
func SymmetricDecrypt(data, key []byte) ([]byte, error) {
	if len(data) < IVSize+BlockSize || (len(data)-IVSize)%BlockSize != 0 {
		return nil, xerrors.Errorf("got %d bytes: %w", len(data), ErrShortCiphertext)
	}

	stream, err := NewStream(key, data[:IVSize], 0)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(data)-IVSize)
	stream.XORKeyStream(plain, data[IVSize:])

	return Unpad(plain)
}

// Pad appends PKCS#7 padding so that the length is a multiple of BlockSize.
// A full block is appended to aligned inputs.
func Pad(data []byte) []byte {
	n := BlockSize - len(data)%BlockSize

	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}

	return out
}

// Unpad removes the PKCS#7 padding.
func Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 || len(data)%BlockSize != 0 {
		return nil, xerrors.Errorf("length %d: %w", len(data), ErrPadding)
	}

	n := int(data[len(data)-1])
	if n == 0 || n > BlockSize {
		return nil, xerrors.Errorf("size %d: %w", n, ErrPadding)
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrPadding
		}
	}

	return data[:len(data)-n], nil
}
