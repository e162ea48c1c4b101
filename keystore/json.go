package keystore

import (
	"encoding/base64"
	"encoding/json"
	"encoding/pem"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/sharefs/crypto"
	"golang.org/x/xerrors"
)

const (
	privateKeyType = "KYBER ED25519 PRIVATE KEY"
	publicKeyType  = "KYBER ED25519 PUBLIC KEY"
)

// identityJSON is the persisted form of an identity.
type identityJSON struct {
	Sym  string `json:"sym"`
	Priv string `json:"priv"`
	Pub  string `json:"pub"`
}

// Marshal returns the JSON form of the identity: the secret in base64 and the
// keys in PEM.
func Marshal(id Identity) ([]byte, error) {
	privBuf, err := id.Priv.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal private key: %v", err)
	}

	pub, err := EncodePublicKey(id.Pub)
	if err != nil {
		return nil, err
	}

	m := identityJSON{
		Sym:  base64.StdEncoding.EncodeToString(id.Sym),
		Priv: string(pem.EncodeToMemory(&pem.Block{Type: privateKeyType, Bytes: privBuf})),
		Pub:  string(pub),
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Unmarshal restores an identity from its JSON form.
func Unmarshal(data []byte) (Identity, error) {
	m := identityJSON{}

	err := json.Unmarshal(data, &m)
	if err != nil {
		return Identity{}, xerrors.Errorf("couldn't unmarshal identity: %v", err)
	}

	sym, err := base64.StdEncoding.DecodeString(m.Sym)
	if err != nil {
		return Identity{}, xerrors.Errorf("failed to decode secret: %v", err)
	}

	if len(sym) != crypto.KeySize {
		return Identity{}, xerrors.Errorf("invalid secret length: %d", len(sym))
	}

	block, _ := pem.Decode([]byte(m.Priv))
	if block == nil || block.Type != privateKeyType {
		return Identity{}, xerrors.New("private key not found")
	}

	priv := crypto.Suite.Scalar()
	err = priv.UnmarshalBinary(block.Bytes)
	if err != nil {
		return Identity{}, xerrors.Errorf("failed to unmarshal private key: %v", err)
	}

	pub, err := DecodePublicKey([]byte(m.Pub))
	if err != nil {
		return Identity{}, err
	}

	if !crypto.Suite.Point().Mul(priv, nil).Equal(pub) {
		return Identity{}, xerrors.New("public key does not match private key")
	}

	return Identity{Sym: sym, Priv: priv, Pub: pub}, nil
}

// EncodePublicKey returns the PEM form of a public key.
func EncodePublicKey(pub kyber.Point) ([]byte, error) {
	buf, err := pub.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal public key: %v", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: publicKeyType, Bytes: buf}), nil
}

// DecodePublicKey parses the PEM form of a public key.
func DecodePublicKey(data []byte) (kyber.Point, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != publicKeyType {
		return nil, xerrors.New("public key not found")
	}

	pub := crypto.Suite.Point()
	err := pub.UnmarshalBinary(block.Bytes)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal public key: %v", err)
	}

	return pub, nil
}
