package keystore

import (
	"go.dedis.ch/dela/crypto/loader"
	"golang.org/x/xerrors"
)

// LoadOrCreate returns the identity stored in the key file at path. When the
// file does not exist, the identity is created with gen and written to it. An
// existing key file always takes precedence over gen.
func LoadOrCreate(path string, gen func() (Identity, error)) (Identity, error) {
	l := loader.NewFileLoader(path)

	data, err := l.LoadOrCreate(generator{gen: gen})
	if err != nil {
		return Identity{}, xerrors.Errorf("failed to load or create key file: %v", err)
	}

	id, err := Unmarshal(data)
	if err != nil {
		return Identity{}, xerrors.Errorf("invalid key file '%s': %v", path, err)
	}

	return id, nil
}

// generator creates the content of a new key file.
//
// - implements loader.Generator
type generator struct {
	gen func() (Identity, error)
}

// Generate implements loader.Generator.
func (g generator) Generate() ([]byte, error) {
	id, err := g.gen()
	if err != nil {
		return nil, xerrors.Errorf("failed to generate identity: %v", err)
	}

	return Marshal(id)
}
