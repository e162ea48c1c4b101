// Package json implements the JSON format of the sharing tables. Byte strings
// are encoded in base64 by the standard encoder, which keeps them lossless.
package json

import (
	"encoding/json"

	"go.dedis.ch/dela/serde"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

func init() {
	store.RegisterFormat(serde.FormatJSON, format{})
}

// format is the JSON engine.
//
// - implements store.Format
type format struct{}

// Encode implements store.Format.
func (format) Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal: %v", err)
	}

	return data, nil
}

// Decode implements store.Format.
func (format) Decode(data []byte, v interface{}) error {
	err := json.Unmarshal(data, v)
	if err != nil {
		return xerrors.Errorf("couldn't unmarshal: %v", err)
	}

	return nil
}
