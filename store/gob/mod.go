// Package gob implements a binary format of the sharing tables with
// encoding/gob.
package gob

import (
	"bytes"
	"encoding/gob"

	"go.dedis.ch/dela/serde"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// FormatGob is the identifier of the binary format.
const FormatGob serde.Format = "GOB"

func init() {
	store.RegisterFormat(FormatGob, format{})
}

// format is the gob engine.
//
// - implements store.Format
type format struct{}

// Encode implements store.Format.
func (format) Encode(v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)

	err := gob.NewEncoder(buf).Encode(v)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode: %v", err)
	}

	return buf.Bytes(), nil
}

// Decode implements store.Format.
func (format) Decode(data []byte, v interface{}) error {
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(v)
	if err != nil {
		return xerrors.Errorf("couldn't decode: %v", err)
	}

	return nil
}
