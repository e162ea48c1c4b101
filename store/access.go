package store

import (
	"path"
	"strings"

	"go.dedis.ch/dela/serde"
	"go.dedis.ch/sharefs"
	"go.dedis.ch/sharefs/crypto"
	"golang.org/x/xerrors"
)

// TablePrefix is the key prefix under which the tables are stored in the
// bucket.
const TablePrefix = ".tables/"

// Option is the type of option to create an access store.
type Option func(*accessStore)

// WithFormat sets the format of the tables. The format must have been
// registered beforehand. The default is JSON.
func WithFormat(f serde.Format) Option {
	return func(s *accessStore) {
		s.format = f
	}
}

// accessStore is the access store on top of a bucket. Files are stored under
// their clean path and tables under TablePrefix.
//
// - implements AccessStore
type accessStore struct {
	bucket Bucket
	format serde.Format
}

// New returns an access store that uses the bucket.
func New(bucket Bucket, opts ...Option) AccessStore {
	s := &accessStore{
		bucket: bucket,
		format: serde.FormatJSON,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name implements AccessStore. It removes the leading slash and the
// redundant elements of the path.
func (s *accessStore) Name(p string) string {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))

	return strings.TrimPrefix(clean, "/")
}

// ListTables implements AccessStore.
func (s *accessStore) ListTables() ([]string, error) {
	names, err := s.bucket.List(TablePrefix)
	if err != nil {
		return nil, xerrors.Errorf("failed to list tables: %v", err)
	}

	return names, nil
}

// LoadTable implements AccessStore.
func (s *accessStore) LoadTable(name string) ([]byte, bool, error) {
	return s.get(TablePrefix + name)
}

// UploadTable implements AccessStore.
func (s *accessStore) UploadTable(name string, data []byte) error {
	err := s.bucket.Set(TablePrefix+name, data)
	if err != nil {
		return xerrors.Errorf("failed to upload table '%s': %v", name, err)
	}

	return nil
}

// LoadFileIV implements AccessStore. A file too short to hold an IV is
// reported as absent.
func (s *accessStore) LoadFileIV(p string) ([]byte, bool, error) {
	record, found, err := s.LoadFile(p)
	if err != nil || !found {
		return nil, false, err
	}

	hdr, err := crypto.ParseHeader(record)
	if xerrors.Is(err, crypto.ErrShortRecord) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Errorf("invalid file '%s': %w", p, err)
	}

	return hdr.IV, true, nil
}

// FileExists implements AccessStore.
func (s *accessStore) FileExists(p string) (bool, error) {
	found, err := s.bucket.Exists(s.Name(p))
	if err != nil {
		return false, xerrors.Errorf("failed to check file: %v", err)
	}

	return found, nil
}

// ReuploadFile implements AccessStore.
func (s *accessStore) ReuploadFile(owner KeyGenerator, p string) (bool, error) {
	record, found, err := s.LoadFile(p)
	if err != nil || !found {
		return false, err
	}

	hdr, err := crypto.ParseHeader(record)
	if xerrors.Is(err, crypto.ErrShortRecord) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("invalid file '%s': %w", p, err)
	}

	plain, err := crypto.DecodeRecord(record, owner.KeyGen(hdr.IV))
	if err != nil {
		return false, xerrors.Errorf("failed to decrypt '%s': %w", p, err)
	}

	iv, err := crypto.RandomIV()
	if err != nil {
		return false, err
	}

	record, err = crypto.EncodeRecord(plain, owner.KeyGen(iv), iv)
	if err != nil {
		return false, xerrors.Errorf("failed to encrypt '%s': %v", p, err)
	}

	err = s.StoreFile(p, record)
	if err != nil {
		return false, err
	}

	sharefs.Logger.Debug().Str("path", s.Name(p)).Msg("file uploaded with a new iv")

	return true, nil
}

// LoadFile implements AccessStore.
func (s *accessStore) LoadFile(p string) ([]byte, bool, error) {
	return s.get(s.Name(p))
}

// StoreFile implements AccessStore.
func (s *accessStore) StoreFile(p string, record []byte) error {
	err := s.bucket.Set(s.Name(p), record)
	if err != nil {
		return xerrors.Errorf("failed to store file '%s': %v", p, err)
	}

	return nil
}

// Serialize implements AccessStore.
func (s *accessStore) Serialize(v interface{}) ([]byte, error) {
	f := GetFormat(s.format)
	if f == nil {
		return nil, xerrors.Errorf("format '%s' not found", s.format)
	}

	data, err := f.Encode(v)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// Deserialize implements AccessStore.
func (s *accessStore) Deserialize(data []byte, v interface{}) error {
	f := GetFormat(s.format)
	if f == nil {
		return xerrors.Errorf("format '%s' not found", s.format)
	}

	err := f.Decode(data, v)
	if err != nil {
		return xerrors.Errorf("failed to decode: %v", err)
	}

	return nil
}

func (s *accessStore) get(key string) ([]byte, bool, error) {
	data, err := s.bucket.Get(key)
	if xerrors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Errorf("failed to get '%s': %v", key, err)
	}

	return data, true, nil
}
