// Package pki implements directories of the public keys of the principals.
package pki

import (
	"sync"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/sharefs/keystore"
	"go.dedis.ch/sharefs/sharing"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// KeyPrefix is the prefix of the public keys in a bucket.
const KeyPrefix = ".pki/"

// ErrUnknown is returned when a principal has no public key.
var ErrUnknown = xerrors.New("unknown principal")

// Directory returns the public keys of the principals. GetKey can be used as
// a sharing.KeyLookup.
type Directory interface {
	GetKey(id string) (kyber.Point, error)
}

// MemDirectory is an in-memory directory.
//
// - implements Directory
type MemDirectory struct {
	sync.Mutex
	keys map[string]kyber.Point
}

// NewDirectory returns an empty in-memory directory.
func NewDirectory() *MemDirectory {
	return &MemDirectory{
		keys: make(map[string]kyber.Point),
	}
}

// Add sets the public key of the principal.
func (d *MemDirectory) Add(id string, pub kyber.Point) {
	d.Lock()
	d.keys[id] = pub
	d.Unlock()
}

// GetKey implements Directory.
func (d *MemDirectory) GetKey(id string) (kyber.Point, error) {
	d.Lock()
	defer d.Unlock()

	pub, found := d.keys[id]
	if !found {
		return nil, xerrors.Errorf("'%s': %w", id, ErrUnknown)
	}

	return pub, nil
}

// BucketDirectory is a directory that stores the public keys in PEM format in
// a bucket, next to the files.
//
// - implements Directory
type BucketDirectory struct {
	bucket store.Bucket
}

// NewBucketDirectory returns a directory on top of the bucket.
func NewBucketDirectory(bucket store.Bucket) BucketDirectory {
	return BucketDirectory{bucket: bucket}
}

// Publish stores the public key of the principal.
func (d BucketDirectory) Publish(id string, pub kyber.Point) error {
	err := sharing.ValidateID(id)
	if err != nil {
		return xerrors.Errorf("bad principal: %w", err)
	}

	data, err := keystore.EncodePublicKey(pub)
	if err != nil {
		return xerrors.Errorf("failed to encode key: %v", err)
	}

	err = d.bucket.Set(KeyPrefix+id, data)
	if err != nil {
		return xerrors.Errorf("failed to store key: %v", err)
	}

	return nil
}

// GetKey implements Directory.
func (d BucketDirectory) GetKey(id string) (kyber.Point, error) {
	err := sharing.ValidateID(id)
	if err != nil {
		return nil, xerrors.Errorf("bad principal: %w", err)
	}

	data, err := d.bucket.Get(KeyPrefix + id)
	if xerrors.Is(err, store.ErrNotFound) {
		return nil, xerrors.Errorf("'%s': %w", id, ErrUnknown)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to get key: %v", err)
	}

	pub, err := keystore.DecodePublicKey(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode key of '%s': %v", id, err)
	}

	return pub, nil
}

// List returns the principals of the directory.
func (d BucketDirectory) List() ([]string, error) {
	ids, err := d.bucket.List(KeyPrefix)
	if err != nil {
		return nil, xerrors.Errorf("failed to list: %v", err)
	}

	return ids, nil
}
