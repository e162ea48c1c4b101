// Package store defines the storage abstraction used by the sharing protocol.
// A Bucket is a plain blob storage provided by a backend (memory, disk, remote
// server or SQL database) and an AccessStore is the view of a bucket that the
// protocol needs: sharing tables, encrypted files and their IVs.
package store

import (
	"sync"

	"go.dedis.ch/dela/serde"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned by a bucket when a key does not exist.
var ErrNotFound = xerrors.New("not found")

// Bucket is a key/value storage of opaque blobs. Keys are slash-separated
// paths. Implementations must be safe for concurrent use.
type Bucket interface {
	// Get returns the blob stored at key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores the blob at key, replacing any previous one.
	Set(key string, data []byte) error

	// Exists returns true if a blob is stored at key.
	Exists(key string) (bool, error)

	// List returns the keys starting with prefix, with the prefix removed.
	List(prefix string) ([]string, error)

	// Delete removes the blob at key. Deleting a missing key is not an error.
	Delete(key string) error
}

// KeyGenerator derives the key of a file from its IV. The owner of a file
// is the only one able to do it.
type KeyGenerator interface {
	KeyGen(iv []byte) []byte
}

// AccessStore is the storage used by the sharing protocol. Absent tables and
// files are reported with a false boolean, errors are reserved to failures
// of the backend or corrupted data.
type AccessStore interface {
	// Name returns the clean form of a file path, which is the form used in
	// the sharing tables.
	Name(path string) string

	// ListTables returns the names of all the sharing tables.
	ListTables() ([]string, error)

	// LoadTable returns the encrypted table with the given name.
	LoadTable(name string) ([]byte, bool, error)

	// UploadTable stores the encrypted table with the given name.
	UploadTable(name string, data []byte) error

	// LoadFileIV returns the IV of an encrypted file.
	LoadFileIV(path string) ([]byte, bool, error)

	// FileExists returns true if the file exists.
	FileExists(path string) (bool, error)

	// ReuploadFile decrypts the file with the key of its current IV and
	// encrypts it again with a fresh IV. It returns false if the file does
	// not exist or has no IV yet.
	ReuploadFile(owner KeyGenerator, path string) (bool, error)

	// LoadFile returns the encrypted record of a file.
	LoadFile(path string) ([]byte, bool, error)

	// StoreFile stores the encrypted record of a file.
	StoreFile(path string, record []byte) error

	// Serialize encodes a table with the format of the store.
	Serialize(v interface{}) ([]byte, error)

	// Deserialize decodes a table with the format of the store.
	Deserialize(data []byte, v interface{}) error
}

// Format is the encoding of the tables. It must round-trip byte strings
// without loss.
type Format interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
}

var (
	formatsLock sync.RWMutex
	formats     = map[serde.Format]Format{}
)

// RegisterFormat registers the engine for the given format. It is usually
// called from the init function of the package implementing the format.
func RegisterFormat(name serde.Format, f Format) {
	formatsLock.Lock()
	formats[name] = f
	formatsLock.Unlock()
}

// GetFormat returns the engine registered for the format, or nil.
func GetFormat(name serde.Format) Format {
	formatsLock.RLock()
	defer formatsLock.RUnlock()

	return formats[name]
}
