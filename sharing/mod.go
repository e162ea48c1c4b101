// Package sharing implements the protocol that grants and revokes access to
// encrypted files.
//
// The files of a principal are encrypted with k_f = SHA256(IV_f || k_sym) and
// stored under <id>/. Two kinds of tables, stored encrypted next to the files,
// record the grants of an owner A:
//   - table_A_others maps each recipient to the paths A shares with it. It is
//     encrypted with the secret of A.
//   - table_A_B maps each path A shares with B to its file key. It is encrypted
//     with the public key of B.
//
// Revoking a grant rotates the IV of the file, which changes its key and
// leaves the revoked recipient with a key that opens nothing.
package sharing

import (
	"strings"

	"go.dedis.ch/kyber/v3"
	"golang.org/x/xerrors"
)

const (
	tablePrefix = "table"
	separator   = "_"
	othersName  = "others"
)

var (
	// ErrAccessDenied is returned when no key is available for a file.
	ErrAccessDenied = xerrors.New("access denied")

	// ErrInvalidID is returned for an identifier that cannot be used in a
	// table name.
	ErrInvalidID = xerrors.New("invalid identifier")
)

// Outcome is the result of a share request.
type Outcome int

const (
	// Shared means the file is now shared with the recipient.
	Shared Outcome = iota
	// AlreadyShared means the file was already shared with the recipient and
	// nothing changed.
	AlreadyShared
	// FileNotFound means the file does not exist.
	FileNotFound
)

func (o Outcome) String() string {
	switch o {
	case Shared:
		return "shared"
	case AlreadyShared:
		return "already shared"
	case FileNotFound:
		return "file not found"
	default:
		return "unknown"
	}
}

// Others is the table of an owner that maps each recipient to the paths
// shared with it.
type Others map[string][]string

// Delivery is the table that maps each path shared with a recipient to the key
// of the file.
type Delivery map[string][]byte

// KeyLookup returns the public key of a principal.
type KeyLookup func(id string) (kyber.Point, error)

// Protocol is the sharing protocol of one principal.
type Protocol interface {
	// ID returns the identifier of the principal.
	ID() string

	// KeyGen returns the key of a file owned by the principal.
	KeyGen(iv []byte) []byte

	// IsShared returns true if the file is shared with the recipient.
	IsShared(path, recipient string) (bool, error)

	// ShareFile grants the recipient access to the file.
	ShareFile(path, recipient string, pub kyber.Point) (Outcome, error)

	// ListSharedWithUs returns the tables addressed to the principal, indexed
	// by owner.
	ListSharedWithUs() (map[string]Delivery, error)

	// ListFilesSharedWithUs returns the paths shared with the principal.
	ListFilesSharedWithUs() ([]string, error)

	// ListSharedByUs returns the grants of the principal.
	ListSharedByUs() (Others, error)

	// GetSharedFileKey returns the delivered key of a file.
	GetSharedFileKey(path string) ([]byte, bool, error)

	// RevokeSharedFile removes the access of the recipient to the file and
	// rotates the key of the file. It returns true if the file has been
	// encrypted again.
	RevokeSharedFile(path, recipient string, lookup KeyLookup) (bool, error)
}

// ValidateID returns an error if the identifier cannot be used by the
// protocol.
func ValidateID(id string) error {
	switch {
	case id == "":
		return xerrors.Errorf("empty: %w", ErrInvalidID)
	case strings.Contains(id, separator):
		return xerrors.Errorf("'%s' contains '%s': %w", id, separator, ErrInvalidID)
	case strings.Contains(id, "/"):
		return xerrors.Errorf("'%s' contains '/': %w", id, ErrInvalidID)
	case strings.HasPrefix(id, "."):
		return xerrors.Errorf("'%s' starts with '.': %w", id, ErrInvalidID)
	case id == othersName:
		return xerrors.Errorf("'%s' is reserved: %w", id, ErrInvalidID)
	}

	return nil
}

// TableName returns the name of the table delivering the keys of owner to
// recipient.
func TableName(owner, recipient string) string {
	return tablePrefix + separator + owner + separator + recipient
}

// OthersTableName returns the name of the bookkeeping table of the owner.
func OthersTableName(owner string) string {
	return TableName(owner, othersName)
}

// ParseTableName returns the owner and the recipient of a table. The
// recipient of a bookkeeping table is empty.
func ParseTableName(name string) (owner, recipient string, ok bool) {
	parts := strings.Split(name, separator)
	if len(parts) != 3 || parts[0] != tablePrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}

	if parts[2] == othersName {
		return parts[1], "", true
	}

	return parts[1], parts[2], true
}

// Owner returns the owner of a clean path, which is its first element.
func Owner(name string) string {
	i := strings.Index(name, "/")
	if i < 0 {
		return ""
	}

	return name[:i]
}
