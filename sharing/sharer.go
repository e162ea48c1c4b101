package sharing

import (
	"sort"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/sharefs"
	"go.dedis.ch/sharefs/crypto"
	"go.dedis.ch/sharefs/keystore"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// Sharer is the sharing protocol of a principal. It is not safe for
// concurrent use: at most one instance of a principal should mutate its tables
// at a time.
//
// - implements Protocol
type Sharer struct {
	id       string
	identity keystore.Identity
	store    store.AccessStore
}

// NewSharer returns the protocol of the principal with the given identity.
func NewSharer(id string, identity keystore.Identity, st store.AccessStore) (*Sharer, error) {
	err := ValidateID(id)
	if err != nil {
		return nil, xerrors.Errorf("bad principal: %w", err)
	}

	s := &Sharer{
		id:       id,
		identity: identity,
		store:    st,
	}

	return s, nil
}

// ID implements Protocol.
func (s *Sharer) ID() string {
	return s.id
}

// Identity returns the keys of the principal.
func (s *Sharer) Identity() keystore.Identity {
	return s.identity
}

// Store returns the access store of the protocol.
func (s *Sharer) Store() store.AccessStore {
	return s.store
}

// KeyGen implements Protocol and store.KeyGenerator.
func (s *Sharer) KeyGen(iv []byte) []byte {
	return crypto.FileKey(iv, s.identity.Sym)
}

// IsShared implements Protocol.
func (s *Sharer) IsShared(path, recipient string) (bool, error) {
	others, err := s.loadOthers()
	if err != nil {
		return false, err
	}

	return contains(others[recipient], s.store.Name(path)), nil
}

// ShareFile implements Protocol.
func (s *Sharer) ShareFile(path, recipient string, pub kyber.Point) (Outcome, error) {
	err := ValidateID(recipient)
	if err != nil {
		return 0, xerrors.Errorf("bad recipient: %w", err)
	}

	name := s.store.Name(path)

	others, err := s.loadOthers()
	if err != nil {
		return 0, err
	}

	if contains(others[recipient], name) {
		return AlreadyShared, nil
	}

	found, err := s.store.FileExists(name)
	if err != nil {
		return 0, err
	}

	if !found {
		return FileNotFound, nil
	}

	paths := append(others[recipient], name)

	// The table of the recipient is rebuilt from the current IVs as the keys
	// might have changed since the last upload.
	delivery, err := s.makeDelivery(paths)
	if err != nil {
		return 0, err
	}

	others[recipient] = paths

	err = s.uploadDelivery(recipient, pub, delivery)
	if err != nil {
		return 0, err
	}

	err = s.uploadOthers(others)
	if err != nil {
		return 0, err
	}

	sharefs.Logger.Info().
		Str("owner", s.id).
		Str("recipient", recipient).
		Str("path", name).
		Msg("file shared")

	return Shared, nil
}

// ListSharedWithUs implements Protocol. The tables are found by their name,
// and decrypted with the private key of the principal.
func (s *Sharer) ListSharedWithUs() (map[string]Delivery, error) {
	names, err := s.store.ListTables()
	if err != nil {
		return nil, err
	}

	sharers := make(map[string]Delivery)

	for _, name := range names {
		owner, recipient, ok := ParseTableName(name)
		if !ok || recipient != s.id {
			continue
		}

		delivery, err := s.loadDelivery(name)
		if err != nil {
			return nil, xerrors.Errorf("failed to load table of '%s': %w", owner, err)
		}

		sharers[owner] = delivery
	}

	return sharers, nil
}

// ListFilesSharedWithUs implements Protocol. Paths are sorted.
func (s *Sharer) ListFilesSharedWithUs() ([]string, error) {
	sharers, err := s.ListSharedWithUs()
	if err != nil {
		return nil, err
	}

	paths := []string{}
	for _, delivery := range sharers {
		for path := range delivery {
			paths = append(paths, path)
		}
	}

	sort.Strings(paths)

	return paths, nil
}

// ListSharedByUs implements Protocol.
func (s *Sharer) ListSharedByUs() (Others, error) {
	return s.loadOthers()
}

// GetSharedFileKey implements Protocol.
func (s *Sharer) GetSharedFileKey(path string) ([]byte, bool, error) {
	name := s.store.Name(path)

	sharers, err := s.ListSharedWithUs()
	if err != nil {
		return nil, false, err
	}

	// The owner of the file is looked up first.
	delivery, found := sharers[Owner(name)]
	if found {
		key, found := delivery[name]
		if found {
			return key, true, nil
		}
	}

	for _, owner := range sortedOwners(sharers) {
		key, found := sharers[owner][name]
		if found {
			return key, true, nil
		}
	}

	return nil, false, nil
}

// RevokeSharedFile implements Protocol. It returns false without error when
// the file is not shared with the recipient.
func (s *Sharer) RevokeSharedFile(path, recipient string, lookup KeyLookup) (bool, error) {
	if lookup == nil {
		return false, xerrors.New("missing key lookup")
	}

	name := s.store.Name(path)

	others, err := s.loadOthers()
	if err != nil {
		return false, err
	}

	paths := others[recipient]
	if !contains(paths, name) {
		return false, nil
	}

	paths = remove(paths, name)
	others[recipient] = paths

	delivery, err := s.makeDelivery(paths)
	if err != nil {
		return false, err
	}

	pub, err := lookup(recipient)
	if err != nil {
		return false, xerrors.Errorf("failed to get key of '%s': %v", recipient, err)
	}

	err = s.uploadDelivery(recipient, pub, delivery)
	if err != nil {
		return false, err
	}

	err = s.uploadOthers(others)
	if err != nil {
		return false, err
	}

	// The new IV gives a new key to the file which is what actually revokes
	// the access of the recipient.
	reuploaded, err := s.store.ReuploadFile(s, name)
	if err != nil {
		return false, xerrors.Errorf("failed to reupload '%s': %w", name, err)
	}

	// The key also changed for the remaining recipients of the file.
	for _, other := range sortedRecipients(others) {
		if !contains(others[other], name) {
			continue
		}

		delivery, err := s.makeDelivery(others[other])
		if err != nil {
			return false, err
		}

		pub, err := lookup(other)
		if err != nil {
			return false, xerrors.Errorf("failed to get key of '%s': %v", other, err)
		}

		err = s.uploadDelivery(other, pub, delivery)
		if err != nil {
			return false, err
		}
	}

	sharefs.Logger.Info().
		Str("owner", s.id).
		Str("recipient", recipient).
		Str("path", name).
		Bool("reuploaded", reuploaded).
		Msg("file revoked")

	return reuploaded, nil
}

// UploadFile encrypts the data and stores it as the file at the given path,
// which must belong to the principal. The IV of an existing file is kept so
// that the delivered keys stay valid.
func (s *Sharer) UploadFile(path string, data []byte) error {
	name := s.store.Name(path)

	if Owner(name) != s.id {
		return xerrors.Errorf("'%s' is not owned by '%s': %w", name, s.id, ErrAccessDenied)
	}

	iv, found, err := s.store.LoadFileIV(name)
	if err != nil {
		return err
	}

	if !found {
		iv, err = crypto.RandomIV()
		if err != nil {
			return err
		}
	}

	record, err := crypto.EncodeRecord(data, s.KeyGen(iv), iv)
	if err != nil {
		return xerrors.Errorf("failed to encrypt: %v", err)
	}

	return s.store.StoreFile(name, record)
}

// LoadFile returns the content of a file of the principal, or of a file shared
// with the principal.
func (s *Sharer) LoadFile(path string) ([]byte, bool, error) {
	name := s.store.Name(path)

	record, found, err := s.store.LoadFile(name)
	if err != nil || !found {
		return nil, false, err
	}

	var key []byte

	if Owner(name) == s.id {
		hdr, err := crypto.ParseHeader(record)
		if xerrors.Is(err, crypto.ErrShortRecord) {
			return []byte{}, true, nil
		}
		if err != nil {
			return nil, false, err
		}

		key = s.KeyGen(hdr.IV)
	} else {
		key, found, err = s.GetSharedFileKey(name)
		if err != nil {
			return nil, false, err
		}

		if !found {
			return nil, false, xerrors.Errorf("no key for '%s': %w", name, ErrAccessDenied)
		}
	}

	data, err := crypto.DecodeRecord(record, key)
	if err != nil {
		return nil, false, xerrors.Errorf("failed to decrypt '%s': %w", name, err)
	}

	return data, true, nil
}

func (s *Sharer) loadOthers() (Others, error) {
	name := OthersTableName(s.id)

	data, found, err := s.store.LoadTable(name)
	if err != nil {
		return nil, err
	}

	others := make(Others)

	if !found {
		return others, nil
	}

	plain, err := crypto.SymmetricDecrypt(data, s.identity.Sym)
	if err != nil {
		return nil, xerrors.Errorf("failed to decrypt '%s': %w", name, err)
	}

	err = s.store.Deserialize(plain, &others)
	if err != nil {
		return nil, xerrors.Errorf("failed to read '%s': %v", name, err)
	}

	return others, nil
}

func (s *Sharer) uploadOthers(others Others) error {
	data, err := s.store.Serialize(others)
	if err != nil {
		return err
	}

	data, err = crypto.SymmetricEncrypt(data, s.identity.Sym, nil)
	if err != nil {
		return xerrors.Errorf("failed to encrypt table: %v", err)
	}

	return s.store.UploadTable(OthersTableName(s.id), data)
}

func (s *Sharer) loadDelivery(name string) (Delivery, error) {
	data, found, err := s.store.LoadTable(name)
	if err != nil {
		return nil, err
	}

	delivery := make(Delivery)

	if !found {
		return delivery, nil
	}

	plain, err := crypto.EnvelopeDecrypt(data, s.identity.Priv)
	if err != nil {
		return nil, xerrors.Errorf("failed to decrypt '%s': %w", name, err)
	}

	err = s.store.Deserialize(plain, &delivery)
	if err != nil {
		return nil, xerrors.Errorf("failed to read '%s': %v", name, err)
	}

	return delivery, nil
}

func (s *Sharer) uploadDelivery(recipient string, pub kyber.Point, delivery Delivery) error {
	data, err := s.store.Serialize(delivery)
	if err != nil {
		return err
	}

	data, err = crypto.EnvelopeEncrypt(data, pub)
	if err != nil {
		return xerrors.Errorf("failed to encrypt table: %v", err)
	}

	return s.store.UploadTable(TableName(s.id, recipient), data)
}

// makeDelivery derives the key of every path from its current IV. A path
// whose file has disappeared is left out.
func (s *Sharer) makeDelivery(paths []string) (Delivery, error) {
	delivery := make(Delivery)

	for _, path := range paths {
		iv, found, err := s.store.LoadFileIV(path)
		if err != nil {
			return nil, err
		}

		if !found {
			sharefs.Logger.Warn().Str("path", path).Msg("shared file is missing")
			continue
		}

		delivery[path] = s.KeyGen(iv)
	}

	return delivery, nil
}

func contains(paths []string, name string) bool {
	for _, path := range paths {
		if path == name {
			return true
		}
	}

	return false
}

func remove(paths []string, name string) []string {
	res := make([]string, 0, len(paths))
	for _, path := range paths {
		if path != name {
			res = append(res, path)
		}
	}

	return res
}

func sortedRecipients(others Others) []string {
	ids := make([]string, 0, len(others))
	for id := range others {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func sortedOwners(sharers map[string]Delivery) []string {
	ids := make([]string, 0, len(sharers))
	for id := range sharers {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
