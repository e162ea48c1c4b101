// Package vfs implements the filesystem seen by one principal. Its own files
// are at the root, and the files shared with it are under /shared/<owner>/,
// read-only.
package vfs

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.dedis.ch/sharefs/blockfs"
	"go.dedis.ch/sharefs/sharing"
	"golang.org/x/xerrors"
)

// SharedDir is the name of the directory holding the shared files.
const SharedDir = "shared"

var (
	// ErrReadOnly is returned when a shared file is modified.
	ErrReadOnly = xerrors.New("read-only file")

	// ErrIsDir is returned when a directory is used as a file.
	ErrIsDir = xerrors.New("is a directory")
)

// FS is the filesystem of a principal on top of a directory shared by all the
// principals.
type FS struct {
	sync.Mutex
	sharer *sharing.Sharer
	blocks *blockfs.Store
	keys   map[string][]byte
}

// New returns the filesystem of the principal rooted at the directory. The
// directory is usually also the root of the disk bucket of the protocol.
func New(sharer *sharing.Sharer, root string, opts ...blockfs.Option) (*FS, error) {
	fs := &FS{
		sharer: sharer,
		keys:   make(map[string][]byte),
	}

	blocks, err := blockfs.NewStore(root, fs.keyFor, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create block store: %v", err)
	}

	fs.blocks = blocks

	return fs, nil
}

// Create creates an empty file.
func (fs *FS) Create(p string) error {
	name, err := fs.writable(p)
	if err != nil {
		return err
	}

	return fs.blocks.Create(name)
}

// Read reads at most size bytes of the file from offset.
func (fs *FS) Read(p string, size int, offset int64) ([]byte, error) {
	name, _, err := fs.translate(p)
	if err != nil {
		return nil, err
	}

	return fs.blocks.Read(name, size, offset)
}

// Write writes the data in the file at offset.
func (fs *FS) Write(p string, data []byte, offset int64) (int, error) {
	name, err := fs.writable(p)
	if err != nil {
		return 0, err
	}

	return fs.blocks.Write(name, data, offset)
}

// Truncate changes the size of the file.
func (fs *FS) Truncate(p string, length int64) error {
	name, err := fs.writable(p)
	if err != nil {
		return err
	}

	return fs.blocks.Truncate(name, length)
}

// Unlink removes the file.
func (fs *FS) Unlink(p string) error {
	name, err := fs.writable(p)
	if err != nil {
		return err
	}

	return fs.blocks.Unlink(name)
}

// Size returns the size of the file.
func (fs *FS) Size(p string) (int64, error) {
	name, _, err := fs.translate(p)
	if err != nil {
		return 0, err
	}

	return fs.blocks.Size(name)
}

// Open returns the context of a file for a sequence of operations.
func (fs *FS) Open(p string) (*blockfs.File, error) {
	name, _, err := fs.translate(p)
	if err != nil {
		return nil, err
	}

	return fs.blocks.Open(name), nil
}

// ReadDir returns the sorted names of the entries of a directory.
func (fs *FS) ReadDir(p string) ([]string, error) {
	elems := split(p)

	if len(elems) == 0 || elems[0] != SharedDir {
		entries, err := fs.readOwnDir(path.Join(append([]string{fs.sharer.ID()}, elems...)...))
		if err != nil {
			return nil, err
		}

		if len(elems) == 0 {
			entries = append(entries, SharedDir)
			sort.Strings(entries)
		}

		return entries, nil
	}

	sharers, err := fs.sharer.ListSharedWithUs()
	if err != nil {
		return nil, xerrors.Errorf("failed to list shared files: %v", err)
	}

	if len(elems) == 1 {
		owners := []string{}
		for owner, delivery := range sharers {
			if len(delivery) > 0 {
				owners = append(owners, owner)
			}
		}

		sort.Strings(owners)

		return owners, nil
	}

	// The entries of a shared directory are derived from the paths listed in
	// the table of the owner.
	dir := path.Join(elems[1:]...) + "/"
	seen := make(map[string]struct{})

	for name := range sharers[elems[1]] {
		if !strings.HasPrefix(name, dir) {
			continue
		}

		entry := strings.SplitN(strings.TrimPrefix(name, dir), "/", 2)[0]
		seen[entry] = struct{}{}
	}

	entries := make([]string, 0, len(seen))
	for entry := range seen {
		entries = append(entries, entry)
	}

	sort.Strings(entries)

	return entries, nil
}

// translate returns the path in the store of a path of the filesystem, and
// whether it is a shared file.
func (fs *FS) translate(p string) (string, bool, error) {
	elems := split(p)

	if len(elems) == 0 {
		return "", false, xerrors.Errorf("'/': %w", ErrIsDir)
	}

	if elems[0] != SharedDir {
		return path.Join(append([]string{fs.sharer.ID()}, elems...)...), false, nil
	}

	if len(elems) < 3 {
		return "", true, xerrors.Errorf("'%s': %w", p, ErrIsDir)
	}

	return path.Join(elems[1:]...), true, nil
}

func (fs *FS) writable(p string) (string, error) {
	name, shared, err := fs.translate(p)
	if shared {
		return "", xerrors.Errorf("'%s': %w", p, ErrReadOnly)
	}
	if err != nil {
		return "", err
	}

	return name, nil
}

// keyFor returns the key of a file of the store. The files of the principal
// use the derived key, the others use the key delivered by their owner.
func (fs *FS) keyFor(name string, iv []byte) ([]byte, error) {
	if sharing.Owner(name) == fs.sharer.ID() {
		return fs.sharer.KeyGen(iv), nil
	}

	fs.Lock()
	defer fs.Unlock()

	// A delivered key is only valid for the IV it was read with.
	index := name + ":" + string(iv)

	key, found := fs.keys[index]
	if found {
		return key, nil
	}

	key, found, err := fs.sharer.GetSharedFileKey(name)
	if err != nil {
		return nil, xerrors.Errorf("failed to get shared key: %v", err)
	}

	if !found {
		return nil, xerrors.Errorf("no key for '%s': %w", name, sharing.ErrAccessDenied)
	}

	// The delivered key lags behind the file while its owner encrypts it
	// again, so it is only cached once it opens the file.
	verified, err := fs.blocks.Verify(name, key)
	if err != nil {
		return nil, xerrors.Errorf("failed to verify key: %w", err)
	}

	if verified {
		fs.keys[index] = key
	}

	return key, nil
}

func (fs *FS) readOwnDir(name string) ([]string, error) {
	infos, err := ioutil.ReadDir(filepath.Join(fs.blocks.Root(), filepath.FromSlash(name)))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read directory: %v", err)
	}

	entries := make([]string, 0, len(infos))
	for _, info := range infos {
		if strings.HasPrefix(info.Name(), ".") {
			continue
		}

		entries = append(entries, info.Name())
	}

	return entries, nil
}

func split(p string) []string {
	clean := strings.Trim(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
	if clean == "" {
		return nil
	}

	return strings.Split(clean, "/")
}
