// Package disk implements a bucket backed by a directory of the local
// filesystem. Keys are slash-separated paths relative to the root.
package disk

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

const tmpPrefix = ".tmp-"

// Bucket is a bucket that stores each blob in its own file. Writes are atomic:
// a blob is written in a temporary file which is then renamed.
//
// - implements store.Bucket
type Bucket struct {
	root string
}

// NewBucket returns a bucket rooted at the given directory, which is created
// if it does not exist.
func NewBucket(root string) (*Bucket, error) {
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, xerrors.Errorf("failed to create root: %v", err)
	}

	return &Bucket{root: root}, nil
}

// Root returns the directory of the bucket.
func (b *Bucket) Root() string {
	return b.root
}

// Get implements store.Bucket.
func (b *Bucket) Get(key string) ([]byte, error) {
	fpath, err := b.path(key)
	if err != nil {
		return nil, err
	}

	data, err := ioutil.ReadFile(fpath)
	if os.IsNotExist(err) {
		return nil, xerrors.Errorf("key '%s': %w", key, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read file: %v", err)
	}

	return data, nil
}

// Set implements store.Bucket.
func (b *Bucket) Set(key string, data []byte) error {
	fpath, err := b.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fpath)

	err = os.MkdirAll(dir, 0700)
	if err != nil {
		return xerrors.Errorf("failed to create directory: %v", err)
	}

	tmp := filepath.Join(dir, tmpPrefix+uuid.New().String())

	err = ioutil.WriteFile(tmp, data, 0600)
	if err != nil {
		return xerrors.Errorf("failed to write file: %v", err)
	}

	err = os.Rename(tmp, fpath)
	if err != nil {
		os.Remove(tmp)
		return xerrors.Errorf("failed to rename file: %v", err)
	}

	return nil
}

// Exists implements store.Bucket. Only regular files are blobs.
func (b *Bucket) Exists(key string) (bool, error) {
	fpath, err := b.path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fpath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("failed to stat file: %v", err)
	}

	return info.Mode().IsRegular(), nil
}

// List implements store.Bucket. Keys are sorted.
func (b *Bucket) List(prefix string) ([]string, error) {
	// Only the directory of the prefix needs to be walked.
	start := b.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		start = filepath.Join(b.root, filepath.FromSlash(prefix[:i]))
	}

	keys := []string{}

	err := filepath.Walk(start, func(fpath string, info os.FileInfo, err error) error {
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}

		if !info.Mode().IsRegular() || strings.HasPrefix(info.Name(), tmpPrefix) {
			return nil
		}

		rel, err := filepath.Rel(b.root, fpath)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to walk '%s': %v", start, err)
	}

	sort.Strings(keys)

	return keys, nil
}

// Delete implements store.Bucket.
func (b *Bucket) Delete(key string) error {
	fpath, err := b.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(fpath)
	if err != nil && !os.IsNotExist(err) {
		return xerrors.Errorf("failed to remove file: %v", err)
	}

	return nil
}

func (b *Bucket) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + key))
	if clean == string(filepath.Separator) {
		return "", xerrors.Errorf("invalid key '%s'", key)
	}

	return filepath.Join(b.root, clean), nil
}
