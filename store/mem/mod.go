// Package mem implements an in-memory bucket. It is mostly used in tests and
// in single-process deployments.
package mem

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.dedis.ch/sharefs/crypto"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// Bucket is an in-memory bucket.
//
// - implements store.Bucket
type Bucket struct {
	sync.Mutex
	blobs map[string][]byte
	delay time.Duration
}

// NewBucket returns a new empty bucket.
func NewBucket() *Bucket {
	return &Bucket{
		blobs: make(map[string][]byte),
	}
}

// SetUploadDelay makes every Set wait for the given duration, which emulates
// a remote storage.
func (b *Bucket) SetUploadDelay(d time.Duration) {
	b.Lock()
	b.delay = d
	b.Unlock()
}

// Get implements store.Bucket.
func (b *Bucket) Get(key string) ([]byte, error) {
	b.Lock()
	defer b.Unlock()

	data, found := b.blobs[key]
	if !found {
		return nil, xerrors.Errorf("key '%s': %w", key, store.ErrNotFound)
	}

	return append([]byte{}, data...), nil
}

// Set implements store.Bucket.
func (b *Bucket) Set(key string, data []byte) error {
	b.Lock()
	b.blobs[key] = append([]byte{}, data...)
	delay := b.delay
	b.Unlock()

	time.Sleep(delay)

	return nil
}

// Exists implements store.Bucket.
func (b *Bucket) Exists(key string) (bool, error) {
	b.Lock()
	defer b.Unlock()

	_, found := b.blobs[key]

	return found, nil
}

// List implements store.Bucket. Keys are sorted.
func (b *Bucket) List(prefix string) ([]string, error) {
	b.Lock()
	defer b.Unlock()

	keys := []string{}
	for key := range b.blobs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, strings.TrimPrefix(key, prefix))
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// Delete implements store.Bucket.
func (b *Bucket) Delete(key string) error {
	b.Lock()
	delete(b.blobs, key)
	b.Unlock()

	return nil
}

// Size returns the number of bytes stored.
func (b *Bucket) Size() int {
	b.Lock()
	defer b.Unlock()

	size := 0
	for _, data := range b.blobs {
		size += len(data)
	}

	return size
}

// Cost returns the storage overhead of the sharing: the bytes of every table
// and one IV per file. Blobs under other hidden prefixes are not counted.
func (b *Bucket) Cost() int {
	b.Lock()
	defer b.Unlock()

	cost := 0
	for key, data := range b.blobs {
		switch {
		case strings.HasPrefix(key, store.TablePrefix):
			cost += len(data)
		case !strings.HasPrefix(key, "."):
			cost += crypto.IVSize
		}
	}

	return cost
}

// Clear removes every blob.
func (b *Bucket) Clear() {
	b.Lock()
	b.blobs = make(map[string][]byte)
	b.Unlock()
}
