// Package blockfs implements random access to encrypted files.
//
// A file is stored as IV | padding length | ciphertext, where the ciphertext
// is the AES-CTR encryption of the content followed by its padding. Block n of
// the content is encrypted with the counter IV+n, so that reads and writes
// only decrypt and encrypt the blocks they touch. The IV of a file is set when
// it is first written and never changes afterwards, unless the file is
// encrypted again by the sharing protocol.
//
// All the operations of all the stores of a process are serialized by a
// single lock.
package blockfs

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.dedis.ch/sharefs"
	"go.dedis.ch/sharefs/crypto"
	"go.dedis.ch/sharefs/store"
	"golang.org/x/xerrors"
)

// lock serializes every read-modify-write cycle of the process.
var lock sync.Mutex

// ErrOffset is returned when a file without content is written at an offset
// different from zero.
var ErrOffset = xerrors.New("invalid offset")

// KeyFunc returns the key of the file at the given path for the IV.
type KeyFunc func(path string, iv []byte) ([]byte, error)

// Option is the type of option to create a store.
type Option func(*Store)

// RetainIVs makes the store remember the IV of an unlinked file and reuse it
// when the file is created again. Some editors save a file by unlinking and
// recreating it, which would otherwise rotate the key of the file.
func RetainIVs() Option {
	return func(s *Store) {
		s.ivs = make(map[string][]byte)
	}
}

// Store is a store of encrypted files rooted in a directory. The paths are
// slash-separated and relative to the root.
type Store struct {
	root   string
	keyFor KeyFunc
	ivs    map[string][]byte
}

// NewStore returns a store rooted at the directory, which is created if
// necessary.
func NewStore(root string, keyFor KeyFunc, opts ...Option) (*Store, error) {
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, xerrors.Errorf("failed to create root: %v", err)
	}

	s := &Store{
		root:   root,
		keyFor: keyFor,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Root returns the directory of the store.
func (s *Store) Root() string {
	return s.root
}

// Create creates an empty file if it does not exist yet.
func (s *Store) Create(p string) error {
	lock.Lock()
	defer lock.Unlock()

	fpath := s.path(p)

	err := os.MkdirAll(filepath.Dir(fpath), 0700)
	if err != nil {
		return xerrors.Errorf("failed to create directory: %v", err)
	}

	f, err := os.OpenFile(fpath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return xerrors.Errorf("failed to create file: %v", err)
	}

	return f.Close()
}

// Read returns at most size bytes of the file starting at offset. A missing
// file reads as empty.
func (s *Store) Read(p string, size int, offset int64) ([]byte, error) {
	lock.Lock()
	defer lock.Unlock()

	data, _, err := s.read(p, size, offset)

	return data, err
}

// Write writes the data at offset and returns the number of bytes written. A
// write past the end of the file fills the gap with zeros.
func (s *Store) Write(p string, data []byte, offset int64) (int, error) {
	lock.Lock()
	defer lock.Unlock()

	n, _, err := s.write(p, data, offset)

	return n, err
}

// Truncate changes the size of the file. The IV is kept.
func (s *Store) Truncate(p string, length int64) error {
	lock.Lock()
	defer lock.Unlock()

	_, err := s.truncate(p, length)

	return err
}

// Unlink removes the file.
func (s *Store) Unlink(p string) error {
	lock.Lock()
	defer lock.Unlock()

	fpath := s.path(p)

	if s.ivs != nil {
		hdr, found, err := readHeader(fpath)
		if err != nil {
			return err
		}

		if found {
			s.ivs[s.name(p)] = hdr.IV
		}
	}

	err := os.Remove(fpath)
	if os.IsNotExist(err) {
		return xerrors.Errorf("file '%s': %w", p, store.ErrNotFound)
	}
	if err != nil {
		return xerrors.Errorf("failed to remove file: %v", err)
	}

	return nil
}

// Size returns the size of the content of the file.
func (s *Store) Size(p string) (int64, error) {
	lock.Lock()
	defer lock.Unlock()

	fpath := s.path(p)

	info, err := os.Stat(fpath)
	if os.IsNotExist(err) {
		return 0, xerrors.Errorf("file '%s': %w", p, store.ErrNotFound)
	}
	if err != nil {
		return 0, xerrors.Errorf("failed to stat file: %v", err)
	}

	hdr, found, err := readHeader(fpath)
	if err != nil || !found {
		return 0, err
	}

	return crypto.LogicalSize(info.Size(), hdr.PaddingLength), nil
}

// Exists returns true if the file exists.
func (s *Store) Exists(p string) bool {
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(s.path(p))

	return err == nil && info.Mode().IsRegular()
}

// Open returns the context of a file.
func (s *Store) Open(p string) *File {
	return &File{
		store: s,
		path:  s.name(p),
	}
}

func (s *Store) read(p string, size int, offset int64) ([]byte, []byte, error) {
	if offset < 0 || size < 0 {
		return nil, nil, xerrors.Errorf("negative range: %w", ErrOffset)
	}

	f, err := os.Open(s.path(p))
	if os.IsNotExist(err) {
		return []byte{}, nil, nil
	}
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open file: %v", err)
	}

	defer f.Close()

	st, err := stat(f)
	if err != nil {
		return nil, nil, err
	}

	if st.empty() || offset >= st.logical() {
		return []byte{}, st.hdr.IV, nil
	}

	end := offset + int64(size)
	if end > st.logical() {
		end = st.logical()
	}

	first := offset / crypto.BlockSize
	start := first * crypto.BlockSize

	plain, err := s.decryptRange(f, p, st.hdr.IV, start, alignUp(end))
	if err != nil {
		return nil, nil, err
	}

	sharefs.Logger.Debug().
		Str("path", p).
		Int64("offset", offset).
		Int64("end", end).
		Msg("read")

	return plain[offset-start : end-start], st.hdr.IV, nil
}

func (s *Store) write(p string, data []byte, offset int64) (int, []byte, error) {
	if offset < 0 {
		return 0, nil, xerrors.Errorf("negative offset: %w", ErrOffset)
	}

	fpath := s.path(p)

	err := os.MkdirAll(filepath.Dir(fpath), 0700)
	if err != nil {
		return 0, nil, xerrors.Errorf("failed to create directory: %v", err)
	}

	_, err = os.Stat(fpath)
	created := os.IsNotExist(err)

	f, err := os.OpenFile(fpath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return 0, nil, xerrors.Errorf("failed to open file: %v", err)
	}

	n, iv, err := s.writeFile(f, p, data, offset)

	f.Close()

	// A failed first write must not leave an empty file behind.
	if err != nil && created {
		os.Remove(fpath)
	}

	return n, iv, err
}

func (s *Store) writeFile(f *os.File, p string, data []byte, offset int64) (int, []byte, error) {
	st, err := stat(f)
	if err != nil {
		return 0, nil, err
	}

	if st.empty() {
		if offset != 0 {
			return 0, nil, xerrors.Errorf("offset %d on empty file: %w", offset, ErrOffset)
		}

		st.hdr.IV, err = s.newIV(p)
		if err != nil {
			return 0, nil, err
		}
	}

	n := len(data)
	logical := st.logical()

	if offset > logical {
		data = append(make([]byte, offset-logical), data...)
		offset = logical
	}

	end := offset + int64(len(data))

	first := offset / crypto.BlockSize
	start := first * crypto.BlockSize

	// Context of the blocks touched by the write.
	ctxEnd := alignUp(end)
	if ctxEnd > st.cipherLen() {
		ctxEnd = st.cipherLen()
	}

	var buf []byte
	if ctxEnd > start {
		buf, err = s.decryptRange(f, p, st.hdr.IV, start, ctxEnd)
		if err != nil {
			return 0, nil, err
		}
	}

	if int64(len(buf)) < end-start {
		buf = append(buf, make([]byte, end-start-int64(len(buf)))...)
	}

	copy(buf[offset-start:], data)

	padding := st.hdr.PaddingLength
	if end >= logical {
		padding = crypto.PaddingLength(end)
		buf = buf[:end-start]
		for i := 0; i < padding; i++ {
			buf = append(buf, byte(padding))
		}
	}

	key, err := s.keyFor(s.name(p), st.hdr.IV)
	if err != nil {
		return 0, nil, xerrors.Errorf("failed to get key: %w", err)
	}

	stream, err := crypto.NewStream(key, st.hdr.IV, uint64(first))
	if err != nil {
		return 0, nil, err
	}

	stream.XORKeyStream(buf, buf)

	if st.empty() {
		hdr := append(append([]byte{}, st.hdr.IV...), byte(padding))
		buf = append(hdr, buf...)

		err = writeAt(f, buf, 0)
	} else {
		err = writeAt(f, []byte{byte(padding)}, crypto.IVSize)
		if err == nil {
			err = writeAt(f, buf, crypto.HeaderSize+start)
		}
	}

	if err != nil {
		return 0, nil, err
	}

	sharefs.Logger.Debug().
		Str("path", p).
		Int64("offset", offset).
		Int64("end", end).
		Int("padding", padding).
		Msg("write")

	return n, st.hdr.IV, nil
}

func (s *Store) truncate(p string, length int64) ([]byte, error) {
	if length < 0 {
		return nil, xerrors.Errorf("negative length: %w", ErrOffset)
	}

	f, err := os.OpenFile(s.path(p), os.O_RDWR, 0600)
	if os.IsNotExist(err) {
		return nil, xerrors.Errorf("file '%s': %w", p, store.ErrNotFound)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to open file: %v", err)
	}

	st, err := stat(f)
	f.Close()

	if err != nil {
		return nil, err
	}

	logical := st.logical()

	switch {
	case length == logical:
		return st.hdr.IV, nil
	case length > logical:
		_, iv, err := s.write(p, make([]byte, length-logical), logical)
		return iv, err
	}

	f, err = os.OpenFile(s.path(p), os.O_RDWR, 0600)
	if err != nil {
		return nil, xerrors.Errorf("failed to open file: %v", err)
	}

	defer f.Close()

	padding := crypto.PaddingLength(length)

	if padding > 0 {
		// The new last block is encrypted again with its padding.
		start := (length / crypto.BlockSize) * crypto.BlockSize

		buf, err := s.decryptRange(f, p, st.hdr.IV, start, start+crypto.BlockSize)
		if err != nil {
			return nil, err
		}

		for i := length - start; i < crypto.BlockSize; i++ {
			buf[i] = byte(padding)
		}

		key, err := s.keyFor(s.name(p), st.hdr.IV)
		if err != nil {
			return nil, xerrors.Errorf("failed to get key: %w", err)
		}

		stream, err := crypto.NewStream(key, st.hdr.IV, uint64(start/crypto.BlockSize))
		if err != nil {
			return nil, err
		}

		stream.XORKeyStream(buf, buf)

		err = writeAt(f, buf, crypto.HeaderSize+start)
		if err != nil {
			return nil, err
		}
	}

	err = writeAt(f, []byte{byte(padding)}, crypto.IVSize)
	if err != nil {
		return nil, err
	}

	err = f.Truncate(crypto.HeaderSize + alignUp(length))
	if err != nil {
		return nil, xerrors.Errorf("failed to truncate: %v", err)
	}

	sharefs.Logger.Debug().Str("path", p).Int64("length", length).Msg("truncate")

	return st.hdr.IV, nil
}

// Verify returns true when the key decrypts the padding of the file to the
// padding length of its header. A file without padding cannot be verified and
// gives false without error. A key that does not match returns an error
// wrapping crypto.ErrPadding. It does not take the lock of the store so that
// a KeyFunc can use it.
func (s *Store) Verify(p string, key []byte) (bool, error) {
	f, err := os.Open(s.path(p))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, xerrors.Errorf("failed to open file: %v", err)
	}

	defer f.Close()

	st, err := stat(f)
	if err != nil {
		return false, err
	}

	if st.empty() || st.hdr.PaddingLength == 0 {
		return false, nil
	}

	start := st.cipherLen() - crypto.BlockSize

	buf := make([]byte, crypto.BlockSize)

	_, err = f.ReadAt(buf, crypto.HeaderSize+start)
	if err != nil {
		return false, xerrors.Errorf("failed to read file: %v", err)
	}

	stream, err := crypto.NewStream(key, st.hdr.IV, uint64(start/crypto.BlockSize))
	if err != nil {
		return false, err
	}

	stream.XORKeyStream(buf, buf)

	for _, b := range buf[crypto.BlockSize-st.hdr.PaddingLength:] {
		if int(b) != st.hdr.PaddingLength {
			return false, xerrors.Errorf("key of '%s': %w", p, crypto.ErrPadding)
		}
	}

	return true, nil
}

// decryptRange returns the plaintext of the ciphertext range [start, end),
// which must be block aligned.
func (s *Store) decryptRange(f *os.File, p string, iv []byte, start, end int64) ([]byte, error) {
	buf := make([]byte, end-start)

	_, err := f.ReadAt(buf, crypto.HeaderSize+start)
	if err != nil && err != io.EOF {
		return nil, xerrors.Errorf("failed to read file: %v", err)
	}
	if err == io.EOF {
		return nil, xerrors.Errorf("file '%s' is truncated", p)
	}

	key, err := s.keyFor(s.name(p), iv)
	if err != nil {
		return nil, xerrors.Errorf("failed to get key: %w", err)
	}

	stream, err := crypto.NewStream(key, iv, uint64(start/crypto.BlockSize))
	if err != nil {
		return nil, err
	}

	stream.XORKeyStream(buf, buf)

	return buf, nil
}

func (s *Store) newIV(p string) ([]byte, error) {
	if s.ivs != nil {
		iv, found := s.ivs[s.name(p)]
		if found {
			delete(s.ivs, s.name(p))
			return iv, nil
		}
	}

	return crypto.RandomIV()
}

func (s *Store) name(p string) string {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))

	return strings.TrimPrefix(clean, "/")
}

func (s *Store) path(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(s.name(p)))
}

// fileStat is the state of a file on disk.
type fileStat struct {
	size int64
	hdr  crypto.Header
}

func (st fileStat) empty() bool {
	return st.size < crypto.HeaderSize
}

func (st fileStat) logical() int64 {
	if st.empty() {
		return 0
	}

	return crypto.LogicalSize(st.size, st.hdr.PaddingLength)
}

func (st fileStat) cipherLen() int64 {
	if st.empty() {
		return 0
	}

	return st.size - crypto.HeaderSize
}

func stat(f *os.File) (fileStat, error) {
	info, err := f.Stat()
	if err != nil {
		return fileStat{}, xerrors.Errorf("failed to stat file: %v", err)
	}

	st := fileStat{size: info.Size()}

	if st.empty() {
		return st, nil
	}

	buf := make([]byte, crypto.HeaderSize)

	_, err = f.ReadAt(buf, 0)
	if err != nil {
		return fileStat{}, xerrors.Errorf("failed to read header: %v", err)
	}

	st.hdr, err = crypto.ParseHeader(buf)
	if err != nil {
		return fileStat{}, xerrors.Errorf("invalid header: %w", err)
	}

	if (st.size-crypto.HeaderSize)%crypto.BlockSize != 0 ||
		int64(st.hdr.PaddingLength) > st.size-crypto.HeaderSize {
		return fileStat{}, xerrors.Errorf("size %d: %w", st.size, crypto.ErrCorruptedRecord)
	}

	return st, nil
}

func readHeader(fpath string) (crypto.Header, bool, error) {
	f, err := os.Open(fpath)
	if os.IsNotExist(err) {
		return crypto.Header{}, false, nil
	}
	if err != nil {
		return crypto.Header{}, false, xerrors.Errorf("failed to open file: %v", err)
	}

	defer f.Close()

	st, err := stat(f)
	if err != nil {
		return crypto.Header{}, false, err
	}

	return st.hdr, !st.empty(), nil
}

func writeAt(f *os.File, data []byte, offset int64) error {
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return xerrors.Errorf("failed to write file: %v", err)
	}

	if n != len(data) {
		return xerrors.Errorf("short write: %d < %d", n, len(data))
	}

	return nil
}

func alignUp(n int64) int64 {
	return (n + crypto.BlockSize - 1) / crypto.BlockSize * crypto.BlockSize
}
