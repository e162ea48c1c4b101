package blockfs

import "bytes"

// File is the context of an open file. It remembers the IV seen by the last
// operation, which lets the caller notice that the file has been encrypted
// again in between.
type File struct {
	store *Store
	path  string
	iv    []byte
}

// Path returns the clean path of the file.
func (f *File) Path() string {
	return f.path
}

// IV returns the IV seen by the last operation, or nil if the file had no
// content.
func (f *File) IV() []byte {
	return f.iv
}

// Read reads at most size bytes from offset.
func (f *File) Read(size int, offset int64) ([]byte, error) {
	lock.Lock()
	defer lock.Unlock()

	data, iv, err := f.store.read(f.path, size, offset)
	if err != nil {
		return nil, err
	}

	f.iv = iv

	return data, nil
}

// Write writes the data at offset.
func (f *File) Write(data []byte, offset int64) (int, error) {
	lock.Lock()
	defer lock.Unlock()

	n, iv, err := f.store.write(f.path, data, offset)
	if err != nil {
		return 0, err
	}

	f.iv = iv

	return n, nil
}

// Truncate changes the size of the file.
func (f *File) Truncate(length int64) error {
	lock.Lock()
	defer lock.Unlock()

	iv, err := f.store.truncate(f.path, length)
	if err != nil {
		return err
	}

	f.iv = iv

	return nil
}

// Changed returns true if the IV of the file is not the one seen by the last
// operation anymore.
func (f *File) Changed() (bool, error) {
	lock.Lock()
	defer lock.Unlock()

	hdr, found, err := readHeader(f.store.path(f.path))
	if err != nil {
		return false, err
	}

	if !found {
		return f.iv != nil, nil
	}

	return !bytes.Equal(hdr.IV, f.iv), nil
}
