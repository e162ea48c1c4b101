package crypto

import (
	"golang.org/x/xerrors"
)

// HeaderSize is the size of the header of an encrypted file: the IV followed
// by one byte holding the padding length.
//
//	+----+----------------+------------+---------+
//	| iv | padding length | ciphertext | padding |
//	+----+----------------+------------+---------+
//	  16          1            ...        0..15
//
// The padding bytes are encrypted along with the data and each holds the
// padding length.
const HeaderSize = IVSize + 1

var (
	// ErrShortRecord is returned when a record is too short to hold a header.
	ErrShortRecord = xerrors.New("record too short")

	// ErrCorruptedRecord is returned when the header does not match the
	// length of the record.
	ErrCorruptedRecord = xerrors.New("corrupted record")
)

// Header is the decoded header of a record.
type Header struct {
	IV            []byte
	PaddingLength int
}

// PaddingLength returns the number of bytes needed to bring n to the next
// multiple of BlockSize. It is always in [0, BlockSize).
func PaddingLength(n int64) int {
	rem := int(n % BlockSize)
	if rem == 0 {
		return 0
	}

	return BlockSize - rem
}

// ParseHeader reads the header at the beginning of a record.
func ParseHeader(record []byte) (Header, error) {
	if len(record) < HeaderSize {
		return Header{}, xerrors.Errorf("got %d bytes: %w", len(record), ErrShortRecord)
	}

	hdr := Header{
		IV:            append([]byte{}, record[:IVSize]...),
		PaddingLength: int(record[IVSize]),
	}

	if hdr.PaddingLength >= BlockSize {
		return Header{}, xerrors.Errorf("padding length %d: %w",
			hdr.PaddingLength, ErrCorruptedRecord)
	}

	return hdr, nil
}

// LogicalSize returns the size of the cleartext of a record given its
// physical size and its padding length. It is never negative.
func LogicalSize(physical int64, padding int) int64 {
	size := physical - HeaderSize - int64(padding)
	if size < 0 {
		return 0
	}

	return size
}

// EncodeRecord encrypts plain under key with the counter starting at iv and
// returns the complete record.
func EncodeRecord(plain, key, iv []byte) ([]byte, error) {
	stream, err := NewStream(key, iv, 0)
	if err != nil {
		return nil, err
	}

	padding := PaddingLength(int64(len(plain)))

	record := make([]byte, HeaderSize+len(plain)+padding)
	copy(record, iv)
	record[IVSize] = byte(padding)

	body := record[HeaderSize:]
	copy(body, plain)
	for i := len(plain); i < len(body); i++ {
		body[i] = byte(padding)
	}

	stream.XORKeyStream(body, body)

	return record, nil
}

// DecodeRecord decrypts a complete record. ErrPadding is returned when the
// decrypted padding does not match the header, which happens with a wrong key
// as soon as the record is padded.
func DecodeRecord(record, key []byte) ([]byte, error) {
	hdr, err := ParseHeader(record)
	if err != nil {
		return nil, err
	}

	body := record[HeaderSize:]
	if len(body)%BlockSize != 0 || len(body) < hdr.PaddingLength {
		return nil, xerrors.Errorf("body of %d bytes: %w", len(body), ErrCorruptedRecord)
	}

	stream, err := NewStream(key, hdr.IV, 0)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(body))
	stream.XORKeyStream(plain, body)

	end := len(plain) - hdr.PaddingLength
	for _, b := range plain[end:] {
		if int(b) != hdr.PaddingLength {
			return nil, ErrPadding
		}
	}

	return plain[:end], nil
}
