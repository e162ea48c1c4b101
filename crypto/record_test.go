package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaddingLength(t *testing.T) {
	for n := int64(0); n <= 5*BlockSize; n++ {
		padding := PaddingLength(n)

		expected := ((n+BlockSize-1)/BlockSize)*BlockSize - n
		require.Equal(t, int(expected), padding)
		require.True(t, padding >= 0 && padding < BlockSize)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{3}, KeySize)
	iv := bytes.Repeat([]byte{4}, IVSize)

	for n := 0; n < 4*BlockSize; n++ {
		data := makeData(n)

		record, err := EncodeRecord(data, key, iv)
		require.NoError(t, err)
		require.Equal(t, 0, (len(record)-HeaderSize)%BlockSize)

		hdr, err := ParseHeader(record)
		require.NoError(t, err)
		require.Equal(t, iv, hdr.IV)
		require.Equal(t, PaddingLength(int64(n)), hdr.PaddingLength)
		require.Equal(t, int64(n), LogicalSize(int64(len(record)), hdr.PaddingLength))

		res, err := DecodeRecord(record, key)
		require.NoError(t, err)
		require.Equal(t, data, res)
	}
}

func TestRecord_WrongKey(t *testing.T) {
	key := bytes.Repeat([]byte{3}, KeySize)
	iv := bytes.Repeat([]byte{4}, IVSize)

	record, err := EncodeRecord([]byte("data"), key, iv)
	require.NoError(t, err)

	_, err = DecodeRecord(record, FileKey(iv, []byte("other")))
	require.True(t, errors.Is(err, ErrPadding))
}

func TestRecord_Malformed(t *testing.T) {
	_, err := ParseHeader(make([]byte, HeaderSize-1))
	require.True(t, errors.Is(err, ErrShortRecord))

	record := make([]byte, HeaderSize)
	record[IVSize] = BlockSize
	_, err = ParseHeader(record)
	require.True(t, errors.Is(err, ErrCorruptedRecord))

	record = make([]byte, HeaderSize+5)
	_, err = DecodeRecord(record, make([]byte, KeySize))
	require.True(t, errors.Is(err, ErrCorruptedRecord))

	require.Equal(t, int64(0), LogicalSize(3, 0))
}
