// Package stream provides binary reading utilities for metadata parsing.
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// Errors returned by Reader
var (
	ErrUnexpectedEOF     = errors.New("stream: unexpected end of data")
	ErrNegativeOffset    = errors.New("stream: negative offset")
	ErrInvalidCompressed = errors.New("stream: invalid compressed integer")
)

// Reader provides methods for reading binary data from metadata heaps,
// table streams and signature blobs.
// All multi-byte fixed-width values are read in little-endian order.
type Reader struct {
	data   []byte
	offset int
}

// NewReader creates a Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, offset: 0}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// SetOffset sets the read position.
func (r *Reader) SetOffset(offset int) error {
	if offset < 0 {
		return ErrNegativeOffset
	}
	r.offset = offset
	return nil
}

// Remaining returns the number of bytes remaining.
func (r *Reader) Remaining() int {
	if r.offset >= len(r.data) {
		return 0
	}
	return len(r.data) - r.offset
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.offset+n > len(r.data) {
		return ErrUnexpectedEOF
	}
	r.offset += n
	return nil
}

// Align aligns the read position to the given boundary.
func (r *Reader) Align(alignment int) {
	if alignment <= 1 {
		return
	}
	mod := r.offset % alignment
	if mod != 0 {
		r.offset += alignment - mod
	}
}

// ReadU8 reads an unsigned 8-bit integer.
func (r *Reader) ReadU8() (uint8, error) {
	if r.offset >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

// ReadU16 reads an unsigned 16-bit integer.
func (r *Reader) ReadU16() (uint16, error) {
	if r.offset+2 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

// ReadU32 reads an unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	if r.offset+4 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.data[r.offset:])
	r.offset += 4
	return v, nil
}

// ReadU64 reads an unsigned 64-bit integer.
func (r *Reader) ReadU64() (uint64, error) {
	if r.offset+8 > len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v, nil
}

// ReadIndex reads a table or heap index that is either 2 or 4 bytes wide.
func (r *Reader) ReadIndex(size int) (uint32, error) {
	if size == 2 {
		v, err := r.ReadU16()
		return uint32(v), err
	}
	return r.ReadU32()
}

// ReadFloat32 reads a 32-bit float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadFloat64 reads a 64-bit float.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadBytesRef returns a reference to n bytes without copying.
// The returned slice is only valid as long as the underlying data.
func (r *Reader) ReadBytesRef(n int) ([]byte, error) {
	if n < 0 || r.offset+n > len(r.data) {
		return nil, ErrUnexpectedEOF
	}
	v := r.data[r.offset : r.offset+n]
	r.offset += n
	return v, nil
}

// ReadPaddedString reads a null-terminated string and skips the padding
// up to the next 4-byte boundary, as used by metadata stream headers.
func (r *Reader) ReadPaddedString() (string, error) {
	start := r.offset
	end := bytes.IndexByte(r.data[min(start, len(r.data)):], 0)
	if end < 0 {
		return "", ErrUnexpectedEOF
	}
	s := string(r.data[start : start+end])
	if err := r.Skip((end + 4) &^ 3); err != nil {
		return "", err
	}
	return s, nil
}

// ReadSerString reads a SerString: a compressed length followed by UTF-8
// bytes. A single 0xFF byte encodes the null string, reported as ok=false.
func (r *Reader) ReadSerString() (s string, ok bool, err error) {
	b, err := r.PeekU8()
	if err != nil {
		return "", false, err
	}
	if b == 0xFF {
		r.offset++
		return "", false, nil
	}
	n, err := r.ReadCompressedU32()
	if err != nil {
		return "", false, err
	}
	data, err := r.ReadBytesRef(int(n))
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// PeekU8 returns the next byte without advancing the position.
func (r *Reader) PeekU8() (uint8, error) {
	if r.offset >= len(r.data) {
		return 0, ErrUnexpectedEOF
	}
	return r.data[r.offset], nil
}
