package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCompressedU32(t *testing.T) {
	tests := []struct {
		data []byte
		want uint32
	}{
		{[]byte{0x03}, 0x03},
		{[]byte{0x7F}, 0x7F},
		{[]byte{0x80, 0x80}, 0x80},
		{[]byte{0xAE, 0x57}, 0x2E57},
		{[]byte{0xBF, 0xFF}, 0x3FFF},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 0x4000},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFF}, 0x1FFFFFFF},
	}

	for _, tt := range tests {
		r := NewReader(tt.data)
		v, err := r.ReadCompressedU32()
		require.NoError(t, err)
		assert.Equal(t, tt.want, v)
		assert.Zero(t, r.Remaining())

		assert.Equal(t, tt.data, AppendCompressedU32(nil, tt.want))
	}
}

func TestReadCompressedI32(t *testing.T) {
	tests := []struct {
		data []byte
		want int32
	}{
		{[]byte{0x06}, 3},
		{[]byte{0x7B}, -3},
		{[]byte{0x80, 0x80}, 64},
		{[]byte{0x01}, -64},
		{[]byte{0xC0, 0x00, 0x40, 0x00}, 8192},
		{[]byte{0x80, 0x01}, -8192},
		{[]byte{0xDF, 0xFF, 0xFF, 0xFE}, 268435455},
		{[]byte{0xC0, 0x00, 0x00, 0x01}, -268435456},
	}

	for _, tt := range tests {
		r := NewReader(tt.data)
		v, err := r.ReadCompressedI32()
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "decoding % x", tt.data)

		assert.Equal(t, tt.data, AppendCompressedI32(nil, tt.want), "encoding %d", tt.want)
	}
}

func TestReadCompressedErrors(t *testing.T) {
	_, err := NewReader([]byte{0xE0}).ReadCompressedU32()
	assert.ErrorIs(t, err, ErrInvalidCompressed)

	_, err = NewReader([]byte{0xC0, 0x01}).ReadCompressedU32()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)

	_, err = NewReader(nil).ReadCompressedU32()
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReadSerString(t *testing.T) {
	r := NewReader([]byte{0x03, 'a', 'b', 'c', 0xFF, 0x00})

	s, ok, err := r.ReadSerString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", s)

	_, ok, err = r.ReadSerString()
	require.NoError(t, err)
	assert.False(t, ok)

	s, ok, err = r.ReadSerString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, s)
}

func TestReadPaddedString(t *testing.T) {
	r := NewReader([]byte{'#', '~', 0, 0, '#', 'S', 't', 'r', 'i', 'n', 'g', 's', 0, 0, 0, 0, 0xAA})

	s, err := r.ReadPaddedString()
	require.NoError(t, err)
	assert.Equal(t, "#~", s)
	assert.Equal(t, 4, r.Offset())

	s, err = r.ReadPaddedString()
	require.NoError(t, err)
	assert.Equal(t, "#Strings", s)
	assert.Equal(t, 16, r.Offset())
}

func TestReadIndex(t *testing.T) {
	r := NewReader([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12})

	v, err := r.ReadIndex(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x1234), v)

	v, err = r.ReadIndex(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)

	_, err = r.ReadIndex(2)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}
