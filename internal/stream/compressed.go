package stream

// Compressed integers use a 1, 2 or 4 byte big-endian encoding in which the
// leading bits of the first byte give the width:
//
//	0xxxxxxx                            7 bits
//	10xxxxxx xxxxxxxx                  14 bits
//	110xxxxx xxxxxxxx xxxxxxxx xxxxxxxx 29 bits

// MaxCompressed is the largest value a compressed unsigned integer can hold.
const MaxCompressed = 0x1FFFFFFF

// ReadCompressedU32 reads a compressed unsigned integer.
func (r *Reader) ReadCompressedU32() (uint32, error) {
	v, _, err := r.readCompressed()
	return v, err
}

// ReadCompressedI32 reads a compressed signed integer. The sign bit is
// stored rotated into the least significant bit of the encoded value.
func (r *Reader) ReadCompressedI32() (int32, error) {
	u, width, err := r.readCompressed()
	if err != nil {
		return 0, err
	}
	var bits uint
	switch width {
	case 1:
		bits = 7
	case 2:
		bits = 14
	default:
		bits = 29
	}
	v := int32(u >> 1)
	if u&1 != 0 {
		v -= 1 << (bits - 1)
	}
	return v, nil
}

func (r *Reader) readCompressed() (uint32, int, error) {
	b0, err := r.ReadU8()
	if err != nil {
		return 0, 0, err
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), 1, nil
	case b0&0xC0 == 0x80:
		b1, err := r.ReadU8()
		if err != nil {
			return 0, 0, err
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), 2, nil
	case b0&0xE0 == 0xC0:
		if r.offset+3 > len(r.data) {
			return 0, 0, ErrUnexpectedEOF
		}
		b := r.data[r.offset : r.offset+3]
		r.offset += 3
		return uint32(b0&0x1F)<<24 | uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), 4, nil
	default:
		return 0, 0, ErrInvalidCompressed
	}
}

// AppendCompressedU32 appends the compressed encoding of v to buf.
// Values above MaxCompressed are truncated to 29 bits.
func AppendCompressedU32(buf []byte, v uint32) []byte {
	switch {
	case v < 0x80:
		return append(buf, byte(v))
	case v < 0x4000:
		return append(buf, byte(0x80|v>>8), byte(v))
	default:
		v &= MaxCompressed
		return append(buf, byte(0xC0|v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
}

// AppendCompressedI32 appends the compressed signed encoding of v to buf.
func AppendCompressedI32(buf []byte, v int32) []byte {
	var sign uint32
	if v < 0 {
		sign = 1
	}
	switch {
	case v >= -64 && v <= 63:
		u := (uint32(v)<<1)&0x7F | sign
		return append(buf, byte(u))
	case v >= -8192 && v <= 8191:
		u := (uint32(v)<<1)&0x3FFF | sign
		return append(buf, byte(0x80|u>>8), byte(u))
	default:
		u := (uint32(v)<<1)&MaxCompressed | sign
		return append(buf, byte(0xC0|u>>24), byte(u>>16), byte(u>>8), byte(u))
	}
}
