// Package heap provides access to the metadata heaps (#Strings, #Blob,
// #GUID and #US).
package heap

import (
	"bytes"

	"github.com/skdltmxn/clrmeta-go/internal/stream"
)

// Strings is the #Strings heap: null-terminated UTF-8 strings addressed by
// byte offset. Offset 0 is always the empty string.
type Strings struct {
	data []byte
}

// NewStrings wraps raw #Strings heap data.
func NewStrings(data []byte) *Strings {
	return &Strings{data: data}
}

// String returns the string at the given offset. Out-of-range offsets
// yield the empty string.
func (h *Strings) String(offset uint32) string {
	if h == nil || int(offset) >= len(h.data) {
		return ""
	}
	rest := h.data[offset:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		rest = rest[:end]
	}
	return string(rest)
}

// Size returns the heap size in bytes.
func (h *Strings) Size() int {
	if h == nil {
		return 0
	}
	return len(h.data)
}

// Blobs is the #Blob heap: byte sequences prefixed with a compressed length.
type Blobs struct {
	data []byte
}

// NewBlobs wraps raw #Blob heap data.
func NewBlobs(data []byte) *Blobs {
	return &Blobs{data: data}
}

// Blob returns the blob at the given offset. The returned slice aliases the
// heap. ok is false when the offset or the encoded length is out of range.
func (h *Blobs) Blob(offset uint32) (blob []byte, ok bool) {
	if h == nil || int(offset) >= len(h.data) {
		return nil, false
	}
	r := stream.NewReader(h.data)
	if err := r.SetOffset(int(offset)); err != nil {
		return nil, false
	}
	n, err := r.ReadCompressedU32()
	if err != nil {
		return nil, false
	}
	b, err := r.ReadBytesRef(int(n))
	if err != nil {
		return nil, false
	}
	return b, true
}

// Size returns the heap size in bytes.
func (h *Blobs) Size() int {
	if h == nil {
		return 0
	}
	return len(h.data)
}

// GUIDs is the #GUID heap: 16-byte GUIDs addressed by 1-based index.
type GUIDs struct {
	data []byte
}

// NewGUIDs wraps raw #GUID heap data.
func NewGUIDs(data []byte) *GUIDs {
	return &GUIDs{data: data}
}

// GUID returns the GUID at the 1-based index; index 0 is the null GUID.
func (h *GUIDs) GUID(index uint32) [16]byte {
	var guid [16]byte
	if h == nil || index == 0 {
		return guid
	}
	start := int(index-1) * 16
	if start+16 > len(h.data) {
		return guid
	}
	copy(guid[:], h.data[start:start+16])
	return guid
}

// Count returns the number of GUIDs in the heap.
func (h *GUIDs) Count() int {
	if h == nil {
		return 0
	}
	return len(h.data) / 16
}
