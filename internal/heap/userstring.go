package heap

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/encoding/unicode"

	"github.com/skdltmxn/clrmeta-go/internal/stream"
)

// DefaultUserStringCacheSize bounds the number of decoded user strings kept.
const DefaultUserStringCacheSize = 1024

// UserStrings is the #US heap: UTF-16LE string literals, each prefixed with
// a compressed byte length and followed by one terminal flag byte.
type UserStrings struct {
	data []byte

	cacheOnce sync.Once
	cacheSize int
	cache     *lru.Cache[uint32, string]
}

// NewUserStrings wraps raw #US heap data. cacheSize <= 0 selects
// DefaultUserStringCacheSize.
func NewUserStrings(data []byte, cacheSize int) *UserStrings {
	if cacheSize <= 0 {
		cacheSize = DefaultUserStringCacheSize
	}
	return &UserStrings{data: data, cacheSize: cacheSize}
}

// String decodes the user string at the given offset.
func (h *UserStrings) String(offset uint32) (string, bool) {
	if h == nil || int(offset) >= len(h.data) {
		return "", false
	}

	h.cacheOnce.Do(func() {
		h.cache, _ = lru.New[uint32, string](h.cacheSize)
	})
	if s, ok := h.cache.Get(offset); ok {
		return s, true
	}

	r := stream.NewReader(h.data)
	if err := r.SetOffset(int(offset)); err != nil {
		return "", false
	}
	n, err := r.ReadCompressedU32()
	if err != nil {
		return "", false
	}
	raw, err := r.ReadBytesRef(int(n))
	if err != nil {
		return "", false
	}
	// The trailing byte flags non-ASCII content, it is not part of the text.
	if len(raw)%2 == 1 {
		raw = raw[:len(raw)-1]
	}

	s, err := DecodeUTF16(raw)
	if err != nil {
		return "", false
	}
	h.cache.Add(offset, s)
	return s, true
}

// DecodeUTF16 decodes little-endian UTF-16 bytes into a Go string.
func DecodeUTF16(raw []byte) (string, error) {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
