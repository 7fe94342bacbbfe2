package clr

import (
	"encoding/binary"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// keyKind separates the key spaces of the intern factory.
type keyKind uint8

const (
	keyAssembly keyKind = iota + 1
	keyModule
	keyNamedType
	keyPointer
	keyByRef
	keyVector
	keyMatrix
	keyGenericInstance
	keyTypeParam
	keyMethodParam
	keySignatureParam
	keyFunctionPointer
	keyModified
	keyPinned
	keyMember
)

// fixedKey is the intern key of shapes with at most four components.
type fixedKey struct {
	kind       keyKind
	a, b, c, d uint32
}

type internEntry struct {
	kind  keyKind
	parts []uint32
	key   uint32
}

type internBucket struct {
	mu      sync.Mutex
	entries []internEntry
}

// internFactory assigns sequential integer keys to structural identities.
// A key of 0 means the identity is not computable yet; every component
// must be a non-zero key for the composite to receive one.
type internFactory struct {
	next    atomic.Uint32
	fixed   *xsync.MapOf[fixedKey, uint32]
	buckets *xsync.MapOf[uint64, *internBucket]
}

func newInternFactory() *internFactory {
	return &internFactory{
		fixed:   xsync.NewMapOf[fixedKey, uint32](),
		buckets: xsync.NewMapOf[uint64, *internBucket](),
	}
}

func (f *internFactory) fixedKey(k fixedKey) uint32 {
	if v, ok := f.fixed.Load(k); ok {
		return v
	}
	v, _ := f.fixed.LoadOrCompute(k, func() uint32 { return f.next.Add(1) })
	return v
}

// composite returns the key of a variable-length shape. Shapes are hashed
// with xxhash and compared exactly within a bucket.
func (f *internFactory) composite(kind keyKind, parts ...uint32) uint32 {
	for _, p := range parts {
		if p == 0 {
			return 0
		}
	}
	return f.compositeRaw(kind, parts)
}

// compositeRaw is composite without the stability check, for shapes whose
// zero components are literal values such as array bounds.
func (f *internFactory) compositeRaw(kind keyKind, parts []uint32) uint32 {
	buf := make([]byte, 1, 1+4*len(parts))
	buf[0] = byte(kind)
	for _, p := range parts {
		buf = binary.LittleEndian.AppendUint32(buf, p)
	}
	h := xxhash.Sum64(buf)

	bucket, _ := f.buckets.LoadOrCompute(h, func() *internBucket { return &internBucket{} })
	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	for _, e := range bucket.entries {
		if e.kind == kind && slices.Equal(e.parts, parts) {
			return e.key
		}
	}
	key := f.next.Add(1)
	bucket.entries = append(bucket.entries, internEntry{kind: kind, parts: slices.Clone(parts), key: key})
	return key
}
