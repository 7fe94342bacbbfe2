// Package names interns identifiers so lookups compare small integer keys
// instead of strings.
package names

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/skdltmxn/clrmeta-go/internal/heap"
	"github.com/skdltmxn/clrmeta-go/internal/mangle"
)

// NoArityCheck makes Unmangled strip any well-formed arity suffix.
const NoArityCheck = mangle.NoArityCheck

// Name is an interned identifier. Two Names from the same Table are equal
// strings if and only if they are the same pointer.
type Name struct {
	s   string
	key uint32
}

func (n *Name) String() string { return n.s }

// Key returns the stable integer key of the name. Keys start at 1; 0 is
// never assigned.
func (n *Name) Key() uint32 { return n.key }

// Table maps strings to Names. It is safe for concurrent use, and entries
// are never removed.
type Table struct {
	byString *xsync.MapOf[string, *Name]
	byKey    *xsync.MapOf[uint32, *Name]
	next     atomic.Uint32
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		byString: xsync.NewMapOf[string, *Name](),
		byKey:    xsync.NewMapOf[uint32, *Name](),
	}
}

// GetOrCreate returns the Name for s, interning it on first use.
func (t *Table) GetOrCreate(s string) *Name {
	if n, ok := t.byString.Load(s); ok {
		return n
	}
	n, _ := t.byString.LoadOrCompute(s, func() *Name {
		n := &Name{s: s, key: t.next.Add(1)}
		t.byKey.Store(n.key, n)
		return n
	})
	return n
}

// Lookup returns the Name for s without interning it.
func (t *Table) Lookup(s string) (*Name, bool) {
	return t.byString.Load(s)
}

// ByKey returns the Name with the given key.
func (t *Table) ByKey(key uint32) (*Name, bool) {
	return t.byKey.Load(key)
}

// Unmangled interns s with its generic arity suffix removed. The suffix is
// only removed when it equals arity, or unconditionally for NoArityCheck.
func (t *Table) Unmangled(s string, arity int) *Name {
	return t.GetOrCreate(mangle.Unmangle(s, arity))
}

// Len returns the number of interned names.
func (t *Table) Len() int {
	return t.byString.Size()
}

// HeapNames caches the Name of every #Strings offset read so far.
type HeapNames struct {
	strings *heap.Strings
	table   *Table

	mu      sync.Mutex
	offsets map[uint32]*Name
}

// NewHeapNames creates an offset cache over a #Strings heap.
func NewHeapNames(strings *heap.Strings, table *Table) *HeapNames {
	return &HeapNames{
		strings: strings,
		table:   table,
		offsets: make(map[uint32]*Name),
	}
}

// Name returns the interned name stored at offset.
func (h *HeapNames) Name(offset uint32) *Name {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n, ok := h.offsets[offset]; ok {
		return n
	}
	n := h.table.GetOrCreate(h.strings.String(offset))
	h.offsets[offset] = n
	return n
}

// Table returns the interning table behind the cache.
func (h *HeapNames) Table() *Table { return h.table }
