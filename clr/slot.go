package clr

import (
	"sync"
	"sync/atomic"
)

// Load states of a row slot.
const (
	slotUninitialized uint32 = iota
	slotLoading
	slotLoaded
)

// slotTable caches one object per 1-based row id. Each slot has its own
// lock, so building one slot may build other slots of the same table.
// Callers must not re-enter the slot being built; the row structure
// guarantees that by construction order, and cyclic rows are cut at load.
type slotTable[T any] struct {
	states []atomic.Uint32
	locks  []sync.Mutex
	values []T
	build  func(rid uint32) T
}

func newSlotTable[T any](rows uint32, build func(rid uint32) T) *slotTable[T] {
	return &slotTable[T]{
		states: make([]atomic.Uint32, rows+1),
		locks:  make([]sync.Mutex, rows+1),
		values: make([]T, rows+1),
		build:  build,
	}
}

// len returns the number of addressable rows.
func (s *slotTable[T]) len() uint32 {
	return uint32(len(s.values) - 1)
}

// get returns the object of row rid, building it on first use. ok is false
// for row 0 and for row ids past the end of the table.
func (s *slotTable[T]) get(rid uint32) (v T, ok bool) {
	if rid == 0 || int(rid) >= len(s.values) {
		return v, false
	}
	if s.states[rid].Load() == slotLoaded {
		return s.values[rid], true
	}

	mu := &s.locks[rid]
	mu.Lock()
	defer mu.Unlock()
	if s.states[rid].Load() == slotLoaded {
		return s.values[rid], true
	}

	s.states[rid].Store(slotLoading)
	s.values[rid] = s.build(rid)
	s.states[rid].Store(slotLoaded)
	return s.values[rid], true
}

// loaded reports whether row rid has been built.
func (s *slotTable[T]) loaded(rid uint32) bool {
	return rid != 0 && int(rid) < len(s.values) && s.states[rid].Load() == slotLoaded
}

// lazyValue publishes the first computed value; later readers see that
// value. Computation holds no lock, so it may recurse across modules; a
// racing duplicate computation is discarded.
type lazyValue[T any] struct {
	p atomic.Pointer[T]
}

func (l *lazyValue[T]) get(compute func() T) T {
	if v := l.p.Load(); v != nil {
		return *v
	}
	v := compute()
	l.p.CompareAndSwap(nil, &v)
	return *l.p.Load()
}

// peek returns the value if it was computed already.
func (l *lazyValue[T]) peek() (T, bool) {
	if v := l.p.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}
