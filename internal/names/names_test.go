package names

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/clrmeta-go/internal/heap"
)

func TestGetOrCreate(t *testing.T) {
	tbl := NewTable()
	a := tbl.GetOrCreate("System")
	b := tbl.GetOrCreate("System")
	c := tbl.GetOrCreate("Object")

	assert.Same(t, a, b)
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotZero(t, a.Key())
	assert.Equal(t, "System", a.String())

	byKey, ok := tbl.ByKey(c.Key())
	require.True(t, ok)
	assert.Same(t, c, byKey)
	assert.Equal(t, 2, tbl.Len())

	_, ok = tbl.Lookup("Missing")
	assert.False(t, ok)
}

func TestUnmangled(t *testing.T) {
	tbl := NewTable()
	assert.Equal(t, "Foo", tbl.Unmangled("Foo`2", 2).String())
	assert.Equal(t, "Foo`2", tbl.Unmangled("Foo`2", 3).String())
	assert.Equal(t, "Foo", tbl.Unmangled("Foo", 0).String())
	assert.Equal(t, "Foo", tbl.Unmangled("Foo`7", NoArityCheck).String())
	assert.Same(t, tbl.GetOrCreate("Foo"), tbl.Unmangled("Foo`2", 2))
}

func TestGetOrCreateConcurrent(t *testing.T) {
	tbl := NewTable()
	const workers = 16
	results := make([][]*Name, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				results[w] = append(results[w], tbl.GetOrCreate(fmt.Sprintf("n%d", i)))
			}
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := range results[w] {
			assert.Same(t, results[0][i], results[w][i])
		}
	}
	assert.Equal(t, 100, tbl.Len())

	seen := make(map[uint32]bool)
	for _, n := range results[0] {
		assert.False(t, seen[n.Key()], "duplicate key %d", n.Key())
		seen[n.Key()] = true
	}
}

func TestHeapNames(t *testing.T) {
	tbl := NewTable()
	h := NewHeapNames(heap.NewStrings([]byte("\x00Widget\x00Demo\x00")), tbl)

	w := h.Name(1)
	assert.Equal(t, "Widget", w.String())
	assert.Same(t, w, h.Name(1))
	assert.Same(t, tbl.GetOrCreate("Demo"), h.Name(8))
	assert.Equal(t, "", h.Name(0).String())
	assert.Equal(t, "", h.Name(500).String())
}
