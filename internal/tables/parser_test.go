package tables

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableStream writes a minimal #~ stream with one Module, one TypeRef and
// two TypeDef rows, all using 2-byte indexes.
func tableStream() []byte {
	le := binary.LittleEndian
	var b []byte
	b = le.AppendUint32(b, 0)   // reserved
	b = append(b, 2, 0, 0, 1)   // version, heap sizes, reserved
	b = le.AppendUint64(b, 0x7) // valid
	b = le.AppendUint64(b, 0)   // sorted
	b = le.AppendUint32(b, 1)   // Module
	b = le.AppendUint32(b, 1)   // TypeRef
	b = le.AppendUint32(b, 2)   // TypeDef

	// Module
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0)

	// TypeRef: [AssemblyRef 1] System.Object
	b = le.AppendUint16(b, 1<<2|2)
	b = le.AppendUint16(b, 18)
	b = le.AppendUint16(b, 11)

	// TypeDef <Module>
	b = le.AppendUint32(b, 0)
	b = le.AppendUint16(b, 25)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 0)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 1)

	// TypeDef Demo.Widget extends [TypeRef 1]
	b = le.AppendUint32(b, 0x00100001)
	b = le.AppendUint16(b, 34)
	b = le.AppendUint16(b, 41)
	b = le.AppendUint16(b, 1<<2|1)
	b = le.AppendUint16(b, 1)
	b = le.AppendUint16(b, 1)
	return b
}

func stringsHeap() []byte {
	// 0: "", 1: "demo.dll", 10: "", 11: "System", 18: "Object", 25: "<Module>",
	// 34: "Widget", 41: "Demo"
	return []byte("\x00demo.dll\x00\x00System\x00Object\x00<Module>\x00Widget\x00Demo\x00")
}

func TestParse(t *testing.T) {
	tbl, err := Parse(Streams{Tables: tableStream(), Strings: stringsHeap(), GUID: make([]byte, 16)})
	require.NoError(t, err)

	assert.Equal(t, uint8(2), tbl.Header.MajorVersion)
	require.Len(t, tbl.Module, 1)
	assert.Equal(t, "demo.dll", tbl.String(tbl.Module[0].Name))

	require.Len(t, tbl.TypeRef, 1)
	tr := tbl.TypeRef[0]
	assert.Equal(t, NewToken(TableAssemblyRef, 1), tr.ResolutionScope)
	assert.Equal(t, "System", tbl.String(tr.Namespace))
	assert.Equal(t, "Object", tbl.String(tr.Name))

	require.Len(t, tbl.TypeDef, 2)
	td, ok := At(tbl.TypeDef, 2)
	require.True(t, ok)
	assert.Equal(t, "Widget", tbl.String(td.Name))
	assert.Equal(t, "Demo", tbl.String(td.Namespace))
	assert.Equal(t, NewToken(TableTypeRef, 1), td.Extends)
	assert.Equal(t, uint32(0x00100001), td.Flags)

	_, ok = At(tbl.TypeDef, 0)
	assert.False(t, ok)
	_, ok = At(tbl.TypeDef, 3)
	assert.False(t, ok)
	assert.Equal(t, uint32(2), tbl.RowCount(TableTypeDef))
	assert.Zero(t, tbl.RowCount(TableField))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(Streams{Tables: make([]byte, 8)})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	data := tableStream()
	_, err = Parse(Streams{Tables: data[:len(data)-1]})
	assert.ErrorIs(t, err, ErrTruncatedTable)

	bad := append([]byte(nil), data...)
	binary.LittleEndian.PutUint64(bad[8:], 1<<0x2D)
	_, err = Parse(Streams{Tables: bad})
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestLayoutWidths(t *testing.T) {
	var h Header
	l := newLayout(&h)
	assert.Equal(t, 2, l.width(coded(TypeDefOrRef)))
	assert.Equal(t, 2, l.width(idx(TableField)))

	h.RowCounts[TableTypeRef] = 1 << 14
	h.RowCounts[TableField] = 1 << 16
	h.HeapSizes = 0x07
	l = newLayout(&h)
	assert.Equal(t, 4, l.width(coded(TypeDefOrRef)))
	assert.Equal(t, 2, l.width(coded(TypeOrMethodDef)))
	assert.Equal(t, 4, l.width(idx(TableField)))
	assert.Equal(t, 4, l.width(str))
	assert.Equal(t, 4, l.width(guid))
	assert.Equal(t, 4, l.width(blob))
	assert.Equal(t, 22, l.rowSize(TableTypeDef))
}
