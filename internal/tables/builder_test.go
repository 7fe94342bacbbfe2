package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder(t *testing.T) {
	b := NewBuilder()
	b.SetModule("demo.dll", [16]byte{1})
	b.SetAssembly("demo", Version{1, 2, 3, 4}, nil, "")
	corlib := b.AddAssemblyRef("mscorlib", Version{4, 0, 0, 0}, []byte{0xB7, 0x7A})
	object := b.AddTypeRef(NewToken(TableAssemblyRef, corlib), "System", "Object")

	b.AddTypeDef(0, "", "<Module>", 0)
	widget := b.AddTypeDef(0x00100001, "Demo", "Widget", NewToken(TableTypeRef, object))
	b.AddField(0x0001, "count", []byte{0x06, 0x08})
	b.AddMethod(0x0006, "Run", []byte{0x00, 0x01, 0x01, 0x08})
	b.AddParam(0, 1, "times")
	b.AddProperty(widget, 0, "Count", []byte{0x28, 0x00, 0x08})
	b.AddProperty(widget, 0, "Size", []byte{0x28, 0x00, 0x08})
	us := b.UserString("hé")
	system := b.String("System")

	tbl := b.Tables()

	assert.Equal(t, uint32(2), tbl.Header.RowCounts[TableTypeDef])
	assert.NotZero(t, tbl.Header.Valid&(1<<uint(TableAssemblyRef)))

	td, ok := At(tbl.TypeDef, widget)
	require.True(t, ok)
	assert.Equal(t, "Widget", tbl.String(td.Name))
	assert.Equal(t, uint32(1), td.FieldList)
	assert.Equal(t, uint32(1), td.MethodList)

	// Interned strings share an offset.
	assert.Equal(t, system, tbl.TypeRef[0].Namespace)

	sig, ok := tbl.Blob(tbl.Field[0].Signature)
	require.True(t, ok)
	assert.Equal(t, []byte{0x06, 0x08}, sig)

	ref, ok := tbl.Blob(tbl.AssemblyRef[0].PublicKeyOrToken)
	require.True(t, ok)
	assert.Equal(t, []byte{0xB7, 0x7A}, ref)

	require.Len(t, tbl.PropertyMap, 1)
	assert.Equal(t, uint32(1), tbl.PropertyMap[0].PropertyList)
	assert.Len(t, tbl.Property, 2)

	assert.Equal(t, TableUserString, us.Table())
	s, ok := tbl.UserStrings.String(us.RID())
	require.True(t, ok)
	assert.Equal(t, "hé", s)

	assert.Equal(t, [16]byte{1}, tbl.GUIDs.GUID(tbl.Module[0].Mvid))
}

func TestBuilderPointerTables(t *testing.T) {
	b := NewBuilder()
	assert.Nil(t, b.Tables().FieldPtr)

	b.AddTypeDef(0, "", "<Module>", 0)
	b.AddField(0, "a", []byte{0x06, 0x08})
	b.AddField(0, "b", []byte{0x06, 0x08})
	assert.Equal(t, uint32(1), b.AddFieldPtr(2))
	assert.Equal(t, uint32(2), b.AddFieldPtr(1))
	assert.Equal(t, uint32(1), b.AddMethodPtr(1))

	tbl := b.Tables()
	assert.Equal(t, []uint32{2, 1}, tbl.FieldPtr)
	assert.Equal(t, []uint32{1}, tbl.MethodPtr)
	assert.Equal(t, uint32(2), tbl.Header.RowCounts[TableFieldPtr])
	assert.NotZero(t, tbl.Header.Valid&(1<<uint(TableMethodPtr)))
}
