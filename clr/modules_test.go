package clr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

func TestMemberListsThroughPointerTables(t *testing.T) {
	b := newAppBuilder("ptrs")
	b.AddTypeDef(0, "", "<Module>", 0)
	a := b.AddTypeDef(TypePublic, "Demo", "A", 0)
	b.AddField(FieldPublic, "bField", fieldSig([]byte{byte(sig.I4)}))
	b.AddMethod(MethodPublic, "BMethod", methodSig(sig.CallHasThis, []byte{byte(sig.Void)}))
	bt := b.AddTypeDef(TypePublic, "Demo", "B", 0)
	b.AddField(FieldPublic, "aField", fieldSig([]byte{byte(sig.I4)}))
	b.AddMethod(MethodPublic, "AMethod", methodSig(sig.CallHasThis, []byte{byte(sig.Void)}))

	// The pointer tables swap the physical rows between the two types.
	b.AddFieldPtr(2)
	b.AddFieldPtr(1)
	b.AddMethodPtr(2)
	b.AddMethodPtr(1)

	h := newTestHost(t, Options{})
	m := load(t, h, "/app/ptrs.dll", b)
	typeA, typeB := m.TypeDef(a), m.TypeDef(bt)

	require.Len(t, typeA.Fields(), 1)
	assert.Equal(t, uint32(2), typeA.Fields()[0].RID())
	assert.Equal(t, "aField", typeA.Fields()[0].Name())
	require.Len(t, typeB.Fields(), 1)
	assert.Equal(t, uint32(1), typeB.Fields()[0].RID())
	assert.Equal(t, "bField", typeB.Fields()[0].Name())

	require.Len(t, typeA.Methods(), 1)
	assert.Equal(t, "AMethod", typeA.Methods()[0].Name())
	require.Len(t, typeB.Methods(), 1)
	assert.Equal(t, "BMethod", typeB.Methods()[0].Name())

	assert.Same(t, typeB, m.Field(1).DeclaringType())
	assert.Same(t, typeA, m.Field(2).DeclaringType())
	assert.Same(t, typeB, m.Method(1).DeclaringType())
	assert.Same(t, typeA, m.Method(2).DeclaringType())
	assert.Empty(t, m.TypeDef(1).Fields())
}

func TestMemberPointerToMissingRow(t *testing.T) {
	b := newAppBuilder("ptrs")
	b.AddTypeDef(0, "", "<Module>", 0)
	a := b.AddTypeDef(TypePublic, "Demo", "A", 0)
	b.AddField(FieldPublic, "only", fieldSig([]byte{byte(sig.I4)}))
	b.AddFieldPtr(1)
	b.AddFieldPtr(9)

	h := newTestHost(t, Options{})
	m := load(t, h, "/app/ptrs.dll", b)

	require.Len(t, m.TypeDef(a).Fields(), 1)
	assert.Equal(t, "only", m.TypeDef(a).Fields()[0].Name())
	assert.True(t, hasDiagnostic(m, DiagStructural))
}

// Row ids of the multi-module assembly.
const (
	partsType  uint32 = 2
	partsInner uint32 = 3
	partsBox   uint32 = 4
)

// buildSuite lays out a manifest module whose types live in the
// parts.netmodule file of the same assembly.
func buildSuite() *tables.Builder {
	b := newAppBuilder("suite")
	file := tables.NewToken(tables.TableFile, b.AddFile(0, "parts.netmodule"))
	b.AddExportedType(TypePublic, "Demo", "Part", file)

	mr := tables.NewToken(tables.TableModuleRef, b.AddModuleRef("parts.netmodule"))
	outer := b.AddTypeRef(mr, "Demo", "Part")
	b.AddTypeRef(trTok(outer), "", "Inner")
	b.AddTypeRef(mr, "Demo", "Missing")

	b.AddTypeDef(0, "", "<Module>", 0)
	return b
}

func buildParts() *tables.Builder {
	b := tables.NewBuilder()
	b.SetModule("parts.netmodule", [16]byte{0xC0})
	b.AddTypeDef(0, "", "<Module>", 0)
	b.AddTypeDef(TypePublic, "Demo", "Part", 0)
	b.AddTypeDef(TypeNestedPublic, "", "Inner", 0)
	b.AddTypeDef(TypeNestedPublic, "", "Box`1", 0)
	b.AddGenericParam(0, 0, tdTok(partsBox), "T")
	b.AddNestedClass(partsInner, partsType)
	b.AddNestedClass(partsBox, partsType)
	return b
}

func loadSuite(t *testing.T) (h *Host, manifest, parts *Module) {
	t.Helper()
	h = newTestHost(t, Options{})
	manifest = load(t, h, "/app/suite.dll", buildSuite())
	parts, err := h.LoadModuleTables(manifest, "parts.netmodule", buildParts().Tables())
	require.NoError(t, err)
	return h, manifest, parts
}

func TestExportedTypeInSiblingFile(t *testing.T) {
	_, manifest, parts := loadSuite(t)

	assert.Same(t, manifest, parts.ManifestModule())
	sibling, err := manifest.SiblingModule("parts.netmodule")
	require.NoError(t, err)
	assert.Same(t, parts, sibling)

	et := manifest.ExportedType(1)
	require.NotNil(t, et)
	assert.False(t, et.IsForwarder())
	assert.Same(t, parts.TypeDef(partsType), et.Definition())
	assert.Same(t, parts.TypeDef(partsType), manifest.ResolveAlias(1))
	assert.Same(t, parts.TypeDef(partsType), manifest.FindType("Demo.Part"))
}

func TestExportedTypeInUnknownFile(t *testing.T) {
	h := newTestHost(t, Options{})
	manifest := load(t, h, "/app/suite.dll", buildSuite())

	et := manifest.ExportedType(1)
	assert.Nil(t, et.Definition())
	assert.Equal(t, "Demo.Part", et.Target().FullName())
	assert.True(t, hasDiagnostic(manifest, DiagUnresolved))
}

func TestTypeRefThroughModuleRef(t *testing.T) {
	_, manifest, parts := loadSuite(t)

	assert.Same(t, parts.TypeDef(partsType), manifest.TypeRef(1).Definition())
	assert.Same(t, parts.TypeDef(partsInner), manifest.TypeRef(2).Definition())
	assert.Nil(t, manifest.TypeRef(3).Definition())
}

func TestResolveNestedTypeOfOtherModule(t *testing.T) {
	h, manifest, parts := loadSuite(t)
	outer := parts.TypeDef(partsType)

	assert.Same(t, parts.TypeDef(partsInner), manifest.ResolveNestedType(outer, h.Name("Inner").Key()))
	assert.Same(t, parts.TypeDef(partsBox), manifest.ResolveNestedType(outer, h.Name("Box`1").Key()))
	assert.Nil(t, manifest.ResolveNestedType(outer, h.Name("Box").Key()))
	assert.Nil(t, manifest.ResolveNestedType(outer, h.Name("Absent").Key()))
	assert.Nil(t, manifest.ResolveNestedType(nil, h.Name("Inner").Key()))

	// The owning module answers from its own index.
	assert.Same(t, parts.TypeDef(partsInner), parts.ResolveNestedType(outer, h.Name("Inner").Key()))
}
