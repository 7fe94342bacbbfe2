package clr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// Row ids of the attrs module.
const (
	attrsAttributeRef uint32 = 1
	attrsEnumRef      uint32 = 2
	attrsTypeRef      uint32 = 3
	attrsModeRef      uint32 = 4

	attrsColor uint32 = 2
	attrsTag   uint32 = 3

	attrsCtorValues uint32 = 1
	attrsCtorMode   uint32 = 2
	attrsCtorType   uint32 = 3
	attrsCtorEmpty  uint32 = 4
	attrsCtorModes  uint32 = 5
)

var ctorFlags = uint16(MethodPublic | MethodSpecialName | MethodRTSpecial)

func ctorSig(params ...[]byte) []byte {
	return methodSig(sig.CallHasThis, []byte{byte(sig.Void)}, params...)
}

func u16le(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func u32le(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }

func utf16le(s string) []byte {
	var out []byte
	for _, r := range s {
		out = append(out, u16le(uint16(r))...)
	}
	return out
}

// buildAttrs lays out an enum, an attribute class with several
// constructors and the attribute rows applied to it.
func buildAttrs(attrs ...[2]any) *tables.Builder {
	b := newAppBuilder("attrs")
	missing := b.AddAssemblyRef("External", tables.Version{1, 0, 0, 0}, nil)
	b.AddTypeRef(arTok(1), "System", "Attribute")
	b.AddTypeRef(arTok(1), "System", "Enum")
	b.AddTypeRef(arTok(1), "System", "Type")
	b.AddTypeRef(arTok(missing), "External", "Mode")

	b.AddTypeDef(0, "", "<Module>", 0)
	b.AddTypeDef(TypePublic|TypeSealed, "Demo", "Color", trTok(attrsEnumRef))
	b.AddField(FieldPublic|FieldSpecialName|FieldRTSpecialName, "value__", fieldSig([]byte{byte(sig.I4)}))
	b.AddField(FieldPublic|FieldStatic|FieldLiteral|FieldHasDefault, "Red", fieldSig(typeSig(sig.ValueType, tdTok(attrsColor))))
	b.AddTypeDef(TypePublic, "Demo", "TagAttribute", trTok(attrsAttributeRef))
	b.AddField(FieldPublic|FieldStatic|FieldLiteral|FieldHasDefault, "Fallback", fieldSig([]byte{byte(sig.Object)}))
	b.AddMethod(ctorFlags, ".ctor", ctorSig([]byte{byte(sig.I4)}, []byte{byte(sig.String)}, typeSig(sig.ValueType, tdTok(attrsColor))))
	b.AddMethod(ctorFlags, ".ctor", ctorSig(typeSig(sig.ValueType, trTok(attrsModeRef))))
	b.AddMethod(ctorFlags, ".ctor", ctorSig(typeSig(sig.Class, trTok(attrsTypeRef))))
	b.AddMethod(ctorFlags, ".ctor", ctorSig())
	b.AddMethod(ctorFlags, ".ctor", ctorSig(
		typeSig(sig.ValueType, trTok(attrsModeRef)),
		[]byte{byte(sig.String)},
		typeSig(sig.ValueType, trTok(attrsModeRef)),
	))

	b.AddConstant(uint8(sig.I4), fdTok(2), u32le(1))
	b.AddConstant(uint8(sig.Class), fdTok(3), u32le(0))

	for _, a := range attrs {
		b.AddCustomAttribute(tdTok(attrsTag), mdTok(a[0].(uint32)), a[1].([]byte))
	}
	return b
}

func loadAttrs(t *testing.T, attrs ...[2]any) *Module {
	t.Helper()
	h := newTestHost(t, Options{})
	loadCorlib(t, h)
	return load(t, h, "/app/attrs.dll", buildAttrs(attrs...))
}

func onlyAttribute(t *testing.T, m *Module) *CustomAttribute {
	t.Helper()
	attrs := m.TypeDef(attrsTag).CustomAttributes()
	require.Len(t, attrs, 1)
	return attrs[0]
}

func TestAttributeFixedAndNamedArgs(t *testing.T) {
	blob := concat(
		u16le(1),
		u32le(7),
		serString("hi"),
		u32le(2),
		u16le(1),
		[]byte{byte(sig.SerProperty), byte(sig.String)}, serString("Tag"), serString("x"),
	)
	m := loadAttrs(t, [2]any{attrsCtorValues, blob})
	ca := onlyAttribute(t, m)

	require.NoError(t, ca.Err())
	assert.Same(t, m.TypeDef(attrsTag), ca.AttributeType())
	assert.Same(t, m.Method(attrsCtorValues), ca.Constructor())
	assert.Equal(t, tdTok(attrsTag), ca.Parent())

	assert.Equal(t, []AttributeArgument{
		{Kind: sig.I4, Value: int32(7)},
		{Kind: sig.String, Value: "hi"},
		{Kind: sig.SerEnum, TypeName: "Demo.Color", Value: int32(2)},
	}, ca.FixedArgs())
	assert.Equal(t, []NamedArgument{
		{Name: "Tag", AttributeArgument: AttributeArgument{Kind: sig.String, Value: "x"}},
	}, ca.NamedArgs())
}

func TestAttributeNullString(t *testing.T) {
	blob := concat(u16le(1), u32le(7), []byte{0xFF}, u32le(0), u16le(0))
	ca := onlyAttribute(t, loadAttrs(t, [2]any{attrsCtorValues, blob}))

	require.NoError(t, ca.Err())
	require.Len(t, ca.FixedArgs(), 3)
	assert.Equal(t, sig.String, ca.FixedArgs()[1].Kind)
	assert.Nil(t, ca.FixedArgs()[1].Value)
}

func TestAttributeUnknownEnumSize(t *testing.T) {
	// Only a two-byte enum leaves the blob fully consumed.
	blob := concat(u16le(1), []byte{0x34, 0x12}, u16le(0))
	ca := onlyAttribute(t, loadAttrs(t, [2]any{attrsCtorMode, blob}))

	require.NoError(t, ca.Err())
	require.Len(t, ca.FixedArgs(), 1)
	arg := ca.FixedArgs()[0]
	assert.Equal(t, sig.SerEnum, arg.Kind)
	assert.Equal(t, "External.Mode", arg.TypeName)
	assert.Equal(t, int16(0x1234), arg.Value)
}

func TestAttributeUnknownEnumSizesBacktrack(t *testing.T) {
	// Only (Int16, "x", UInt8) consumes the blob. Reaching it means
	// revising the first guess before the second enum is seen at all.
	blob := concat(u16le(1), []byte{0x34, 0x12}, serString("x"), []byte{0x07}, u16le(0))
	ca := onlyAttribute(t, loadAttrs(t, [2]any{attrsCtorModes, blob}))

	require.NoError(t, ca.Err())
	assert.Equal(t, []AttributeArgument{
		{Kind: sig.SerEnum, TypeName: "External.Mode", Value: int16(0x1234)},
		{Kind: sig.String, Value: "x"},
		{Kind: sig.SerEnum, TypeName: "External.Mode", Value: uint8(7)},
	}, ca.FixedArgs())
}

func TestAttributeUnknownEnumSizesExhausted(t *testing.T) {
	// Three bytes fit no enum size followed by a named argument count.
	blob := concat(u16le(1), []byte{0x01, 0x02, 0x03})
	m := loadAttrs(t, [2]any{attrsCtorMode, blob})
	ca := onlyAttribute(t, m)

	assert.ErrorIs(t, ca.Err(), errInvalidAttribute)
	assert.Nil(t, ca.FixedArgs())
	assert.True(t, hasDiagnostic(m, DiagDecode))
}

func TestAttributeTypeArgument(t *testing.T) {
	blob := concat(u16le(1), serString("System.String"), u16le(0))
	ca := onlyAttribute(t, loadAttrs(t, [2]any{attrsCtorType, blob}))

	require.NoError(t, ca.Err())
	assert.Equal(t, []AttributeArgument{{Kind: sig.SerType, Value: "System.String"}}, ca.FixedArgs())
}

func TestAttributeNamedEnumAndBoxedArray(t *testing.T) {
	blob := concat(
		u16le(1),
		u16le(2),
		[]byte{byte(sig.SerField), byte(sig.SerEnum)}, serString("Demo.Color"), serString("Shade"), u32le(3),
		[]byte{byte(sig.SerProperty), byte(sig.SerBoxed)}, serString("Data"),
		[]byte{byte(sig.SZArray), byte(sig.I4)}, u32le(2), u32le(5), u32le(6),
	)
	ca := onlyAttribute(t, loadAttrs(t, [2]any{attrsCtorEmpty, blob}))

	require.NoError(t, ca.Err())
	assert.Empty(t, ca.FixedArgs())
	require.Len(t, ca.NamedArgs(), 2)

	shade := ca.NamedArgs()[0]
	assert.Equal(t, "Shade", shade.Name)
	assert.True(t, shade.IsField)
	assert.Equal(t, sig.SerEnum, shade.Kind)
	assert.Equal(t, int32(3), shade.Value)

	data := ca.NamedArgs()[1]
	assert.Equal(t, "Data", data.Name)
	assert.False(t, data.IsField)
	assert.Equal(t, sig.SZArray, data.Kind)
	assert.Equal(t, []AttributeArgument{
		{Kind: sig.I4, Value: int32(5)},
		{Kind: sig.I4, Value: int32(6)},
	}, data.Value)
}

func TestAttributeInvalidBlob(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"bad prolog", concat(u16le(2), serString("System.String"), u16le(0))},
		{"trailing bytes", concat(u16le(1), serString("System.String"), u16le(0), []byte{0})},
		{"truncated", u16le(1)},
	}
	truncated := onlyAttribute(t, loadAttrs(t, [2]any{attrsCtorType, u16le(1)}))
	assert.ErrorIs(t, truncated.Err(), stream.ErrUnexpectedEOF)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := loadAttrs(t, [2]any{attrsCtorType, tt.blob})
			ca := onlyAttribute(t, m)
			assert.ErrorIs(t, ca.Err(), errInvalidAttribute)
			assert.Nil(t, ca.FixedArgs())
			assert.True(t, hasDiagnostic(m, DiagDecode))
		})
	}
}

func TestAttributeOnMemberRefConstructor(t *testing.T) {
	h := newTestHost(t, Options{})
	corlib := loadCorlib(t, h)
	b := buildAttrs()
	ctor := b.AddMemberRef(trTok(attrsAttributeRef), ".ctor", ctorSig())
	b.AddCustomAttribute(tables.NewToken(tables.TableModule, 1), mrTok(ctor), concat(u16le(1), u16le(0)))
	m := load(t, h, "/app/attrs.dll", b)

	attrs := m.CustomAttributes(tables.NewToken(tables.TableModule, 1))
	require.Len(t, attrs, 1)
	ca := attrs[0]
	require.NoError(t, ca.Err())
	assert.Same(t, m.TypeRef(attrsAttributeRef), ca.AttributeType())
	assert.Empty(t, ca.NamedArgs())

	ref, ok := ca.Constructor().(*MemberRef)
	require.True(t, ok)
	assert.Same(t, corlib.TypeDef(corlibAttribute).Methods()[0], ref.ResolveMethod())
}

func TestConstants(t *testing.T) {
	m := loadAttrs(t)

	red := m.TypeDef(attrsColor).FindField("Red")
	require.NotNil(t, red)
	c, ok := red.Constant()
	require.True(t, ok)
	assert.Equal(t, sig.I4, c.Type)
	assert.Equal(t, int32(1), c.Value)
	assert.Equal(t, "1", c.String())

	fallback := m.TypeDef(attrsTag).FindField("Fallback")
	require.NotNil(t, fallback)
	c, ok = fallback.Constant()
	require.True(t, ok)
	assert.Nil(t, c.Value)
	assert.Equal(t, "null", c.String())

	_, ok = m.TypeDef(attrsColor).FindField("value__").Constant()
	assert.False(t, ok)
}

func TestDeclarativeSecurity(t *testing.T) {
	body := concat(
		[]byte{1},
		[]byte{byte(sig.SerProperty), byte(sig.Boolean)}, serString("Unrestricted"), []byte{1},
	)
	binary := concat(
		[]byte{binaryPermissionSet, 1},
		serString("Demo.Perm"),
		stream.AppendCompressedU32(nil, uint32(len(body))),
		body,
	)
	const xml = "<PermissionSet/>"

	h := newTestHost(t, Options{})
	loadCorlib(t, h)
	b := buildAttrs()
	b.AddDeclSecurity(uint16(SecurityDemand), tdTok(attrsTag), binary)
	b.AddDeclSecurity(uint16(SecurityAssert), tdTok(attrsTag), utf16le(xml))
	m := load(t, h, "/app/attrs.dll", b)

	sec := m.TypeDef(attrsTag).SecurityAttributes()
	require.Len(t, sec, 2)

	demand := sec[0]
	assert.Equal(t, SecurityDemand, demand.Action())
	assert.False(t, demand.IsXML())
	perms, err := demand.Permissions()
	require.NoError(t, err)
	assert.Equal(t, []Permission{{
		TypeName: "Demo.Perm",
		NamedArgs: []NamedArgument{{
			Name:              "Unrestricted",
			AttributeArgument: AttributeArgument{Kind: sig.Boolean, Value: true},
		}},
	}}, perms)
	_, err = demand.XML()
	assert.ErrorIs(t, err, errInvalidAttribute)

	asserted := sec[1]
	assert.Equal(t, SecurityAssert, asserted.Action())
	assert.True(t, asserted.IsXML())
	text, err := asserted.XML()
	require.NoError(t, err)
	assert.Equal(t, xml, text)
	perms, err = asserted.Permissions()
	assert.NoError(t, err)
	assert.Nil(t, perms)
}

func permission(name string, body []byte) []byte {
	return concat(serString(name), stream.AppendCompressedU32(nil, uint32(len(body))), body)
}

func loadSecurity(t *testing.T, blob []byte) *SecurityAttribute {
	t.Helper()
	h := newTestHost(t, Options{})
	loadCorlib(t, h)
	b := buildAttrs()
	b.AddDeclSecurity(uint16(SecurityDemand), tdTok(attrsTag), blob)
	m := load(t, h, "/app/attrs.dll", b)
	sec := m.TypeDef(attrsTag).SecurityAttributes()
	require.Len(t, sec, 1)
	return sec[0]
}

func TestPermissionBodiesBoundEnumGuesses(t *testing.T) {
	level := concat(
		[]byte{1},
		[]byte{byte(sig.SerProperty), byte(sig.SerEnum)}, serString("External.Mode"), serString("Level"),
		[]byte{0x34, 0x12},
	)
	flag := concat(
		[]byte{1},
		[]byte{byte(sig.SerField), byte(sig.Boolean)}, serString("On"), []byte{1},
	)
	blob := concat([]byte{binaryPermissionSet, 2}, permission("Demo.Level", level), permission("Demo.Flag", flag))

	perms, err := loadSecurity(t, blob).Permissions()
	require.NoError(t, err)
	require.Len(t, perms, 2)
	assert.Equal(t, "Demo.Level", perms[0].TypeName)
	assert.Equal(t, []NamedArgument{{
		Name:              "Level",
		AttributeArgument: AttributeArgument{Kind: sig.SerEnum, TypeName: "External.Mode", Value: int16(0x1234)},
	}}, perms[0].NamedArgs)
	assert.Equal(t, []NamedArgument{{
		Name:              "On",
		IsField:           true,
		AttributeArgument: AttributeArgument{Kind: sig.Boolean, Value: true},
	}}, perms[1].NamedArgs)
}

func TestPermissionBodyLengthMismatch(t *testing.T) {
	body := concat(
		[]byte{1},
		[]byte{byte(sig.SerProperty), byte(sig.Boolean)}, serString("Unrestricted"), []byte{1},
	)
	tests := []struct {
		name string
		blob []byte
	}{
		{"short", concat([]byte{binaryPermissionSet, 1}, serString("Demo.Perm"), []byte{4}, body)},
		{"padded", concat([]byte{binaryPermissionSet, 1}, permission("Demo.Perm", concat(body, []byte{0})))},
		{"beyond blob", concat([]byte{binaryPermissionSet, 1}, serString("Demo.Perm"), []byte{0x40}, body)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms, err := loadSecurity(t, tt.blob).Permissions()
			assert.ErrorIs(t, err, errInvalidAttribute)
			assert.Nil(t, perms)
		})
	}
}
