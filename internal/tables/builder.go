package tables

import (
	"fmt"
	"unicode/utf16"

	"github.com/skdltmxn/clrmeta-go/internal/heap"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
)

// Version is a four-part assembly version.
type Version [4]uint16

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v[0], v[1], v[2], v[3])
}

// Builder assembles a Tables value in memory. It lays out the heaps the
// same way a compiler does, so everything built here goes through the same
// heap decoding as parsed images. Members added after AddTypeDef belong to
// that type, following the table list-column convention.
type Builder struct {
	t Tables

	strings     []byte
	stringIndex map[string]uint32
	blobs       []byte
	guids       []byte
	userStrings []byte

	lastEventParent    uint32
	lastPropertyParent uint32
}

// NewBuilder creates a Builder with empty heaps and no rows.
func NewBuilder() *Builder {
	return &Builder{
		strings:     []byte{0},
		stringIndex: map[string]uint32{"": 0},
		blobs:       []byte{0},
		userStrings: []byte{0},
	}
}

// String interns s into the #Strings heap and returns its offset.
func (b *Builder) String(s string) uint32 {
	if off, ok := b.stringIndex[s]; ok {
		return off
	}
	off := uint32(len(b.strings))
	b.strings = append(b.strings, s...)
	b.strings = append(b.strings, 0)
	b.stringIndex[s] = off
	return off
}

// Blob appends data to the #Blob heap and returns its offset. A nil blob
// maps to offset 0.
func (b *Builder) Blob(data []byte) uint32 {
	if data == nil {
		return 0
	}
	off := uint32(len(b.blobs))
	b.blobs = stream.AppendCompressedU32(b.blobs, uint32(len(data)))
	b.blobs = append(b.blobs, data...)
	return off
}

// GUID appends a GUID and returns its 1-based index.
func (b *Builder) GUID(g [16]byte) uint32 {
	b.guids = append(b.guids, g[:]...)
	return uint32(len(b.guids) / 16)
}

// UserString appends a #US literal and returns its user string token.
func (b *Builder) UserString(s string) Token {
	off := uint32(len(b.userStrings))
	units := utf16.Encode([]rune(s))
	raw := make([]byte, 0, len(units)*2+1)
	var flag byte
	for _, u := range units {
		raw = append(raw, byte(u), byte(u>>8))
		if u >= 0x80 {
			flag = 1
		}
	}
	raw = append(raw, flag)
	b.userStrings = stream.AppendCompressedU32(b.userStrings, uint32(len(raw)))
	b.userStrings = append(b.userStrings, raw...)
	return NewToken(TableUserString, off)
}

// SetModule sets the single Module row.
func (b *Builder) SetModule(name string, mvid [16]byte) {
	b.t.Module = []ModuleRow{{Name: b.String(name), Mvid: b.GUID(mvid)}}
}

// SetAssembly sets the single Assembly row.
func (b *Builder) SetAssembly(name string, v Version, publicKey []byte, culture string) {
	b.t.Assembly = []AssemblyRow{{
		HashAlgID:      0x8004,
		MajorVersion:   v[0],
		MinorVersion:   v[1],
		BuildNumber:    v[2],
		RevisionNumber: v[3],
		PublicKey:      b.Blob(publicKey),
		Name:           b.String(name),
		Culture:        b.String(culture),
	}}
}

// AddAssemblyRef adds an AssemblyRef row with a public key token.
func (b *Builder) AddAssemblyRef(name string, v Version, publicKeyToken []byte) uint32 {
	b.t.AssemblyRef = append(b.t.AssemblyRef, AssemblyRefRow{
		MajorVersion:     v[0],
		MinorVersion:     v[1],
		BuildNumber:      v[2],
		RevisionNumber:   v[3],
		PublicKeyOrToken: b.Blob(publicKeyToken),
		Name:             b.String(name),
	})
	return uint32(len(b.t.AssemblyRef))
}

// AddModuleRef adds a ModuleRef row.
func (b *Builder) AddModuleRef(name string) uint32 {
	b.t.ModuleRef = append(b.t.ModuleRef, ModuleRefRow{Name: b.String(name)})
	return uint32(len(b.t.ModuleRef))
}

// AddFile adds a File row.
func (b *Builder) AddFile(flags uint32, name string) uint32 {
	b.t.File = append(b.t.File, FileRow{Flags: flags, Name: b.String(name)})
	return uint32(len(b.t.File))
}

// AddTypeRef adds a TypeRef row.
func (b *Builder) AddTypeRef(scope Token, namespace, name string) uint32 {
	b.t.TypeRef = append(b.t.TypeRef, TypeRefRow{
		ResolutionScope: scope,
		Name:            b.String(name),
		Namespace:       b.String(namespace),
	})
	return uint32(len(b.t.TypeRef))
}

// AddTypeDef adds a TypeDef row whose member lists start at the next field
// and method rows.
func (b *Builder) AddTypeDef(flags uint32, namespace, name string, extends Token) uint32 {
	b.t.TypeDef = append(b.t.TypeDef, TypeDefRow{
		Flags:      flags,
		Name:       b.String(name),
		Namespace:  b.String(namespace),
		Extends:    extends,
		FieldList:  uint32(len(b.t.Field)) + 1,
		MethodList: uint32(len(b.t.MethodDef)) + 1,
	})
	return uint32(len(b.t.TypeDef))
}

// AddField adds a Field row to the most recent type.
func (b *Builder) AddField(flags uint16, name string, signature []byte) uint32 {
	b.t.Field = append(b.t.Field, FieldRow{Flags: flags, Name: b.String(name), Signature: b.Blob(signature)})
	return uint32(len(b.t.Field))
}

// AddMethod adds a MethodDef row to the most recent type; its parameter
// list starts at the next Param row.
func (b *Builder) AddMethod(flags uint16, name string, signature []byte) uint32 {
	b.t.MethodDef = append(b.t.MethodDef, MethodDefRow{
		Flags:     flags,
		Name:      b.String(name),
		Signature: b.Blob(signature),
		ParamList: uint32(len(b.t.Param)) + 1,
	})
	return uint32(len(b.t.MethodDef))
}

// AddFieldPtr adds a FieldPtr row. Once any exist, type field lists
// index FieldPtr instead of Field.
func (b *Builder) AddFieldPtr(field uint32) uint32 {
	b.t.FieldPtr = append(b.t.FieldPtr, field)
	return uint32(len(b.t.FieldPtr))
}

// AddMethodPtr adds a MethodPtr row.
func (b *Builder) AddMethodPtr(method uint32) uint32 {
	b.t.MethodPtr = append(b.t.MethodPtr, method)
	return uint32(len(b.t.MethodPtr))
}

// AddParam adds a Param row to the most recent method.
func (b *Builder) AddParam(flags, sequence uint16, name string) uint32 {
	b.t.Param = append(b.t.Param, ParamRow{Flags: flags, Sequence: sequence, Name: b.String(name)})
	return uint32(len(b.t.Param))
}

// AddEvent adds an Event row owned by typeDef, opening a new EventMap row
// when the owner changes.
func (b *Builder) AddEvent(typeDef uint32, flags uint16, name string, eventType Token) uint32 {
	if typeDef != b.lastEventParent {
		b.t.EventMap = append(b.t.EventMap, EventMapRow{Parent: typeDef, EventList: uint32(len(b.t.Event)) + 1})
		b.lastEventParent = typeDef
	}
	b.t.Event = append(b.t.Event, EventRow{Flags: flags, Name: b.String(name), EventType: eventType})
	return uint32(len(b.t.Event))
}

// AddProperty adds a Property row owned by typeDef, opening a new
// PropertyMap row when the owner changes.
func (b *Builder) AddProperty(typeDef uint32, flags uint16, name string, signature []byte) uint32 {
	if typeDef != b.lastPropertyParent {
		b.t.PropertyMap = append(b.t.PropertyMap, PropertyMapRow{Parent: typeDef, PropertyList: uint32(len(b.t.Property)) + 1})
		b.lastPropertyParent = typeDef
	}
	b.t.Property = append(b.t.Property, PropertyRow{Flags: flags, Name: b.String(name), Signature: b.Blob(signature)})
	return uint32(len(b.t.Property))
}

// AddMethodSemantics links an accessor method to an event or property.
func (b *Builder) AddMethodSemantics(semantics uint16, method uint32, association Token) {
	b.t.MethodSemantics = append(b.t.MethodSemantics, MethodSemanticsRow{Semantics: semantics, Method: method, Association: association})
}

// AddNestedClass records that nested is declared inside enclosing.
func (b *Builder) AddNestedClass(nested, enclosing uint32) {
	b.t.NestedClass = append(b.t.NestedClass, NestedClassRow{NestedClass: nested, EnclosingClass: enclosing})
}

// AddInterfaceImpl records that class implements iface.
func (b *Builder) AddInterfaceImpl(class uint32, iface Token) {
	b.t.InterfaceImpl = append(b.t.InterfaceImpl, InterfaceImplRow{Class: class, Interface: iface})
}

// AddGenericParam adds a GenericParam row.
func (b *Builder) AddGenericParam(number, flags uint16, owner Token, name string) uint32 {
	b.t.GenericParam = append(b.t.GenericParam, GenericParamRow{Number: number, Flags: flags, Owner: owner, Name: b.String(name)})
	return uint32(len(b.t.GenericParam))
}

// AddGenericParamConstraint adds a constraint to a generic parameter.
func (b *Builder) AddGenericParamConstraint(owner uint32, constraint Token) {
	b.t.GenericParamConstraint = append(b.t.GenericParamConstraint, GenericParamConstraintRow{Owner: owner, Constraint: constraint})
}

// AddMemberRef adds a MemberRef row.
func (b *Builder) AddMemberRef(parent Token, name string, signature []byte) uint32 {
	b.t.MemberRef = append(b.t.MemberRef, MemberRefRow{Class: parent, Name: b.String(name), Signature: b.Blob(signature)})
	return uint32(len(b.t.MemberRef))
}

// AddTypeSpec adds a TypeSpec row.
func (b *Builder) AddTypeSpec(signature []byte) uint32 {
	b.t.TypeSpec = append(b.t.TypeSpec, TypeSpecRow{Signature: b.Blob(signature)})
	return uint32(len(b.t.TypeSpec))
}

// AddMethodSpec adds a MethodSpec row.
func (b *Builder) AddMethodSpec(method Token, instantiation []byte) uint32 {
	b.t.MethodSpec = append(b.t.MethodSpec, MethodSpecRow{Method: method, Instantiation: b.Blob(instantiation)})
	return uint32(len(b.t.MethodSpec))
}

// AddStandAloneSig adds a StandAloneSig row.
func (b *Builder) AddStandAloneSig(signature []byte) uint32 {
	b.t.StandAloneSig = append(b.t.StandAloneSig, StandAloneSigRow{Signature: b.Blob(signature)})
	return uint32(len(b.t.StandAloneSig))
}

// AddExportedType adds an ExportedType row.
func (b *Builder) AddExportedType(flags uint32, namespace, name string, implementation Token) uint32 {
	b.t.ExportedType = append(b.t.ExportedType, ExportedTypeRow{
		Flags:          flags,
		Name:           b.String(name),
		Namespace:      b.String(namespace),
		Implementation: implementation,
	})
	return uint32(len(b.t.ExportedType))
}

// AddManifestResource adds a ManifestResource row.
func (b *Builder) AddManifestResource(offset, flags uint32, name string, implementation Token) uint32 {
	b.t.ManifestResource = append(b.t.ManifestResource, ManifestResourceRow{
		Offset:         offset,
		Flags:          flags,
		Name:           b.String(name),
		Implementation: implementation,
	})
	return uint32(len(b.t.ManifestResource))
}

// AddCustomAttribute adds a CustomAttribute row.
func (b *Builder) AddCustomAttribute(parent, ctor Token, value []byte) uint32 {
	b.t.CustomAttribute = append(b.t.CustomAttribute, CustomAttributeRow{Parent: parent, Type: ctor, Value: b.Blob(value)})
	return uint32(len(b.t.CustomAttribute))
}

// AddDeclSecurity adds a DeclSecurity row.
func (b *Builder) AddDeclSecurity(action uint16, parent Token, permissionSet []byte) uint32 {
	b.t.DeclSecurity = append(b.t.DeclSecurity, DeclSecurityRow{Action: action, Parent: parent, PermissionSet: b.Blob(permissionSet)})
	return uint32(len(b.t.DeclSecurity))
}

// AddConstant adds a Constant row.
func (b *Builder) AddConstant(elementType uint8, parent Token, value []byte) {
	b.t.Constant = append(b.t.Constant, ConstantRow{Type: elementType, Parent: parent, Value: b.Blob(value)})
}

// AddFieldMarshal adds a FieldMarshal row.
func (b *Builder) AddFieldMarshal(parent Token, nativeType []byte) {
	b.t.FieldMarshal = append(b.t.FieldMarshal, FieldMarshalRow{Parent: parent, NativeType: b.Blob(nativeType)})
}

// AddClassLayout adds a ClassLayout row.
func (b *Builder) AddClassLayout(packing uint16, size, parent uint32) {
	b.t.ClassLayout = append(b.t.ClassLayout, ClassLayoutRow{PackingSize: packing, ClassSize: size, Parent: parent})
}

// AddFieldLayout adds a FieldLayout row.
func (b *Builder) AddFieldLayout(offset, field uint32) {
	b.t.FieldLayout = append(b.t.FieldLayout, FieldLayoutRow{Offset: offset, Field: field})
}

// AddFieldRVA adds a FieldRVA row.
func (b *Builder) AddFieldRVA(rva, field uint32) {
	b.t.FieldRVA = append(b.t.FieldRVA, FieldRVARow{RVA: rva, Field: field})
}

// AddImplMap adds an ImplMap row.
func (b *Builder) AddImplMap(flags uint16, member Token, importName string, scope uint32) {
	b.t.ImplMap = append(b.t.ImplMap, ImplMapRow{MappingFlags: flags, MemberForwarded: member, ImportName: b.String(importName), ImportScope: scope})
}

// Tables returns the built tables. The Builder must not be used afterwards.
func (b *Builder) Tables() *Tables {
	t := b.t
	t.Strings = heap.NewStrings(b.strings)
	t.Blobs = heap.NewBlobs(b.blobs)
	t.GUIDs = heap.NewGUIDs(b.guids)
	t.UserStrings = heap.NewUserStrings(b.userStrings, 0)
	t.Header.MajorVersion = 2
	for id := TableID(0); id <= MaxTable; id++ {
		if n := t.RowCount(id); n > 0 {
			t.Header.RowCounts[id] = n
			t.Header.Valid |= 1 << uint(id)
		}
	}
	return &t
}
