package tables

// Row types hold decoded column values. String columns are #Strings heap
// offsets, blob columns are #Blob heap offsets, simple table columns are
// 1-based row ids and coded index columns are decoded into tokens.

// ModuleRow is a row of the Module table.
type ModuleRow struct {
	Generation uint16
	Name       uint32
	Mvid       uint32
	EncID      uint32
	EncBaseID  uint32
}

// TypeRefRow is a row of the TypeRef table.
type TypeRefRow struct {
	ResolutionScope Token
	Name            uint32
	Namespace       uint32
}

// TypeDefRow is a row of the TypeDef table.
type TypeDefRow struct {
	Flags      uint32
	Name       uint32
	Namespace  uint32
	Extends    Token
	FieldList  uint32
	MethodList uint32
}

// FieldRow is a row of the Field table.
type FieldRow struct {
	Flags     uint16
	Name      uint32
	Signature uint32
}

// MethodDefRow is a row of the MethodDef table.
type MethodDefRow struct {
	RVA       uint32
	ImplFlags uint16
	Flags     uint16
	Name      uint32
	Signature uint32
	ParamList uint32
}

// ParamRow is a row of the Param table.
type ParamRow struct {
	Flags    uint16
	Sequence uint16
	Name     uint32
}

// InterfaceImplRow is a row of the InterfaceImpl table.
type InterfaceImplRow struct {
	Class     uint32
	Interface Token
}

// MemberRefRow is a row of the MemberRef table.
type MemberRefRow struct {
	Class     Token
	Name      uint32
	Signature uint32
}

// ConstantRow is a row of the Constant table.
type ConstantRow struct {
	Type   uint8
	Parent Token
	Value  uint32
}

// CustomAttributeRow is a row of the CustomAttribute table.
type CustomAttributeRow struct {
	Parent Token
	Type   Token
	Value  uint32
}

// FieldMarshalRow is a row of the FieldMarshal table.
type FieldMarshalRow struct {
	Parent     Token
	NativeType uint32
}

// DeclSecurityRow is a row of the DeclSecurity table.
type DeclSecurityRow struct {
	Action        uint16
	Parent        Token
	PermissionSet uint32
}

// ClassLayoutRow is a row of the ClassLayout table.
type ClassLayoutRow struct {
	PackingSize uint16
	ClassSize   uint32
	Parent      uint32
}

// FieldLayoutRow is a row of the FieldLayout table.
type FieldLayoutRow struct {
	Offset uint32
	Field  uint32
}

// StandAloneSigRow is a row of the StandAloneSig table.
type StandAloneSigRow struct {
	Signature uint32
}

// EventMapRow is a row of the EventMap table.
type EventMapRow struct {
	Parent    uint32
	EventList uint32
}

// EventRow is a row of the Event table.
type EventRow struct {
	Flags     uint16
	Name      uint32
	EventType Token
}

// PropertyMapRow is a row of the PropertyMap table.
type PropertyMapRow struct {
	Parent       uint32
	PropertyList uint32
}

// PropertyRow is a row of the Property table.
type PropertyRow struct {
	Flags     uint16
	Name      uint32
	Signature uint32
}

// MethodSemanticsRow is a row of the MethodSemantics table.
type MethodSemanticsRow struct {
	Semantics   uint16
	Method      uint32
	Association Token
}

// MethodImplRow is a row of the MethodImpl table.
type MethodImplRow struct {
	Class       uint32
	Body        Token
	Declaration Token
}

// ModuleRefRow is a row of the ModuleRef table.
type ModuleRefRow struct {
	Name uint32
}

// TypeSpecRow is a row of the TypeSpec table.
type TypeSpecRow struct {
	Signature uint32
}

// ImplMapRow is a row of the ImplMap table.
type ImplMapRow struct {
	MappingFlags    uint16
	MemberForwarded Token
	ImportName      uint32
	ImportScope     uint32
}

// FieldRVARow is a row of the FieldRVA table.
type FieldRVARow struct {
	RVA   uint32
	Field uint32
}

// AssemblyRow is a row of the Assembly table.
type AssemblyRow struct {
	HashAlgID      uint32
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
	Flags          uint32
	PublicKey      uint32
	Name           uint32
	Culture        uint32
}

// AssemblyRefRow is a row of the AssemblyRef table.
type AssemblyRefRow struct {
	MajorVersion     uint16
	MinorVersion     uint16
	BuildNumber      uint16
	RevisionNumber   uint16
	Flags            uint32
	PublicKeyOrToken uint32
	Name             uint32
	Culture          uint32
	HashValue        uint32
}

// FileRow is a row of the File table.
type FileRow struct {
	Flags     uint32
	Name      uint32
	HashValue uint32
}

// ExportedTypeRow is a row of the ExportedType table.
type ExportedTypeRow struct {
	Flags          uint32
	TypeDefID      uint32
	Name           uint32
	Namespace      uint32
	Implementation Token
}

// ManifestResourceRow is a row of the ManifestResource table.
type ManifestResourceRow struct {
	Offset         uint32
	Flags          uint32
	Name           uint32
	Implementation Token
}

// NestedClassRow is a row of the NestedClass table.
type NestedClassRow struct {
	NestedClass    uint32
	EnclosingClass uint32
}

// GenericParamRow is a row of the GenericParam table.
type GenericParamRow struct {
	Number uint16
	Flags  uint16
	Owner  Token
	Name   uint32
}

// MethodSpecRow is a row of the MethodSpec table.
type MethodSpecRow struct {
	Method        Token
	Instantiation uint32
}

// GenericParamConstraintRow is a row of the GenericParamConstraint table.
type GenericParamConstraintRow struct {
	Owner      uint32
	Constraint Token
}
