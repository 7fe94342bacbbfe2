// Package tables provides the metadata table model: table identifiers,
// tokens, coded indexes, typed rows and the #~ table stream parser.
package tables

import "fmt"

// TableID identifies a metadata table.
type TableID uint8

// Metadata table identifiers.
const (
	TableModule                 TableID = 0x00
	TableTypeRef                TableID = 0x01
	TableTypeDef                TableID = 0x02
	TableFieldPtr               TableID = 0x03
	TableField                  TableID = 0x04
	TableMethodPtr              TableID = 0x05
	TableMethodDef              TableID = 0x06
	TableParamPtr               TableID = 0x07
	TableParam                  TableID = 0x08
	TableInterfaceImpl          TableID = 0x09
	TableMemberRef              TableID = 0x0A
	TableConstant               TableID = 0x0B
	TableCustomAttribute        TableID = 0x0C
	TableFieldMarshal           TableID = 0x0D
	TableDeclSecurity           TableID = 0x0E
	TableClassLayout            TableID = 0x0F
	TableFieldLayout            TableID = 0x10
	TableStandAloneSig          TableID = 0x11
	TableEventMap               TableID = 0x12
	TableEventPtr               TableID = 0x13
	TableEvent                  TableID = 0x14
	TablePropertyMap            TableID = 0x15
	TablePropertyPtr            TableID = 0x16
	TableProperty               TableID = 0x17
	TableMethodSemantics        TableID = 0x18
	TableMethodImpl             TableID = 0x19
	TableModuleRef              TableID = 0x1A
	TableTypeSpec               TableID = 0x1B
	TableImplMap                TableID = 0x1C
	TableFieldRVA               TableID = 0x1D
	TableEncLog                 TableID = 0x1E
	TableEncMap                 TableID = 0x1F
	TableAssembly               TableID = 0x20
	TableAssemblyProcessor      TableID = 0x21
	TableAssemblyOS             TableID = 0x22
	TableAssemblyRef            TableID = 0x23
	TableAssemblyRefProcessor   TableID = 0x24
	TableAssemblyRefOS          TableID = 0x25
	TableFile                   TableID = 0x26
	TableExportedType           TableID = 0x27
	TableManifestResource       TableID = 0x28
	TableNestedClass            TableID = 0x29
	TableGenericParam           TableID = 0x2A
	TableMethodSpec             TableID = 0x2B
	TableGenericParamConstraint TableID = 0x2C

	// TableUserString is the pseudo table of #US heap tokens (ldstr).
	TableUserString TableID = 0x70

	// TableNone marks unused coded index tags.
	TableNone TableID = 0xFF
)

// MaxTable is the highest table identifier understood by the parser.
const MaxTable = TableGenericParamConstraint

var tableNames = [...]string{
	"Module", "TypeRef", "TypeDef", "FieldPtr", "Field", "MethodPtr",
	"MethodDef", "ParamPtr", "Param", "InterfaceImpl", "MemberRef",
	"Constant", "CustomAttribute", "FieldMarshal", "DeclSecurity",
	"ClassLayout", "FieldLayout", "StandAloneSig", "EventMap", "EventPtr",
	"Event", "PropertyMap", "PropertyPtr", "Property", "MethodSemantics",
	"MethodImpl", "ModuleRef", "TypeSpec", "ImplMap", "FieldRVA", "EncLog",
	"EncMap", "Assembly", "AssemblyProcessor", "AssemblyOS", "AssemblyRef",
	"AssemblyRefProcessor", "AssemblyRefOS", "File", "ExportedType",
	"ManifestResource", "NestedClass", "GenericParam", "MethodSpec",
	"GenericParamConstraint",
}

func (t TableID) String() string {
	if int(t) < len(tableNames) {
		return tableNames[t]
	}
	switch t {
	case TableUserString:
		return "UserString"
	case TableNone:
		return "None"
	}
	return fmt.Sprintf("Table(0x%02X)", uint8(t))
}

// Token globally addresses a table row: the top byte selects the table and
// the low 24 bits hold the 1-based row id. Row id 0 is the null reference.
type Token uint32

// NewToken builds a token from a table and a row id.
func NewToken(table TableID, rid uint32) Token {
	return Token(uint32(table)<<24 | rid&0x00FFFFFF)
}

// Table returns the table the token addresses.
func (t Token) Table() TableID { return TableID(t >> 24) }

// RID returns the 1-based row id.
func (t Token) RID() uint32 { return uint32(t) & 0x00FFFFFF }

// IsNil reports whether the token is a null reference.
func (t Token) IsNil() bool { return t.RID() == 0 }

func (t Token) String() string {
	return fmt.Sprintf("%s(0x%08X)", t.Table(), uint32(t))
}

// CodedIndex identifies a coded index kind: a column whose low bits select
// one of several tables.
type CodedIndex uint8

// Coded index kinds.
const (
	TypeDefOrRef CodedIndex = iota
	HasConstant
	HasCustomAttribute
	HasFieldMarshal
	HasDeclSecurity
	MemberRefParent
	HasSemantics
	MethodDefOrRef
	MemberForwarded
	Implementation
	CustomAttributeType
	ResolutionScope
	TypeOrMethodDef
)

type codedIndexInfo struct {
	bits   uint
	tables []TableID
}

var codedIndexes = [...]codedIndexInfo{
	TypeDefOrRef: {2, []TableID{TableTypeDef, TableTypeRef, TableTypeSpec}},
	HasConstant:  {2, []TableID{TableField, TableParam, TableProperty}},
	HasCustomAttribute: {5, []TableID{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	}},
	HasFieldMarshal:     {1, []TableID{TableField, TableParam}},
	HasDeclSecurity:     {2, []TableID{TableTypeDef, TableMethodDef, TableAssembly}},
	MemberRefParent:     {3, []TableID{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}},
	HasSemantics:        {1, []TableID{TableEvent, TableProperty}},
	MethodDefOrRef:      {1, []TableID{TableMethodDef, TableMemberRef}},
	MemberForwarded:     {1, []TableID{TableField, TableMethodDef}},
	Implementation:      {2, []TableID{TableFile, TableAssemblyRef, TableExportedType}},
	CustomAttributeType: {3, []TableID{TableNone, TableNone, TableMethodDef, TableMemberRef, TableNone}},
	ResolutionScope:     {2, []TableID{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}},
	TypeOrMethodDef:     {1, []TableID{TableTypeDef, TableMethodDef}},
}

// DecodeCodedIndex converts a raw coded index value into a token.
// ok is false when the tag selects no table.
func DecodeCodedIndex(kind CodedIndex, value uint32) (Token, bool) {
	info := codedIndexes[kind]
	tag := value & (1<<info.bits - 1)
	if int(tag) >= len(info.tables) || info.tables[tag] == TableNone {
		return 0, false
	}
	return NewToken(info.tables[tag], value>>info.bits), true
}

// EncodeCodedIndex converts a token into a raw coded index value.
// ok is false when the token's table is not a member of the coded index.
func EncodeCodedIndex(kind CodedIndex, tok Token) (uint32, bool) {
	info := codedIndexes[kind]
	for tag, table := range info.tables {
		if table == tok.Table() && table != TableNone {
			return tok.RID()<<info.bits | uint32(tag), true
		}
	}
	return 0, false
}
