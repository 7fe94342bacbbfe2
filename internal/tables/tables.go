package tables

import "github.com/skdltmxn/clrmeta-go/internal/heap"

// Header is the #~ table stream header.
type Header struct {
	MajorVersion uint8
	MinorVersion uint8
	HeapSizes    uint8
	Valid        uint64
	Sorted       uint64
	RowCounts    [64]uint32

	// Uncompressed is set for #- streams, which may carry pointer tables.
	Uncompressed bool
}

// Tables holds every decoded metadata table of one module plus its heaps.
// Row slices are 0-based: row id n lives at index n-1.
// A Tables value is read-only once built.
type Tables struct {
	Header Header

	Strings     *heap.Strings
	Blobs       *heap.Blobs
	GUIDs       *heap.GUIDs
	UserStrings *heap.UserStrings

	Module                 []ModuleRow
	TypeRef                []TypeRefRow
	TypeDef                []TypeDefRow
	FieldPtr               []uint32
	Field                  []FieldRow
	MethodPtr              []uint32
	MethodDef              []MethodDefRow
	ParamPtr               []uint32
	Param                  []ParamRow
	InterfaceImpl          []InterfaceImplRow
	MemberRef              []MemberRefRow
	Constant               []ConstantRow
	CustomAttribute        []CustomAttributeRow
	FieldMarshal           []FieldMarshalRow
	DeclSecurity           []DeclSecurityRow
	ClassLayout            []ClassLayoutRow
	FieldLayout            []FieldLayoutRow
	StandAloneSig          []StandAloneSigRow
	EventMap               []EventMapRow
	EventPtr               []uint32
	Event                  []EventRow
	PropertyMap            []PropertyMapRow
	PropertyPtr            []uint32
	Property               []PropertyRow
	MethodSemantics        []MethodSemanticsRow
	MethodImpl             []MethodImplRow
	ModuleRef              []ModuleRefRow
	TypeSpec               []TypeSpecRow
	ImplMap                []ImplMapRow
	FieldRVA               []FieldRVARow
	Assembly               []AssemblyRow
	AssemblyRef            []AssemblyRefRow
	File                   []FileRow
	ExportedType           []ExportedTypeRow
	ManifestResource       []ManifestResourceRow
	NestedClass            []NestedClassRow
	GenericParam           []GenericParamRow
	MethodSpec             []MethodSpecRow
	GenericParamConstraint []GenericParamConstraintRow
}

// At returns row rid (1-based) of rows. ok is false for row 0 and for row
// ids past the end of the table.
func At[R any](rows []R, rid uint32) (row R, ok bool) {
	if rid == 0 || int(rid) > len(rows) {
		return row, false
	}
	return rows[rid-1], true
}

// RowCount returns the number of rows in the given table.
func (t *Tables) RowCount(id TableID) uint32 {
	switch id {
	case TableModule:
		return uint32(len(t.Module))
	case TableTypeRef:
		return uint32(len(t.TypeRef))
	case TableTypeDef:
		return uint32(len(t.TypeDef))
	case TableFieldPtr:
		return uint32(len(t.FieldPtr))
	case TableField:
		return uint32(len(t.Field))
	case TableMethodPtr:
		return uint32(len(t.MethodPtr))
	case TableMethodDef:
		return uint32(len(t.MethodDef))
	case TableParamPtr:
		return uint32(len(t.ParamPtr))
	case TableParam:
		return uint32(len(t.Param))
	case TableInterfaceImpl:
		return uint32(len(t.InterfaceImpl))
	case TableMemberRef:
		return uint32(len(t.MemberRef))
	case TableConstant:
		return uint32(len(t.Constant))
	case TableCustomAttribute:
		return uint32(len(t.CustomAttribute))
	case TableFieldMarshal:
		return uint32(len(t.FieldMarshal))
	case TableDeclSecurity:
		return uint32(len(t.DeclSecurity))
	case TableClassLayout:
		return uint32(len(t.ClassLayout))
	case TableFieldLayout:
		return uint32(len(t.FieldLayout))
	case TableStandAloneSig:
		return uint32(len(t.StandAloneSig))
	case TableEventMap:
		return uint32(len(t.EventMap))
	case TableEventPtr:
		return uint32(len(t.EventPtr))
	case TableEvent:
		return uint32(len(t.Event))
	case TablePropertyMap:
		return uint32(len(t.PropertyMap))
	case TablePropertyPtr:
		return uint32(len(t.PropertyPtr))
	case TableProperty:
		return uint32(len(t.Property))
	case TableMethodSemantics:
		return uint32(len(t.MethodSemantics))
	case TableMethodImpl:
		return uint32(len(t.MethodImpl))
	case TableModuleRef:
		return uint32(len(t.ModuleRef))
	case TableTypeSpec:
		return uint32(len(t.TypeSpec))
	case TableImplMap:
		return uint32(len(t.ImplMap))
	case TableFieldRVA:
		return uint32(len(t.FieldRVA))
	case TableAssembly:
		return uint32(len(t.Assembly))
	case TableAssemblyRef:
		return uint32(len(t.AssemblyRef))
	case TableFile:
		return uint32(len(t.File))
	case TableExportedType:
		return uint32(len(t.ExportedType))
	case TableManifestResource:
		return uint32(len(t.ManifestResource))
	case TableNestedClass:
		return uint32(len(t.NestedClass))
	case TableGenericParam:
		return uint32(len(t.GenericParam))
	case TableMethodSpec:
		return uint32(len(t.MethodSpec))
	case TableGenericParamConstraint:
		return uint32(len(t.GenericParamConstraint))
	default:
		return 0
	}
}

// String returns the #Strings heap entry at offset.
func (t *Tables) String(offset uint32) string {
	return t.Strings.String(offset)
}

// Blob returns the #Blob heap entry at offset.
func (t *Tables) Blob(offset uint32) ([]byte, bool) {
	return t.Blobs.Blob(offset)
}
