package tables

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/clrmeta-go/internal/heap"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
)

// Table stream header size before the row count array.
const HeaderSize = 24

// Errors
var (
	ErrInvalidHeader  = errors.New("tables: invalid table stream header")
	ErrUnknownTable   = errors.New("tables: unknown table present")
	ErrTruncatedTable = errors.New("tables: truncated table data")
)

// Streams carries the raw metadata streams of one module.
type Streams struct {
	Tables      []byte
	Strings     []byte
	Blob        []byte
	GUID        []byte
	UserStrings []byte

	// Uncompressed is set when the table stream is named "#-".
	Uncompressed bool

	// UserStringCacheSize bounds the decoded #US cache.
	UserStringCacheSize int
}

// Parse decodes a table stream and wraps the heaps.
func Parse(s Streams) (*Tables, error) {
	if len(s.Tables) < HeaderSize {
		return nil, ErrInvalidHeader
	}

	t := &Tables{
		Strings:     heap.NewStrings(s.Strings),
		Blobs:       heap.NewBlobs(s.Blob),
		GUIDs:       heap.NewGUIDs(s.GUID),
		UserStrings: heap.NewUserStrings(s.UserStrings, s.UserStringCacheSize),
	}
	t.Header.Uncompressed = s.Uncompressed

	r := stream.NewReader(s.Tables)
	if err := parseHeader(r, &t.Header); err != nil {
		return nil, err
	}

	l := newLayout(&t.Header)
	for id := TableID(0); id <= MaxTable; id++ {
		count := t.Header.RowCounts[id]
		if count == 0 {
			continue
		}
		if err := t.parseTable(r, l, id, count); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func parseHeader(r *stream.Reader, h *Header) error {
	if _, err := r.ReadU32(); err != nil { // reserved
		return err
	}

	var err error
	if h.MajorVersion, err = r.ReadU8(); err != nil {
		return err
	}
	if h.MinorVersion, err = r.ReadU8(); err != nil {
		return err
	}
	if h.HeapSizes, err = r.ReadU8(); err != nil {
		return err
	}
	if _, err = r.ReadU8(); err != nil { // reserved
		return err
	}
	if h.Valid, err = r.ReadU64(); err != nil {
		return err
	}
	if h.Sorted, err = r.ReadU64(); err != nil {
		return err
	}

	for i := 0; i < 64; i++ {
		if h.Valid&(1<<uint(i)) == 0 {
			continue
		}
		if TableID(i) > MaxTable {
			return fmt.Errorf("%w: 0x%02X", ErrUnknownTable, i)
		}
		count, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("%w: row counts", ErrInvalidHeader)
		}
		h.RowCounts[i] = count
	}

	// #- streams written by edit-and-continue carry an extra dword.
	if h.HeapSizes&0x40 != 0 {
		if err := r.Skip(4); err != nil {
			return fmt.Errorf("%w: extra data", ErrInvalidHeader)
		}
	}

	return nil
}

func (t *Tables) parseTable(r *stream.Reader, l layout, id TableID, count uint32) error {
	cols := schemas[id]
	rowSize := l.rowSize(id)
	if uint64(rowSize)*uint64(count) > uint64(r.Remaining()) {
		return fmt.Errorf("%w: %s needs %d rows of %d bytes", ErrTruncatedTable, id, count, rowSize)
	}

	vals := make([]uint32, len(cols))
	for i := uint32(0); i < count; i++ {
		for c, col := range cols {
			v, err := r.ReadIndex(l.width(col))
			if err != nil {
				return fmt.Errorf("%w: %s row %d", ErrTruncatedTable, id, i+1)
			}
			vals[c] = v
		}
		t.appendRow(id, cols, vals)
	}
	return nil
}

// tok decodes column c of vals as a coded index. Invalid tags decode to the
// zero token, which every consumer treats as an absent reference.
func tok(cols []column, vals []uint32, c int) Token {
	v, ok := DecodeCodedIndex(cols[c].coded, vals[c])
	if !ok {
		return 0
	}
	return v
}

func (t *Tables) appendRow(id TableID, cols []column, v []uint32) {
	switch id {
	case TableModule:
		t.Module = append(t.Module, ModuleRow{uint16(v[0]), v[1], v[2], v[3], v[4]})
	case TableTypeRef:
		t.TypeRef = append(t.TypeRef, TypeRefRow{tok(cols, v, 0), v[1], v[2]})
	case TableTypeDef:
		t.TypeDef = append(t.TypeDef, TypeDefRow{v[0], v[1], v[2], tok(cols, v, 3), v[4], v[5]})
	case TableFieldPtr:
		t.FieldPtr = append(t.FieldPtr, v[0])
	case TableField:
		t.Field = append(t.Field, FieldRow{uint16(v[0]), v[1], v[2]})
	case TableMethodPtr:
		t.MethodPtr = append(t.MethodPtr, v[0])
	case TableMethodDef:
		t.MethodDef = append(t.MethodDef, MethodDefRow{v[0], uint16(v[1]), uint16(v[2]), v[3], v[4], v[5]})
	case TableParamPtr:
		t.ParamPtr = append(t.ParamPtr, v[0])
	case TableParam:
		t.Param = append(t.Param, ParamRow{uint16(v[0]), uint16(v[1]), v[2]})
	case TableInterfaceImpl:
		t.InterfaceImpl = append(t.InterfaceImpl, InterfaceImplRow{v[0], tok(cols, v, 1)})
	case TableMemberRef:
		t.MemberRef = append(t.MemberRef, MemberRefRow{tok(cols, v, 0), v[1], v[2]})
	case TableConstant:
		t.Constant = append(t.Constant, ConstantRow{uint8(v[0]), tok(cols, v, 1), v[2]})
	case TableCustomAttribute:
		t.CustomAttribute = append(t.CustomAttribute, CustomAttributeRow{tok(cols, v, 0), tok(cols, v, 1), v[2]})
	case TableFieldMarshal:
		t.FieldMarshal = append(t.FieldMarshal, FieldMarshalRow{tok(cols, v, 0), v[1]})
	case TableDeclSecurity:
		t.DeclSecurity = append(t.DeclSecurity, DeclSecurityRow{uint16(v[0]), tok(cols, v, 1), v[2]})
	case TableClassLayout:
		t.ClassLayout = append(t.ClassLayout, ClassLayoutRow{uint16(v[0]), v[1], v[2]})
	case TableFieldLayout:
		t.FieldLayout = append(t.FieldLayout, FieldLayoutRow{v[0], v[1]})
	case TableStandAloneSig:
		t.StandAloneSig = append(t.StandAloneSig, StandAloneSigRow{v[0]})
	case TableEventMap:
		t.EventMap = append(t.EventMap, EventMapRow{v[0], v[1]})
	case TableEventPtr:
		t.EventPtr = append(t.EventPtr, v[0])
	case TableEvent:
		t.Event = append(t.Event, EventRow{uint16(v[0]), v[1], tok(cols, v, 2)})
	case TablePropertyMap:
		t.PropertyMap = append(t.PropertyMap, PropertyMapRow{v[0], v[1]})
	case TablePropertyPtr:
		t.PropertyPtr = append(t.PropertyPtr, v[0])
	case TableProperty:
		t.Property = append(t.Property, PropertyRow{uint16(v[0]), v[1], v[2]})
	case TableMethodSemantics:
		t.MethodSemantics = append(t.MethodSemantics, MethodSemanticsRow{uint16(v[0]), v[1], tok(cols, v, 2)})
	case TableMethodImpl:
		t.MethodImpl = append(t.MethodImpl, MethodImplRow{v[0], tok(cols, v, 1), tok(cols, v, 2)})
	case TableModuleRef:
		t.ModuleRef = append(t.ModuleRef, ModuleRefRow{v[0]})
	case TableTypeSpec:
		t.TypeSpec = append(t.TypeSpec, TypeSpecRow{v[0]})
	case TableImplMap:
		t.ImplMap = append(t.ImplMap, ImplMapRow{uint16(v[0]), tok(cols, v, 1), v[2], v[3]})
	case TableFieldRVA:
		t.FieldRVA = append(t.FieldRVA, FieldRVARow{v[0], v[1]})
	case TableAssembly:
		t.Assembly = append(t.Assembly, AssemblyRow{
			HashAlgID:      v[0],
			MajorVersion:   uint16(v[1]),
			MinorVersion:   uint16(v[2]),
			BuildNumber:    uint16(v[3]),
			RevisionNumber: uint16(v[4]),
			Flags:          v[5],
			PublicKey:      v[6],
			Name:           v[7],
			Culture:        v[8],
		})
	case TableAssemblyRef:
		t.AssemblyRef = append(t.AssemblyRef, AssemblyRefRow{
			MajorVersion:     uint16(v[0]),
			MinorVersion:     uint16(v[1]),
			BuildNumber:      uint16(v[2]),
			RevisionNumber:   uint16(v[3]),
			Flags:            v[4],
			PublicKeyOrToken: v[5],
			Name:             v[6],
			Culture:          v[7],
			HashValue:        v[8],
		})
	case TableFile:
		t.File = append(t.File, FileRow{v[0], v[1], v[2]})
	case TableExportedType:
		t.ExportedType = append(t.ExportedType, ExportedTypeRow{v[0], v[1], v[2], v[3], tok(cols, v, 4)})
	case TableManifestResource:
		t.ManifestResource = append(t.ManifestResource, ManifestResourceRow{v[0], v[1], v[2], tok(cols, v, 3)})
	case TableNestedClass:
		t.NestedClass = append(t.NestedClass, NestedClassRow{v[0], v[1]})
	case TableGenericParam:
		t.GenericParam = append(t.GenericParam, GenericParamRow{uint16(v[0]), uint16(v[1]), tok(cols, v, 2), v[3]})
	case TableMethodSpec:
		t.MethodSpec = append(t.MethodSpec, MethodSpecRow{tok(cols, v, 0), v[1]})
	case TableGenericParamConstraint:
		t.GenericParamConstraint = append(t.GenericParamConstraint, GenericParamConstraintRow{v[0], tok(cols, v, 1)})
	default:
		// EncLog, EncMap and the processor/OS tables carry nothing the
		// object model uses; their rows are consumed and dropped.
	}
}
