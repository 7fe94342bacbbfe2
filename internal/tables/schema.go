package tables

type columnKind uint8

const (
	colU16 columnKind = iota
	colU32
	colString
	colGUID
	colBlob
	colTable
	colCoded
)

type column struct {
	kind  columnKind
	table TableID
	coded CodedIndex
}

var (
	u16   = column{kind: colU16}
	u32   = column{kind: colU32}
	str   = column{kind: colString}
	guid  = column{kind: colGUID}
	blob  = column{kind: colBlob}
	idx   = func(t TableID) column { return column{kind: colTable, table: t} }
	coded = func(c CodedIndex) column { return column{kind: colCoded, coded: c} }
)

// schemas lists the column layout of every table, in ECMA-335 II.22 order.
var schemas = [MaxTable + 1][]column{
	TableModule:                 {u16, str, guid, guid, guid},
	TableTypeRef:                {coded(ResolutionScope), str, str},
	TableTypeDef:                {u32, str, str, coded(TypeDefOrRef), idx(TableField), idx(TableMethodDef)},
	TableFieldPtr:               {idx(TableField)},
	TableField:                  {u16, str, blob},
	TableMethodPtr:              {idx(TableMethodDef)},
	TableMethodDef:              {u32, u16, u16, str, blob, idx(TableParam)},
	TableParamPtr:               {idx(TableParam)},
	TableParam:                  {u16, u16, str},
	TableInterfaceImpl:          {idx(TableTypeDef), coded(TypeDefOrRef)},
	TableMemberRef:              {coded(MemberRefParent), str, blob},
	TableConstant:               {u16, coded(HasConstant), blob},
	TableCustomAttribute:        {coded(HasCustomAttribute), coded(CustomAttributeType), blob},
	TableFieldMarshal:           {coded(HasFieldMarshal), blob},
	TableDeclSecurity:           {u16, coded(HasDeclSecurity), blob},
	TableClassLayout:            {u16, u32, idx(TableTypeDef)},
	TableFieldLayout:            {u32, idx(TableField)},
	TableStandAloneSig:          {blob},
	TableEventMap:               {idx(TableTypeDef), idx(TableEvent)},
	TableEventPtr:               {idx(TableEvent)},
	TableEvent:                  {u16, str, coded(TypeDefOrRef)},
	TablePropertyMap:            {idx(TableTypeDef), idx(TableProperty)},
	TablePropertyPtr:            {idx(TableProperty)},
	TableProperty:               {u16, str, blob},
	TableMethodSemantics:        {u16, idx(TableMethodDef), coded(HasSemantics)},
	TableMethodImpl:             {idx(TableTypeDef), coded(MethodDefOrRef), coded(MethodDefOrRef)},
	TableModuleRef:              {str},
	TableTypeSpec:               {blob},
	TableImplMap:                {u16, coded(MemberForwarded), str, idx(TableModuleRef)},
	TableFieldRVA:               {u32, idx(TableField)},
	TableEncLog:                 {u32, u32},
	TableEncMap:                 {u32},
	TableAssembly:               {u32, u16, u16, u16, u16, u32, blob, str, str},
	TableAssemblyProcessor:      {u32},
	TableAssemblyOS:             {u32, u32, u32},
	TableAssemblyRef:            {u16, u16, u16, u16, u32, blob, str, str, blob},
	TableAssemblyRefProcessor:   {u32, idx(TableAssemblyRef)},
	TableAssemblyRefOS:          {u32, u32, u32, idx(TableAssemblyRef)},
	TableFile:                   {u32, str, blob},
	TableExportedType:           {u32, u32, str, str, coded(Implementation)},
	TableManifestResource:       {u32, u32, str, coded(Implementation)},
	TableNestedClass:            {idx(TableTypeDef), idx(TableTypeDef)},
	TableGenericParam:           {u16, u16, coded(TypeOrMethodDef), str},
	TableMethodSpec:             {coded(MethodDefOrRef), blob},
	TableGenericParamConstraint: {idx(TableGenericParam), coded(TypeDefOrRef)},
}

// layout computes column widths from row counts and heap size flags.
type layout struct {
	rows       *[64]uint32
	stringSize int
	guidSize   int
	blobSize   int
}

func newLayout(h *Header) layout {
	l := layout{rows: &h.RowCounts, stringSize: 2, guidSize: 2, blobSize: 2}
	if h.HeapSizes&0x01 != 0 {
		l.stringSize = 4
	}
	if h.HeapSizes&0x02 != 0 {
		l.guidSize = 4
	}
	if h.HeapSizes&0x04 != 0 {
		l.blobSize = 4
	}
	return l
}

func (l layout) width(c column) int {
	switch c.kind {
	case colU16:
		return 2
	case colU32:
		return 4
	case colString:
		return l.stringSize
	case colGUID:
		return l.guidSize
	case colBlob:
		return l.blobSize
	case colTable:
		if l.rows[c.table] < 1<<16 {
			return 2
		}
		return 4
	case colCoded:
		info := codedIndexes[c.coded]
		var maxRows uint32
		for _, t := range info.tables {
			if t != TableNone && l.rows[t] > maxRows {
				maxRows = l.rows[t]
			}
		}
		if maxRows < 1<<(16-info.bits) {
			return 2
		}
		return 4
	}
	return 0
}

func (l layout) rowSize(id TableID) int {
	size := 0
	for _, c := range schemas[id] {
		size += l.width(c)
	}
	return size
}
