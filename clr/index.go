package clr

import (
	"slices"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// typeNameKey addresses a top-level type by namespace and mangled name.
type typeNameKey struct {
	namespace uint32
	name      uint32
}

// nestedNameKey addresses a nested type by enclosing token and mangled name.
type nestedNameKey struct {
	parent tables.Token
	name   uint32
}

// rowRange is a run of list entries owned by one parent row. Entries index
// the pointer table when one is present, the target table otherwise.
type rowRange struct {
	start uint32
	count uint32
}

// memberList resolves list ranges through an optional pointer table.
type memberList struct {
	ptr    []uint32
	ranges []rowRange // indexed by owner rid
	owner  []uint32   // indexed by target rid
}

func (l *memberList) rows(owner uint32) []uint32 {
	if int(owner) >= len(l.ranges) {
		return nil
	}
	r := l.ranges[owner]
	out := make([]uint32, 0, r.count)
	for i := r.start; i < r.start+r.count; i++ {
		if l.ptr != nil {
			out = append(out, l.ptr[i-1])
		} else {
			out = append(out, i)
		}
	}
	return out
}

func (l *memberList) ownerOf(rid uint32) uint32 {
	if int(rid) >= len(l.owner) {
		return 0
	}
	return l.owner[rid]
}

// indexes are the lookup tables built once at module load, before any
// resolution call.
type indexes struct {
	namespaceTypes map[typeNameKey]tables.Token
	nestedTypes    map[nestedNameKey]tables.Token

	enclosing      []uint32 // TypeDef rid -> enclosing TypeDef rid
	nested         map[uint32][]uint32
	exportedParent []uint32 // ExportedType rid -> enclosing ExportedType rid
	typeRefParent  []uint32 // TypeRef rid -> enclosing TypeRef rid
	typeRefBroken  []bool

	fields     memberList
	methods    memberList
	params     memberList
	events     memberList
	properties memberList

	genericParams map[tables.Token][]uint32
}

func (m *Module) buildIndexes() {
	t := m.tables
	x := &indexes{
		namespaceTypes: make(map[typeNameKey]tables.Token),
		nestedTypes:    make(map[nestedNameKey]tables.Token),
		nested:         make(map[uint32][]uint32),
		genericParams:  make(map[tables.Token][]uint32),
	}
	m.idx = x

	m.indexNesting()
	m.indexTypeRefs()
	m.indexExportedTypes()

	typeCount := uint32(len(t.TypeDef))
	x.fields = m.buildList(tables.TableField, t.FieldPtr, uint32(len(t.Field)), typeCount,
		func(i uint32) uint32 { return t.TypeDef[i-1].FieldList })
	x.methods = m.buildList(tables.TableMethodDef, t.MethodPtr, uint32(len(t.MethodDef)), typeCount,
		func(i uint32) uint32 { return t.TypeDef[i-1].MethodList })
	x.params = m.buildList(tables.TableParam, t.ParamPtr, uint32(len(t.Param)), uint32(len(t.MethodDef)),
		func(i uint32) uint32 { return t.MethodDef[i-1].ParamList })
	x.events = m.buildMapList(tables.TableEvent, t.EventPtr, uint32(len(t.Event)), typeCount,
		len(t.EventMap), func(i int) (uint32, uint32) { return t.EventMap[i].Parent, t.EventMap[i].EventList })
	x.properties = m.buildMapList(tables.TableProperty, t.PropertyPtr, uint32(len(t.Property)), typeCount,
		len(t.PropertyMap), func(i int) (uint32, uint32) { return t.PropertyMap[i].Parent, t.PropertyMap[i].PropertyList })

	for i, row := range t.GenericParam {
		x.genericParams[row.Owner] = append(x.genericParams[row.Owner], uint32(i+1))
	}
	for owner, rids := range x.genericParams {
		slices.SortStableFunc(rids, func(a, b uint32) int {
			return int(t.GenericParam[a-1].Number) - int(t.GenericParam[b-1].Number)
		})
		x.genericParams[owner] = rids
	}
}

// indexNesting validates NestedClass rows, cuts enclosing cycles and fills
// the namespace and nested type tables.
func (m *Module) indexNesting() {
	t, x := m.tables, m.idx
	count := uint32(len(t.TypeDef))
	x.enclosing = make([]uint32, count+1)

	for i, row := range t.NestedClass {
		tok := tables.NewToken(tables.TableNestedClass, uint32(i+1))
		switch {
		case row.NestedClass == 0 || row.NestedClass > count || row.EnclosingClass == 0 || row.EnclosingClass > count:
			m.diag(DiagStructural, tok, "nested class row references a missing type")
		case row.NestedClass == row.EnclosingClass:
			m.diag(DiagCycle, tok, "type is nested in itself")
		case x.enclosing[row.NestedClass] != 0:
			m.diag(DiagStructural, tok, "type has more than one enclosing type")
		default:
			x.enclosing[row.NestedClass] = row.EnclosingClass
		}
	}
	breakParentCycles(x.enclosing, func(rid uint32) {
		m.diag(DiagCycle, tables.NewToken(tables.TableTypeDef, rid), "enclosing type chain loops; nesting dropped")
	})

	for rid := uint32(1); rid <= count; rid++ {
		row := t.TypeDef[rid-1]
		name := m.names.Name(row.Name)
		tok := tables.NewToken(tables.TableTypeDef, rid)

		if parent := x.enclosing[rid]; parent != 0 {
			x.nested[parent] = append(x.nested[parent], rid)
			key := nestedNameKey{tables.NewToken(tables.TableTypeDef, parent), name.Key()}
			if _, dup := x.nestedTypes[key]; dup {
				m.diag(DiagStructural, tok, "duplicate nested type name %q", name)
				continue
			}
			x.nestedTypes[key] = tok
			continue
		}

		ns := m.names.Name(row.Namespace)
		m.namespaceFor(ns.String()).addType(tok)
		key := typeNameKey{ns.Key(), name.Key()}
		if _, dup := x.namespaceTypes[key]; dup {
			m.diag(DiagStructural, tok, "duplicate type name %q", name)
			continue
		}
		x.namespaceTypes[key] = tok
	}
}

func (m *Module) indexTypeRefs() {
	t, x := m.tables, m.idx
	count := uint32(len(t.TypeRef))
	x.typeRefParent = make([]uint32, count+1)
	x.typeRefBroken = make([]bool, count+1)

	for rid := uint32(1); rid <= count; rid++ {
		scope := t.TypeRef[rid-1].ResolutionScope
		if scope.Table() != tables.TableTypeRef || scope.IsNil() {
			continue
		}
		if scope.RID() > count || scope.RID() == rid {
			x.typeRefBroken[rid] = true
			m.diag(DiagStructural, tables.NewToken(tables.TableTypeRef, rid), "invalid enclosing type reference %s", scope)
			continue
		}
		x.typeRefParent[rid] = scope.RID()
	}
	breakParentCycles(x.typeRefParent, func(rid uint32) {
		x.typeRefBroken[rid] = true
		m.diag(DiagCycle, tables.NewToken(tables.TableTypeRef, rid), "type reference scope chain loops")
	})
}

func (m *Module) indexExportedTypes() {
	t, x := m.tables, m.idx
	count := uint32(len(t.ExportedType))
	x.exportedParent = make([]uint32, count+1)

	for rid := uint32(1); rid <= count; rid++ {
		impl := t.ExportedType[rid-1].Implementation
		if impl.Table() != tables.TableExportedType {
			continue
		}
		if impl.RID() == 0 || impl.RID() > count || impl.RID() == rid {
			m.diag(DiagStructural, tables.NewToken(tables.TableExportedType, rid), "invalid enclosing exported type %s", impl)
			continue
		}
		x.exportedParent[rid] = impl.RID()
	}
	breakParentCycles(x.exportedParent, func(rid uint32) {
		m.diag(DiagCycle, tables.NewToken(tables.TableExportedType, rid), "exported type nesting loops")
	})

	for rid := uint32(1); rid <= count; rid++ {
		row := t.ExportedType[rid-1]
		name := m.names.Name(row.Name)
		tok := tables.NewToken(tables.TableExportedType, rid)

		if parent := x.exportedParent[rid]; parent != 0 {
			key := nestedNameKey{tables.NewToken(tables.TableExportedType, parent), name.Key()}
			if _, dup := x.nestedTypes[key]; !dup {
				x.nestedTypes[key] = tok
			}
			continue
		}
		if row.Implementation.Table() == tables.TableExportedType {
			// Nesting was cut; the row is unreachable by name.
			continue
		}

		ns := m.names.Name(row.Namespace)
		m.namespaceFor(ns.String()).addType(tok)
		key := typeNameKey{ns.Key(), name.Key()}
		if _, dup := x.namespaceTypes[key]; !dup {
			x.namespaceTypes[key] = tok
		}
	}
}

// buildList computes list ranges for a parent table whose rows carry a
// start index into a child list.
func (m *Module) buildList(child tables.TableID, ptr []uint32, childCount, parentCount uint32, start func(uint32) uint32) memberList {
	entries := childCount
	if ptr != nil {
		entries = uint32(len(ptr))
	}
	l := memberList{
		ptr:    ptr,
		ranges: make([]rowRange, parentCount+1),
		owner:  make([]uint32, childCount+1),
	}

	for p := uint32(1); p <= parentCount; p++ {
		lo := clampStart(start(p), entries)
		hi := entries + 1
		if p < parentCount {
			hi = clampStart(start(p+1), entries)
		}
		if hi < lo {
			m.diag(DiagStructural, tables.NewToken(child, lo), "%s list runs backwards", child)
			hi = lo
		}
		l.ranges[p] = rowRange{lo, hi - lo}
	}
	m.fillOwners(&l, child, parentCount)
	return l
}

// buildMapList computes list ranges from an EventMap or PropertyMap table.
func (m *Module) buildMapList(child tables.TableID, ptr []uint32, childCount, parentCount uint32, mapRows int, row func(int) (parent, start uint32)) memberList {
	entries := childCount
	if ptr != nil {
		entries = uint32(len(ptr))
	}
	l := memberList{
		ptr:    ptr,
		ranges: make([]rowRange, parentCount+1),
		owner:  make([]uint32, childCount+1),
	}

	for i := 0; i < mapRows; i++ {
		parent, start := row(i)
		lo := clampStart(start, entries)
		hi := entries + 1
		if i+1 < mapRows {
			_, next := row(i + 1)
			hi = clampStart(next, entries)
		}
		if parent == 0 || parent > parentCount || hi < lo {
			m.diag(DiagStructural, tables.NewToken(child, lo), "invalid %s map row %d", child, i+1)
			continue
		}
		l.ranges[parent] = rowRange{lo, hi - lo}
	}
	m.fillOwners(&l, child, parentCount)
	return l
}

func (m *Module) fillOwners(l *memberList, child tables.TableID, parentCount uint32) {
	for p := uint32(1); p <= parentCount; p++ {
		for _, rid := range l.rows(p) {
			if rid == 0 || int(rid) >= len(l.owner) {
				m.diag(DiagStructural, tables.NewToken(child, rid), "pointer table references a missing row")
				continue
			}
			if l.owner[rid] == 0 {
				l.owner[rid] = p
			}
		}
	}
}

func clampStart(v, entries uint32) uint32 {
	if v == 0 {
		return 1
	}
	if v > entries+1 {
		return entries + 1
	}
	return v
}

// breakParentCycles cuts every parent link that closes a cycle. parent is
// indexed by rid and 0 means no parent; cut is called for each row whose
// link was removed.
func breakParentCycles(parent []uint32, cut func(rid uint32)) {
	const (
		visiting = iota + 1
		done
	)
	state := make([]uint8, len(parent))
	var path []uint32

	for start := 1; start < len(parent); start++ {
		path = path[:0]
		for cur := uint32(start); cur != 0 && state[cur] == 0; {
			state[cur] = visiting
			path = append(path, cur)
			next := parent[cur]
			if next != 0 && state[next] == visiting {
				parent[cur] = 0
				cut(cur)
				break
			}
			cur = next
		}
		for _, rid := range path {
			state[rid] = done
		}
	}
}
