package clr

import (
	"fmt"
	"slices"

	"github.com/skdltmxn/clrmeta-go/internal/heap"
	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// sideTables index the rows that attach to an owner token instead of
// having a list range of their own. Built once on first use.
type sideTables struct {
	constants       map[tables.Token]uint32
	customAttrs     map[tables.Token][]uint32
	security        map[tables.Token][]uint32
	marshal         map[tables.Token]uint32
	implMaps        map[tables.Token]tables.ImplMapRow
	semantics       map[tables.Token][]tables.MethodSemanticsRow
	methodSemantics map[uint32]uint16
	interfaces      map[uint32][]tables.Token
	constraints     map[uint32][]tables.Token
	methodImpls     map[uint32][]tables.MethodImplRow
	classLayout     map[uint32]tables.ClassLayoutRow
	fieldLayout     map[uint32]uint32
	fieldRVA        map[uint32]uint32
}

func (m *Module) sideTables() *sideTables {
	m.sideOnce.Do(func() {
		m.side = m.buildSideTables()
	})
	return m.side
}

func (m *Module) buildSideTables() *sideTables {
	t := m.tables
	s := &sideTables{
		constants:       make(map[tables.Token]uint32, len(t.Constant)),
		customAttrs:     make(map[tables.Token][]uint32),
		security:        make(map[tables.Token][]uint32),
		marshal:         make(map[tables.Token]uint32, len(t.FieldMarshal)),
		implMaps:        make(map[tables.Token]tables.ImplMapRow, len(t.ImplMap)),
		semantics:       make(map[tables.Token][]tables.MethodSemanticsRow),
		methodSemantics: make(map[uint32]uint16, len(t.MethodSemantics)),
		interfaces:      make(map[uint32][]tables.Token),
		constraints:     make(map[uint32][]tables.Token),
		methodImpls:     make(map[uint32][]tables.MethodImplRow),
		classLayout:     make(map[uint32]tables.ClassLayoutRow, len(t.ClassLayout)),
		fieldLayout:     make(map[uint32]uint32, len(t.FieldLayout)),
		fieldRVA:        make(map[uint32]uint32, len(t.FieldRVA)),
	}

	for i, row := range t.Constant {
		if _, dup := s.constants[row.Parent]; !dup {
			s.constants[row.Parent] = uint32(i + 1)
		}
	}
	for i, row := range t.CustomAttribute {
		s.customAttrs[row.Parent] = append(s.customAttrs[row.Parent], uint32(i+1))
	}
	for i, row := range t.DeclSecurity {
		s.security[row.Parent] = append(s.security[row.Parent], uint32(i+1))
	}
	for _, row := range t.FieldMarshal {
		s.marshal[row.Parent] = row.NativeType
	}
	for _, row := range t.ImplMap {
		s.implMaps[row.MemberForwarded] = row
	}
	for _, row := range t.MethodSemantics {
		s.semantics[row.Association] = append(s.semantics[row.Association], row)
		s.methodSemantics[row.Method] |= row.Semantics
	}
	for _, row := range t.InterfaceImpl {
		s.interfaces[row.Class] = append(s.interfaces[row.Class], row.Interface)
	}
	for _, row := range t.GenericParamConstraint {
		s.constraints[row.Owner] = append(s.constraints[row.Owner], row.Constraint)
	}
	for _, row := range t.MethodImpl {
		s.methodImpls[row.Class] = append(s.methodImpls[row.Class], row)
	}
	for _, row := range t.ClassLayout {
		s.classLayout[row.Parent] = row
	}
	for _, row := range t.FieldLayout {
		s.fieldLayout[row.Field] = row.Offset
	}
	for _, row := range t.FieldRVA {
		s.fieldRVA[row.Field] = row.RVA
	}
	return s
}

// CustomAttributes returns the attributes applied to the row owner.
func (m *Module) CustomAttributes(owner tables.Token) []*CustomAttribute {
	rids := m.sideTables().customAttrs[owner]
	out := make([]*CustomAttribute, 0, len(rids))
	for _, rid := range rids {
		if ca := m.CustomAttribute(rid); ca != nil {
			out = append(out, ca)
		}
	}
	return out
}

// SecurityAttributes returns the declarative security records of owner.
func (m *Module) SecurityAttributes(owner tables.Token) []*SecurityAttribute {
	rids := m.sideTables().security[owner]
	out := make([]*SecurityAttribute, 0, len(rids))
	for _, rid := range rids {
		if sa := m.SecurityAttribute(rid); sa != nil {
			out = append(out, sa)
		}
	}
	return out
}

// Constant is a default value from the Constant table. Value holds a Go
// value matching Type: bool, uint16 for Char, the sized integer and float
// types, string, or nil for a null reference.
type Constant struct {
	Type  sig.ElementType
	Value any
}

func (c Constant) String() string {
	if c.Value == nil {
		return "null"
	}
	if s, ok := c.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(c.Value)
}

func (m *Module) constant(owner tables.Token) (Constant, bool) {
	rid, ok := m.sideTables().constants[owner]
	if !ok {
		return Constant{}, false
	}
	row := m.tables.Constant[rid-1]
	tok := tables.NewToken(tables.TableConstant, rid)
	blob, ok := m.tables.Blob(row.Value)
	if !ok {
		m.diag(DiagStructural, tok, "constant blob is missing")
		return Constant{}, false
	}
	v, err := decodeConstant(sig.ElementType(row.Type), blob)
	if err != nil {
		m.diag(DiagDecode, tok, "%v", err)
		return Constant{}, false
	}
	return Constant{Type: sig.ElementType(row.Type), Value: v}, true
}

func decodeConstant(e sig.ElementType, blob []byte) (any, error) {
	if e == sig.String {
		return heap.DecodeUTF16(blob)
	}
	if e == sig.Class {
		return nil, nil
	}
	r := stream.NewReader(blob)
	v, err := readPrimitive(r, e)
	if err != nil {
		return nil, fmt.Errorf("constant of type 0x%02x: %w", uint8(e), err)
	}
	return v, nil
}

// readPrimitive reads a fixed-size primitive value.
func readPrimitive(r *stream.Reader, e sig.ElementType) (any, error) {
	switch e {
	case sig.Boolean:
		v, err := r.ReadU8()
		return v != 0, err
	case sig.Char, sig.U2:
		return r.ReadU16()
	case sig.I1:
		v, err := r.ReadU8()
		return int8(v), err
	case sig.U1:
		return r.ReadU8()
	case sig.I2:
		v, err := r.ReadU16()
		return int16(v), err
	case sig.I4:
		v, err := r.ReadU32()
		return int32(v), err
	case sig.U4:
		return r.ReadU32()
	case sig.I8:
		v, err := r.ReadU64()
		return int64(v), err
	case sig.U8:
		return r.ReadU64()
	case sig.R4:
		return r.ReadFloat32()
	case sig.R8:
		return r.ReadFloat64()
	}
	return nil, fmt.Errorf("%w: element type 0x%02x is not a primitive value", errInvalidSignature, uint8(e))
}

func (m *Module) marshal(owner tables.Token) ([]byte, bool) {
	off, ok := m.sideTables().marshal[owner]
	if !ok {
		return nil, false
	}
	return m.tables.Blob(off)
}

// ImplMap describes the native import of a P/Invoke method.
type ImplMap struct {
	Flags      uint16
	ImportName string
	Scope      *ModuleRef
}

func (m *Module) implMap(member tables.Token) (ImplMap, bool) {
	row, ok := m.sideTables().implMaps[member]
	if !ok {
		return ImplMap{}, false
	}
	return ImplMap{
		Flags:      row.MappingFlags,
		ImportName: m.tables.String(row.ImportName),
		Scope:      m.ModuleRef(row.ImportScope),
	}, true
}

// AttributeOwners returns every token that carries custom attributes, in
// row order of their first attribute.
func (m *Module) AttributeOwners() []tables.Token {
	s := m.sideTables()
	owners := make([]tables.Token, 0, len(s.customAttrs))
	for owner := range s.customAttrs {
		owners = append(owners, owner)
	}
	slices.SortFunc(owners, func(a, b tables.Token) int {
		return int(s.customAttrs[a][0]) - int(s.customAttrs[b][0])
	})
	return owners
}
