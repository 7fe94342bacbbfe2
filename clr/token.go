package clr

import (
	"fmt"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// ResolveToken returns the object a metadata token addresses: a row
// object, the Module itself for Module and Assembly tokens, or the literal
// for #US tokens. Tokens of tables without an object model and row ids
// outside their table yield ErrTokenOutOfRange.
func (m *Module) ResolveToken(tok tables.Token) (any, error) {
	rid := tok.RID()
	var (
		v  any
		ok bool
	)
	switch tok.Table() {
	case tables.TableModule:
		v, ok = m, rid == 1
	case tables.TableAssembly:
		v, ok = m, rid == 1 && m.IsAssembly()
	case tables.TableTypeDef:
		v, ok = fromSlot(m.typeDefs, rid)
	case tables.TableTypeRef:
		v, ok = fromSlot(m.typeRefs, rid)
	case tables.TableTypeSpec:
		v, ok = fromSlot(m.typeSpecs, rid)
	case tables.TableField:
		v, ok = fromSlot(m.fields, rid)
	case tables.TableMethodDef:
		v, ok = fromSlot(m.methods, rid)
	case tables.TableParam:
		v, ok = fromSlot(m.params, rid)
	case tables.TableEvent:
		v, ok = fromSlot(m.events, rid)
	case tables.TableProperty:
		v, ok = fromSlot(m.properties, rid)
	case tables.TableGenericParam:
		v, ok = fromSlot(m.genericParams, rid)
	case tables.TableMemberRef:
		v, ok = fromSlot(m.memberRefs, rid)
	case tables.TableMethodSpec:
		v, ok = fromSlot(m.methodSpecs, rid)
	case tables.TableExportedType:
		v, ok = fromSlot(m.exportedTypes, rid)
	case tables.TableCustomAttribute:
		v, ok = fromSlot(m.customAttributes, rid)
	case tables.TableDeclSecurity:
		v, ok = fromSlot(m.securityAttrs, rid)
	case tables.TableAssemblyRef:
		v, ok = fromSlot(m.assemblyRefs, rid)
	case tables.TableModuleRef:
		v, ok = fromSlot(m.moduleRefs, rid)
	case tables.TableStandAloneSig:
		v, ok = fromSlot(m.standAloneSigs, rid)
	case tables.TableFile:
		if f := m.File(rid); f != nil {
			v, ok = f, true
		}
	case tables.TableManifestResource:
		if r := m.Resource(rid); r != nil {
			v, ok = r, true
		}
	case tables.TableUserString:
		return m.UserString(tok)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenOutOfRange, tok)
	}
	return v, nil
}

func fromSlot[T any](s *slotTable[T], rid uint32) (any, bool) {
	v, ok := s.get(rid)
	if !ok {
		return nil, false
	}
	return v, true
}
