package clr

import (
	"go.uber.org/zap"

	"github.com/skdltmxn/clrmeta-go/internal/mangle"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// TypeRef is a reference to a type by name, scoped to a module, a module
// reference, an assembly reference or an enclosing type reference.
type TypeRef struct {
	module    *Module
	rid       uint32
	scope     tables.Token
	name      *Name
	namespace *Name
	enclosing *TypeRef
	key       uint32

	def lazyValue[*TypeDef]
}

func (m *Module) buildTypeRef(rid uint32) *TypeRef {
	m.noteConstructed(tables.TableTypeRef, rid)
	row := m.tables.TypeRef[rid-1]

	tr := &TypeRef{
		module:    m,
		rid:       rid,
		scope:     row.ResolutionScope,
		name:      m.names.Name(row.Name),
		namespace: m.names.Name(row.Namespace),
	}
	if m.idx.typeRefBroken[rid] {
		return tr
	}

	switch scope := tr.scope; scope.Table() {
	case tables.TableTypeRef:
		if parent := m.idx.typeRefParent[rid]; parent != 0 {
			tr.enclosing = m.TypeRef(parent)
			tr.key = m.host.nestedTypeKey(tr.enclosing.key, tr.name.Key())
		}
	case tables.TableAssemblyRef:
		if ar, ok := tables.At(m.tables.AssemblyRef, scope.RID()); ok {
			tr.key = m.host.topLevelTypeKey(m.host.assemblyNameKey(m.tables.String(ar.Name)), tr.namespace.Key(), tr.name.Key())
		}
	default:
		tr.key = m.host.topLevelTypeKey(m.asmNameKey, tr.namespace.Key(), tr.name.Key())
	}
	return tr
}

func (t *TypeRef) Kind() TypeKind { return TypeKindReference }
func (t *TypeRef) Name() string   { return t.name.String() }

func (t *TypeRef) FullName() string {
	if t.enclosing != nil {
		return mangle.JoinNested(t.enclosing.FullName(), t.Name())
	}
	return mangle.JoinNamespace(t.namespace.String(), t.Name())
}

func (t *TypeRef) Key() uint32                   { return t.key }
func (t *TypeRef) Module() *Module               { return t.module }
func (t *TypeRef) RID() uint32                   { return t.rid }
func (t *TypeRef) Token() tables.Token           { return tables.NewToken(tables.TableTypeRef, t.rid) }
func (t *TypeRef) Namespace() string             { return t.namespace.String() }
func (t *TypeRef) ResolutionScope() tables.Token { return t.scope }

// DeclaringType returns the enclosing reference of a nested reference.
func (t *TypeRef) DeclaringType() *TypeRef { return t.enclosing }

// Assembly returns the identity of the assembly the reference points
// into, following enclosing references.
func (t *TypeRef) Assembly() AssemblyIdentity {
	for t.enclosing != nil {
		t = t.enclosing
	}
	if t.scope.Table() == tables.TableAssemblyRef {
		if ar := t.module.AssemblyRef(t.scope.RID()); ar != nil {
			return ar.Identity()
		}
		return UnknownAssemblyIdentity
	}
	id, _ := t.module.Assembly()
	return id
}

// Definition resolves the reference to its definition, following type
// forwarders. It returns nil when the definition cannot be located.
func (t *TypeRef) Definition() *TypeDef {
	return t.definition(newResolveState())
}

func (t *TypeRef) definition(st *resolveState) *TypeDef {
	if td, ok := t.def.peek(); ok {
		return td
	}
	return t.def.get(func() *TypeDef {
		td := t.module.resolveTypeRef(t, st)
		if td == nil {
			t.module.log.Debug("type reference unresolved",
				zap.Stringer("token", t.Token()),
				zap.String("type", t.FullName()))
		}
		return td
	})
}

// ResolveTypeRefAsDefinition resolves ref, which may belong to any module
// of the host, to its definition.
func (m *Module) ResolveTypeRefAsDefinition(ref *TypeRef) *TypeDef {
	if ref == nil {
		return nil
	}
	return ref.Definition()
}

func (m *Module) resolveTypeRef(t *TypeRef, st *resolveState) *TypeDef {
	if m.idx.typeRefBroken[t.rid] {
		return nil
	}
	if !st.enter(m, t.Token()) {
		m.diag(DiagCycle, t.Token(), "type reference resolution loops")
		return nil
	}
	defer st.leave(m, t.Token())

	nsKey, nameKey := t.namespace.Key(), t.name.Key()
	scope := t.scope
	switch {
	case scope.IsNil():
		// A null scope searches the exported types of this module.
		return definitionOf(m.resolveNamespaceType(nsKey, nameKey, st))

	case scope.Table() == tables.TableModule:
		return definitionOf(m.resolveNamespaceType(nsKey, nameKey, st))

	case scope.Table() == tables.TableModuleRef:
		mr := m.ModuleRef(scope.RID())
		if mr == nil {
			return nil
		}
		target, err := m.SiblingModule(mr.Name())
		if err != nil {
			m.diag(DiagUnresolved, t.Token(), "%v", err)
			return nil
		}
		return target.resolveDefinition(nsKey, nameKey, st)

	case scope.Table() == tables.TableAssemblyRef:
		ar := m.AssemblyRef(scope.RID())
		if ar == nil {
			m.diag(DiagStructural, t.Token(), "resolution scope %s is out of range", scope)
			return nil
		}
		target := ar.Resolve()
		if target == nil {
			return nil
		}
		return target.resolveDefinition(nsKey, nameKey, st)

	case scope.Table() == tables.TableTypeRef:
		if t.enclosing == nil {
			return nil
		}
		parent := t.enclosing.definition(st)
		if parent == nil {
			return nil
		}
		return parent.module.ResolveNestedType(parent, nameKey)
	}

	m.diag(DiagStructural, t.Token(), "unexpected resolution scope %s", scope)
	return nil
}

// resolveDefinition resolves a namespace type of m, following aliases, to
// a definition.
func (m *Module) resolveDefinition(namespaceKey, nameKey uint32, st *resolveState) *TypeDef {
	return definitionOf(m.resolveNamespaceType(namespaceKey, nameKey, st))
}

// resolveState tracks the rows on the current resolution path, so
// references and aliases that loop back end the walk.
type resolveState struct {
	active map[resolveKey]struct{}
}

type resolveKey struct {
	module *Module
	token  tables.Token
}

func newResolveState() *resolveState {
	return &resolveState{active: make(map[resolveKey]struct{})}
}

func (s *resolveState) enter(m *Module, tok tables.Token) bool {
	k := resolveKey{m, tok}
	if _, ok := s.active[k]; ok {
		return false
	}
	s.active[k] = struct{}{}
	return true
}

func (s *resolveState) leave(m *Module, tok tables.Token) {
	delete(s.active, resolveKey{m, tok})
}
