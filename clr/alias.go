package clr

import (
	"github.com/skdltmxn/clrmeta-go/internal/mangle"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// ExportedType is an alias row of the manifest: a type defined in another
// module of the assembly, or forwarded to another assembly.
type ExportedType struct {
	module    *Module
	rid       uint32
	flags     uint32
	typeDefID uint32
	name      *Name
	namespace *Name
	impl      tables.Token
	enclosing *ExportedType

	target lazyValue[Type]
}

func (m *Module) buildExportedType(rid uint32) *ExportedType {
	m.noteConstructed(tables.TableExportedType, rid)
	row := m.tables.ExportedType[rid-1]
	et := &ExportedType{
		module:    m,
		rid:       rid,
		flags:     row.Flags,
		typeDefID: row.TypeDefID,
		name:      m.names.Name(row.Name),
		namespace: m.names.Name(row.Namespace),
		impl:      row.Implementation,
	}
	if parent := m.idx.exportedParent[rid]; parent != 0 {
		et.enclosing = m.ExportedType(parent)
	}
	return et
}

func (t *ExportedType) Name() string                 { return t.name.String() }
func (t *ExportedType) Namespace() string            { return t.namespace.String() }
func (t *ExportedType) RID() uint32                  { return t.rid }
func (t *ExportedType) Token() tables.Token          { return tables.NewToken(tables.TableExportedType, t.rid) }
func (t *ExportedType) Flags() uint32                { return t.flags }
func (t *ExportedType) TypeDefID() uint32            { return t.typeDefID }
func (t *ExportedType) Implementation() tables.Token { return t.impl }
func (t *ExportedType) DeclaringType() *ExportedType { return t.enclosing }
func (t *ExportedType) IsForwarder() bool            { return t.flags&TypeForwarder != 0 }

func (t *ExportedType) FullName() string {
	if t.enclosing != nil {
		return mangle.JoinNested(t.enclosing.FullName(), t.Name())
	}
	return mangle.JoinNamespace(t.Namespace(), t.Name())
}

// Target returns the aliased type: its definition when the alias chain
// resolves, a structural UnresolvedType otherwise.
func (t *ExportedType) Target() Type {
	return t.module.ReferenceToAliasedType(t.rid)
}

// Definition returns the aliased definition, or nil.
func (t *ExportedType) Definition() *TypeDef {
	return definitionOf(t.Target())
}

// ReferenceToAliasedType walks the alias of ExportedType row rid. The
// result is cached per row.
func (m *Module) ReferenceToAliasedType(rid uint32) Type {
	return m.referenceToAliasedType(rid, newResolveState())
}

// ResolveAlias returns the definition behind ExportedType row rid, or nil.
func (m *Module) ResolveAlias(rid uint32) *TypeDef {
	return definitionOf(m.ReferenceToAliasedType(rid))
}

func (m *Module) referenceToAliasedType(rid uint32, st *resolveState) Type {
	et := m.ExportedType(rid)
	if et == nil {
		return nil
	}
	return et.resolve(st)
}

// resolve returns nil when the alias is already on the resolution path.
func (t *ExportedType) resolve(st *resolveState) Type {
	if v, ok := t.target.peek(); ok {
		return v
	}
	m := t.module
	if !st.enter(m, t.Token()) {
		m.diag(DiagCycle, t.Token(), "exported type %s forwards to itself", t.FullName())
		return nil
	}
	defer st.leave(m, t.Token())

	return t.target.get(func() Type {
		if m.host.opts.DisableAliasResolution {
			return m.structuralAlias(t)
		}
		if td := m.walkAlias(t, st); td != nil {
			return td
		}
		return m.structuralAlias(t)
	})
}

func (m *Module) walkAlias(t *ExportedType, st *resolveState) Type {
	nsKey, nameKey := t.namespace.Key(), t.name.Key()

	switch impl := t.impl; impl.Table() {
	case tables.TableFile:
		row, ok := tables.At(m.tables.File, impl.RID())
		if !ok {
			m.diag(DiagStructural, t.Token(), "implementation %s is out of range", impl)
			return nil
		}
		sibling, err := m.SiblingModule(m.tables.String(row.Name))
		if err != nil {
			m.diag(DiagUnresolved, t.Token(), "%v", err)
			return nil
		}
		if td := sibling.resolveDefinition(nsKey, nameKey, st); td != nil {
			return td
		}

	case tables.TableExportedType:
		if t.enclosing == nil {
			return nil
		}
		if parent, ok := t.enclosing.resolve(st).(*TypeDef); ok {
			if nt := parent.FindNestedType(t.Name()); nt != nil {
				return nt
			}
		}

	case tables.TableAssemblyRef:
		ar := m.AssemblyRef(impl.RID())
		if ar == nil {
			m.diag(DiagStructural, t.Token(), "implementation %s is out of range", impl)
			return nil
		}
		target := ar.Resolve()
		if target == nil {
			return nil
		}
		found := target.resolveNamespaceType(nsKey, nameKey, st)
		if td := definitionOf(found); td != nil {
			return td
		}
		// A deeper hop of the chain knows the final scope better.
		if u, ok := found.(*UnresolvedType); ok {
			return u
		}

	default:
		m.diag(DiagStructural, t.Token(), "unexpected implementation %s", impl)
	}
	return nil
}

// structuralAlias builds the non-resolving reference an alias stands for.
func (m *Module) structuralAlias(t *ExportedType) Type {
	if t.enclosing != nil {
		enclosing := m.structuralAlias(t.enclosing)
		key := m.host.nestedTypeKey(enclosing.Key(), t.name.Key())
		return m.intern(key, func() Type {
			u := &UnresolvedType{name: t.Name(), enclosing: enclosing, key: key}
			if eu, ok := enclosing.(*UnresolvedType); ok {
				u.assembly = eu.assembly
			}
			return u
		})
	}

	var id AssemblyIdentity
	asmKey := m.asmNameKey
	if t.impl.Table() == tables.TableAssemblyRef {
		asmKey = 0
		if ar := m.AssemblyRef(t.impl.RID()); ar != nil {
			id = ar.Identity()
			asmKey = m.host.assemblyNameKey(id.Name)
		}
	} else {
		id, _ = m.Assembly()
	}

	key := m.host.topLevelTypeKey(asmKey, t.namespace.Key(), t.name.Key())
	return m.intern(key, func() Type {
		return &UnresolvedType{
			assembly:  id,
			namespace: t.Namespace(),
			name:      t.Name(),
			key:       key,
		}
	})
}
