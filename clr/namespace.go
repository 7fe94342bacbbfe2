package clr

import (
	"iter"
	"strings"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// Namespace is a node of a module's namespace tree. The tree is built at
// load from every TypeDef and ExportedType namespace and is read-only
// afterwards.
type Namespace struct {
	module   *Module
	name     *Name
	fullName *Name
	parent   *Namespace
	children []*Namespace
	types    []tables.Token
}

func (n *Namespace) Name() string           { return n.name.String() }
func (n *Namespace) FullName() string       { return n.fullName.String() }
func (n *Namespace) Key() uint32            { return n.fullName.Key() }
func (n *Namespace) Parent() *Namespace     { return n.parent }
func (n *Namespace) Children() []*Namespace { return n.children }

// TypeTokens returns the TypeDef and ExportedType tokens declared directly
// in the namespace.
func (n *Namespace) TypeTokens() []tables.Token { return n.types }

// Types iterates the type definitions of the namespace.
func (n *Namespace) Types() iter.Seq[*TypeDef] {
	return func(yield func(*TypeDef) bool) {
		for _, tok := range n.types {
			if tok.Table() != tables.TableTypeDef {
				continue
			}
			if td := n.module.TypeDef(tok.RID()); td != nil && !yield(td) {
				return
			}
		}
	}
}

// ExportedTypes iterates the aliases declared in the namespace.
func (n *Namespace) ExportedTypes() iter.Seq[*ExportedType] {
	return func(yield func(*ExportedType) bool) {
		for _, tok := range n.types {
			if tok.Table() != tables.TableExportedType {
				continue
			}
			if et := n.module.ExportedType(tok.RID()); et != nil && !yield(et) {
				return
			}
		}
	}
}

func (n *Namespace) addType(tok tables.Token) {
	n.types = append(n.types, tok)
}

// namespaceFor returns the node of a dotted namespace, creating it and its
// ancestors. Only called while the module loads.
func (m *Module) namespaceFor(fullName string) *Namespace {
	key := m.host.names.GetOrCreate(fullName)
	if ns, ok := m.namespaces[key.Key()]; ok {
		return ns
	}

	var parent *Namespace
	segment := fullName
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		parent = m.namespaceFor(fullName[:i])
		segment = fullName[i+1:]
	} else if fullName != "" {
		parent = m.namespaceFor("")
	}

	ns := &Namespace{
		module:   m,
		name:     m.host.names.GetOrCreate(segment),
		fullName: key,
		parent:   parent,
	}
	if parent != nil {
		parent.children = append(parent.children, ns)
	}
	m.namespaces[key.Key()] = ns
	return ns
}

// GlobalNamespace returns the root of the namespace tree.
func (m *Module) GlobalNamespace() *Namespace {
	return m.namespaces[m.host.names.GetOrCreate("").Key()]
}

// Namespace returns the node of a dotted namespace, or nil.
func (m *Module) Namespace(fullName string) *Namespace {
	n, ok := m.host.names.Lookup(fullName)
	if !ok {
		return nil
	}
	return m.namespaces[n.Key()]
}
