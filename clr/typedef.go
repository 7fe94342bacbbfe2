package clr

import (
	"sync"

	"github.com/skdltmxn/clrmeta-go/internal/mangle"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// TypeAttributes flags.
const (
	TypeVisibilityMask    uint32 = 0x00000007
	TypeNotPublic         uint32 = 0x00000000
	TypePublic            uint32 = 0x00000001
	TypeNestedPublic      uint32 = 0x00000002
	TypeNestedPrivate     uint32 = 0x00000003
	TypeNestedFamily      uint32 = 0x00000004
	TypeNestedAssembly    uint32 = 0x00000005
	TypeNestedFamANDAssem uint32 = 0x00000006
	TypeNestedFamORAssem  uint32 = 0x00000007
	TypeLayoutMask        uint32 = 0x00000018
	TypeSequentialLayout  uint32 = 0x00000008
	TypeExplicitLayout    uint32 = 0x00000010
	TypeInterface         uint32 = 0x00000020
	TypeAbstract          uint32 = 0x00000080
	TypeSealed            uint32 = 0x00000100
	TypeSpecialName       uint32 = 0x00000400
	TypeImport            uint32 = 0x00001000
	TypeSerializable      uint32 = 0x00002000
	TypeWindowsRuntime    uint32 = 0x00004000
	TypeStringFormatMask  uint32 = 0x00030000
	TypeBeforeFieldInit   uint32 = 0x00100000
	TypeForwarder         uint32 = 0x00200000
	TypeRTSpecialName     uint32 = 0x00000800
	TypeHasSecurity       uint32 = 0x00040000
	TypeCustomFormatMask  uint32 = 0x00C00000
)

// TypeDef is a type defined by a TypeDef row.
type TypeDef struct {
	module    *Module
	rid       uint32
	flags     uint32
	name      *Name
	namespace *Name
	extends   tables.Token
	enclosing *TypeDef
	key       uint32

	base          lazyValue[Type]
	interfaces    lazyValue[[]Type]
	genericParams lazyValue[[]*GenericParam]

	membersOnce sync.Once
	nestedTypes []*TypeDef
	fields      []*Field
	methods     []*Method
	events      []*Event
	properties  []*Property
}

func (m *Module) buildTypeDef(rid uint32) *TypeDef {
	m.noteConstructed(tables.TableTypeDef, rid)
	row := m.tables.TypeDef[rid-1]

	td := &TypeDef{
		module:    m,
		rid:       rid,
		flags:     row.Flags,
		name:      m.names.Name(row.Name),
		namespace: m.names.Name(row.Namespace),
		extends:   row.Extends,
	}
	if parent := m.idx.enclosing[rid]; parent != 0 {
		td.enclosing = m.TypeDef(parent)
		td.key = m.host.nestedTypeKey(td.enclosing.key, td.name.Key())
	} else {
		td.key = m.host.topLevelTypeKey(m.asmNameKey, td.namespace.Key(), td.name.Key())
	}
	return td
}

func (t *TypeDef) Kind() TypeKind { return TypeKindDefinition }

// Name returns the mangled simple name, e.g. "List`1".
func (t *TypeDef) Name() string { return t.name.String() }

func (t *TypeDef) FullName() string {
	if t.enclosing != nil {
		return mangle.JoinNested(t.enclosing.FullName(), t.Name())
	}
	return mangle.JoinNamespace(t.namespace.String(), t.Name())
}

func (t *TypeDef) Key() uint32          { return t.key }
func (t *TypeDef) Module() *Module      { return t.module }
func (t *TypeDef) RID() uint32          { return t.rid }
func (t *TypeDef) Token() tables.Token  { return tables.NewToken(tables.TableTypeDef, t.rid) }
func (t *TypeDef) Flags() uint32        { return t.flags }
func (t *TypeDef) Namespace() string    { return t.namespace.String() }
func (t *TypeDef) NameKey() uint32      { return t.name.Key() }
func (t *TypeDef) NamespaceKey() uint32 { return t.namespace.Key() }

// DeclaringType returns the enclosing type of a nested type, or nil.
func (t *TypeDef) DeclaringType() *TypeDef { return t.enclosing }

func (t *TypeDef) IsNested() bool    { return t.enclosing != nil }
func (t *TypeDef) IsInterface() bool { return t.flags&TypeInterface != 0 }
func (t *TypeDef) IsAbstract() bool  { return t.flags&TypeAbstract != 0 }
func (t *TypeDef) IsSealed() bool    { return t.flags&TypeSealed != 0 }

// IsPublic reports whether the type is visible outside its assembly,
// counting nested public types of public types.
func (t *TypeDef) IsPublic() bool {
	switch t.flags & TypeVisibilityMask {
	case TypePublic:
		return t.enclosing == nil
	case TypeNestedPublic:
		return t.enclosing != nil && t.enclosing.IsPublic()
	}
	return false
}

// UnmangledName returns the name without its arity suffix.
func (t *TypeDef) UnmangledName() string {
	return mangle.Unmangle(t.Name(), len(t.GenericParams()))
}

// BaseType returns the type named by the extends column, or nil.
func (t *TypeDef) BaseType() Type {
	return t.base.get(func() Type {
		if t.extends.IsNil() {
			return nil
		}
		return t.decoder(nil).typeFromToken(t.extends)
	})
}

// IsEnum reports whether the type derives from System.Enum.
func (t *TypeDef) IsEnum() bool {
	return isNamed(t.BaseType(), "System", "Enum")
}

// IsValueType reports whether the type derives from System.ValueType or
// System.Enum. The two base types themselves are reference types.
func (t *TypeDef) IsValueType() bool {
	if t.enclosing == nil && t.Namespace() == "System" && t.Name() == "Enum" {
		return false
	}
	base := t.BaseType()
	return isNamed(base, "System", "ValueType") || isNamed(base, "System", "Enum")
}

// IsDelegate reports whether the type derives from System.MulticastDelegate.
func (t *TypeDef) IsDelegate() bool {
	return isNamed(t.BaseType(), "System", "MulticastDelegate")
}

func isNamed(t Type, namespace, name string) bool {
	switch v := t.(type) {
	case *TypeDef:
		return v.enclosing == nil && v.Namespace() == namespace && v.Name() == name
	case *TypeRef:
		return v.enclosing == nil && v.Namespace() == namespace && v.Name() == name
	}
	return false
}

// EnumUnderlyingType returns the type of the instance field of an enum.
func (t *TypeDef) EnumUnderlyingType() Type {
	if !t.IsEnum() {
		return nil
	}
	for _, f := range t.Fields() {
		if !f.IsStatic() {
			return f.Type()
		}
	}
	return nil
}

// Interfaces returns the directly implemented interfaces.
func (t *TypeDef) Interfaces() []Type {
	return t.interfaces.get(func() []Type {
		toks := t.module.sideTables().interfaces[t.rid]
		out := make([]Type, 0, len(toks))
		for _, tok := range toks {
			out = append(out, orDummy(t.decoder(nil).typeFromToken(tok)))
		}
		return out
	})
}

// GenericParams returns the type's generic parameters ordered by number.
func (t *TypeDef) GenericParams() []*GenericParam {
	return t.genericParams.get(func() []*GenericParam {
		return t.module.genericParamsOf(t.Token())
	})
}

// IsGeneric reports whether the type declares generic parameters.
func (t *TypeDef) IsGeneric() bool { return len(t.GenericParams()) > 0 }

// context returns the decoding context binding the type's own parameters.
func (t *TypeDef) context() *sigContext {
	return &sigContext{definition: true, typeParams: t.GenericParams()}
}

func (t *TypeDef) decoder(blob []byte) *decoder {
	return t.module.newDecoder(blob, t.context())
}

// loadMembers populates nested types and members in one pass over the row
// ranges recorded at load.
func (t *TypeDef) loadMembers() {
	t.membersOnce.Do(func() {
		m, x := t.module, t.module.idx
		for _, rid := range x.nested[t.rid] {
			if nt := m.TypeDef(rid); nt != nil {
				t.nestedTypes = append(t.nestedTypes, nt)
			}
		}
		for _, rid := range x.fields.rows(t.rid) {
			if f := m.Field(rid); f != nil {
				t.fields = append(t.fields, f)
			}
		}
		for _, rid := range x.methods.rows(t.rid) {
			if mm := m.Method(rid); mm != nil {
				t.methods = append(t.methods, mm)
			}
		}
		for _, rid := range x.events.rows(t.rid) {
			if e := m.Event(rid); e != nil {
				t.events = append(t.events, e)
			}
		}
		for _, rid := range x.properties.rows(t.rid) {
			if p := m.Property(rid); p != nil {
				t.properties = append(t.properties, p)
			}
		}
	})
}

func (t *TypeDef) NestedTypes() []*TypeDef { t.loadMembers(); return t.nestedTypes }
func (t *TypeDef) Fields() []*Field        { t.loadMembers(); return t.fields }
func (t *TypeDef) Methods() []*Method      { t.loadMembers(); return t.methods }
func (t *TypeDef) Events() []*Event        { t.loadMembers(); return t.events }
func (t *TypeDef) Properties() []*Property { t.loadMembers(); return t.properties }

// FindNestedType returns the nested type with the given mangled name. A
// name without arity suffix also matches by unmangled name and arity.
func (t *TypeDef) FindNestedType(name string) *TypeDef {
	base, arity, mangled := mangle.SplitArity(name)
	if !mangled {
		arity = 0
	}
	for _, nt := range t.NestedTypes() {
		if nt.Name() == name {
			return nt
		}
	}
	for _, nt := range t.NestedTypes() {
		ntBase, ntArity, ok := mangle.SplitArity(nt.Name())
		if !ok {
			ntBase, ntArity = nt.Name(), len(nt.GenericParams())
		}
		if ntBase == base && ntArity == arity {
			return nt
		}
	}
	return nil
}

// FindField returns the first field named name.
func (t *TypeDef) FindField(name string) *Field {
	for _, f := range t.Fields() {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// FindMethods returns every method named name.
func (t *TypeDef) FindMethods(name string) []*Method {
	var out []*Method
	for _, mm := range t.Methods() {
		if mm.Name() == name {
			out = append(out, mm)
		}
	}
	return out
}

// ClassLayout returns the packing size and class size of the type.
func (t *TypeDef) ClassLayout() (packing uint16, size uint32, ok bool) {
	row, ok := t.module.sideTables().classLayout[t.rid]
	if !ok {
		return 0, 0, false
	}
	return row.PackingSize, row.ClassSize, true
}

// MethodImpls returns the explicit overrides declared by the type.
func (t *TypeDef) MethodImpls() []MethodImpl {
	rows := t.module.sideTables().methodImpls[t.rid]
	out := make([]MethodImpl, 0, len(rows))
	for _, row := range rows {
		out = append(out, MethodImpl{
			Body:        t.module.methodDefOrRef(row.Body),
			Declaration: t.module.methodDefOrRef(row.Declaration),
		})
	}
	return out
}

// MethodImpl pairs an overriding method body with the declaration it
// implements. Each side is a *Method or a *MemberRef, or nil.
type MethodImpl struct {
	Body        any
	Declaration any
}

// CustomAttributes returns the attributes applied to the type.
func (t *TypeDef) CustomAttributes() []*CustomAttribute {
	return t.module.CustomAttributes(t.Token())
}

// SecurityAttributes returns the declarative security of the type.
func (t *TypeDef) SecurityAttributes() []*SecurityAttribute {
	return t.module.SecurityAttributes(t.Token())
}
