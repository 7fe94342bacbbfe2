package clr

import (
	"github.com/cespare/xxhash/v2"

	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// maxBaseDepth bounds the base type walk of member lookups.
const maxBaseDepth = 64

// specializationKey addresses a specialized member reference by the key
// of its generic instance parent, the key of the unspecialized reference
// and its row. Rows with equal parent, name and signature share Key() but
// keep their own object and token.
type specializationKey struct {
	instance      uint32
	unspecialized uint32
	rid           uint32
}

// MemberRef is a reference to a field or method by parent, name and
// signature. A reference whose parent is a generic instance is
// specialized: it wraps the unspecialized reference against the template
// and substitutes the instance arguments into its signature.
type MemberRef struct {
	module    *Module
	rid       uint32
	name      *Name
	parentTok tables.Token
	blob      uint32
	key       uint32

	parent       Type
	parentMethod *Method
	parentModule *ModuleRef

	instance      *GenericInstance
	unspecialized *MemberRef

	method   lazyValue[*MethodSignature]
	field    lazyValue[*FieldSignature]
	resolved lazyValue[any]
}

func (m *Module) buildMemberRef(rid uint32) *MemberRef {
	m.noteConstructed(tables.TableMemberRef, rid)
	row := m.tables.MemberRef[rid-1]
	if row.Class.Table() == tables.TableTypeSpec {
		if inst, ok := m.TypeSpec(row.Class.RID()).(*GenericInstance); ok {
			unspec, _ := m.unspecMemberRefs.get(rid)
			return m.specialize(unspec, inst)
		}
	}
	return m.newMemberRef(rid, false)
}

func (m *Module) buildUnspecializedMemberRef(rid uint32) *MemberRef {
	return m.newMemberRef(rid, true)
}

// newMemberRef builds the reference of row rid. With template set, a
// generic instance parent is replaced by its template.
func (m *Module) newMemberRef(rid uint32, template bool) *MemberRef {
	row := m.tables.MemberRef[rid-1]
	r := &MemberRef{
		module:    m,
		rid:       rid,
		name:      m.names.Name(row.Name),
		parentTok: row.Class,
		blob:      row.Signature,
	}

	var parentKey uint32
	switch row.Class.Table() {
	case tables.TableTypeDef:
		if td := m.TypeDef(row.Class.RID()); td != nil {
			r.parent = td
		}
	case tables.TableTypeRef:
		if tr := m.TypeRef(row.Class.RID()); tr != nil {
			r.parent = tr
		}
	case tables.TableTypeSpec:
		r.parent = m.TypeSpec(row.Class.RID())
		if inst, ok := r.parent.(*GenericInstance); ok && template {
			r.parent = inst.template
		}
	case tables.TableModuleRef:
		r.parentModule = m.ModuleRef(row.Class.RID())
		if r.parentModule != nil {
			parentKey = m.host.names.GetOrCreate(simpleNameKey(r.parentModule.Name())).Key()
		}
	case tables.TableMethodDef:
		r.parentMethod = m.Method(row.Class.RID())
		if r.parentMethod != nil {
			if r.parentMethod.owner != nil {
				r.parent = r.parentMethod.owner
			}
			parentKey = r.parentMethod.Key()
		}
	}
	if r.parent == nil && r.parentModule == nil && r.parentMethod == nil {
		m.diag(DiagStructural, r.Token(), "member reference parent %s is invalid", row.Class)
		r.parent = Dummy
	}
	if parentKey == 0 && r.parent != nil {
		parentKey = r.parent.Key()
	}

	if blob, ok := m.tables.Blob(row.Signature); ok && parentKey != 0 {
		h := xxhash.Sum64(blob)
		r.key = m.host.keys.compositeRaw(keyMember, []uint32{parentKey, r.name.Key(), uint32(h), uint32(h >> 32), uint32(len(blob))})
	}
	return r
}

func (m *Module) specialize(unspec *MemberRef, inst *GenericInstance) *MemberRef {
	build := func() *MemberRef {
		return &MemberRef{
			module:        m,
			rid:           unspec.rid,
			name:          unspec.name,
			parentTok:     unspec.parentTok,
			blob:          unspec.blob,
			key:           m.host.keys.composite(keyMember, inst.Key(), unspec.Key()),
			parent:        inst,
			instance:      inst,
			unspecialized: unspec,
		}
	}
	if inst.Key() == 0 || unspec.Key() == 0 {
		return build()
	}
	r, _ := m.specialized.LoadOrCompute(specializationKey{inst.Key(), unspec.Key(), unspec.rid}, build)
	return r
}

// SpecializeMemberRef returns MemberRef row rid rebound to the generic
// instance inst. Equal instances yield the same reference.
func (m *Module) SpecializeMemberRef(rid uint32, inst *GenericInstance) *MemberRef {
	unspec, ok := m.unspecMemberRefs.get(rid)
	if !ok || inst == nil {
		return nil
	}
	return m.specialize(unspec, inst)
}

// UnspecializedMemberRef returns MemberRef row rid bound to the template
// of its parent instance.
func (m *Module) UnspecializedMemberRef(rid uint32) *MemberRef {
	v, _ := m.unspecMemberRefs.get(rid)
	return v
}

func (r *MemberRef) Name() string        { return r.name.String() }
func (r *MemberRef) RID() uint32         { return r.rid }
func (r *MemberRef) Token() tables.Token { return tables.NewToken(tables.TableMemberRef, r.rid) }
func (r *MemberRef) Key() uint32         { return r.key }
func (r *MemberRef) Module() *Module     { return r.module }

// Parent returns the raw parent token of the row.
func (r *MemberRef) Parent() tables.Token { return r.parentTok }

// DeclaringType returns the type the member is referenced on. Specialized
// references return their generic instance.
func (r *MemberRef) DeclaringType() Type { return r.parent }

func (r *MemberRef) declaringType() Type { return r.parent }

// ParentModule returns the module reference parent of a global member.
func (r *MemberRef) ParentModule() *ModuleRef { return r.parentModule }

// ParentMethod returns the method definition parent of a vararg call site.
func (r *MemberRef) ParentMethod() *Method { return r.parentMethod }

// IsSpecialized reports whether the reference is bound to a generic
// instance parent.
func (r *MemberRef) IsSpecialized() bool { return r.instance != nil }

// Instance returns the generic instance parent of a specialized reference.
func (r *MemberRef) Instance() *GenericInstance { return r.instance }

// Unspecialized returns the reference against the template parent, or r
// itself when it is not specialized.
func (r *MemberRef) Unspecialized() *MemberRef {
	if r.unspecialized != nil {
		return r.unspecialized
	}
	return r
}

// FullName returns "Type::Name".
func (r *MemberRef) FullName() string {
	switch {
	case r.parentModule != nil:
		return "[" + r.parentModule.Name() + "]::" + r.Name()
	case r.parent != nil:
		return r.parent.FullName() + "::" + r.Name()
	}
	return r.Name()
}

// IsField reports whether the reference names a field.
func (r *MemberRef) IsField() bool {
	blob, ok := r.module.tables.Blob(r.blob)
	return ok && len(blob) > 0 && blob[0]&sig.CallKindMask == sig.CallField
}

func (r *MemberRef) context() *sigContext {
	ctx := &sigContext{ref: r}
	if r.instance != nil {
		ctx.typeArgs = r.instance.args
	}
	return ctx
}

// MethodSignature returns the signature of a method reference with the
// parent instance arguments substituted, or nil.
func (r *MemberRef) MethodSignature() *MethodSignature {
	return r.method.get(func() *MethodSignature {
		if r.IsField() {
			return nil
		}
		ms, _ := decodeSignature(r.module, r.Token(), r.blob, r.context(), (*decoder).readMethodSignature)
		return ms
	})
}

// FieldSignature returns the signature of a field reference with the
// parent instance arguments substituted, or nil.
func (r *MemberRef) FieldSignature() *FieldSignature {
	return r.field.get(func() *FieldSignature {
		if !r.IsField() {
			return nil
		}
		fs, _ := decodeSignature(r.module, r.Token(), r.blob, r.context(), (*decoder).readFieldSignature)
		return fs
	})
}

// Resolve returns the referenced *Method or *Field, or nil when the
// definition cannot be located.
func (r *MemberRef) Resolve() any {
	if r.unspecialized != nil {
		return r.unspecialized.Resolve()
	}
	return r.resolved.get(func() any {
		v := r.resolve()
		if v == nil {
			r.module.diag(DiagUnresolved, r.Token(), "member %s not found", r.FullName())
		}
		return v
	})
}

// ResolveMethod returns the referenced method definition, or nil.
func (r *MemberRef) ResolveMethod() *Method {
	mm, _ := r.Resolve().(*Method)
	return mm
}

// ResolveField returns the referenced field definition, or nil.
func (r *MemberRef) ResolveField() *Field {
	f, _ := r.Resolve().(*Field)
	return f
}

func (r *MemberRef) resolve() any {
	if r.parentMethod != nil {
		return r.parentMethod
	}

	var td *TypeDef
	if r.parentModule != nil {
		sibling, err := r.module.SiblingModule(r.parentModule.Name())
		if err != nil {
			return nil
		}
		td = sibling.TypeDef(1)
	} else {
		td = definitionOf(r.parent)
	}

	for depth := 0; td != nil && depth < maxBaseDepth; depth++ {
		if r.IsField() {
			if f := r.matchField(td); f != nil {
				return f
			}
		} else if mm := r.matchMethod(td); mm != nil {
			return mm
		}
		td = definitionOf(td.BaseType())
	}
	return nil
}

func (r *MemberRef) matchField(td *TypeDef) *Field {
	fs := r.FieldSignature()
	var byName *Field
	for _, f := range td.Fields() {
		if f.Name() != r.Name() {
			continue
		}
		if fs != nil && f.Signature() != nil && typeShape(fs.Type) == typeShape(f.Signature().Type) {
			return f
		}
		if byName == nil {
			byName = f
		}
	}
	return byName
}

func (r *MemberRef) matchMethod(td *TypeDef) *Method {
	shape := methodShape(r.MethodSignature())
	for _, mm := range td.FindMethods(r.Name()) {
		ms := mm.Signature()
		if ms == nil {
			continue
		}
		if methodShape(ms) == shape {
			return mm
		}
	}
	return nil
}

// methodDefOrRef returns the *Method or *MemberRef named by tok, or nil.
func (m *Module) methodDefOrRef(tok tables.Token) any {
	switch tok.Table() {
	case tables.TableMethodDef:
		if mm := m.Method(tok.RID()); mm != nil {
			return mm
		}
	case tables.TableMemberRef:
		if r := m.MemberRef(tok.RID()); r != nil {
			return r
		}
	}
	return nil
}

// MethodSpec is an instantiation of a generic method.
type MethodSpec struct {
	module *Module
	rid    uint32
	method tables.Token
	blob   uint32

	args lazyValue[[]Type]
	sig  lazyValue[*MethodSignature]
}

func (m *Module) buildMethodSpec(rid uint32) *MethodSpec {
	m.noteConstructed(tables.TableMethodSpec, rid)
	row := m.tables.MethodSpec[rid-1]
	return &MethodSpec{module: m, rid: rid, method: row.Method, blob: row.Instantiation}
}

func (s *MethodSpec) RID() uint32         { return s.rid }
func (s *MethodSpec) Token() tables.Token { return tables.NewToken(tables.TableMethodSpec, s.rid) }

// Method returns the instantiated *Method or *MemberRef, or nil.
func (s *MethodSpec) Method() any { return s.module.methodDefOrRef(s.method) }

// GenericMethod returns the definition of the instantiated method.
func (s *MethodSpec) GenericMethod() *Method {
	switch v := s.Method().(type) {
	case *Method:
		return v
	case *MemberRef:
		return v.ResolveMethod()
	}
	return nil
}

// Args returns the method type arguments.
func (s *MethodSpec) Args() []Type {
	return s.args.get(func() []Type {
		args, _ := decodeSignature(s.module, s.Token(), s.blob, nil, (*decoder).readInstantiation)
		return args
	})
}

// Signature returns the method signature with the type arguments
// substituted for the method's generic parameters.
func (s *MethodSpec) Signature() *MethodSignature {
	return s.sig.get(func() *MethodSignature {
		args := s.Args()
		if args == nil {
			return nil
		}
		switch v := s.Method().(type) {
		case *Method:
			ctx := v.context()
			ctx.methodArgs = args
			ms, _ := decodeSignature(s.module, s.Token(), v.blob, ctx, (*decoder).readMethodSignature)
			return ms
		case *MemberRef:
			ctx := v.context()
			ctx.methodArgs = args
			ms, _ := decodeSignature(s.module, s.Token(), v.blob, ctx, (*decoder).readMethodSignature)
			return ms
		}
		return nil
	})
}
