package clr

import (
	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// FieldAttributes flags.
const (
	FieldAccessMask      uint16 = 0x0007
	FieldPrivate         uint16 = 0x0001
	FieldFamANDAssem     uint16 = 0x0002
	FieldAssembly        uint16 = 0x0003
	FieldFamily          uint16 = 0x0004
	FieldFamORAssem      uint16 = 0x0005
	FieldPublic          uint16 = 0x0006
	FieldStatic          uint16 = 0x0010
	FieldInitOnly        uint16 = 0x0020
	FieldLiteral         uint16 = 0x0040
	FieldNotSerialized   uint16 = 0x0080
	FieldSpecialName     uint16 = 0x0200
	FieldPinvokeImpl     uint16 = 0x2000
	FieldRTSpecialName   uint16 = 0x0400
	FieldHasFieldMarshal uint16 = 0x1000
	FieldHasDefault      uint16 = 0x8000
	FieldHasFieldRVA     uint16 = 0x0100
)

// MethodAttributes flags.
const (
	MethodAccessMask   uint16 = 0x0007
	MethodPublic       uint16 = 0x0006
	MethodStatic       uint16 = 0x0010
	MethodFinal        uint16 = 0x0020
	MethodVirtual      uint16 = 0x0040
	MethodHideBySig    uint16 = 0x0080
	MethodNewSlot      uint16 = 0x0100
	MethodAbstract     uint16 = 0x0400
	MethodSpecialName  uint16 = 0x0800
	MethodPinvokeImpl  uint16 = 0x2000
	MethodRTSpecial    uint16 = 0x1000
	MethodHasSecurity  uint16 = 0x4000
	MethodRequireSecOb uint16 = 0x8000
)

// MethodSemanticsAttributes flags.
const (
	SemanticsSetter   uint16 = 0x0001
	SemanticsGetter   uint16 = 0x0002
	SemanticsOther    uint16 = 0x0004
	SemanticsAddOn    uint16 = 0x0008
	SemanticsRemoveOn uint16 = 0x0010
	SemanticsFire     uint16 = 0x0020
)

// Field is a field defined by a Field row.
type Field struct {
	module *Module
	rid    uint32
	owner  *TypeDef
	flags  uint16
	name   *Name
	blob   uint32

	sig lazyValue[*FieldSignature]
}

func (m *Module) buildField(rid uint32) *Field {
	m.noteConstructed(tables.TableField, rid)
	row := m.tables.Field[rid-1]
	return &Field{
		module: m,
		rid:    rid,
		owner:  m.TypeDef(m.idx.fields.ownerOf(rid)),
		flags:  row.Flags,
		name:   m.names.Name(row.Name),
		blob:   row.Signature,
	}
}

func (f *Field) Name() string        { return f.name.String() }
func (f *Field) RID() uint32         { return f.rid }
func (f *Field) Token() tables.Token { return tables.NewToken(tables.TableField, f.rid) }
func (f *Field) Flags() uint16       { return f.flags }
func (f *Field) IsStatic() bool      { return f.flags&FieldStatic != 0 }
func (f *Field) IsLiteral() bool     { return f.flags&FieldLiteral != 0 }

// DeclaringType returns the owning type, or nil for an orphan row.
func (f *Field) DeclaringType() *TypeDef { return f.owner }

// Signature returns the decoded field signature, or nil when it is
// malformed.
func (f *Field) Signature() *FieldSignature {
	return f.sig.get(func() *FieldSignature {
		ctx := &sigContext{definition: true}
		if f.owner != nil {
			ctx = f.owner.context()
		}
		fs, _ := decodeSignature(f.module, f.Token(), f.blob, ctx, (*decoder).readFieldSignature)
		return fs
	})
}

// Type returns the field type, or Dummy.
func (f *Field) Type() Type {
	if fs := f.Signature(); fs != nil {
		return orDummy(fs.Type)
	}
	return Dummy
}

// Constant returns the default value of a literal field.
func (f *Field) Constant() (Constant, bool) { return f.module.constant(f.Token()) }

// Offset returns the explicit layout offset of the field.
func (f *Field) Offset() (uint32, bool) {
	v, ok := f.module.sideTables().fieldLayout[f.rid]
	return v, ok
}

// RVA returns the address of the field's initial data.
func (f *Field) RVA() (uint32, bool) {
	v, ok := f.module.sideTables().fieldRVA[f.rid]
	return v, ok
}

// Marshal returns the native type descriptor blob of the field.
func (f *Field) Marshal() ([]byte, bool) { return f.module.marshal(f.Token()) }

// CustomAttributes returns the attributes applied to the field.
func (f *Field) CustomAttributes() []*CustomAttribute {
	return f.module.CustomAttributes(f.Token())
}

// Method is a method defined by a MethodDef row.
type Method struct {
	module    *Module
	rid       uint32
	owner     *TypeDef
	rva       uint32
	implFlags uint16
	flags     uint16
	name      *Name
	blob      uint32
	key       uint32

	sig           lazyValue[*MethodSignature]
	params        lazyValue[[]*Param]
	genericParams lazyValue[[]*GenericParam]
}

func (m *Module) buildMethod(rid uint32) *Method {
	m.noteConstructed(tables.TableMethodDef, rid)
	row := m.tables.MethodDef[rid-1]
	tok := tables.NewToken(tables.TableMethodDef, rid)
	return &Method{
		module:    m,
		rid:       rid,
		owner:     m.TypeDef(m.idx.methods.ownerOf(rid)),
		rva:       row.RVA,
		implFlags: row.ImplFlags,
		flags:     row.Flags,
		name:      m.names.Name(row.Name),
		blob:      row.Signature,
		key:       m.host.keys.fixedKey(fixedKey{kind: keyMember, a: m.key, b: uint32(tok)}),
	}
}

func (mm *Method) Name() string        { return mm.name.String() }
func (mm *Method) RID() uint32         { return mm.rid }
func (mm *Method) Token() tables.Token { return tables.NewToken(tables.TableMethodDef, mm.rid) }
func (mm *Method) Key() uint32         { return mm.key }
func (mm *Method) Flags() uint16       { return mm.flags }
func (mm *Method) ImplFlags() uint16   { return mm.implFlags }
func (mm *Method) RVA() uint32         { return mm.rva }
func (mm *Method) IsStatic() bool      { return mm.flags&MethodStatic != 0 }
func (mm *Method) IsVirtual() bool     { return mm.flags&MethodVirtual != 0 }
func (mm *Method) IsAbstract() bool    { return mm.flags&MethodAbstract != 0 }

// IsConstructor reports whether the method is an instance or type
// initializer.
func (mm *Method) IsConstructor() bool {
	return mm.flags&MethodRTSpecial != 0 && (mm.Name() == ".ctor" || mm.Name() == ".cctor")
}

// DeclaringType returns the owning type, or nil for an orphan row.
func (mm *Method) DeclaringType() *TypeDef { return mm.owner }

// FullName returns "Namespace.Type::Name".
func (mm *Method) FullName() string {
	if mm.owner == nil {
		return mm.Name()
	}
	return mm.owner.FullName() + "::" + mm.Name()
}

// GenericParams returns the method's generic parameters ordered by number.
func (mm *Method) GenericParams() []*GenericParam {
	return mm.genericParams.get(func() []*GenericParam {
		return mm.module.genericParamsOf(mm.Token())
	})
}

func (mm *Method) context() *sigContext {
	ctx := &sigContext{definition: true, methodParams: mm.GenericParams()}
	if mm.owner != nil {
		ctx.typeParams = mm.owner.GenericParams()
	}
	return ctx
}

// Signature returns the decoded method signature, or nil when it is
// malformed.
func (mm *Method) Signature() *MethodSignature {
	return mm.sig.get(func() *MethodSignature {
		ms, _ := decodeSignature(mm.module, mm.Token(), mm.blob, mm.context(), (*decoder).readMethodSignature)
		return ms
	})
}

// Params returns the Param rows of the method. Row 0 of the sequence, when
// present, describes the return value.
func (mm *Method) Params() []*Param {
	return mm.params.get(func() []*Param {
		rids := mm.module.idx.params.rows(mm.rid)
		out := make([]*Param, 0, len(rids))
		for _, rid := range rids {
			if p := mm.module.Param(rid); p != nil {
				out = append(out, p)
			}
		}
		return out
	})
}

// Semantics returns the MethodSemantics flags of an accessor method.
func (mm *Method) Semantics() uint16 {
	return mm.module.sideTables().methodSemantics[mm.rid]
}

// ImplMap returns the P/Invoke import of the method.
func (mm *Method) ImplMap() (ImplMap, bool) { return mm.module.implMap(mm.Token()) }

// CustomAttributes returns the attributes applied to the method.
func (mm *Method) CustomAttributes() []*CustomAttribute {
	return mm.module.CustomAttributes(mm.Token())
}

// SecurityAttributes returns the declarative security of the method.
func (mm *Method) SecurityAttributes() []*SecurityAttribute {
	return mm.module.SecurityAttributes(mm.Token())
}

// Param is a parameter row of a method.
type Param struct {
	module   *Module
	rid      uint32
	method   *Method
	flags    uint16
	sequence uint16
	name     *Name
}

func (m *Module) buildParam(rid uint32) *Param {
	m.noteConstructed(tables.TableParam, rid)
	row := m.tables.Param[rid-1]
	return &Param{
		module:   m,
		rid:      rid,
		method:   m.Method(m.idx.params.ownerOf(rid)),
		flags:    row.Flags,
		sequence: row.Sequence,
		name:     m.names.Name(row.Name),
	}
}

func (p *Param) Name() string        { return p.name.String() }
func (p *Param) RID() uint32         { return p.rid }
func (p *Param) Token() tables.Token { return tables.NewToken(tables.TableParam, p.rid) }
func (p *Param) Flags() uint16       { return p.flags }
func (p *Param) Sequence() uint16    { return p.sequence }
func (p *Param) Method() *Method     { return p.method }
func (p *Param) IsIn() bool          { return p.flags&0x0001 != 0 }
func (p *Param) IsOut() bool         { return p.flags&0x0002 != 0 }
func (p *Param) IsOptional() bool    { return p.flags&0x0010 != 0 }

// Constant returns the default value of an optional parameter.
func (p *Param) Constant() (Constant, bool) { return p.module.constant(p.Token()) }

// Marshal returns the native type descriptor blob of the parameter.
func (p *Param) Marshal() ([]byte, bool) { return p.module.marshal(p.Token()) }

// Event is an event defined by an Event row.
type Event struct {
	module    *Module
	rid       uint32
	owner     *TypeDef
	flags     uint16
	name      *Name
	eventType tables.Token

	typ lazyValue[Type]
}

func (m *Module) buildEvent(rid uint32) *Event {
	m.noteConstructed(tables.TableEvent, rid)
	row := m.tables.Event[rid-1]
	return &Event{
		module:    m,
		rid:       rid,
		owner:     m.TypeDef(m.idx.events.ownerOf(rid)),
		flags:     row.Flags,
		name:      m.names.Name(row.Name),
		eventType: row.EventType,
	}
}

func (e *Event) Name() string            { return e.name.String() }
func (e *Event) RID() uint32             { return e.rid }
func (e *Event) Token() tables.Token     { return tables.NewToken(tables.TableEvent, e.rid) }
func (e *Event) Flags() uint16           { return e.flags }
func (e *Event) DeclaringType() *TypeDef { return e.owner }
func (e *Event) AddMethod() *Method      { return e.module.accessor(e.Token(), SemanticsAddOn) }
func (e *Event) RemoveMethod() *Method   { return e.module.accessor(e.Token(), SemanticsRemoveOn) }
func (e *Event) RaiseMethod() *Method    { return e.module.accessor(e.Token(), SemanticsFire) }
func (e *Event) OtherMethods() []*Method { return e.module.accessors(e.Token(), SemanticsOther) }

// Type returns the delegate type of the event.
func (e *Event) Type() Type {
	return e.typ.get(func() Type {
		ctx := &sigContext{definition: true}
		if e.owner != nil {
			ctx = e.owner.context()
		}
		return orDummy(e.module.newDecoder(nil, ctx).typeFromToken(e.eventType))
	})
}

// Property is a property defined by a Property row.
type Property struct {
	module *Module
	rid    uint32
	owner  *TypeDef
	flags  uint16
	name   *Name
	blob   uint32

	sig lazyValue[*PropertySignature]
}

func (m *Module) buildProperty(rid uint32) *Property {
	m.noteConstructed(tables.TableProperty, rid)
	row := m.tables.Property[rid-1]
	return &Property{
		module: m,
		rid:    rid,
		owner:  m.TypeDef(m.idx.properties.ownerOf(rid)),
		flags:  row.Flags,
		name:   m.names.Name(row.Name),
		blob:   row.Signature,
	}
}

func (p *Property) Name() string            { return p.name.String() }
func (p *Property) RID() uint32             { return p.rid }
func (p *Property) Token() tables.Token     { return tables.NewToken(tables.TableProperty, p.rid) }
func (p *Property) Flags() uint16           { return p.flags }
func (p *Property) DeclaringType() *TypeDef { return p.owner }
func (p *Property) Getter() *Method         { return p.module.accessor(p.Token(), SemanticsGetter) }
func (p *Property) Setter() *Method         { return p.module.accessor(p.Token(), SemanticsSetter) }
func (p *Property) OtherMethods() []*Method { return p.module.accessors(p.Token(), SemanticsOther) }

// Signature returns the decoded property signature, or nil.
func (p *Property) Signature() *PropertySignature {
	return p.sig.get(func() *PropertySignature {
		ctx := &sigContext{definition: true}
		if p.owner != nil {
			ctx = p.owner.context()
		}
		ps, _ := decodeSignature(p.module, p.Token(), p.blob, ctx, (*decoder).readPropertySignature)
		return ps
	})
}

// Type returns the property type, or Dummy.
func (p *Property) Type() Type {
	if ps := p.Signature(); ps != nil {
		return orDummy(ps.Type)
	}
	return Dummy
}

// Constant returns the default value of the property.
func (p *Property) Constant() (Constant, bool) { return p.module.constant(p.Token()) }

func (m *Module) accessor(assoc tables.Token, semantics uint16) *Method {
	for _, row := range m.sideTables().semantics[assoc] {
		if row.Semantics&semantics != 0 {
			return m.Method(row.Method)
		}
	}
	return nil
}

func (m *Module) accessors(assoc tables.Token, semantics uint16) []*Method {
	var out []*Method
	for _, row := range m.sideTables().semantics[assoc] {
		if row.Semantics&semantics == 0 {
			continue
		}
		if mm := m.Method(row.Method); mm != nil {
			out = append(out, mm)
		}
	}
	return out
}

// StandAloneSig is a signature blob referenced directly by IL: a local
// variable list or a call site signature.
type StandAloneSig struct {
	module *Module
	rid    uint32
	blob   uint32

	locals lazyValue[[]Type]
	method lazyValue[*MethodSignature]
}

func (m *Module) buildStandAloneSig(rid uint32) *StandAloneSig {
	m.noteConstructed(tables.TableStandAloneSig, rid)
	return &StandAloneSig{module: m, rid: rid, blob: m.tables.StandAloneSig[rid-1].Signature}
}

func (s *StandAloneSig) RID() uint32         { return s.rid }
func (s *StandAloneSig) Token() tables.Token { return tables.NewToken(tables.TableStandAloneSig, s.rid) }

// IsLocals reports whether the blob is a local variable signature.
func (s *StandAloneSig) IsLocals() bool {
	blob, ok := s.module.tables.Blob(s.blob)
	return ok && len(blob) > 0 && blob[0] == sig.CallLocalSig
}

// Locals returns the local variable types, or nil for call site signatures.
func (s *StandAloneSig) Locals() []Type {
	return s.locals.get(func() []Type {
		if !s.IsLocals() {
			return nil
		}
		locals, _ := decodeSignature(s.module, s.Token(), s.blob, nil, (*decoder).readLocals)
		return locals
	})
}

// MethodSignature returns the call site signature, or nil for local
// variable signatures.
func (s *StandAloneSig) MethodSignature() *MethodSignature {
	return s.method.get(func() *MethodSignature {
		if s.IsLocals() {
			return nil
		}
		ms, _ := decodeSignature(s.module, s.Token(), s.blob, nil, (*decoder).readMethodSignature)
		return ms
	})
}
