package clr

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

var errInvalidSignature = errors.New("clr: invalid signature")

// MethodSignature is a decoded method, method reference or function
// pointer signature.
type MethodSignature struct {
	CallingConvention uint8
	GenericParamCount uint32
	ReturnType        Type
	Params            []Type

	// VarArgParams are the parameters after the sentinel of a vararg call
	// site signature.
	VarArgParams []Type
}

// HasThis reports whether the method takes an implicit instance argument.
func (s *MethodSignature) HasThis() bool { return s.CallingConvention&sig.CallHasThis != 0 }

// IsGeneric reports whether the signature declares generic parameters.
func (s *MethodSignature) IsGeneric() bool { return s.CallingConvention&sig.CallGeneric != 0 }

// IsVarArg reports whether the signature uses the vararg convention.
func (s *MethodSignature) IsVarArg() bool {
	return s.CallingConvention&sig.CallKindMask == sig.CallVarArg
}

func (s *MethodSignature) String() string {
	var sb strings.Builder
	sb.WriteString(orDummy(s.ReturnType).FullName())
	sb.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(orDummy(p).FullName())
	}
	if len(s.VarArgParams) > 0 || s.IsVarArg() {
		if len(s.Params) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
		for _, p := range s.VarArgParams {
			sb.WriteString(", ")
			sb.WriteString(orDummy(p).FullName())
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// FieldSignature is a decoded field signature.
type FieldSignature struct {
	Type Type
}

// PropertySignature is a decoded property signature.
type PropertySignature struct {
	HasThis bool
	Type    Type
	Params  []Type
}

// sigContext binds VAR and MVAR while decoding. Arguments substitute
// parameters; definition parameters bind directly; anything else becomes
// a SignatureParam owned by ref.
type sigContext struct {
	definition   bool
	typeParams   []*GenericParam
	methodParams []*GenericParam
	typeArgs     []Type
	methodArgs   []Type
	ref          *MemberRef
}

func (c *sigContext) free() bool {
	return !c.definition && c.typeArgs == nil && c.methodArgs == nil && c.ref == nil
}

var freeContext = &sigContext{}

type decoder struct {
	m   *Module
	r   *stream.Reader
	ctx *sigContext

	// typeSpecs are the TypeSpec rows on the current decode path.
	typeSpecs []uint32
}

func (m *Module) newDecoder(blob []byte, ctx *sigContext) *decoder {
	if ctx == nil {
		ctx = freeContext
	}
	return &decoder{m: m, r: stream.NewReader(blob), ctx: ctx}
}

func (d *decoder) readCount() (uint32, error) {
	n, err := d.r.ReadCompressedU32()
	if err != nil {
		return 0, err
	}
	// Every counted item takes at least one byte.
	if int64(n) > int64(d.r.Remaining()) {
		return 0, fmt.Errorf("%w: count %d exceeds blob", errInvalidSignature, n)
	}
	return n, nil
}

func (d *decoder) readType() (Type, error) {
	b, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	e := sig.ElementType(b)
	if e.IsPrimitive() {
		return d.m.primitiveOrDummy(e), nil
	}

	switch e {
	case sig.Ptr, sig.ByRef, sig.SZArray, sig.Pinned:
		inner, err := d.readType()
		if err != nil {
			return nil, err
		}
		return d.m.derived(e, inner), nil

	case sig.ValueType, sig.Class:
		tok, err := sig.ReadTypeDefOrRef(d.r)
		if err != nil {
			return nil, err
		}
		return orDummy(d.typeFromToken(tok)), nil

	case sig.Var, sig.MVar:
		n, err := d.r.ReadCompressedU32()
		if err != nil {
			return nil, err
		}
		return d.genericParam(n, e == sig.MVar), nil

	case sig.Array:
		return d.readArray()

	case sig.GenericInst:
		return d.readGenericInst()

	case sig.FnPtr:
		ms, err := d.readMethodSignature()
		if err != nil {
			return nil, err
		}
		return d.m.functionPointer(ms), nil

	case sig.CModReqd, sig.CModOpt:
		tok, err := sig.ReadTypeDefOrRef(d.r)
		if err != nil {
			return nil, err
		}
		modifier := orDummy(d.typeFromToken(tok))
		inner, err := d.readType()
		if err != nil {
			return nil, err
		}
		return d.m.modified(modifier, e == sig.CModReqd, inner), nil

	case sig.Internal:
		return Dummy, nil
	}

	return nil, fmt.Errorf("%w: element type 0x%02x at offset %d", errInvalidSignature, b, d.r.Offset()-1)
}

func (d *decoder) readArray() (Type, error) {
	elem, err := d.readType()
	if err != nil {
		return nil, err
	}
	rank, err := d.r.ReadCompressedU32()
	if err != nil {
		return nil, err
	}
	numSizes, err := d.readCount()
	if err != nil {
		return nil, err
	}
	sizes := make([]uint32, numSizes)
	for i := range sizes {
		if sizes[i], err = d.r.ReadCompressedU32(); err != nil {
			return nil, err
		}
	}
	numLo, err := d.readCount()
	if err != nil {
		return nil, err
	}
	lo := make([]int32, numLo)
	for i := range lo {
		if lo[i], err = d.r.ReadCompressedI32(); err != nil {
			return nil, err
		}
	}
	return d.m.array(elem, rank, sizes, lo), nil
}

func (d *decoder) readGenericInst() (Type, error) {
	kind, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	tok, err := sig.ReadTypeDefOrRef(d.r)
	if err != nil {
		return nil, err
	}
	template := orDummy(d.typeFromToken(tok))

	count, err := d.readCount()
	if err != nil {
		return nil, err
	}
	args := make([]Type, count)
	for i := range args {
		if args[i], err = d.readType(); err != nil {
			return nil, err
		}
	}
	return d.m.genericInstance(template, args, sig.ElementType(kind) == sig.ValueType), nil
}

func (d *decoder) readMethodSignature() (*MethodSignature, error) {
	conv, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	ms := &MethodSignature{CallingConvention: conv}
	if conv&sig.CallGeneric != 0 {
		if ms.GenericParamCount, err = d.r.ReadCompressedU32(); err != nil {
			return nil, err
		}
	}

	count, err := d.readCount()
	if err != nil {
		return nil, err
	}
	if ms.ReturnType, err = d.readType(); err != nil {
		return nil, err
	}

	vararg := false
	for i := uint32(0); i < count; i++ {
		if b, err := d.r.PeekU8(); err == nil && sig.ElementType(b) == sig.Sentinel {
			d.r.Skip(1)
			vararg = true
		}
		t, err := d.readType()
		if err != nil {
			return nil, err
		}
		if vararg {
			ms.VarArgParams = append(ms.VarArgParams, t)
		} else {
			ms.Params = append(ms.Params, t)
		}
	}
	return ms, nil
}

func (d *decoder) readFieldSignature() (*FieldSignature, error) {
	conv, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	if conv&sig.CallKindMask != sig.CallField {
		return nil, fmt.Errorf("%w: field signature starts with 0x%02x", errInvalidSignature, conv)
	}
	t, err := d.readType()
	if err != nil {
		return nil, err
	}
	return &FieldSignature{Type: t}, nil
}

func (d *decoder) readPropertySignature() (*PropertySignature, error) {
	conv, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	if conv&sig.CallKindMask != sig.CallProperty {
		return nil, fmt.Errorf("%w: property signature starts with 0x%02x", errInvalidSignature, conv)
	}
	count, err := d.readCount()
	if err != nil {
		return nil, err
	}
	ps := &PropertySignature{HasThis: conv&sig.CallHasThis != 0}
	if ps.Type, err = d.readType(); err != nil {
		return nil, err
	}
	ps.Params = make([]Type, count)
	for i := range ps.Params {
		if ps.Params[i], err = d.readType(); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (d *decoder) readLocals() ([]Type, error) {
	conv, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	if conv != sig.CallLocalSig {
		return nil, fmt.Errorf("%w: local signature starts with 0x%02x", errInvalidSignature, conv)
	}
	count, err := d.readCount()
	if err != nil {
		return nil, err
	}
	locals := make([]Type, count)
	for i := range locals {
		if locals[i], err = d.readType(); err != nil {
			return nil, err
		}
	}
	return locals, nil
}

func (d *decoder) readInstantiation() ([]Type, error) {
	conv, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	if conv != sig.CallGenericInst {
		return nil, fmt.Errorf("%w: instantiation starts with 0x%02x", errInvalidSignature, conv)
	}
	count, err := d.readCount()
	if err != nil {
		return nil, err
	}
	args := make([]Type, count)
	for i := range args {
		if args[i], err = d.readType(); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// typeFromToken returns the type named by a TypeDefOrRef token, or nil.
func (d *decoder) typeFromToken(tok tables.Token) Type {
	switch tok.Table() {
	case tables.TableTypeDef:
		if td := d.m.TypeDef(tok.RID()); td != nil {
			return td
		}
	case tables.TableTypeRef:
		if tr := d.m.TypeRef(tok.RID()); tr != nil {
			return tr
		}
	case tables.TableTypeSpec:
		return d.typeSpec(tok.RID())
	}
	return nil
}

// typeSpec decodes a TypeSpec row met inside another signature. Only a
// top-level context-free decode goes through the slot table; nested ones
// are decoded in place so no two TypeSpec slot locks are ever held.
func (d *decoder) typeSpec(rid uint32) Type {
	if len(d.typeSpecs) == 0 && d.ctx.free() {
		return d.m.TypeSpec(rid)
	}
	if slices.Contains(d.typeSpecs, rid) {
		d.m.diag(DiagCycle, tables.NewToken(tables.TableTypeSpec, rid), "type specification refers to itself")
		return nil
	}
	return d.m.decodeTypeSpec(rid, d.ctx, append(slices.Clone(d.typeSpecs), rid))
}

func (m *Module) decodeTypeSpec(rid uint32, ctx *sigContext, path []uint32) Type {
	tok := tables.NewToken(tables.TableTypeSpec, rid)
	row, ok := tables.At(m.tables.TypeSpec, rid)
	if !ok {
		return nil
	}
	blob, ok := m.tables.Blob(row.Signature)
	if !ok {
		m.diag(DiagStructural, tok, "missing signature blob")
		return nil
	}
	d := m.newDecoder(blob, ctx)
	d.typeSpecs = path
	t, err := d.readType()
	if err != nil {
		m.diag(DiagDecode, tok, "%v", err)
		return nil
	}
	return t
}

func (m *Module) buildTypeSpec(rid uint32) Type {
	m.noteConstructed(tables.TableTypeSpec, rid)
	return orDummy(m.decodeTypeSpec(rid, freeContext, []uint32{rid}))
}

func (d *decoder) genericParam(ordinal uint32, method bool) Type {
	c := d.ctx
	args, params := c.typeArgs, c.typeParams
	if method {
		args, params = c.methodArgs, c.methodParams
	}
	switch {
	case args != nil:
		if int(ordinal) < len(args) {
			return orDummy(args[ordinal])
		}
		return Dummy
	case c.definition:
		if gp := genericParamAt(params, ordinal); gp != nil {
			return gp
		}
		return Dummy
	}
	return d.m.signatureParam(ordinal, method, c.ref)
}

// decodeSignature decodes blob with fn, recording failures against tok.
func decodeSignature[T any](m *Module, tok tables.Token, offset uint32, ctx *sigContext, fn func(*decoder) (T, error)) (T, bool) {
	var zero T
	blob, ok := m.tables.Blob(offset)
	if !ok || len(blob) == 0 {
		m.diag(DiagStructural, tok, "missing signature blob")
		return zero, false
	}
	v, err := fn(m.newDecoder(blob, ctx))
	if err != nil {
		m.diag(DiagDecode, tok, "%v", err)
		return zero, false
	}
	return v, true
}

// Constructors of structural types. Types with a stable key are shared
// per module; the rest are fresh values.

func (m *Module) intern(key uint32, build func() Type) Type {
	if key == 0 {
		return build()
	}
	v, _ := m.instances.LoadOrCompute(key, build)
	return v
}

func (m *Module) primitiveOrDummy(e sig.ElementType) Type {
	if p := m.primitive(e); p != nil {
		return p
	}
	return Dummy
}

func (m *Module) derived(e sig.ElementType, inner Type) Type {
	inner = orDummy(inner)
	keys := m.host.keys
	switch e {
	case sig.Ptr:
		return m.intern(keys.composite(keyPointer, inner.Key()), func() Type {
			return &PointerType{element: inner, key: keys.composite(keyPointer, inner.Key())}
		})
	case sig.ByRef:
		return m.intern(keys.composite(keyByRef, inner.Key()), func() Type {
			return &ByRefType{element: inner, key: keys.composite(keyByRef, inner.Key())}
		})
	case sig.SZArray:
		return m.intern(keys.composite(keyVector, inner.Key()), func() Type {
			return &VectorType{element: inner, key: keys.composite(keyVector, inner.Key())}
		})
	case sig.Pinned:
		return m.intern(keys.composite(keyPinned, inner.Key()), func() Type {
			return &PinnedType{inner: inner, key: keys.composite(keyPinned, inner.Key())}
		})
	}
	return Dummy
}

// PointerTo returns the unmanaged pointer type to t.
func (m *Module) PointerTo(t Type) Type { return m.derived(sig.Ptr, t) }

// ByRefTo returns the managed reference type to t.
func (m *Module) ByRefTo(t Type) Type { return m.derived(sig.ByRef, t) }

// VectorOf returns the single-dimensional zero-based array of t.
func (m *Module) VectorOf(t Type) Type { return m.derived(sig.SZArray, t) }

func (m *Module) array(elem Type, rank uint32, sizes []uint32, lo []int32) Type {
	elem = orDummy(elem)
	var key uint32
	if elem.Key() != 0 {
		parts := make([]uint32, 0, 3+len(sizes)+len(lo))
		parts = append(parts, elem.Key(), rank, uint32(len(sizes)))
		parts = append(parts, sizes...)
		for _, v := range lo {
			parts = append(parts, uint32(v))
		}
		key = m.host.keys.compositeRaw(keyMatrix, parts)
	}
	return m.intern(key, func() Type {
		return &ArrayType{element: elem, rank: rank, sizes: sizes, lowerBounds: lo, key: key}
	})
}

func (m *Module) genericInstance(template Type, args []Type, valueType bool) Type {
	template = orDummy(template)
	parts := make([]uint32, 0, 1+len(args))
	parts = append(parts, template.Key())
	for i, a := range args {
		args[i] = orDummy(a)
		parts = append(parts, args[i].Key())
	}
	key := m.host.keys.composite(keyGenericInstance, parts...)
	return m.intern(key, func() Type {
		return &GenericInstance{template: template, args: args, valueType: valueType, key: key}
	})
}

// Instantiate binds template to args.
func (m *Module) Instantiate(template Type, args ...Type) *GenericInstance {
	valueType := false
	if td := definitionOf(template); td != nil {
		valueType = td.IsValueType()
	}
	t, _ := m.genericInstance(template, slices.Clone(args), valueType).(*GenericInstance)
	return t
}

func (m *Module) functionPointer(ms *MethodSignature) Type {
	parts := []uint32{uint32(ms.CallingConvention) + 1, ms.GenericParamCount + 1, orDummy(ms.ReturnType).Key()}
	for _, p := range ms.Params {
		parts = append(parts, orDummy(p).Key())
	}
	if len(ms.VarArgParams) > 0 {
		// Separates required and vararg lists in the key.
		parts = append(parts, ^uint32(0))
		for _, p := range ms.VarArgParams {
			parts = append(parts, orDummy(p).Key())
		}
	}
	key := m.host.keys.composite(keyFunctionPointer, parts...)
	return m.intern(key, func() Type {
		return &FunctionPointerType{signature: ms, key: key}
	})
}

func (m *Module) modified(modifier Type, required bool, inner Type) Type {
	inner = orDummy(inner)
	flag := uint32(1)
	if required {
		flag = 2
	}
	key := m.host.keys.composite(keyModified, modifier.Key(), inner.Key(), flag)
	return m.intern(key, func() Type {
		return &ModifiedType{modifier: modifier, required: required, inner: inner, key: key}
	})
}

func (m *Module) signatureParam(ordinal uint32, method bool, owner *MemberRef) Type {
	if owner != nil {
		return &SignatureParam{ordinal: ordinal, method: method, owner: owner}
	}
	var flag uint32
	if method {
		flag = 1
	}
	key := m.host.keys.fixedKey(fixedKey{kind: keySignatureParam, a: ordinal, b: flag})
	return m.intern(key, func() Type {
		return &SignatureParam{ordinal: ordinal, method: method, key: key}
	})
}

// DecodeType decodes a standalone type signature without generic context.
func (m *Module) DecodeType(blob []byte) (Type, error) {
	return m.newDecoder(blob, nil).readType()
}

// DecodeMethodSignature decodes a method signature without generic context.
func (m *Module) DecodeMethodSignature(blob []byte) (*MethodSignature, error) {
	return m.newDecoder(blob, nil).readMethodSignature()
}

// typeShape renders t for signature matching: generic parameters by
// ordinal, named types by full name.
func typeShape(t Type) string {
	switch v := t.(type) {
	case nil:
		return "?"
	case *GenericParam:
		if v.IsMethodParam() {
			return fmt.Sprintf("!!%d", v.Number())
		}
		return fmt.Sprintf("!%d", v.Number())
	case *SignatureParam:
		return v.Name()
	case *PointerType:
		return typeShape(v.element) + "*"
	case *ByRefType:
		return typeShape(v.element) + "&"
	case *VectorType:
		return typeShape(v.element) + "[]"
	case *ArrayType:
		return typeShape(v.element) + v.suffix()
	case *PinnedType:
		return typeShape(v.inner)
	case *ModifiedType:
		return typeShape(v.inner) + v.suffix(typeShape)
	case *GenericInstance:
		args := make([]string, len(v.args))
		for i, a := range v.args {
			args[i] = typeShape(a)
		}
		return typeShape(v.template) + "<" + strings.Join(args, ",") + ">"
	case *FunctionPointerType:
		return "fnptr " + methodShape(v.signature)
	}
	return t.FullName()
}

func methodShape(ms *MethodSignature) string {
	if ms == nil {
		return "?"
	}
	parts := make([]string, 0, len(ms.Params)+len(ms.VarArgParams)+1)
	for _, p := range ms.Params {
		parts = append(parts, typeShape(p))
	}
	if ms.IsVarArg() {
		parts = append(parts, "...")
	}
	return fmt.Sprintf("%02x`%d %s(%s)", ms.CallingConvention&^sig.CallExplicitThis,
		ms.GenericParamCount, typeShape(ms.ReturnType), strings.Join(parts, ","))
}
