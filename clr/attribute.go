package clr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skdltmxn/clrmeta-go/internal/mangle"
	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

var errInvalidAttribute = errors.New("clr: invalid attribute blob")

// enumGuesses are the underlying types tried, in order, for enum values
// whose type cannot be resolved.
var enumGuesses = []sig.ElementType{sig.I4, sig.U1, sig.I2, sig.I8}

// maxAttributePermutations bounds the guesses tried for one blob.
const maxAttributePermutations = 256

// AttributeArgument is a decoded attribute value.
//
// Kind is the serialized kind: a primitive code, sig.String, sig.SerType
// for System.Type, sig.SerEnum or sig.SZArray. Value holds the Go value:
// the sized numeric types, bool, uint16 for Char, string (nil for a null
// string), the type name for System.Type, the underlying integer for
// enums and []AttributeArgument for arrays (nil for a null array).
type AttributeArgument struct {
	Kind     sig.ElementType
	TypeName string
	Value    any
}

// NamedArgument is a field or property assignment of an attribute.
type NamedArgument struct {
	Name    string
	IsField bool
	AttributeArgument
}

// CustomAttribute is a CustomAttribute row.
type CustomAttribute struct {
	module *Module
	rid    uint32
	parent tables.Token
	ctor   tables.Token
	blob   uint32

	value lazyValue[*attributeValue]
}

type attributeValue struct {
	fixed []AttributeArgument
	named []NamedArgument
	err   error
}

func (m *Module) buildCustomAttribute(rid uint32) *CustomAttribute {
	m.noteConstructed(tables.TableCustomAttribute, rid)
	row := m.tables.CustomAttribute[rid-1]
	return &CustomAttribute{module: m, rid: rid, parent: row.Parent, ctor: row.Type, blob: row.Value}
}

func (a *CustomAttribute) RID() uint32          { return a.rid }
func (a *CustomAttribute) Token() tables.Token  { return tables.NewToken(tables.TableCustomAttribute, a.rid) }
func (a *CustomAttribute) Parent() tables.Token { return a.parent }

// Constructor returns the attribute constructor: a *Method or a
// *MemberRef, or nil.
func (a *CustomAttribute) Constructor() any { return a.module.methodDefOrRef(a.ctor) }

// AttributeType returns the type declaring the constructor, or Dummy.
func (a *CustomAttribute) AttributeType() Type {
	switch c := a.Constructor().(type) {
	case *Method:
		if c.owner != nil {
			return c.owner
		}
	case *MemberRef:
		return orDummy(c.DeclaringType())
	}
	return Dummy
}

// FixedArgs returns the constructor arguments.
func (a *CustomAttribute) FixedArgs() []AttributeArgument { return a.decoded().fixed }

// NamedArgs returns the field and property assignments.
func (a *CustomAttribute) NamedArgs() []NamedArgument { return a.decoded().named }

// Err returns the reason the blob could not be decoded, or nil.
func (a *CustomAttribute) Err() error { return a.decoded().err }

func (a *CustomAttribute) constructorParams() ([]Type, error) {
	var ms *MethodSignature
	switch c := a.Constructor().(type) {
	case *Method:
		ms = c.Signature()
	case *MemberRef:
		ms = c.MethodSignature()
	default:
		return nil, fmt.Errorf("%w: constructor %s is invalid", errInvalidAttribute, a.ctor)
	}
	if ms == nil {
		return nil, fmt.Errorf("%w: constructor signature is malformed", errInvalidAttribute)
	}
	return ms.Params, nil
}

func (a *CustomAttribute) decoded() *attributeValue {
	return a.value.get(func() *attributeValue {
		v := a.decode()
		if v.err != nil {
			a.module.diag(DiagDecode, a.Token(), "%v", v.err)
		}
		return v
	})
}

func (a *CustomAttribute) decode() *attributeValue {
	m := a.module
	params, err := a.constructorParams()
	if err != nil {
		return &attributeValue{err: err}
	}
	shapes := make([]argShape, len(params))
	for i, p := range params {
		if shapes[i], err = m.argShapeOf(p); err != nil {
			return &attributeValue{err: err}
		}
	}

	blob, _ := m.tables.Blob(a.blob)
	if len(blob) == 0 && len(shapes) == 0 {
		return &attributeValue{}
	}

	v, err := decodeWithGuesses(m, blob, func(d *attrDecoder) (*attributeValue, error) {
		return d.readAttribute(shapes)
	})
	if err != nil {
		return &attributeValue{err: err}
	}
	return v
}

// argShape is the serialized form of an attribute value.
type argShape struct {
	kind       sig.ElementType
	underlying sig.ElementType // enums; 0 when unknown
	elem       *argShape
	typeName   string
}

func (m *Module) argShapeOf(t Type) (argShape, error) {
	switch v := t.(type) {
	case *PrimitiveType:
		switch {
		case v.element == sig.Object:
			return argShape{kind: sig.SerBoxed}, nil
		case v.element == sig.String:
			return argShape{kind: sig.String}, nil
		case v.element.Size() > 0:
			return argShape{kind: v.element}, nil
		}
	case *VectorType:
		elem, err := m.argShapeOf(v.element)
		if err != nil {
			return argShape{}, err
		}
		return argShape{kind: sig.SZArray, elem: &elem}, nil
	case *TypeDef, *TypeRef:
		switch {
		case isNamed(t, "System", "Type"):
			return argShape{kind: sig.SerType}, nil
		case isNamed(t, "System", "Object"):
			return argShape{kind: sig.SerBoxed}, nil
		case isNamed(t, "System", "String"):
			return argShape{kind: sig.String}, nil
		}
		def := definitionOf(t)
		if def == nil {
			return argShape{kind: sig.SerEnum, typeName: t.FullName()}, nil
		}
		if def.IsEnum() {
			return argShape{kind: sig.SerEnum, underlying: enumUnderlying(def), typeName: t.FullName()}, nil
		}
	}
	return argShape{}, fmt.Errorf("%w: parameter type %s cannot be serialized", errInvalidAttribute, orDummy(t).FullName())
}

func enumUnderlying(def *TypeDef) sig.ElementType {
	if def == nil {
		return 0
	}
	if p, ok := def.EnumUnderlyingType().(*PrimitiveType); ok && p.element.Size() > 0 {
		return p.element
	}
	return 0
}

// attrDecoder reads attribute blobs. Enum values of unknown size take
// their size from guesses, in order of appearance.
type attrDecoder struct {
	m       *Module
	r       *stream.Reader
	guesses []sig.ElementType
	unknown int
}

// decodeWithGuesses runs fn over blob, retrying with every assignment of
// enumGuesses to the unknown enum sizes it met until one consumes the blob
// exactly. Assignments are tried in lexicographic order with the first
// unknown enum most significant. A failed attempt that met k unknown enums
// rules out every assignment sharing its first k guesses.
func decodeWithGuesses[T any](m *Module, blob []byte, fn func(*attrDecoder) (T, error)) (T, error) {
	var guess []int
	var lastErr error
	for attempt := 0; attempt < maxAttributePermutations; attempt++ {
		d := &attrDecoder{m: m, r: stream.NewReader(blob), guesses: make([]sig.ElementType, len(guess))}
		for i, g := range guess {
			d.guesses[i] = enumGuesses[g]
		}

		v, err := fn(d)
		if err == nil && d.r.Remaining() != 0 {
			err = fmt.Errorf("%w: %d trailing bytes", errInvalidAttribute, d.r.Remaining())
		}
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, errInvalidAttribute) {
			err = fmt.Errorf("%w at offset %d: %w", errInvalidAttribute, d.r.Offset(), err)
		}
		lastErr = err

		// Guesses past the last enum reached did not take part.
		for len(guess) < d.unknown {
			guess = append(guess, 0)
		}
		guess = guess[:d.unknown]
		for len(guess) > 0 {
			last := len(guess) - 1
			if guess[last]++; guess[last] < len(enumGuesses) {
				break
			}
			guess = guess[:last]
		}
		if len(guess) == 0 {
			break
		}
	}
	var zero T
	return zero, lastErr
}

func (d *attrDecoder) enumSize(known sig.ElementType) sig.ElementType {
	if known != 0 {
		return known
	}
	i := d.unknown
	d.unknown++
	if i < len(d.guesses) {
		return d.guesses[i]
	}
	return enumGuesses[0]
}

func (d *attrDecoder) readAttribute(shapes []argShape) (*attributeValue, error) {
	prolog, err := d.r.ReadU16()
	if err != nil {
		return nil, err
	}
	if prolog != 0x0001 {
		return nil, fmt.Errorf("%w: prolog 0x%04x", errInvalidAttribute, prolog)
	}

	v := &attributeValue{fixed: make([]AttributeArgument, len(shapes))}
	for i, s := range shapes {
		if v.fixed[i], err = d.readValue(s); err != nil {
			return nil, err
		}
	}

	count, err := d.r.ReadU16()
	if err != nil {
		return nil, err
	}
	if v.named, err = d.readNamedArgs(int(count)); err != nil {
		return nil, err
	}
	return v, nil
}

func (d *attrDecoder) readNamedArgs(count int) ([]NamedArgument, error) {
	if count > d.r.Remaining() {
		return nil, fmt.Errorf("%w: %d named arguments exceed blob", errInvalidAttribute, count)
	}
	out := make([]NamedArgument, 0, count)
	for i := 0; i < count; i++ {
		kind, err := d.r.ReadU8()
		if err != nil {
			return nil, err
		}
		if e := sig.ElementType(kind); e != sig.SerField && e != sig.SerProperty {
			return nil, fmt.Errorf("%w: named argument kind 0x%02x", errInvalidAttribute, kind)
		}
		s, err := d.readFieldOrPropType()
		if err != nil {
			return nil, err
		}
		name, _, err := d.r.ReadSerString()
		if err != nil {
			return nil, err
		}
		arg, err := d.readValue(s)
		if err != nil {
			return nil, err
		}
		out = append(out, NamedArgument{
			Name:              name,
			IsField:           sig.ElementType(kind) == sig.SerField,
			AttributeArgument: arg,
		})
	}
	return out, nil
}

func (d *attrDecoder) readFieldOrPropType() (argShape, error) {
	b, err := d.r.ReadU8()
	if err != nil {
		return argShape{}, err
	}
	e := sig.ElementType(b)
	switch {
	case e.Size() > 0, e == sig.String, e == sig.SerType, e == sig.SerBoxed:
		return argShape{kind: e}, nil
	case e == sig.SZArray:
		elem, err := d.readFieldOrPropType()
		if err != nil {
			return argShape{}, err
		}
		return argShape{kind: sig.SZArray, elem: &elem}, nil
	case e == sig.SerEnum:
		name, _, err := d.r.ReadSerString()
		if err != nil {
			return argShape{}, err
		}
		return argShape{kind: sig.SerEnum, underlying: enumUnderlying(d.m.findTypeByName(name)), typeName: name}, nil
	}
	return argShape{}, fmt.Errorf("%w: field or property type 0x%02x", errInvalidAttribute, b)
}

func (d *attrDecoder) readValue(s argShape) (AttributeArgument, error) {
	arg := AttributeArgument{Kind: s.kind, TypeName: s.typeName}
	var err error

	switch s.kind {
	case sig.String, sig.SerType:
		str, ok, rerr := d.r.ReadSerString()
		if ok {
			arg.Value = str
		}
		err = rerr

	case sig.SerEnum:
		arg.Value, err = readPrimitive(d.r, d.enumSize(s.underlying))

	case sig.SerBoxed:
		inner, terr := d.readFieldOrPropType()
		if terr != nil {
			return arg, terr
		}
		return d.readValue(inner)

	case sig.SZArray:
		n, rerr := d.r.ReadU32()
		if rerr != nil {
			return arg, rerr
		}
		if n == 0xFFFFFFFF {
			return arg, nil
		}
		if int64(n) > int64(d.r.Remaining()) {
			return arg, fmt.Errorf("%w: array of %d elements exceeds blob", errInvalidAttribute, n)
		}
		elems := make([]AttributeArgument, n)
		for i := range elems {
			if elems[i], err = d.readValue(*s.elem); err != nil {
				return arg, err
			}
		}
		arg.Value = elems

	default:
		arg.Value, err = readPrimitive(d.r, s.kind)
	}
	return arg, err
}

// findTypeByName resolves a serialized type name such as
// "Ns.Outer+Inner, Assembly, Version=1.0.0.0" to a definition, searching
// the named assembly, or the module and then the core assembly.
func (m *Module) findTypeByName(name string) *TypeDef {
	typeName, asmName, qualified := strings.Cut(name, ",")
	typeName = strings.TrimSpace(typeName)

	var candidates []*Module
	if qualified {
		asmName, _, _ = strings.Cut(asmName, ",")
		if target, err := m.host.resolveAssembly(AssemblyIdentity{Name: strings.TrimSpace(asmName)}, m.dir()); err == nil {
			candidates = append(candidates, target)
		}
	} else {
		candidates = append(candidates, m)
		if core := m.CoreAssemblyIdentity(); !core.IsUnknown() {
			if target, err := m.host.resolveAssembly(core, m.dir()); err == nil && target != m {
				candidates = append(candidates, target)
			}
		}
	}

	parts := strings.Split(typeName, "+")
	ns, top := mangle.SplitNamespace(parts[0])
	for _, c := range candidates {
		td := c.resolveDefinition(c.host.names.GetOrCreate(ns).Key(), c.host.names.GetOrCreate(top).Key(), newResolveState())
		for _, nested := range parts[1:] {
			if td == nil {
				break
			}
			td = td.FindNestedType(nested)
		}
		if td != nil {
			return td
		}
	}
	return nil
}
