package clr

import (
	"fmt"
	"strings"

	"github.com/skdltmxn/clrmeta-go/internal/mangle"
	"github.com/skdltmxn/clrmeta-go/internal/names"
	"github.com/skdltmxn/clrmeta-go/internal/sig"
)

// Name is an interned identifier.
type Name = names.Name

// TypeKind identifies the category of a type.
type TypeKind uint8

const (
	TypeKindUnknown TypeKind = iota
	TypeKindDefinition
	TypeKindReference
	TypeKindUnresolved
	TypeKindPrimitive
	TypeKindPointer
	TypeKindByRef
	TypeKindVector
	TypeKindArray
	TypeKindGenericInstance
	TypeKindGenericParam
	TypeKindSignatureParam
	TypeKindFunctionPointer
	TypeKindModified
	TypeKindPinned
	TypeKindDummy
)

func (k TypeKind) String() string {
	switch k {
	case TypeKindDefinition:
		return "definition"
	case TypeKindReference:
		return "reference"
	case TypeKindUnresolved:
		return "unresolved"
	case TypeKindPrimitive:
		return "primitive"
	case TypeKindPointer:
		return "pointer"
	case TypeKindByRef:
		return "byref"
	case TypeKindVector:
		return "vector"
	case TypeKindArray:
		return "array"
	case TypeKindGenericInstance:
		return "generic_instance"
	case TypeKindGenericParam:
		return "generic_param"
	case TypeKindSignatureParam:
		return "signature_param"
	case TypeKindFunctionPointer:
		return "function_pointer"
	case TypeKindModified:
		return "modified"
	case TypeKindPinned:
		return "pinned"
	case TypeKindDummy:
		return "dummy"
	default:
		return "unknown"
	}
}

// Type is implemented by every type the engine produces.
type Type interface {
	// Kind returns the type kind.
	Kind() TypeKind

	// Name returns the simple name. Generic definitions keep their arity
	// suffix.
	Name() string

	// FullName returns the display name including namespace, enclosing
	// types and type arguments.
	FullName() string

	// Key returns the intern key of the type, or 0 when no stable key can be
	// computed yet.
	Key() uint32
}

// IsResolved reports whether t is a real type rather than a placeholder.
func IsResolved(t Type) bool {
	return t != nil && t.Kind() != TypeKindDummy
}

// orDummy substitutes Dummy for a missing type.
func orDummy(t Type) Type {
	if t == nil {
		return Dummy
	}
	return t
}

// DummyType stands in for a type that could not be decoded or resolved.
type DummyType struct{}

// Dummy is the well-known placeholder for unresolvable types.
var Dummy = &DummyType{}

func (*DummyType) Kind() TypeKind   { return TypeKindDummy }
func (*DummyType) Name() string     { return "<dummy>" }
func (*DummyType) FullName() string { return "<dummy>" }
func (*DummyType) Key() uint32      { return 0 }

// PrimitiveType is a built-in type encoded by a single element type code.
// Each module holds one instance per code, named after the System type
// the core assembly defines for it.
type PrimitiveType struct {
	module  *Module
	element sig.ElementType
	name    string
	key     uint32
	def     lazyValue[*TypeDef]
}

func (t *PrimitiveType) Kind() TypeKind               { return TypeKindPrimitive }
func (t *PrimitiveType) Name() string                 { return t.name }
func (t *PrimitiveType) FullName() string             { return "System." + t.name }
func (t *PrimitiveType) Key() uint32                  { return t.key }
func (t *PrimitiveType) ElementType() sig.ElementType { return t.element }

// Definition returns the core assembly's definition of the type, or nil.
func (t *PrimitiveType) Definition() *TypeDef {
	return t.def.get(func() *TypeDef {
		return t.module.coreTypeDefinition("System", t.name)
	})
}

// PointerType is an unmanaged pointer.
type PointerType struct {
	element Type
	key     uint32
}

func (t *PointerType) Kind() TypeKind   { return TypeKindPointer }
func (t *PointerType) Name() string     { return t.element.Name() + "*" }
func (t *PointerType) FullName() string { return t.element.FullName() + "*" }
func (t *PointerType) Key() uint32      { return t.key }
func (t *PointerType) Element() Type    { return t.element }

// ByRefType is a managed reference.
type ByRefType struct {
	element Type
	key     uint32
}

func (t *ByRefType) Kind() TypeKind   { return TypeKindByRef }
func (t *ByRefType) Name() string     { return t.element.Name() + "&" }
func (t *ByRefType) FullName() string { return t.element.FullName() + "&" }
func (t *ByRefType) Key() uint32      { return t.key }
func (t *ByRefType) Element() Type    { return t.element }

// VectorType is a single-dimensional, zero-based array.
type VectorType struct {
	element Type
	key     uint32
}

func (t *VectorType) Kind() TypeKind   { return TypeKindVector }
func (t *VectorType) Name() string     { return t.element.Name() + "[]" }
func (t *VectorType) FullName() string { return t.element.FullName() + "[]" }
func (t *VectorType) Key() uint32      { return t.key }
func (t *VectorType) Element() Type    { return t.element }

// ArrayType is a general array with explicit rank, sizes and lower bounds.
type ArrayType struct {
	element     Type
	rank        uint32
	sizes       []uint32
	lowerBounds []int32
	key         uint32
}

func (t *ArrayType) Kind() TypeKind       { return TypeKindArray }
func (t *ArrayType) Name() string         { return t.element.Name() + t.suffix() }
func (t *ArrayType) FullName() string     { return t.element.FullName() + t.suffix() }
func (t *ArrayType) Key() uint32          { return t.key }
func (t *ArrayType) Element() Type        { return t.element }
func (t *ArrayType) Rank() uint32         { return t.rank }
func (t *ArrayType) Sizes() []uint32      { return t.sizes }
func (t *ArrayType) LowerBounds() []int32 { return t.lowerBounds }

func (t *ArrayType) suffix() string {
	dims := make([]string, t.rank)
	for i := range dims {
		var lo int32
		if i < len(t.lowerBounds) {
			lo = t.lowerBounds[i]
		}
		switch {
		case i < len(t.sizes):
			dims[i] = fmt.Sprintf("%d...%d", lo, int64(lo)+int64(t.sizes[i])-1)
		case i < len(t.lowerBounds):
			dims[i] = fmt.Sprintf("%d...", lo)
		}
	}
	return "[" + strings.Join(dims, ",") + "]"
}

// GenericInstance is a generic type bound to type arguments.
type GenericInstance struct {
	template  Type
	args      []Type
	valueType bool
	key       uint32
}

func (t *GenericInstance) Kind() TypeKind    { return TypeKindGenericInstance }
func (t *GenericInstance) Name() string      { return mangle.Generic(t.template.Name(), typeNames(t.args, Type.Name)) }
func (t *GenericInstance) FullName() string  { return mangle.Generic(t.template.FullName(), typeNames(t.args, Type.FullName)) }
func (t *GenericInstance) Key() uint32       { return t.key }
func (t *GenericInstance) Template() Type    { return t.template }
func (t *GenericInstance) Args() []Type      { return t.args }
func (t *GenericInstance) IsValueType() bool { return t.valueType }

// TemplateDefinition returns the definition of the generic template, or
// nil when it cannot be resolved.
func (t *GenericInstance) TemplateDefinition() *TypeDef {
	return definitionOf(t.template)
}

func typeNames(types []Type, name func(Type) string) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = name(t)
	}
	return out
}

// SignatureParam is a generic parameter reference that could not be bound
// to a definition while decoding: either the signature belongs to a member
// reference, or it was decoded without context.
type SignatureParam struct {
	ordinal uint32
	method  bool
	owner   *MemberRef
	key     uint32
}

func (t *SignatureParam) Kind() TypeKind { return TypeKindSignatureParam }

func (t *SignatureParam) Name() string {
	if t.method {
		return fmt.Sprintf("!!%d", t.ordinal)
	}
	return fmt.Sprintf("!%d", t.ordinal)
}

func (t *SignatureParam) FullName() string    { return t.Name() }
func (t *SignatureParam) Key() uint32         { return t.key }
func (t *SignatureParam) Ordinal() uint32     { return t.ordinal }
func (t *SignatureParam) IsMethodParam() bool { return t.method }

// Owner returns the member reference the parameter was decoded for, or nil
// for context-free signatures.
func (t *SignatureParam) Owner() *MemberRef { return t.owner }

// Resolve binds the parameter to the generic parameter it denotes, once the
// owning reference resolves to a definition. It returns nil otherwise.
func (t *SignatureParam) Resolve() *GenericParam {
	if t.owner == nil {
		return nil
	}
	if t.method {
		m := t.owner.ResolveMethod()
		if m == nil {
			return nil
		}
		return genericParamAt(m.GenericParams(), t.ordinal)
	}
	td := definitionOf(t.owner.declaringType())
	if td == nil {
		return nil
	}
	return genericParamAt(td.GenericParams(), t.ordinal)
}

func genericParamAt(params []*GenericParam, ordinal uint32) *GenericParam {
	if int(ordinal) < len(params) {
		return params[ordinal]
	}
	return nil
}

// FunctionPointerType is a pointer to a method with the given signature.
type FunctionPointerType struct {
	signature *MethodSignature
	key       uint32
}

func (t *FunctionPointerType) Kind() TypeKind              { return TypeKindFunctionPointer }
func (t *FunctionPointerType) Name() string                { return "method " + t.signature.String() }
func (t *FunctionPointerType) FullName() string            { return t.Name() }
func (t *FunctionPointerType) Key() uint32                 { return t.key }
func (t *FunctionPointerType) Signature() *MethodSignature { return t.signature }

// ModifiedType is a type carrying a custom modifier.
type ModifiedType struct {
	modifier Type
	required bool
	inner    Type
	key      uint32
}

func (t *ModifiedType) Kind() TypeKind { return TypeKindModified }
func (t *ModifiedType) Name() string   { return t.inner.Name() + t.suffix(Type.Name) }
func (t *ModifiedType) FullName() string {
	return t.inner.FullName() + t.suffix(Type.FullName)
}
func (t *ModifiedType) Key() uint32      { return t.key }
func (t *ModifiedType) Modifier() Type   { return t.modifier }
func (t *ModifiedType) IsRequired() bool { return t.required }
func (t *ModifiedType) Inner() Type      { return t.inner }

func (t *ModifiedType) suffix(name func(Type) string) string {
	if t.required {
		return " modreq(" + name(t.modifier) + ")"
	}
	return " modopt(" + name(t.modifier) + ")"
}

// PinnedType marks a pinned local variable.
type PinnedType struct {
	inner Type
	key   uint32
}

func (t *PinnedType) Kind() TypeKind   { return TypeKindPinned }
func (t *PinnedType) Name() string     { return t.inner.Name() + " pinned" }
func (t *PinnedType) FullName() string { return t.inner.FullName() + " pinned" }
func (t *PinnedType) Key() uint32      { return t.key }
func (t *PinnedType) Inner() Type      { return t.inner }

// UnresolvedType is a structural reference to a named type whose
// definition could not be located.
type UnresolvedType struct {
	assembly  AssemblyIdentity
	namespace string
	name      string
	enclosing Type
	key       uint32
}

func (t *UnresolvedType) Kind() TypeKind { return TypeKindUnresolved }
func (t *UnresolvedType) Name() string   { return t.name }

func (t *UnresolvedType) FullName() string {
	if t.enclosing != nil {
		return mangle.JoinNested(t.enclosing.FullName(), t.name)
	}
	return mangle.JoinNamespace(t.namespace, t.name)
}

func (t *UnresolvedType) Key() uint32                { return t.key }
func (t *UnresolvedType) Namespace() string          { return t.namespace }
func (t *UnresolvedType) Enclosing() Type            { return t.enclosing }
func (t *UnresolvedType) Assembly() AssemblyIdentity { return t.assembly }

// definitionOf returns the definition behind a named type, or nil.
func definitionOf(t Type) *TypeDef {
	switch v := t.(type) {
	case *TypeDef:
		return v
	case *TypeRef:
		return v.Definition()
	case *PrimitiveType:
		return v.Definition()
	case *GenericInstance:
		return definitionOf(v.template)
	}
	return nil
}
