// Package sig defines the element type codes and calling conventions of the
// metadata signature grammar.
package sig

import (
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// ElementType is a signature element type code.
type ElementType uint8

// Element type codes.
const (
	End         ElementType = 0x00
	Void        ElementType = 0x01
	Boolean     ElementType = 0x02
	Char        ElementType = 0x03
	I1          ElementType = 0x04
	U1          ElementType = 0x05
	I2          ElementType = 0x06
	U2          ElementType = 0x07
	I4          ElementType = 0x08
	U4          ElementType = 0x09
	I8          ElementType = 0x0A
	U8          ElementType = 0x0B
	R4          ElementType = 0x0C
	R8          ElementType = 0x0D
	String      ElementType = 0x0E
	Ptr         ElementType = 0x0F
	ByRef       ElementType = 0x10
	ValueType   ElementType = 0x11
	Class       ElementType = 0x12
	Var         ElementType = 0x13
	Array       ElementType = 0x14
	GenericInst ElementType = 0x15
	TypedByRef  ElementType = 0x16
	I           ElementType = 0x18
	U           ElementType = 0x19
	FnPtr       ElementType = 0x1B
	Object      ElementType = 0x1C
	SZArray     ElementType = 0x1D
	MVar        ElementType = 0x1E
	CModReqd    ElementType = 0x1F
	CModOpt     ElementType = 0x20
	Internal    ElementType = 0x21
	Modifier    ElementType = 0x40
	Sentinel    ElementType = 0x41
	Pinned      ElementType = 0x45

	// Custom attribute serialization codes.
	SerType     ElementType = 0x50
	SerBoxed    ElementType = 0x51
	SerField    ElementType = 0x53
	SerProperty ElementType = 0x54
	SerEnum     ElementType = 0x55
)

var primitiveNames = map[ElementType]string{
	Void:       "Void",
	Boolean:    "Boolean",
	Char:       "Char",
	I1:         "SByte",
	U1:         "Byte",
	I2:         "Int16",
	U2:         "UInt16",
	I4:         "Int32",
	U4:         "UInt32",
	I8:         "Int64",
	U8:         "UInt64",
	R4:         "Single",
	R8:         "Double",
	String:     "String",
	TypedByRef: "TypedReference",
	I:          "IntPtr",
	U:          "UIntPtr",
	Object:     "Object",
}

// PrimitiveName returns the System type name of a primitive element type.
func PrimitiveName(e ElementType) (string, bool) {
	n, ok := primitiveNames[e]
	return n, ok
}

// PrimitiveByName returns the element type of a System primitive type name.
func PrimitiveByName(name string) (ElementType, bool) {
	for e, n := range primitiveNames {
		if n == name {
			return e, true
		}
	}
	return 0, false
}

// IsPrimitive reports whether e names one of the System primitive types.
func (e ElementType) IsPrimitive() bool {
	_, ok := primitiveNames[e]
	return ok
}

// Size returns the byte width of fixed-size primitive values, or 0.
func (e ElementType) Size() int {
	switch e {
	case Boolean, I1, U1:
		return 1
	case Char, I2, U2:
		return 2
	case I4, U4, R4:
		return 4
	case I8, U8, R8:
		return 8
	}
	return 0
}

// Calling convention bits of a signature's leading byte.
const (
	CallDefault      uint8 = 0x00
	CallC            uint8 = 0x01
	CallStdCall      uint8 = 0x02
	CallThisCall     uint8 = 0x03
	CallFastCall     uint8 = 0x04
	CallVarArg       uint8 = 0x05
	CallField        uint8 = 0x06
	CallLocalSig     uint8 = 0x07
	CallProperty     uint8 = 0x08
	CallUnmanaged    uint8 = 0x09
	CallGenericInst  uint8 = 0x0A
	CallKindMask     uint8 = 0x0F
	CallGeneric      uint8 = 0x10
	CallHasThis      uint8 = 0x20
	CallExplicitThis uint8 = 0x40
)

var typeDefOrRefTables = [3]tables.TableID{tables.TableTypeDef, tables.TableTypeRef, tables.TableTypeSpec}

// ReadTypeDefOrRef reads a compressed TypeDefOrRef token as used inside
// signature blobs. An invalid tag yields the null token.
func ReadTypeDefOrRef(r *stream.Reader) (tables.Token, error) {
	v, err := r.ReadCompressedU32()
	if err != nil {
		return 0, err
	}
	tag := v & 3
	if tag == 3 {
		return 0, nil
	}
	return tables.NewToken(typeDefOrRefTables[tag], v>>2), nil
}

// AppendTypeDefOrRef encodes tok the way ReadTypeDefOrRef reads it.
func AppendTypeDefOrRef(b []byte, tok tables.Token) []byte {
	var tag uint32
	switch tok.Table() {
	case tables.TableTypeRef:
		tag = 1
	case tables.TableTypeSpec:
		tag = 2
	}
	return stream.AppendCompressedU32(b, tok.RID()<<2|tag)
}
