package clr

import (
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// GenericParamAttributes flags.
const (
	GenericVarianceMask          uint16 = 0x0003
	GenericCovariant             uint16 = 0x0001
	GenericContravariant         uint16 = 0x0002
	GenericReferenceTypeRequired uint16 = 0x0004
	GenericValueTypeRequired     uint16 = 0x0008
	GenericDefaultConstructor    uint16 = 0x0010
)

// GenericParam is a generic parameter declared by a type or a method.
// Each GenericParam row is built once, whether reached through its type
// or its method.
type GenericParam struct {
	module *Module
	rid    uint32
	number uint16
	flags  uint16
	name   *Name
	owner  tables.Token

	ownerType   *TypeDef
	ownerMethod *Method
	key         uint32

	constraints lazyValue[[]Type]
}

func (m *Module) buildGenericParam(rid uint32) *GenericParam {
	m.noteConstructed(tables.TableGenericParam, rid)
	row := m.tables.GenericParam[rid-1]
	gp := &GenericParam{
		module: m,
		rid:    rid,
		number: row.Number,
		flags:  row.Flags,
		name:   m.names.Name(row.Name),
		owner:  row.Owner,
	}

	switch row.Owner.Table() {
	case tables.TableTypeDef:
		gp.ownerType = m.TypeDef(row.Owner.RID())
		if gp.ownerType != nil {
			gp.key = m.host.keys.fixedKey(fixedKey{kind: keyTypeParam, a: gp.ownerType.Key(), b: uint32(row.Number)})
		}
	case tables.TableMethodDef:
		gp.ownerMethod = m.Method(row.Owner.RID())
		if gp.ownerMethod != nil {
			gp.ownerType = gp.ownerMethod.DeclaringType()
			gp.key = m.host.keys.fixedKey(fixedKey{kind: keyMethodParam, a: gp.ownerMethod.Key(), b: uint32(row.Number)})
		}
	}
	if gp.ownerType == nil && gp.ownerMethod == nil {
		m.diag(DiagStructural, gp.Token(), "generic parameter owner %s is invalid", row.Owner)
	}
	return gp
}

func (p *GenericParam) Kind() TypeKind      { return TypeKindGenericParam }
func (p *GenericParam) Name() string        { return p.name.String() }
func (p *GenericParam) FullName() string    { return p.name.String() }
func (p *GenericParam) Key() uint32         { return p.key }
func (p *GenericParam) RID() uint32         { return p.rid }
func (p *GenericParam) Token() tables.Token { return tables.NewToken(tables.TableGenericParam, p.rid) }
func (p *GenericParam) Number() uint16      { return p.number }
func (p *GenericParam) Flags() uint16       { return p.flags }
func (p *GenericParam) Owner() tables.Token { return p.owner }

// DeclaringType returns the type declaring the parameter, or the method's
// declaring type for method parameters.
func (p *GenericParam) DeclaringType() *TypeDef { return p.ownerType }

// DeclaringMethod returns the declaring method, or nil for type parameters.
func (p *GenericParam) DeclaringMethod() *Method { return p.ownerMethod }

// IsMethodParam reports whether a method declares the parameter.
func (p *GenericParam) IsMethodParam() bool { return p.owner.Table() == tables.TableMethodDef }

// Constraints returns the constraint types of the parameter.
func (p *GenericParam) Constraints() []Type {
	return p.constraints.get(func() []Type {
		toks := p.module.sideTables().constraints[p.rid]
		ctx := &sigContext{definition: true}
		if p.ownerType != nil {
			ctx.typeParams = p.ownerType.GenericParams()
		}
		if p.ownerMethod != nil {
			ctx.methodParams = p.ownerMethod.GenericParams()
		}
		d := p.module.newDecoder(nil, ctx)
		out := make([]Type, 0, len(toks))
		for _, tok := range toks {
			out = append(out, orDummy(d.typeFromToken(tok)))
		}
		return out
	})
}
