package clr

import (
	"fmt"

	"github.com/skdltmxn/clrmeta-go/internal/heap"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// SecurityAction is the DeclSecurity action code.
type SecurityAction uint16

// Security actions.
const (
	SecurityRequest           SecurityAction = 0x0001
	SecurityDemand            SecurityAction = 0x0002
	SecurityAssert            SecurityAction = 0x0003
	SecurityDeny              SecurityAction = 0x0004
	SecurityPermitOnly        SecurityAction = 0x0005
	SecurityLinkDemand        SecurityAction = 0x0006
	SecurityInheritanceDemand SecurityAction = 0x0007
	SecurityRequestMinimum    SecurityAction = 0x0008
	SecurityRequestOptional   SecurityAction = 0x0009
	SecurityRequestRefuse     SecurityAction = 0x000A
)

var securityActionNames = [...]string{
	"", "Request", "Demand", "Assert", "Deny", "PermitOnly", "LinkDemand",
	"InheritanceDemand", "RequestMinimum", "RequestOptional", "RequestRefuse",
}

func (a SecurityAction) String() string {
	if int(a) < len(securityActionNames) && a != 0 {
		return securityActionNames[a]
	}
	return fmt.Sprintf("Action(0x%04X)", uint16(a))
}

// binaryPermissionSet is the first byte of a binary permission set blob.
const binaryPermissionSet = '.'

// Permission is one entry of a binary permission set.
type Permission struct {
	TypeName  string
	NamedArgs []NamedArgument
}

// SecurityAttribute is a DeclSecurity row.
type SecurityAttribute struct {
	module *Module
	rid    uint32
	action SecurityAction
	parent tables.Token
	blob   uint32

	permissions lazyValue[*permissionSet]
}

type permissionSet struct {
	perms []Permission
	err   error
}

func (m *Module) buildSecurityAttribute(rid uint32) *SecurityAttribute {
	m.noteConstructed(tables.TableDeclSecurity, rid)
	row := m.tables.DeclSecurity[rid-1]
	return &SecurityAttribute{
		module: m,
		rid:    rid,
		action: SecurityAction(row.Action),
		parent: row.Parent,
		blob:   row.PermissionSet,
	}
}

func (s *SecurityAttribute) RID() uint32            { return s.rid }
func (s *SecurityAttribute) Token() tables.Token    { return tables.NewToken(tables.TableDeclSecurity, s.rid) }
func (s *SecurityAttribute) Action() SecurityAction { return s.action }
func (s *SecurityAttribute) Parent() tables.Token   { return s.parent }

func (s *SecurityAttribute) raw() []byte {
	b, _ := s.module.tables.Blob(s.blob)
	return b
}

// IsXML reports whether the permission set is stored as UTF-16 XML.
func (s *SecurityAttribute) IsXML() bool {
	b := s.raw()
	return len(b) > 0 && b[0] != binaryPermissionSet
}

// XML returns the permission set text of an XML permission set.
func (s *SecurityAttribute) XML() (string, error) {
	if !s.IsXML() {
		return "", fmt.Errorf("%w: permission set is binary", errInvalidAttribute)
	}
	return heap.DecodeUTF16(s.raw())
}

// Permissions decodes a binary permission set. XML sets yield nil.
func (s *SecurityAttribute) Permissions() ([]Permission, error) {
	ps := s.permissions.get(func() *permissionSet {
		if s.IsXML() {
			return &permissionSet{}
		}
		perms, err := decodeWithGuesses(s.module, s.raw(), readPermissionSet)
		if err != nil {
			s.module.diag(DiagDecode, s.Token(), "%v", err)
		}
		return &permissionSet{perms: perms, err: err}
	})
	return ps.perms, ps.err
}

func readPermissionSet(d *attrDecoder) ([]Permission, error) {
	marker, err := d.r.ReadU8()
	if err != nil {
		return nil, err
	}
	if marker != binaryPermissionSet {
		return nil, fmt.Errorf("%w: permission set marker 0x%02x", errInvalidAttribute, marker)
	}
	count, err := d.r.ReadCompressedU32()
	if err != nil {
		return nil, err
	}
	if int64(count) > int64(d.r.Remaining()) {
		return nil, fmt.Errorf("%w: %d permissions exceed blob", errInvalidAttribute, count)
	}

	perms := make([]Permission, 0, count)
	for i := uint32(0); i < count; i++ {
		name, _, err := d.r.ReadSerString()
		if err != nil {
			return nil, err
		}
		size, err := d.r.ReadCompressedU32()
		if err != nil {
			return nil, err
		}
		body, err := d.r.ReadBytesRef(int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: permission %s body of %d bytes exceeds blob", errInvalidAttribute, name, size)
		}
		args, err := d.readPermissionBody(body)
		if err != nil {
			return nil, err
		}
		perms = append(perms, Permission{TypeName: name, NamedArgs: args})
	}
	return perms, nil
}

// readPermissionBody decodes the named arguments of one permission. The
// body must be consumed exactly.
func (d *attrDecoder) readPermissionBody(body []byte) ([]NamedArgument, error) {
	sub := &attrDecoder{m: d.m, r: stream.NewReader(body), guesses: d.guesses, unknown: d.unknown}
	defer func() { d.unknown = sub.unknown }()

	n, err := sub.r.ReadCompressedU32()
	if err != nil {
		return nil, err
	}
	args, err := sub.readNamedArgs(int(n))
	if err != nil {
		return nil, err
	}
	if sub.r.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in permission body", errInvalidAttribute, sub.r.Remaining())
	}
	return args, nil
}
