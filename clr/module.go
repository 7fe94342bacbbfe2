package clr

import (
	"fmt"
	"iter"
	"path/filepath"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/skdltmxn/clrmeta-go/internal/names"
	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
	"github.com/skdltmxn/clrmeta-go/pe"
)

// Module is one loaded metadata container: an assembly's manifest module
// or a module that belongs to an assembly. It is safe for concurrent use.
type Module struct {
	host   *Host
	tables *tables.Tables
	names  *names.HeapNames
	log    *zap.Logger
	path   string
	image  *pe.File

	name       *Name
	mvid       [16]byte
	assembly   *AssemblyIdentity
	owner      *Module
	asmNameKey uint32
	key        uint32

	idx        *indexes
	namespaces map[uint32]*Namespace

	typeDefs         *slotTable[*TypeDef]
	typeRefs         *slotTable[*TypeRef]
	typeSpecs        *slotTable[Type]
	fields           *slotTable[*Field]
	methods          *slotTable[*Method]
	params           *slotTable[*Param]
	events           *slotTable[*Event]
	properties       *slotTable[*Property]
	genericParams    *slotTable[*GenericParam]
	memberRefs       *slotTable[*MemberRef]
	unspecMemberRefs *slotTable[*MemberRef]
	methodSpecs      *slotTable[*MethodSpec]
	exportedTypes    *slotTable[*ExportedType]
	customAttributes *slotTable[*CustomAttribute]
	securityAttrs    *slotTable[*SecurityAttribute]
	assemblyRefs     *slotTable[*AssemblyRef]
	moduleRefs       *slotTable[*ModuleRef]
	standAloneSigs   *slotTable[*StandAloneSig]

	specialized *xsync.MapOf[specializationKey, *MemberRef]
	instances   *xsync.MapOf[uint32, Type]
	primitives  [sig.Object + 1]lazyValue[*PrimitiveType]
	siblings    *xsync.MapOf[string, *Module]

	coreOnce sync.Once
	core     AssemblyIdentity

	sideOnce sync.Once
	side     *sideTables

	filesOnce     sync.Once
	files         []*FileRef
	resourcesOnce sync.Once
	resources     []*ManifestResource

	diagMu sync.Mutex
	diags  []Diagnostic

	// constructed observes every slot construction; used by tests.
	constructed func(table tables.TableID, rid uint32)
}

func newModule(h *Host, t *tables.Tables, path string, image *pe.File, owner *Module) (*Module, error) {
	if len(t.Module) == 0 {
		return nil, ErrNoModuleRow
	}

	m := &Module{
		host:        h,
		tables:      t,
		names:       names.NewHeapNames(t.Strings, h.names),
		log:         h.log,
		path:        path,
		image:       image,
		owner:       owner,
		namespaces:  make(map[uint32]*Namespace),
		specialized: xsync.NewMapOf[specializationKey, *MemberRef](),
		instances:   xsync.NewMapOf[uint32, Type](),
		siblings:    xsync.NewMapOf[string, *Module](),
	}

	row := t.Module[0]
	m.name = m.names.Name(row.Name)
	m.mvid = t.GUIDs.GUID(row.Mvid)
	m.log = h.log.With(zap.String("module", m.name.String()))

	if len(t.Assembly) > 0 {
		a := t.Assembly[0]
		blob, _ := t.Blob(a.PublicKey)
		m.assembly = &AssemblyIdentity{
			Name:           t.String(a.Name),
			Version:        Version{a.MajorVersion, a.MinorVersion, a.BuildNumber, a.RevisionNumber},
			Culture:        t.String(a.Culture),
			PublicKeyToken: TokenFromPublicKey(blob),
		}
	}

	asmName := strings.TrimSuffix(m.name.String(), filepath.Ext(m.name.String()))
	switch {
	case m.assembly != nil:
		asmName = m.assembly.Name
	case owner != nil && owner.assembly != nil:
		asmName = owner.assembly.Name
	}
	m.asmNameKey = h.assemblyNameKey(asmName)
	if m.assembly != nil {
		m.key = h.identityKey(*m.assembly)
	} else {
		m.key = h.keys.composite(keyModule, h.names.GetOrCreate(simpleNameKey(m.name.String())).Key(), m.asmNameKey)
	}

	m.namespaceFor("")
	m.buildIndexes()

	m.typeDefs = newSlotTable(uint32(len(t.TypeDef)), m.buildTypeDef)
	m.typeRefs = newSlotTable(uint32(len(t.TypeRef)), m.buildTypeRef)
	m.typeSpecs = newSlotTable(uint32(len(t.TypeSpec)), m.buildTypeSpec)
	m.fields = newSlotTable(uint32(len(t.Field)), m.buildField)
	m.methods = newSlotTable(uint32(len(t.MethodDef)), m.buildMethod)
	m.params = newSlotTable(uint32(len(t.Param)), m.buildParam)
	m.events = newSlotTable(uint32(len(t.Event)), m.buildEvent)
	m.properties = newSlotTable(uint32(len(t.Property)), m.buildProperty)
	m.genericParams = newSlotTable(uint32(len(t.GenericParam)), m.buildGenericParam)
	m.memberRefs = newSlotTable(uint32(len(t.MemberRef)), m.buildMemberRef)
	m.unspecMemberRefs = newSlotTable(uint32(len(t.MemberRef)), m.buildUnspecializedMemberRef)
	m.methodSpecs = newSlotTable(uint32(len(t.MethodSpec)), m.buildMethodSpec)
	m.exportedTypes = newSlotTable(uint32(len(t.ExportedType)), m.buildExportedType)
	m.customAttributes = newSlotTable(uint32(len(t.CustomAttribute)), m.buildCustomAttribute)
	m.securityAttrs = newSlotTable(uint32(len(t.DeclSecurity)), m.buildSecurityAttribute)
	m.assemblyRefs = newSlotTable(uint32(len(t.AssemblyRef)), m.buildAssemblyRef)
	m.moduleRefs = newSlotTable(uint32(len(t.ModuleRef)), m.buildModuleRef)
	m.standAloneSigs = newSlotTable(uint32(len(t.StandAloneSig)), m.buildStandAloneSig)

	return m, nil
}

// Name returns the module name from the Module row.
func (m *Module) Name() string { return m.name.String() }

// Path returns the file the module was loaded from, if any.
func (m *Module) Path() string { return m.path }

// MVID returns the module version id.
func (m *Module) MVID() [16]byte { return m.mvid }

// Key returns the intern key of the module identity.
func (m *Module) Key() uint32 { return m.key }

// Host returns the host that loaded the module.
func (m *Module) Host() *Host { return m.host }

// Image returns the PE image backing the module, or nil for modules loaded
// from in-memory tables.
func (m *Module) Image() *pe.File { return m.image }

// IsAssembly reports whether the module carries an assembly manifest.
func (m *Module) IsAssembly() bool { return m.assembly != nil }

// Assembly returns the identity of the assembly the module belongs to.
// ok is false when it is unknown.
func (m *Module) Assembly() (id AssemblyIdentity, ok bool) {
	switch {
	case m.assembly != nil:
		return *m.assembly, true
	case m.owner != nil:
		return m.owner.Assembly()
	}
	return UnknownAssemblyIdentity, false
}

// ManifestModule returns the module holding the assembly manifest: the
// module itself for assemblies, the owning module for netmodules, or nil.
func (m *Module) ManifestModule() *Module {
	if m.assembly != nil {
		return m
	}
	return m.owner
}

// RowCount returns the number of rows of a metadata table.
func (m *Module) RowCount(table tables.TableID) uint32 {
	return m.tables.RowCount(table)
}

// Diagnostics returns a snapshot of the irregularities recorded so far.
func (m *Module) Diagnostics() []Diagnostic {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	out := make([]Diagnostic, len(m.diags))
	copy(out, m.diags)
	return out
}

func (m *Module) diag(kind DiagnosticKind, tok tables.Token, format string, args ...any) {
	d := Diagnostic{Kind: kind, Token: tok, Message: fmt.Sprintf(format, args...)}
	m.diagMu.Lock()
	m.diags = append(m.diags, d)
	m.diagMu.Unlock()

	m.log.Warn("metadata irregularity",
		zap.Stringer("kind", kind),
		zap.Stringer("token", tok),
		zap.String("message", d.Message))
}

func (m *Module) noteConstructed(table tables.TableID, rid uint32) {
	if m.constructed != nil {
		m.constructed(table, rid)
	}
}

// Slot accessors. Each returns nil for row ids outside the table.

// TypeDef returns the type definition of row rid.
func (m *Module) TypeDef(rid uint32) *TypeDef { v, _ := m.typeDefs.get(rid); return v }

// TypeRef returns the type reference of row rid.
func (m *Module) TypeRef(rid uint32) *TypeRef { v, _ := m.typeRefs.get(rid); return v }

// TypeSpec returns the context-free decoding of TypeSpec row rid.
func (m *Module) TypeSpec(rid uint32) Type { v, _ := m.typeSpecs.get(rid); return v }

// Field returns the field of row rid.
func (m *Module) Field(rid uint32) *Field { v, _ := m.fields.get(rid); return v }

// Method returns the method of row rid.
func (m *Module) Method(rid uint32) *Method { v, _ := m.methods.get(rid); return v }

// Param returns the parameter of row rid.
func (m *Module) Param(rid uint32) *Param { v, _ := m.params.get(rid); return v }

// Event returns the event of row rid.
func (m *Module) Event(rid uint32) *Event { v, _ := m.events.get(rid); return v }

// Property returns the property of row rid.
func (m *Module) Property(rid uint32) *Property { v, _ := m.properties.get(rid); return v }

// GenericParam returns the generic parameter of row rid.
func (m *Module) GenericParam(rid uint32) *GenericParam { v, _ := m.genericParams.get(rid); return v }

// MemberRef returns the member reference of row rid, specialized to its
// declared parent when that parent is a generic instance.
func (m *Module) MemberRef(rid uint32) *MemberRef { v, _ := m.memberRefs.get(rid); return v }

// MethodSpec returns the generic method instantiation of row rid.
func (m *Module) MethodSpec(rid uint32) *MethodSpec { v, _ := m.methodSpecs.get(rid); return v }

// ExportedType returns the exported type alias of row rid.
func (m *Module) ExportedType(rid uint32) *ExportedType { v, _ := m.exportedTypes.get(rid); return v }

// CustomAttribute returns the custom attribute of row rid.
func (m *Module) CustomAttribute(rid uint32) *CustomAttribute {
	v, _ := m.customAttributes.get(rid)
	return v
}

// SecurityAttribute returns the declarative security record of row rid.
func (m *Module) SecurityAttribute(rid uint32) *SecurityAttribute {
	v, _ := m.securityAttrs.get(rid)
	return v
}

// AssemblyRef returns the assembly reference of row rid.
func (m *Module) AssemblyRef(rid uint32) *AssemblyRef { v, _ := m.assemblyRefs.get(rid); return v }

// ModuleRef returns the module reference of row rid.
func (m *Module) ModuleRef(rid uint32) *ModuleRef { v, _ := m.moduleRefs.get(rid); return v }

// StandAloneSig returns the stand-alone signature of row rid.
func (m *Module) StandAloneSig(rid uint32) *StandAloneSig {
	v, _ := m.standAloneSigs.get(rid)
	return v
}

// Types iterates every type definition in row order.
func (m *Module) Types() iter.Seq[*TypeDef] {
	return seqOf(m.typeDefs)
}

// TypeRefs iterates every type reference in row order.
func (m *Module) TypeRefs() iter.Seq[*TypeRef] {
	return seqOf(m.typeRefs)
}

// MemberRefs iterates every member reference in row order.
func (m *Module) MemberRefs() iter.Seq[*MemberRef] {
	return seqOf(m.memberRefs)
}

// ExportedTypes iterates every exported type alias in row order.
func (m *Module) ExportedTypes() iter.Seq[*ExportedType] {
	return seqOf(m.exportedTypes)
}

// AssemblyRefs iterates every assembly reference in row order.
func (m *Module) AssemblyRefs() iter.Seq[*AssemblyRef] {
	return seqOf(m.assemblyRefs)
}

func seqOf[T any](s *slotTable[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for rid := uint32(1); rid <= s.len(); rid++ {
			v, _ := s.get(rid)
			if !yield(v) {
				return
			}
		}
	}
}

// ResolveNamespaceType returns the top-level type with the given
// namespace and mangled name keys: a definition, the target of an exported
// type alias, or nil.
func (m *Module) ResolveNamespaceType(namespaceKey, nameKey uint32) Type {
	return m.resolveNamespaceType(namespaceKey, nameKey, newResolveState())
}

func (m *Module) resolveNamespaceType(namespaceKey, nameKey uint32, st *resolveState) Type {
	tok, ok := m.idx.namespaceTypes[typeNameKey{namespaceKey, nameKey}]
	if !ok {
		return nil
	}
	switch tok.Table() {
	case tables.TableTypeDef:
		if td := m.TypeDef(tok.RID()); td != nil {
			return td
		}
	case tables.TableExportedType:
		return m.referenceToAliasedType(tok.RID(), st)
	}
	return nil
}

// FindType resolves a dotted full name such as "System.Collections.Generic.List`1".
func (m *Module) FindType(fullName string) Type {
	ns, name := splitFullName(fullName)
	nsName, ok := m.host.names.Lookup(ns)
	if !ok {
		return nil
	}
	n, ok := m.host.names.Lookup(name)
	if !ok {
		return nil
	}
	return m.ResolveNamespaceType(nsName.Key(), n.Key())
}

func splitFullName(fullName string) (namespace, name string) {
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[:i], fullName[i+1:]
	}
	return "", fullName
}

// ResolveNestedType returns the type nested in parent with the given
// mangled name key, or nil. Parents defined in other modules are searched
// by unmangled name and arity.
func (m *Module) ResolveNestedType(parent *TypeDef, nameKey uint32) *TypeDef {
	if parent == nil {
		return nil
	}
	if parent.module == m {
		tok, ok := m.idx.nestedTypes[nestedNameKey{parent.Token(), nameKey}]
		if !ok || tok.Table() != tables.TableTypeDef {
			return nil
		}
		return m.TypeDef(tok.RID())
	}
	n, ok := m.host.names.ByKey(nameKey)
	if !ok {
		return nil
	}
	return parent.FindNestedType(n.String())
}

// GenericParamRowRange returns the first GenericParam row owned by owner
// and the number of owned rows.
func (m *Module) GenericParamRowRange(owner tables.Token) (start, count uint32) {
	rids := m.idx.genericParams[owner]
	if len(rids) == 0 {
		return 0, 0
	}
	return rids[0], uint32(len(rids))
}

func (m *Module) genericParamsOf(owner tables.Token) []*GenericParam {
	rids := m.idx.genericParams[owner]
	out := make([]*GenericParam, 0, len(rids))
	for _, rid := range rids {
		if gp := m.GenericParam(rid); gp != nil {
			out = append(out, gp)
		}
	}
	return out
}

// GenericTypeParam returns the ordinal-th generic parameter of TypeDef row
// typeRID, or nil.
func (m *Module) GenericTypeParam(typeRID, ordinal uint32) *GenericParam {
	return m.genericParamView(tables.NewToken(tables.TableTypeDef, typeRID), ordinal)
}

// GenericMethodParam returns the ordinal-th generic parameter of MethodDef
// row methodRID, or nil.
func (m *Module) GenericMethodParam(methodRID, ordinal uint32) *GenericParam {
	return m.genericParamView(tables.NewToken(tables.TableMethodDef, methodRID), ordinal)
}

func (m *Module) genericParamView(owner tables.Token, ordinal uint32) *GenericParam {
	rids := m.idx.genericParams[owner]
	if int(ordinal) >= len(rids) {
		return nil
	}
	return m.GenericParam(rids[ordinal])
}

// primitive returns the module's singleton for a primitive element type.
func (m *Module) primitive(e sig.ElementType) *PrimitiveType {
	if int(e) >= len(m.primitives) {
		return nil
	}
	name, ok := sig.PrimitiveName(e)
	if !ok {
		return nil
	}
	return m.primitives[e].get(func() *PrimitiveType {
		core := m.CoreAssemblyIdentity()
		asm := m.asmNameKey
		if !core.IsUnknown() {
			asm = m.host.assemblyNameKey(core.Name)
		}
		return &PrimitiveType{
			module:  m,
			element: e,
			name:    name,
			key:     m.host.topLevelTypeKey(asm, m.host.names.GetOrCreate("System").Key(), m.host.names.GetOrCreate(name).Key()),
		}
	})
}

// UserString returns the #US literal addressed by a user string token.
func (m *Module) UserString(tok tables.Token) (string, error) {
	if tok.Table() != tables.TableUserString {
		return "", fmt.Errorf("%w: %s", ErrTokenOutOfRange, tok)
	}
	s, ok := m.tables.UserStrings.String(tok.RID())
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTokenOutOfRange, tok)
	}
	return s, nil
}
