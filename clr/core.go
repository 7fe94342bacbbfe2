package clr

import (
	"go.uber.org/zap"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// foundationalTypes are the System types only a core library defines.
var foundationalTypes = map[string]bool{
	"Object":            true,
	"ValueType":         true,
	"Enum":              true,
	"Delegate":          true,
	"MulticastDelegate": true,
	"Array":             true,
	"Attribute":         true,
	"Exception":         true,
	"Type":              true,
	"Void":              true,
	"Boolean":           true,
	"Char":              true,
	"SByte":             true,
	"Byte":              true,
	"Int16":             true,
	"UInt16":            true,
	"Int32":             true,
	"UInt32":            true,
	"Int64":             true,
	"UInt64":            true,
	"Single":            true,
	"Double":            true,
	"Decimal":           true,
	"String":            true,
	"IntPtr":            true,
	"UIntPtr":           true,
	"TypedReference":    true,
	"Nullable`1":        true,
	"RuntimeTypeHandle": true,
}

const (
	runtimeLibraryName    = "System.Runtime"
	runtimeLibraryMajor   = 4
	legacyCoreLibraryName = "mscorlib"
)

// CoreAssemblyIdentity returns the identity of the assembly supplying the
// foundational System types, or UnknownAssemblyIdentity. The assembly
// reference with the most foundational TypeRefs wins, ties going to the
// first one seen.
func (m *Module) CoreAssemblyIdentity() AssemblyIdentity {
	m.coreOnce.Do(func() {
		m.core = m.discoverCore()
		m.log.Debug("core assembly selected", zap.Stringer("assembly", m.core))
	})
	return m.core
}

func (m *Module) discoverCore() AssemblyIdentity {
	t := m.tables

	hits := make(map[uint32]int)
	var order []uint32
	for _, row := range t.TypeRef {
		scope := row.ResolutionScope
		if scope.Table() != tables.TableAssemblyRef || scope.IsNil() || int(scope.RID()) > len(t.AssemblyRef) {
			continue
		}
		if t.String(row.Namespace) != "System" || !foundationalTypes[t.String(row.Name)] {
			continue
		}
		if _, seen := hits[scope.RID()]; !seen {
			order = append(order, scope.RID())
		}
		hits[scope.RID()]++
	}

	var best uint32
	for _, rid := range order {
		if best == 0 || hits[rid] > hits[best] {
			best = rid
		}
	}
	if best != 0 {
		return m.assemblyRefIdentity(best)
	}

	if m.definesObject() {
		if id, ok := m.Assembly(); ok {
			return id
		}
	}

	for rid := uint32(1); rid <= uint32(len(t.AssemblyRef)); rid++ {
		row := t.AssemblyRef[rid-1]
		if t.String(row.Name) == runtimeLibraryName && row.MajorVersion >= runtimeLibraryMajor {
			return m.assemblyRefIdentity(rid)
		}
	}
	for rid := uint32(1); rid <= uint32(len(t.AssemblyRef)); rid++ {
		if t.String(t.AssemblyRef[rid-1].Name) == legacyCoreLibraryName {
			return m.assemblyRefIdentity(rid)
		}
	}

	if m.owner != nil {
		return m.owner.CoreAssemblyIdentity()
	}
	return UnknownAssemblyIdentity
}

func (m *Module) definesObject() bool {
	sys, ok := m.host.names.Lookup("System")
	if !ok {
		return false
	}
	obj, ok := m.host.names.Lookup("Object")
	if !ok {
		return false
	}
	tok, ok := m.idx.namespaceTypes[typeNameKey{sys.Key(), obj.Key()}]
	return ok && tok.Table() == tables.TableTypeDef
}

// coreTypeDefinition returns the core assembly's definition of a
// namespace type, or nil.
func (m *Module) coreTypeDefinition(namespace, name string) *TypeDef {
	core := m.CoreAssemblyIdentity()
	if core.IsUnknown() {
		return nil
	}

	target := m
	if own, ok := m.Assembly(); !ok || !own.SameName(core) {
		var err error
		target, err = m.host.resolveAssembly(core, m.dir())
		if err != nil {
			return nil
		}
	}
	nsKey := m.host.names.GetOrCreate(namespace).Key()
	nameKey := m.host.names.GetOrCreate(name).Key()
	return target.resolveDefinition(nsKey, nameKey, newResolveState())
}

// CoreType returns the core assembly's definition of System.name, or nil.
func (m *Module) CoreType(name string) *TypeDef {
	return m.coreTypeDefinition("System", name)
}
