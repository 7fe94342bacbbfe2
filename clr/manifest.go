package clr

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// AssemblyFlags bits.
const (
	AssemblyPublicKey      uint32 = 0x0001
	AssemblyRetargetable   uint32 = 0x0100
	AssemblyWindowsRuntime uint32 = 0x0200
	AssemblyContentMask    uint32 = 0x0E00
)

// AssemblyRef is a reference to another assembly.
type AssemblyRef struct {
	module   *Module
	rid      uint32
	flags    uint32
	identity AssemblyIdentity
	hash     []byte
}

func (m *Module) buildAssemblyRef(rid uint32) *AssemblyRef {
	m.noteConstructed(tables.TableAssemblyRef, rid)
	row := m.tables.AssemblyRef[rid-1]
	hash, _ := m.tables.Blob(row.HashValue)
	return &AssemblyRef{
		module:   m,
		rid:      rid,
		flags:    row.Flags,
		identity: m.assemblyRefIdentity(rid),
		hash:     hash,
	}
}

func (m *Module) assemblyRefIdentity(rid uint32) AssemblyIdentity {
	row, ok := tables.At(m.tables.AssemblyRef, rid)
	if !ok {
		return UnknownAssemblyIdentity
	}
	key, _ := m.tables.Blob(row.PublicKeyOrToken)
	return AssemblyIdentity{
		Name:           m.tables.String(row.Name),
		Version:        Version{row.MajorVersion, row.MinorVersion, row.BuildNumber, row.RevisionNumber},
		Culture:        m.tables.String(row.Culture),
		PublicKeyToken: publicKeyOrToken(key, row.Flags&AssemblyPublicKey != 0),
	}
}

func (r *AssemblyRef) RID() uint32                { return r.rid }
func (r *AssemblyRef) Token() tables.Token        { return tables.NewToken(tables.TableAssemblyRef, r.rid) }
func (r *AssemblyRef) Flags() uint32              { return r.flags }
func (r *AssemblyRef) Identity() AssemblyIdentity { return r.identity }
func (r *AssemblyRef) HashValue() []byte          { return r.hash }
func (r *AssemblyRef) String() string             { return r.identity.String() }

// Resolve returns the manifest module of the referenced assembly, or nil
// when it cannot be located. Misses are not cached, so an assembly loaded
// later resolves on the next call.
func (r *AssemblyRef) Resolve() *Module {
	m, err := r.module.host.resolveAssembly(r.identity, r.module.dir())
	if err != nil {
		r.module.log.Debug("assembly reference unresolved",
			zap.Stringer("assembly", r.identity),
			zap.Error(err))
		return nil
	}
	return m
}

// ModuleRef is a reference to another module of the same assembly, or to
// a native library for P/Invoke.
type ModuleRef struct {
	module *Module
	rid    uint32
	name   *Name
}

func (m *Module) buildModuleRef(rid uint32) *ModuleRef {
	m.noteConstructed(tables.TableModuleRef, rid)
	return &ModuleRef{module: m, rid: rid, name: m.names.Name(m.tables.ModuleRef[rid-1].Name)}
}

func (r *ModuleRef) Name() string        { return r.name.String() }
func (r *ModuleRef) RID() uint32         { return r.rid }
func (r *ModuleRef) Token() tables.Token { return tables.NewToken(tables.TableModuleRef, r.rid) }

// Resolve returns the referenced sibling module.
func (r *ModuleRef) Resolve() (*Module, error) {
	return r.module.SiblingModule(r.Name())
}

// FileRef is a File row of the manifest.
type FileRef struct {
	module *Module
	rid    uint32
	flags  uint32
	name   string
	hash   []byte
}

func (f *FileRef) Name() string        { return f.name }
func (f *FileRef) RID() uint32         { return f.rid }
func (f *FileRef) Token() tables.Token { return tables.NewToken(tables.TableFile, f.rid) }
func (f *FileRef) Flags() uint32       { return f.flags }
func (f *FileRef) HashValue() []byte   { return f.hash }

// ContainsMetadata reports whether the file is a module rather than a
// plain resource file.
func (f *FileRef) ContainsMetadata() bool { return f.flags&0x0001 == 0 }

// Module loads the module stored in the file.
func (f *FileRef) Module() (*Module, error) {
	if !f.ContainsMetadata() {
		return nil, fmt.Errorf("%w: %s holds no metadata", ErrModuleNotFound, f.name)
	}
	return f.module.SiblingModule(f.name)
}

// Files returns the File rows of the manifest.
func (m *Module) Files() []*FileRef {
	m.filesOnce.Do(func() {
		m.files = make([]*FileRef, len(m.tables.File))
		for i, row := range m.tables.File {
			hash, _ := m.tables.Blob(row.HashValue)
			m.files[i] = &FileRef{
				module: m,
				rid:    uint32(i + 1),
				flags:  row.Flags,
				name:   m.tables.String(row.Name),
				hash:   hash,
			}
		}
	})
	return m.files
}

// File returns File row rid, or nil.
func (m *Module) File(rid uint32) *FileRef {
	files := m.Files()
	if rid == 0 || int(rid) > len(files) {
		return nil
	}
	return files[rid-1]
}

// ManifestResource is a resource of the assembly, embedded in the image
// or stored in another file or assembly.
type ManifestResource struct {
	module *Module
	rid    uint32
	offset uint32
	flags  uint32
	name   string
	impl   tables.Token
}

func (r *ManifestResource) Name() string                 { return r.name }
func (r *ManifestResource) RID() uint32                  { return r.rid }
func (r *ManifestResource) Token() tables.Token          { return tables.NewToken(tables.TableManifestResource, r.rid) }
func (r *ManifestResource) Flags() uint32                { return r.flags }
func (r *ManifestResource) Offset() uint32               { return r.offset }
func (r *ManifestResource) Implementation() tables.Token { return r.impl }
func (r *ManifestResource) IsPublic() bool               { return r.flags&0x0007 == 0x0001 }
func (r *ManifestResource) IsEmbedded() bool             { return r.impl.IsNil() }

// Data returns the bytes of an embedded resource.
func (r *ManifestResource) Data() ([]byte, error) {
	if !r.IsEmbedded() {
		return nil, fmt.Errorf("%w: %s lives in %s", ErrResourceNotEmbedded, r.name, r.impl)
	}
	if r.module.image == nil {
		return nil, fmt.Errorf("%w: %s: module has no image", ErrResourceNotEmbedded, r.name)
	}
	return r.module.image.Resource(r.offset)
}

// Resources returns the ManifestResource rows of the manifest.
func (m *Module) Resources() []*ManifestResource {
	m.resourcesOnce.Do(func() {
		m.resources = make([]*ManifestResource, len(m.tables.ManifestResource))
		for i, row := range m.tables.ManifestResource {
			m.resources[i] = &ManifestResource{
				module: m,
				rid:    uint32(i + 1),
				offset: row.Offset,
				flags:  row.Flags,
				name:   m.tables.String(row.Name),
				impl:   row.Implementation,
			}
		}
	})
	return m.resources
}

// Resource returns ManifestResource row rid, or nil.
func (m *Module) Resource(rid uint32) *ManifestResource {
	res := m.Resources()
	if rid == 0 || int(rid) > len(res) {
		return nil
	}
	return res[rid-1]
}

func (m *Module) dir() string {
	if m.path == "" {
		return ""
	}
	return filepath.Dir(m.path)
}
