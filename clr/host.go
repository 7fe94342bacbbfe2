package clr

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/skdltmxn/clrmeta-go/internal/names"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
	"github.com/skdltmxn/clrmeta-go/pe"
)

// Host owns every loaded module and the state shared between them: the
// name table, the intern factory and the assembly registry.
// It is safe for concurrent use.
type Host struct {
	opts  Options
	log   *zap.Logger
	names *names.Table
	keys  *internFactory

	assemblies *xsync.MapOf[string, *Module]
	resolver   *resolver

	loadMu  sync.Mutex
	modules []*Module
	closers []io.Closer
	closed  bool
}

// NewHost creates an empty host.
func NewHost(opts Options) *Host {
	opts = opts.withDefaults()
	h := &Host{
		opts:       opts,
		log:        opts.Logger,
		names:      names.NewTable(),
		keys:       newInternFactory(),
		assemblies: xsync.NewMapOf[string, *Module](),
	}
	h.resolver = newResolver(opts.SearchPaths, opts.ProbeCacheSize, h.log)
	return h
}

// Open loads the managed image at path. An image whose assembly name is
// already registered returns the registered module.
func (h *Host) Open(path string) (*Module, error) {
	return h.open(path, nil)
}

func (h *Host) open(path string, owner *Module) (*Module, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("clr: failed to open %s: %w", path, err)
	}

	t, err := f.Tables(h.opts.UserStringCacheSize)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("clr: failed to read metadata of %s: %w", path, err)
	}

	m, err := h.register(t, path, f, owner)
	if err != nil {
		f.Close()
		return nil, err
	}
	if m.image != f {
		f.Close()
	}
	return m, nil
}

// LoadTables registers a module built from already decoded tables. path
// is informational and anchors sibling module lookups.
func (h *Host) LoadTables(path string, t *tables.Tables) (*Module, error) {
	return h.register(t, path, nil, nil)
}

// LoadModuleTables registers decoded tables as a module of the assembly
// whose manifest is owner, under the file name name.
func (h *Host) LoadModuleTables(owner *Module, name string, t *tables.Tables) (*Module, error) {
	manifest := owner.ManifestModule()
	if manifest == nil {
		manifest = owner
	}
	m, err := h.register(t, filepath.Join(filepath.Dir(manifest.path), name), nil, manifest)
	if err != nil {
		return nil, err
	}
	manifest.siblings.Store(simpleNameKey(name), m)
	return m, nil
}

func (h *Host) register(t *tables.Tables, path string, image *pe.File, owner *Module) (*Module, error) {
	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	m, err := newModule(h, t, path, image, owner)
	if err != nil {
		return nil, err
	}

	if m.assembly != nil {
		if prev, loaded := h.assemblies.LoadOrStore(simpleNameKey(m.assembly.Name), m); loaded {
			h.log.Debug("assembly already loaded",
				zap.String("assembly", m.assembly.Name),
				zap.String("path", path))
			return prev, nil
		}
	}

	h.modules = append(h.modules, m)
	if image != nil {
		h.closers = append(h.closers, image)
	}
	h.log.Debug("module loaded",
		zap.String("module", m.Name()),
		zap.String("path", path),
		zap.Bool("manifest", m.IsAssembly()))
	return m, nil
}

// Modules returns every registered module in load order.
func (h *Host) Modules() []*Module {
	h.loadMu.Lock()
	defer h.loadMu.Unlock()
	return slices.Clone(h.modules)
}

// Assembly returns the loaded manifest module of the named assembly.
func (h *Host) Assembly(name string) (*Module, bool) {
	return h.assemblies.Load(simpleNameKey(name))
}

// ResolveAssembly returns the manifest module of id, probing the search
// paths when it is not loaded yet. Assemblies match by simple name.
func (h *Host) ResolveAssembly(id AssemblyIdentity) (*Module, error) {
	return h.resolveAssembly(id, "")
}

func (h *Host) resolveAssembly(id AssemblyIdentity, near string) (*Module, error) {
	if id.IsUnknown() {
		return nil, ErrAssemblyNotFound
	}
	if m, ok := h.Assembly(id.Name); ok {
		return m, nil
	}

	path, ok := h.resolver.probe(id.Name, near)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssemblyNotFound, id)
	}
	m, err := h.open(path, nil)
	if err != nil {
		return nil, err
	}
	if !m.IsAssembly() || !m.assembly.SameName(id) {
		return nil, fmt.Errorf("%w: %s does not define %s", ErrAssemblyNotFound, path, id.Name)
	}
	return m, nil
}

// Close releases every image opened by the host.
func (h *Host) Close() error {
	h.loadMu.Lock()
	defer h.loadMu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var first error
	for _, c := range h.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Name interns s in the host name table.
func (h *Host) Name(s string) *Name { return h.names.GetOrCreate(s) }

// Names returns the host name table.
func (h *Host) Names() *names.Table { return h.names }

func (h *Host) assemblyNameKey(name string) uint32 {
	return h.keys.fixedKey(fixedKey{kind: keyAssembly, a: h.names.GetOrCreate(simpleNameKey(name)).Key()})
}

func (h *Host) identityKey(id AssemblyIdentity) uint32 {
	pkt := id.PublicKeyToken
	return h.keys.compositeRaw(keyAssembly, []uint32{
		h.names.GetOrCreate(simpleNameKey(id.Name)).Key(),
		uint32(id.Version[0]), uint32(id.Version[1]), uint32(id.Version[2]), uint32(id.Version[3]),
		h.names.GetOrCreate(id.Culture).Key(),
		uint32(pkt[0])<<24 | uint32(pkt[1])<<16 | uint32(pkt[2])<<8 | uint32(pkt[3]),
		uint32(pkt[4])<<24 | uint32(pkt[5])<<16 | uint32(pkt[6])<<8 | uint32(pkt[7]),
	})
}

// topLevelTypeKey keys a namespace type by assembly simple name, namespace
// and mangled name, so definitions and references meet on one key.
func (h *Host) topLevelTypeKey(asm, namespace, name uint32) uint32 {
	if asm == 0 || name == 0 {
		return 0
	}
	return h.keys.fixedKey(fixedKey{kind: keyNamedType, a: asm, b: namespace, c: name})
}

func (h *Host) nestedTypeKey(enclosing, name uint32) uint32 {
	if enclosing == 0 || name == 0 {
		return 0
	}
	return h.keys.fixedKey(fixedKey{kind: keyNamedType, c: name, d: enclosing})
}

// SiblingModule returns the module named name that belongs to the same
// assembly as m, loading it from the manifest module's directory.
func (m *Module) SiblingModule(name string) (*Module, error) {
	manifest := m.ManifestModule()
	if manifest == nil {
		manifest = m
	}
	if simpleNameKey(name) == simpleNameKey(manifest.Name()) {
		return manifest, nil
	}
	if s, ok := manifest.siblings.Load(simpleNameKey(name)); ok {
		return s, nil
	}
	if manifest.path == "" || manifest.image == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}

	s, err := m.host.open(filepath.Join(filepath.Dir(manifest.path), name), manifest)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleNotFound, name, err)
	}
	actual, _ := manifest.siblings.LoadOrStore(simpleNameKey(name), s)
	return actual, nil
}
