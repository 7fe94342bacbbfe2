package clr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

type coreRef struct {
	scope     uint32
	namespace string
	name      string
}

func buildCoreProbe(refs []tables.Version, names []string, typeRefs []coreRef) *tables.Builder {
	b := tables.NewBuilder()
	b.SetModule("probe.dll", [16]byte{0xD0})
	b.SetAssembly("probe", tables.Version{1, 0, 0, 0}, nil, "")
	for i, name := range names {
		b.AddAssemblyRef(name, refs[i], nil)
	}
	for _, r := range typeRefs {
		b.AddTypeRef(arTok(r.scope), r.namespace, r.name)
	}
	b.AddTypeDef(0, "", "<Module>", 0)
	return b
}

func TestCoreAssemblyIdentity(t *testing.T) {
	v4 := tables.Version{4, 0, 0, 0}
	v3 := tables.Version{3, 1, 0, 0}

	tests := []struct {
		name     string
		versions []tables.Version
		refs     []string
		typeRefs []coreRef
		want     string
	}{
		{
			name:     "majority",
			versions: []tables.Version{v4, v4},
			refs:     []string{"mscorlib", "System.Runtime"},
			typeRefs: []coreRef{{1, "System", "ValueType"}, {2, "System", "Object"}, {2, "System", "Enum"}},
			want:     "System.Runtime",
		},
		{
			name:     "tie goes to first seen",
			versions: []tables.Version{v4, v4},
			refs:     []string{"netstandard", "System.Runtime"},
			typeRefs: []coreRef{{2, "System", "Object"}, {1, "System", "Enum"}},
			want:     "System.Runtime",
		},
		{
			name:     "non foundational refs ignored",
			versions: []tables.Version{v4, v4},
			refs:     []string{"System.Console", "netstandard"},
			typeRefs: []coreRef{{1, "System", "Console"}, {1, "Other", "Object"}, {2, "System", "Attribute"}},
			want:     "netstandard",
		},
		{
			name:     "runtime library fallback",
			versions: []tables.Version{v4, v4},
			refs:     []string{"mscorlib", "System.Runtime"},
			want:     "System.Runtime",
		},
		{
			name:     "old runtime library skipped",
			versions: []tables.Version{v3, v4},
			refs:     []string{"System.Runtime", "mscorlib"},
			want:     "mscorlib",
		},
		{
			name: "unknown",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t, Options{})
			m := load(t, h, "/probe/probe.dll", buildCoreProbe(tt.versions, tt.refs, tt.typeRefs))
			core := m.CoreAssemblyIdentity()
			assert.Equal(t, tt.want, core.Name)
			assert.Equal(t, tt.want == "", core.IsUnknown())
		})
	}
}

func TestCoreLibraryIsItsOwnCore(t *testing.T) {
	h := newTestHost(t, Options{})
	corlib := loadCorlib(t, h)

	core := corlib.CoreAssemblyIdentity()
	assert.Equal(t, "mscorlib", core.Name)
	assert.Equal(t, corlibVersion, core.Version)
	assert.Same(t, corlib.TypeDef(corlibObject), corlib.CoreType("Object"))
	assert.Nil(t, corlib.CoreType("Missing"))
}

func TestUnknownCoreHasNoCoreTypes(t *testing.T) {
	h := newTestHost(t, Options{})
	m := load(t, h, "/probe/probe.dll", buildCoreProbe(nil, nil, nil))

	assert.True(t, m.CoreAssemblyIdentity().IsUnknown())
	assert.Nil(t, m.CoreType("Object"))
}
