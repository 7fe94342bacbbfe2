package clr

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// Row ids of the widget module.
const (
	widgetObjectRef uint32 = 1
	widgetEnumRef   uint32 = 2

	widgetBase   uint32 = 2
	widgetType   uint32 = 3
	widgetNested uint32 = 4
	widgetColor  uint32 = 5
)

// buildWidgets lays out an assembly with a small class hierarchy, a nested
// type, an enum and references into mscorlib.
func buildWidgets() *tables.Builder {
	b := newAppBuilder("widgets")
	b.AddTypeRef(arTok(1), "System", "Object")
	b.AddTypeRef(arTok(1), "System", "Enum")

	b.AddTypeDef(0, "", "<Module>", 0)
	b.AddTypeDef(TypePublic, "Demo", "Base", trTok(widgetObjectRef))
	b.AddMethod(MethodPublic, "Run", methodSig(sig.CallHasThis, []byte{byte(sig.Void)}, []byte{byte(sig.I4)}))
	b.AddParam(0, 1, "times")
	b.AddTypeDef(TypePublic, "Demo.Widgets", "Widget", tdTok(widgetBase))
	b.AddField(FieldPublic, "count", fieldSig([]byte{byte(sig.I4)}))
	b.AddField(FieldPublic|FieldStatic|FieldLiteral|FieldHasDefault, "Label", fieldSig([]byte{byte(sig.String)}))
	b.AddTypeDef(TypeNestedPublic, "", "Part", trTok(widgetObjectRef))
	b.AddTypeDef(TypePublic|TypeSealed, "Demo", "Color", trTok(widgetEnumRef))
	b.AddField(FieldPublic|FieldSpecialName|FieldRTSpecialName, "value__", fieldSig([]byte{byte(sig.I4)}))
	b.AddNestedClass(widgetNested, widgetType)

	b.AddConstant(uint8(sig.String), fdTok(2), []byte{'o', 0, 'k', 0})
	b.AddMemberRef(tdTok(widgetType), "Run", methodSig(sig.CallHasThis, []byte{byte(sig.Void)}, []byte{byte(sig.I4)}))
	b.AddMemberRef(tdTok(widgetType), "count", fieldSig([]byte{byte(sig.I4)}))
	b.UserString("hello")
	return b
}

func TestModuleBasics(t *testing.T) {
	h := newTestHost(t, Options{})
	m := load(t, h, "/app/widgets.dll", buildWidgets())

	assert.Equal(t, "widgets.dll", m.Name())
	assert.True(t, m.IsAssembly())
	id, ok := m.Assembly()
	require.True(t, ok)
	assert.Equal(t, "widgets", id.Name)
	assert.Equal(t, tables.Version{1, 0, 0, 0}, id.Version)
	assert.Same(t, m, m.ManifestModule())

	widget := m.TypeDef(widgetType)
	require.NotNil(t, widget)
	assert.Equal(t, "Demo.Widgets.Widget", widget.FullName())
	assert.True(t, widget.IsPublic())
	assert.Nil(t, m.TypeDef(0))
	assert.Nil(t, m.TypeDef(99))

	part := m.TypeDef(widgetNested)
	require.NotNil(t, part)
	assert.Same(t, widget, part.DeclaringType())
	assert.Equal(t, "Demo.Widgets.Widget+Part", part.FullName())
	assert.True(t, part.IsPublic())
	assert.Equal(t, []*TypeDef{part}, widget.NestedTypes())
	assert.Same(t, part, widget.FindNestedType("Part"))
	assert.Same(t, part, m.ResolveNestedType(widget, part.NameKey()))

	fields := widget.Fields()
	require.Len(t, fields, 2)
	assert.Same(t, widget, fields[0].DeclaringType())
	c, ok := fields[1].Constant()
	require.True(t, ok)
	assert.Equal(t, "ok", c.Value)
	assert.Equal(t, `"ok"`, c.String())

	base := m.TypeDef(widgetBase)
	assert.Same(t, base, widget.BaseType())
	require.Len(t, base.Methods(), 1)
	run := base.Methods()[0]
	assert.Equal(t, "Demo.Base::Run", run.FullName())
	require.Len(t, run.Params(), 1)
	assert.Equal(t, "times", run.Params()[0].Name())
	assert.Same(t, run, run.Params()[0].Method())
}

func TestEnumDetection(t *testing.T) {
	h := newTestHost(t, Options{})
	m := load(t, h, "/app/widgets.dll", buildWidgets())

	color := m.TypeDef(widgetColor)
	require.NotNil(t, color)
	assert.True(t, color.IsEnum())
	assert.True(t, color.IsValueType())
	underlying, ok := color.EnumUnderlyingType().(*PrimitiveType)
	require.True(t, ok)
	assert.Equal(t, sig.I4, underlying.ElementType())
	assert.False(t, m.TypeDef(widgetType).IsEnum())
}

func TestNamespaceTree(t *testing.T) {
	h := newTestHost(t, Options{})
	m := load(t, h, "/app/widgets.dll", buildWidgets())

	ns := m.Namespace("Demo.Widgets")
	require.NotNil(t, ns)
	assert.Equal(t, "Widgets", ns.Name())
	assert.Equal(t, "Demo.Widgets", ns.FullName())
	require.NotNil(t, ns.Parent())
	assert.Equal(t, "Demo", ns.Parent().FullName())
	assert.Same(t, m.GlobalNamespace(), ns.Parent().Parent())

	types := slices.Collect(ns.Types())
	require.Len(t, types, 1)
	assert.Equal(t, "Widget", types[0].Name())

	var names []string
	for td := range m.Namespace("Demo").Types() {
		names = append(names, td.Name())
	}
	assert.Equal(t, []string{"Base", "Color"}, names)
	assert.Nil(t, m.Namespace("Nope"))

	// Round trip: every namespace type is found again by its full name.
	for td := range m.Types() {
		if td.IsNested() {
			continue
		}
		assert.Same(t, td, m.FindType(td.FullName()), td.FullName())
	}
}

func TestSlotConstructionIsIdempotent(t *testing.T) {
	h := newTestHost(t, Options{})
	loadCorlib(t, h)
	m := load(t, h, "/app/widgets.dll", buildWidgets())
	log := watchConstruction(m)

	first := m.TypeDef(widgetType)
	assert.Same(t, first, m.TypeDef(widgetType))
	assert.Same(t, m.TypeRef(widgetObjectRef), m.TypeRef(widgetObjectRef))
	assert.Empty(t, log.duplicates())
}

func TestConcurrentResolution(t *testing.T) {
	h := newTestHost(t, Options{})
	loadCorlib(t, h)
	m := load(t, h, "/app/widgets.dll", buildWidgets())
	log := watchConstruction(m)

	const workers = 16
	results := make([][]any, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			var out []any
			for td := range m.Types() {
				out = append(out, td, td.BaseType())
				for _, f := range td.Fields() {
					out = append(out, f, f.Type())
				}
				for _, mm := range td.Methods() {
					out = append(out, mm, mm.Signature())
				}
			}
			for tr := range m.TypeRefs() {
				out = append(out, tr, tr.Definition())
			}
			for r := range m.MemberRefs() {
				out = append(out, r, r.Resolve())
			}
			results[w] = out
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		require.Len(t, results[w], len(results[0]))
		for i := range results[0] {
			assert.Equal(t, results[0][i], results[w][i])
		}
	}
	assert.Empty(t, log.duplicates())
	assert.NotZero(t, log.total())
}

func TestMemberRefResolvesThroughBaseChain(t *testing.T) {
	h := newTestHost(t, Options{})
	loadCorlib(t, h)
	m := load(t, h, "/app/widgets.dll", buildWidgets())

	run := m.MemberRef(1)
	require.NotNil(t, run)
	assert.False(t, run.IsField())
	assert.Equal(t, "Demo.Widgets.Widget::Run", run.FullName())
	assert.Same(t, m.TypeDef(widgetBase).Methods()[0], run.ResolveMethod())

	count := m.MemberRef(2)
	require.NotNil(t, count)
	assert.True(t, count.IsField())
	assert.Same(t, m.TypeDef(widgetType).Fields()[0], count.ResolveField())
}

func TestNestingCycleIsCut(t *testing.T) {
	b := tables.NewBuilder()
	b.SetModule("loop.dll", [16]byte{1})
	b.AddTypeDef(0, "", "<Module>", 0)
	a := b.AddTypeDef(TypeNestedPublic, "", "A", 0)
	c := b.AddTypeDef(TypeNestedPublic, "", "B", 0)
	b.AddNestedClass(a, c)
	b.AddNestedClass(c, a)

	h := newTestHost(t, Options{})
	m := load(t, h, "/app/loop.dll", b)

	assert.True(t, hasDiagnostic(m, DiagCycle))
	ta, tb := m.TypeDef(a), m.TypeDef(c)
	require.NotNil(t, ta)
	require.NotNil(t, tb)
	assert.True(t, ta.DeclaringType() == nil || tb.DeclaringType() == nil)
	assert.NotEmpty(t, ta.FullName())
	assert.NotEmpty(t, tb.FullName())
}

func TestResolveToken(t *testing.T) {
	h := newTestHost(t, Options{})
	m := load(t, h, "/app/widgets.dll", buildWidgets())

	v, err := m.ResolveToken(tdTok(widgetType))
	require.NoError(t, err)
	assert.Same(t, m.TypeDef(widgetType), v)

	v, err = m.ResolveToken(tables.NewToken(tables.TableModule, 1))
	require.NoError(t, err)
	assert.Same(t, m, v)

	v, err = m.ResolveToken(tables.NewToken(tables.TableUserString, 1))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	for _, tok := range []tables.Token{
		tdTok(0),
		tdTok(42),
		tables.NewToken(tables.TableNestedClass, 1),
		tables.NewToken(tables.TableModule, 2),
		tables.NewToken(tables.TableUserString, 999),
	} {
		_, err := m.ResolveToken(tok)
		assert.True(t, errors.Is(err, ErrTokenOutOfRange), tok.String())
	}
}

func TestGenericParamRows(t *testing.T) {
	b := tables.NewBuilder()
	b.SetModule("gen.dll", [16]byte{2})
	b.AddTypeDef(0, "", "<Module>", 0)
	pair := b.AddTypeDef(TypePublic, "Demo", "Pair`2", 0)
	m1 := b.AddMethod(MethodPublic, "Swap", []byte{sig.CallGeneric, 1, 0, byte(sig.Void)})
	// Rows out of number order.
	b.AddGenericParam(1, 0, tdTok(pair), "TValue")
	b.AddGenericParam(0, 0, tdTok(pair), "TKey")
	b.AddGenericParam(0, 0, mdTok(m1), "U")

	h := newTestHost(t, Options{})
	m := load(t, h, "/app/gen.dll", b)

	start, count := m.GenericParamRowRange(tdTok(pair))
	assert.Equal(t, uint32(2), start)
	assert.Equal(t, uint32(2), count)

	td := m.TypeDef(pair)
	params := td.GenericParams()
	require.Len(t, params, 2)
	assert.Equal(t, "TKey", params[0].Name())
	assert.Equal(t, "TValue", params[1].Name())
	assert.Same(t, params[1], m.GenericTypeParam(pair, 1))
	assert.Nil(t, m.GenericTypeParam(pair, 2))
	assert.Equal(t, "Pair", td.UnmangledName())

	u := m.GenericMethodParam(m1, 0)
	require.NotNil(t, u)
	assert.True(t, u.IsMethodParam())
	assert.Same(t, td, u.DeclaringType())
	assert.Same(t, m.Method(m1), u.DeclaringMethod())
}
