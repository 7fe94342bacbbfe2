package clr

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/stream"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

var corlibVersion = tables.Version{4, 0, 0, 0}

func tdTok(rid uint32) tables.Token { return tables.NewToken(tables.TableTypeDef, rid) }
func trTok(rid uint32) tables.Token { return tables.NewToken(tables.TableTypeRef, rid) }
func tsTok(rid uint32) tables.Token { return tables.NewToken(tables.TableTypeSpec, rid) }
func mdTok(rid uint32) tables.Token { return tables.NewToken(tables.TableMethodDef, rid) }
func mrTok(rid uint32) tables.Token { return tables.NewToken(tables.TableMemberRef, rid) }
func arTok(rid uint32) tables.Token { return tables.NewToken(tables.TableAssemblyRef, rid) }
func fdTok(rid uint32) tables.Token { return tables.NewToken(tables.TableField, rid) }

// typeSig encodes a CLASS or VALUETYPE element for tok.
func typeSig(e sig.ElementType, tok tables.Token) []byte {
	return sig.AppendTypeDefOrRef([]byte{byte(e)}, tok)
}

// methodSig encodes a method signature with the given return and
// parameter encodings.
func methodSig(conv uint8, ret []byte, params ...[]byte) []byte {
	out := []byte{conv}
	out = stream.AppendCompressedU32(out, uint32(len(params)))
	out = append(out, ret...)
	for _, p := range params {
		out = append(out, p...)
	}
	return out
}

func fieldSig(t []byte) []byte {
	return append([]byte{sig.CallField}, t...)
}

func serString(s string) []byte {
	out := stream.AppendCompressedU32(nil, uint32(len(s)))
	return append(out, s...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newTestHost(t *testing.T, opts Options) *Host {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t)
	h := NewHost(opts)
	t.Cleanup(func() { h.Close() })
	return h
}

func load(t *testing.T, h *Host, path string, b *tables.Builder) *Module {
	t.Helper()
	m, err := h.LoadTables(path, b.Tables())
	require.NoError(t, err)
	return m
}

// corlib row ids.
const (
	corlibObject uint32 = iota + 2
	corlibValueType
	corlibEnum
	corlibInt32
	corlibString
	corlibType
	corlibAttribute
)

// buildCorlib lays out a minimal core library defining the foundational
// System types used by the tests.
func buildCorlib() *tables.Builder {
	b := tables.NewBuilder()
	b.SetModule("mscorlib.dll", [16]byte{0xC0})
	b.SetAssembly("mscorlib", corlibVersion, nil, "")

	b.AddTypeDef(0, "", "<Module>", 0)
	b.AddTypeDef(TypePublic, "System", "Object", 0)
	b.AddTypeDef(TypePublic|TypeAbstract, "System", "ValueType", tdTok(corlibObject))
	b.AddTypeDef(TypePublic|TypeAbstract, "System", "Enum", tdTok(corlibValueType))
	b.AddTypeDef(TypePublic|TypeSealed, "System", "Int32", tdTok(corlibValueType))
	b.AddField(FieldPrivate, "m_value", fieldSig([]byte{byte(sig.I4)}))
	b.AddTypeDef(TypePublic|TypeSealed, "System", "String", tdTok(corlibObject))
	b.AddTypeDef(TypePublic|TypeAbstract, "System", "Type", tdTok(corlibObject))
	b.AddTypeDef(TypePublic|TypeAbstract, "System", "Attribute", tdTok(corlibObject))
	b.AddMethod(MethodPublic|MethodSpecialName|MethodRTSpecial, ".ctor",
		methodSig(sig.CallHasThis, []byte{byte(sig.Void)}))
	return b
}

func loadCorlib(t *testing.T, h *Host) *Module {
	t.Helper()
	return load(t, h, "/lib/mscorlib.dll", buildCorlib())
}

// newAppBuilder starts an assembly referencing mscorlib. The returned
// AssemblyRef row id is always 1.
func newAppBuilder(name string) *tables.Builder {
	b := tables.NewBuilder()
	b.SetModule(name+".dll", [16]byte{0xA0})
	b.SetAssembly(name, tables.Version{1, 0, 0, 0}, nil, "")
	b.AddAssemblyRef("mscorlib", corlibVersion, []byte{0xB7, 0x7A, 0x5C, 0x56, 0x19, 0x34, 0xE0, 0x89})
	return b
}

// constructionLog counts slot constructions per token.
type constructionLog struct {
	mu    sync.Mutex
	count map[tables.Token]int
}

func watchConstruction(m *Module) *constructionLog {
	l := &constructionLog{count: make(map[tables.Token]int)}
	m.constructed = func(table tables.TableID, rid uint32) {
		l.mu.Lock()
		l.count[tables.NewToken(table, rid)]++
		l.mu.Unlock()
	}
	return l
}

func (l *constructionLog) duplicates() []tables.Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []tables.Token
	for tok, n := range l.count {
		if n > 1 {
			out = append(out, tok)
		}
	}
	return out
}

func (l *constructionLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.count)
}

func hasDiagnostic(m *Module, kind DiagnosticKind) bool {
	for _, d := range m.Diagnostics() {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
