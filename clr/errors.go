// Package clr resolves ECMA-335 metadata into a lazily built object graph
// of modules, types, members and references.
package clr

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// Sentinel errors for common conditions.
var (
	// ErrTokenOutOfRange indicates a token whose table or row id is outside
	// the module's domain.
	ErrTokenOutOfRange = errors.New("clr: token out of range")

	// ErrAssemblyNotFound indicates a referenced assembly could not be located.
	ErrAssemblyNotFound = errors.New("clr: assembly not found")

	// ErrModuleNotFound indicates a sibling module could not be located.
	ErrModuleNotFound = errors.New("clr: module not found")

	// ErrNoModuleRow indicates metadata without the mandatory Module row.
	ErrNoModuleRow = errors.New("clr: metadata has no Module row")

	// ErrResourceNotEmbedded indicates a manifest resource stored outside
	// the image.
	ErrResourceNotEmbedded = errors.New("clr: resource is not embedded")
)

// ParseError provides detailed information about metadata loading failures.
type ParseError struct {
	Stream  string // Stream name where error occurred
	Offset  int64  // Byte offset within stream
	Message string // Description of the error
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clr: parse error in %s at offset 0x%x: %s: %v",
			e.Stream, e.Offset, e.Message, e.Err)
	}
	return fmt.Sprintf("clr: parse error in %s at offset 0x%x: %s",
		e.Stream, e.Offset, e.Message)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DiagnosticKind classifies a recorded metadata irregularity.
type DiagnosticKind uint8

const (
	// DiagStructural is a malformed or out-of-range row reference.
	DiagStructural DiagnosticKind = iota
	// DiagCycle is a reference chain that loops back on itself.
	DiagCycle
	// DiagDecode is a blob that could not be decoded.
	DiagDecode
	// DiagUnresolved is a reference that matched no definition.
	DiagUnresolved
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagStructural:
		return "structural"
	case DiagCycle:
		return "cycle"
	case DiagDecode:
		return "decode"
	case DiagUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Diagnostic records a recovered metadata irregularity.
type Diagnostic struct {
	Kind    DiagnosticKind
	Token   tables.Token
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Kind, d.Token, d.Message)
}
