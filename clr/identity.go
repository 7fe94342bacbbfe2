package clr

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

// Version is a four-part assembly version.
type Version = tables.Version

// PublicKeyToken is the 8-byte short form of a strong name public key.
type PublicKeyToken [8]byte

// IsZero reports whether the token is absent.
func (t PublicKeyToken) IsZero() bool { return t == PublicKeyToken{} }

func (t PublicKeyToken) String() string {
	if t.IsZero() {
		return "null"
	}
	return hex.EncodeToString(t[:])
}

// TokenFromPublicKey computes the public key token of a full public key:
// the last eight bytes of its SHA-1 hash, reversed.
func TokenFromPublicKey(key []byte) PublicKeyToken {
	var t PublicKeyToken
	if len(key) == 0 {
		return t
	}
	sum := sha1.Sum(key)
	for i := 0; i < 8; i++ {
		t[i] = sum[len(sum)-1-i]
	}
	return t
}

// publicKeyOrToken interprets an AssemblyRef blob, which holds either a
// full key or an 8-byte token.
func publicKeyOrToken(blob []byte, isFullKey bool) PublicKeyToken {
	if isFullKey || len(blob) != 8 {
		return TokenFromPublicKey(blob)
	}
	var t PublicKeyToken
	copy(t[:], blob)
	return t
}

// AssemblyIdentity names an assembly.
type AssemblyIdentity struct {
	Name           string
	Version        Version
	Culture        string
	PublicKeyToken PublicKeyToken
}

// UnknownAssemblyIdentity is returned when an identity cannot be determined.
var UnknownAssemblyIdentity = AssemblyIdentity{}

// IsUnknown reports whether id is the UnknownAssemblyIdentity sentinel.
func (id AssemblyIdentity) IsUnknown() bool { return id.Name == "" }

func (id AssemblyIdentity) String() string {
	if id.IsUnknown() {
		return "<unknown>"
	}
	culture := id.Culture
	if culture == "" {
		culture = "neutral"
	}
	return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s",
		id.Name, id.Version, culture, id.PublicKeyToken)
}

// SameName reports whether both identities name the same assembly,
// ignoring version, culture and key. Assembly names compare
// case-insensitively.
func (id AssemblyIdentity) SameName(other AssemblyIdentity) bool {
	return strings.EqualFold(id.Name, other.Name)
}

func simpleNameKey(name string) string {
	return strings.ToLower(name)
}
