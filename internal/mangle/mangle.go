// Package mangle handles the name decorations used in metadata: the
// generic arity suffix ("List`1"), namespace joins and nested type names.
package mangle

import (
	"strconv"
	"strings"
)

// NoArityCheck makes Unmangle strip any well-formed arity suffix.
const NoArityCheck = -1

// maxArity bounds the suffix value accepted as an arity.
const maxArity = 0xFFFF

// SplitArity splits a mangled generic name into its base name and arity.
// ok is false when name carries no well-formed suffix: a backtick followed
// by a decimal number without leading zeros.
func SplitArity(name string) (base string, arity int, ok bool) {
	i := strings.LastIndexByte(name, '`')
	if i <= 0 || i == len(name)-1 {
		return name, 0, false
	}

	digits := name[i+1:]
	if digits[0] < '1' || digits[0] > '9' {
		return name, 0, false
	}
	for j := 0; j < len(digits); j++ {
		if digits[j] < '0' || digits[j] > '9' {
			return name, 0, false
		}
	}

	n, err := strconv.Atoi(digits)
	if err != nil || n > maxArity {
		return name, 0, false
	}
	return name[:i], n, true
}

// Unmangle strips the arity suffix from name when it matches arity, or
// whenever it is well-formed if arity is NoArityCheck. Otherwise name is
// returned unchanged.
func Unmangle(name string, arity int) string {
	base, n, ok := SplitArity(name)
	if !ok {
		return name
	}
	if arity < 0 || n == arity {
		return base
	}
	return name
}

// Mangle appends the arity suffix for generic types.
func Mangle(name string, arity int) string {
	if arity <= 0 {
		return name
	}
	return name + "`" + strconv.Itoa(arity)
}

// JoinNamespace returns the dotted full name of a namespace member.
func JoinNamespace(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// SplitNamespace splits a dotted full name at its last dot.
func SplitNamespace(fullName string) (namespace, name string) {
	i := strings.LastIndexByte(fullName, '.')
	if i < 0 {
		return "", fullName
	}
	return fullName[:i], fullName[i+1:]
}

// JoinNested returns the reflection-style name of a nested type.
func JoinNested(enclosing, name string) string {
	return enclosing + "+" + name
}

// Generic renders a constructed generic name, e.g. "Dictionary<K, V>".
// The arity suffix of name is dropped when it matches len(args).
func Generic(name string, args []string) string {
	if len(args) == 0 {
		return name
	}

	var sb strings.Builder
	sb.WriteString(Unmangle(name, len(args)))
	sb.WriteByte('<')
	for i, a := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a)
	}
	sb.WriteByte('>')
	return sb.String()
}
