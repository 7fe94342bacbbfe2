package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
)

var memberRefsUnresolved bool

var memberRefsCmd = &cobra.Command{
	Use:   "memberrefs <assembly>",
	Short: "List member references",
	Long: `List the field and method references of a module, their
signatures and the definitions they resolve to.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemberRefs,
}

func init() {
	memberRefsCmd.Flags().BoolVarP(&memberRefsUnresolved, "unresolved", "u", false, "only show references that do not resolve")
}

func runMemberRefs(cmd *cobra.Command, args []string) error {
	h, m, err := openAssembly(args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintf(output, "%-24s %s\n", "TOKEN", "MEMBER")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 100))

	count := 0
	for r := range m.MemberRefs() {
		target := r.Resolve()
		if memberRefsUnresolved && target != nil {
			continue
		}
		fmt.Fprintf(output, "%-24s %s %s\n", r.Token(), r.FullName(), memberSignature(r))
		fmt.Fprintf(output, "%-24s -> %s\n", "", describeMember(target))
		count++
	}

	fmt.Fprintf(output, "\nTotal: %d member references\n", count)
	return nil
}

func memberSignature(r *clr.MemberRef) string {
	if r.IsField() {
		if fs := r.FieldSignature(); fs != nil {
			return ": " + typeName(fs.Type)
		}
		return ": ?"
	}
	if ms := r.MethodSignature(); ms != nil {
		return ms.String()
	}
	return "(?)"
}

func describeMember(v any) string {
	switch e := v.(type) {
	case *clr.Method:
		return fmt.Sprintf("[%s] %s %s", e.DeclaringType().Module().Name(), e.Token(), e.FullName())
	case *clr.Field:
		return fmt.Sprintf("[%s] %s %s", e.DeclaringType().Module().Name(), e.Token(), e.Name())
	}
	return "<unresolved>"
}

func typeName(t clr.Type) string {
	if t == nil {
		return "?"
	}
	return t.FullName()
}
