package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
	"github.com/skdltmxn/clrmeta-go/internal/sig"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

var (
	attrsOwner    string
	attrsSecurity bool
)

var attrsCmd = &cobra.Command{
	Use:   "attrs <assembly>",
	Short: "Decode custom attributes",
	Long: `Decode the custom attributes of a module, grouped by owner.

Use --owner to show the attributes of one token only, and --security to
list declarative security permission sets.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttrs,
}

func init() {
	attrsCmd.Flags().StringVar(&attrsOwner, "owner", "", "only show attributes of this owner token (hex)")
	attrsCmd.Flags().BoolVarP(&attrsSecurity, "security", "s", false, "list declarative security instead")
}

func runAttrs(cmd *cobra.Command, args []string) error {
	h, m, err := openAssembly(args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	if attrsSecurity {
		return printSecurity(m)
	}

	owners := m.AttributeOwners()
	if attrsOwner != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(attrsOwner), "0x"), 16, 32)
		if err != nil {
			return fmt.Errorf("invalid owner token: %s", attrsOwner)
		}
		owners = []tables.Token{tables.Token(v)}
	}

	count := 0
	for _, owner := range owners {
		attrs := m.CustomAttributes(owner)
		if len(attrs) == 0 {
			continue
		}
		fmt.Fprintf(output, "%s\n", describeToken(m, owner))
		for _, a := range attrs {
			printAttribute(a)
			count++
		}
	}

	fmt.Fprintf(output, "\nTotal: %d custom attributes\n", count)
	return nil
}

func printAttribute(a *clr.CustomAttribute) {
	fmt.Fprintf(output, "  [%s", typeName(a.AttributeType()))
	if err := a.Err(); err != nil {
		fmt.Fprintf(output, "] <%v>\n", err)
		return
	}

	parts := make([]string, 0, len(a.FixedArgs())+len(a.NamedArgs()))
	for _, arg := range a.FixedArgs() {
		parts = append(parts, formatArg(arg))
	}
	for _, na := range a.NamedArgs() {
		parts = append(parts, na.Name+" = "+formatArg(na.AttributeArgument))
	}
	if len(parts) > 0 {
		fmt.Fprintf(output, "(%s)", strings.Join(parts, ", "))
	}
	fmt.Fprintln(output, "]")
}

// formatArg renders an attribute argument in C#-like syntax.
func formatArg(arg clr.AttributeArgument) string {
	if arg.Value == nil {
		return "null"
	}
	switch arg.Kind {
	case sig.String:
		return fmt.Sprintf("%q", arg.Value)
	case sig.SerType:
		return fmt.Sprintf("typeof(%s)", arg.Value)
	case sig.SerEnum:
		return fmt.Sprintf("(%s)%v", arg.TypeName, arg.Value)
	case sig.Char:
		if c, ok := arg.Value.(uint16); ok {
			return strconv.QuoteRune(rune(c))
		}
	case sig.SZArray:
		if elems, ok := arg.Value.([]clr.AttributeArgument); ok {
			parts := make([]string, len(elems))
			for i, e := range elems {
				parts[i] = formatArg(e)
			}
			return "{" + strings.Join(parts, ", ") + "}"
		}
	}
	return fmt.Sprintf("%v", arg.Value)
}

func printSecurity(m *clr.Module) error {
	n := m.RowCount(tables.TableDeclSecurity)
	for rid := uint32(1); rid <= n; rid++ {
		s := m.SecurityAttribute(rid)
		if s == nil {
			continue
		}
		fmt.Fprintf(output, "%s %s on %s\n", s.Token(), s.Action(), describeToken(m, s.Parent()))
		if s.IsXML() {
			xml, err := s.XML()
			if err != nil {
				fmt.Fprintf(output, "  <%v>\n", err)
				continue
			}
			fmt.Fprintf(output, "  %s\n", xml)
			continue
		}
		perms, err := s.Permissions()
		if err != nil {
			fmt.Fprintf(output, "  <%v>\n", err)
			continue
		}
		for _, p := range perms {
			parts := make([]string, len(p.NamedArgs))
			for i, na := range p.NamedArgs {
				parts[i] = na.Name + " = " + formatArg(na.AttributeArgument)
			}
			fmt.Fprintf(output, "  [%s(%s)]\n", p.TypeName, strings.Join(parts, ", "))
		}
	}

	fmt.Fprintf(output, "\nTotal: %d security declarations\n", n)
	return nil
}
