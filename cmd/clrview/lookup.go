package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

var lookupMembers bool

var lookupCmd = &cobra.Command{
	Use:   "lookup <assembly> <query>",
	Short: "Look up types by name or entities by token",
	Long: `Look up a type or metadata entity in a module.

Query can be:
  - Type name: lookup app.dll System.Collections.Generic.List` + "`" + `1
  - Nested type: lookup app.dll Outer/Inner
  - Token: lookup app.dll 0x02000004`,
	Args: cobra.ExactArgs(2),
	RunE: runLookup,
}

func init() {
	lookupCmd.Flags().BoolVarP(&lookupMembers, "members", "m", true, "show type members")
}

func runLookup(cmd *cobra.Command, args []string) error {
	h, m, err := openAssembly(args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	query := args[1]
	if strings.HasPrefix(query, "0x") || strings.HasPrefix(query, "0X") {
		return lookupToken(m, query)
	}
	return lookupName(m, query)
}

func lookupToken(m *clr.Module, query string) error {
	v, err := strconv.ParseUint(query[2:], 16, 32)
	if err != nil {
		return fmt.Errorf("invalid token: %s", query)
	}
	tok := tables.Token(v)

	if tok.Table() == tables.TableTypeDef {
		if td := m.TypeDef(tok.RID()); td != nil {
			printTypeDetail(td)
			return nil
		}
	}
	fmt.Fprintln(output, describeToken(m, tok))
	return nil
}

func lookupName(m *clr.Module, name string) error {
	t := findNested(m, name)
	if t == nil {
		found := 0
		for td := range m.Types() {
			if strings.Contains(td.FullName(), name) {
				printType(td)
				found++
			}
		}
		if found == 0 {
			fmt.Fprintf(output, "No types found matching: %s\n", name)
		}
		return nil
	}

	switch e := t.(type) {
	case *clr.TypeDef:
		printTypeDetail(e)
	default:
		fmt.Fprintf(output, "%s %s\n", t.Kind(), t.FullName())
	}
	return nil
}

// findNested resolves "Outer/Inner" paths below a top-level type.
func findNested(m *clr.Module, name string) clr.Type {
	parts := strings.Split(name, "/")
	t := m.FindType(parts[0])
	for _, p := range parts[1:] {
		td, ok := t.(*clr.TypeDef)
		if !ok {
			return nil
		}
		nested := td.FindNestedType(p)
		if nested == nil {
			return nil
		}
		t = nested
	}
	return t
}

func printTypeDetail(td *clr.TypeDef) {
	fmt.Fprintf(output, "Type: %s\n", td.FullName())
	fmt.Fprintf(output, "  Token:  %s\n", td.Token())
	fmt.Fprintf(output, "  Module: %s\n", td.Module().Name())
	fmt.Fprintf(output, "  Kind:   %s\n", typeKind(td))
	fmt.Fprintf(output, "  Flags:  0x%08X\n", td.Flags())
	if base := td.BaseType(); base != nil {
		fmt.Fprintf(output, "  Base:   %s\n", base.FullName())
	}
	if enclosing := td.DeclaringType(); enclosing != nil {
		fmt.Fprintf(output, "  Declaring Type: %s\n", enclosing.FullName())
	}
	if td.IsEnum() {
		fmt.Fprintf(output, "  Underlying Type: %s\n", typeName(td.EnumUnderlyingType()))
	}
	for _, it := range td.Interfaces() {
		fmt.Fprintf(output, "  Implements: %s\n", it.FullName())
	}
	for _, gp := range td.GenericParams() {
		fmt.Fprintf(output, "  Generic Parameter %d: %s\n", gp.Number(), genericParamString(gp))
	}

	if !lookupMembers {
		return
	}

	if fields := td.Fields(); len(fields) > 0 {
		fmt.Fprintln(output, "  Fields:")
		for _, f := range fields {
			line := fmt.Sprintf("    %s %s : %s", f.Token(), f.Name(), typeName(f.Type()))
			if c, ok := f.Constant(); ok {
				line += " = " + c.String()
			}
			fmt.Fprintln(output, line)
		}
	}
	if methods := td.Methods(); len(methods) > 0 {
		fmt.Fprintln(output, "  Methods:")
		for _, mm := range methods {
			sig := "(?)"
			if s := mm.Signature(); s != nil {
				sig = s.String()
			}
			fmt.Fprintf(output, "    %s %s %s\n", mm.Token(), mm.Name(), sig)
		}
	}
	if props := td.Properties(); len(props) > 0 {
		fmt.Fprintln(output, "  Properties:")
		for _, p := range props {
			fmt.Fprintf(output, "    %s %s : %s\n", p.Token(), p.Name(), typeName(p.Type()))
		}
	}
	if events := td.Events(); len(events) > 0 {
		fmt.Fprintln(output, "  Events:")
		for _, e := range events {
			fmt.Fprintf(output, "    %s %s : %s\n", e.Token(), e.Name(), typeName(e.Type()))
		}
	}
	if nested := td.NestedTypes(); len(nested) > 0 {
		fmt.Fprintln(output, "  Nested Types:")
		for _, n := range nested {
			fmt.Fprintf(output, "    %s %s\n", n.Token(), n.Name())
		}
	}
}

func genericParamString(gp *clr.GenericParam) string {
	constraints := gp.Constraints()
	if len(constraints) == 0 {
		return gp.Name()
	}
	names := make([]string, len(constraints))
	for i, c := range constraints {
		names[i] = typeName(c)
	}
	return gp.Name() + " : " + strings.Join(names, ", ")
}
