package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
)

var (
	typesKind      string
	typesNamespace string
	typesLimit     int
)

var typesCmd = &cobra.Command{
	Use:   "types <assembly>",
	Short: "List type definitions",
	Long: `List the type definitions of a module.

Use --kind to filter by type kind (class, interface, struct, enum, delegate)
and --namespace to restrict the listing to one namespace.`,
	Args: cobra.ExactArgs(1),
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().StringVarP(&typesKind, "kind", "k", "", "filter by type kind (class, interface, struct, enum, delegate)")
	typesCmd.Flags().StringVar(&typesNamespace, "namespace", "", "only list types of this namespace")
	typesCmd.Flags().IntVarP(&typesLimit, "limit", "n", 0, "limit number of types shown (0 = unlimited)")
}

func runTypes(cmd *cobra.Command, args []string) error {
	h, m, err := openAssembly(args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	kind := strings.ToLower(typesKind)
	switch kind {
	case "", "class", "interface", "struct", "enum", "delegate":
	default:
		return fmt.Errorf("unknown type kind: %s", typesKind)
	}

	fmt.Fprintf(output, "%-22s %-10s %s\n", "TOKEN", "KIND", "NAME")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 80))

	count := 0
	for td := range m.Types() {
		if kind != "" && typeKind(td) != kind {
			continue
		}
		if typesNamespace != "" && outermost(td).Namespace() != typesNamespace {
			continue
		}

		printType(td)
		count++
		if typesLimit > 0 && count >= typesLimit {
			break
		}
	}

	fmt.Fprintf(output, "\nTotal: %d types\n", count)
	return nil
}

func typeKind(td *clr.TypeDef) string {
	switch {
	case td.IsInterface():
		return "interface"
	case td.IsEnum():
		return "enum"
	case td.IsValueType():
		return "struct"
	case td.IsDelegate():
		return "delegate"
	}
	return "class"
}

func outermost(td *clr.TypeDef) *clr.TypeDef {
	for td.DeclaringType() != nil {
		td = td.DeclaringType()
	}
	return td
}

func printType(td *clr.TypeDef) {
	name := td.FullName()
	if base := td.BaseType(); base != nil {
		name += " : " + base.FullName()
	}
	fmt.Fprintf(output, "%-22s %-10s %s\n", td.Token(), typeKind(td), name)
}
