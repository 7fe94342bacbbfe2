package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
)

var refsUnresolved bool

var refsCmd = &cobra.Command{
	Use:   "refs <assembly>",
	Short: "List assembly and type references",
	Long: `List the assembly references of a module and its type references
together with the definition each one resolves to.

Referenced assemblies are located next to the input file and in the
configured search paths.`,
	Args: cobra.ExactArgs(1),
	RunE: runRefs,
}

func init() {
	refsCmd.Flags().BoolVarP(&refsUnresolved, "unresolved", "u", false, "only show references that do not resolve")
}

func runRefs(cmd *cobra.Command, args []string) error {
	h, m, err := openAssembly(args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintln(output, "Assembly references:")
	for ar := range m.AssemblyRefs() {
		target := "<not found>"
		if mod := ar.Resolve(); mod != nil {
			target = mod.Path()
		} else if refsUnresolved {
			fmt.Fprintf(output, "  %-26s %s\n", ar.Token(), ar)
			continue
		}
		if !refsUnresolved {
			fmt.Fprintf(output, "  %-26s %s\n  %-26s -> %s\n", ar.Token(), ar, "", target)
		}
	}

	fmt.Fprintln(output)
	fmt.Fprintf(output, "%-22s %-40s %s\n", "TOKEN", "NAME", "DEFINITION")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 100))

	count := 0
	for tr := range m.TypeRefs() {
		def := tr.Definition()
		if refsUnresolved && def != nil {
			continue
		}
		fmt.Fprintf(output, "%-22s %-40s %s\n", tr.Token(), tr.FullName(), describeDefinition(def))
		count++
	}

	fmt.Fprintf(output, "\nTotal: %d type references\n", count)
	return nil
}

func describeDefinition(td *clr.TypeDef) string {
	if td == nil {
		return "<unresolved>"
	}
	return fmt.Sprintf("[%s] %s", td.Module().Name(), td.Token())
}
