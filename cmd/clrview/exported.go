package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var exportedForwarders bool

var exportedCmd = &cobra.Command{
	Use:   "exported <assembly>",
	Short: "List exported types and type forwarders",
	Args:  cobra.ExactArgs(1),
	RunE:  runExported,
}

func init() {
	exportedCmd.Flags().BoolVarP(&exportedForwarders, "forwarders", "F", false, "only show type forwarders")
}

func runExported(cmd *cobra.Command, args []string) error {
	h, m, err := openAssembly(args[0])
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintf(output, "%-26s %-9s %-40s %s\n", "TOKEN", "FORWARDER", "NAME", "TARGET")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 100))

	count := 0
	for et := range m.ExportedTypes() {
		if exportedForwarders && !et.IsForwarder() {
			continue
		}
		target := "<unresolved>"
		if t := et.Target(); t != nil {
			target = t.FullName()
			if def := et.Definition(); def != nil {
				target = fmt.Sprintf("[%s] %s", def.Module().Name(), def.FullName())
			}
		}
		fmt.Fprintf(output, "%-26s %-9v %-40s %s\n", et.Token(), et.IsForwarder(), et.FullName(), target)
		count++
	}

	fmt.Fprintf(output, "\nTotal: %d exported types\n", count)
	return nil
}
