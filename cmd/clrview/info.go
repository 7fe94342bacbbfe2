package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
	"github.com/skdltmxn/clrmeta-go/internal/tables"
)

var infoCmd = &cobra.Command{
	Use:   "info <assembly>",
	Short: "Display assembly information",
	Long:  `Display general information about a managed image including its identity, core library, runtime header and table sizes.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

// infoTables are the tables whose row counts info reports.
var infoTables = []tables.TableID{
	tables.TableTypeDef,
	tables.TableTypeRef,
	tables.TableTypeSpec,
	tables.TableField,
	tables.TableMethodDef,
	tables.TableMemberRef,
	tables.TableMethodSpec,
	tables.TableAssemblyRef,
	tables.TableExportedType,
	tables.TableCustomAttribute,
	tables.TableManifestResource,
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]

	h, m, err := openAssembly(path)
	if err != nil {
		return err
	}
	defer h.Close()

	fmt.Fprintf(output, "File: %s\n", path)
	fmt.Fprintf(output, "Module: %s\n", m.Name())
	fmt.Fprintf(output, "MVID: %s\n", formatGUID(m.MVID()))
	if id, ok := m.Assembly(); ok {
		fmt.Fprintf(output, "Assembly: %s\n", id)
	} else {
		fmt.Fprintf(output, "Assembly: <none>\n")
	}
	fmt.Fprintf(output, "Core Library: %s\n", m.CoreAssemblyIdentity())

	if img := m.Image(); img != nil {
		if root, err := img.Metadata(); err == nil {
			fmt.Fprintf(output, "Metadata Version: %s (%d.%d)\n", root.Version, root.MajorVersion, root.MinorVersion)
		}
		hdr := img.CLIHeader()
		fmt.Fprintf(output, "Runtime Header: %d.%d\n", hdr.MajorRuntimeVersion, hdr.MinorRuntimeVersion)
		fmt.Fprintf(output, "IL Only: %v\n", hdr.ILOnly())
		fmt.Fprintf(output, "Strong Name Signed: %v\n", hdr.StrongNameSigned())
		if hdr.EntryPointToken != 0 {
			fmt.Fprintf(output, "Entry Point: %s\n", describeToken(m, tables.Token(hdr.EntryPointToken)))
		}
		fmt.Fprintf(output, "Machine: 0x%04X\n", img.Machine())
	}

	fmt.Fprintln(output, "Tables:")
	for _, id := range infoTables {
		fmt.Fprintf(output, "  %-18s %d\n", id, m.RowCount(id))
	}

	// Force every reference to resolve so the diagnostic count is complete.
	for tr := range m.TypeRefs() {
		tr.Definition()
	}
	for r := range m.MemberRefs() {
		r.Resolve()
	}
	fmt.Fprintf(output, "Diagnostics: %d\n", len(m.Diagnostics()))
	return nil
}

// describeToken renders the entity a token names.
func describeToken(m *clr.Module, tok tables.Token) string {
	v, err := m.ResolveToken(tok)
	if err != nil {
		return fmt.Sprintf("%s <invalid>", tok)
	}
	switch e := v.(type) {
	case interface{ FullName() string }:
		return fmt.Sprintf("%s %s", tok, e.FullName())
	case interface{ Name() string }:
		return fmt.Sprintf("%s %s", tok, e.Name())
	case string:
		return fmt.Sprintf("%s %q", tok, e)
	}
	return tok.String()
}

func formatGUID(guid [16]byte) string {
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		uint32(guid[0])|uint32(guid[1])<<8|uint32(guid[2])<<16|uint32(guid[3])<<24,
		uint16(guid[4])|uint16(guid[5])<<8,
		uint16(guid[6])|uint16(guid[7])<<8,
		guid[8], guid[9],
		guid[10], guid[11], guid[12], guid[13], guid[14], guid[15])
}
