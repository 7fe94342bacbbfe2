package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/clrmeta-go/clr"
)

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump <assembly>",
	Short: "Dump all module metadata",
	Long: `Dump the metadata of a module in structured format.

Supported formats:
  - text: Human-readable text (default)
  - json: JSON format`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format (text, json)")
}

func runDump(cmd *cobra.Command, args []string) error {
	switch dumpFormat {
	case "json":
		return dumpJSON(args[0])
	case "text":
		return dumpText(cmd, args)
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

type ModuleDump struct {
	File          string             `json:"file"`
	Name          string             `json:"name"`
	MVID          string             `json:"mvid"`
	Assembly      string             `json:"assembly,omitempty"`
	CoreLibrary   string             `json:"core_library"`
	AssemblyRefs  []AssemblyRefDump  `json:"assembly_refs"`
	Types         []TypeDump         `json:"types"`
	TypeRefs      []TypeRefDump      `json:"type_refs"`
	MemberRefs    []MemberRefDump    `json:"member_refs"`
	ExportedTypes []ExportedTypeDump `json:"exported_types,omitempty"`
	Diagnostics   []string           `json:"diagnostics,omitempty"`
}

type AssemblyRefDump struct {
	Token    uint32 `json:"token"`
	Identity string `json:"identity"`
	Path     string `json:"path,omitempty"`
}

type TypeDump struct {
	Token      uint32   `json:"token"`
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	BaseType   string   `json:"base_type,omitempty"`
	Interfaces []string `json:"interfaces,omitempty"`
	Fields     []string `json:"fields,omitempty"`
	Methods    []string `json:"methods,omitempty"`
}

type TypeRefDump struct {
	Token      uint32 `json:"token"`
	Name       string `json:"name"`
	Definition string `json:"definition,omitempty"`
}

type MemberRefDump struct {
	Token     uint32 `json:"token"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Target    string `json:"target,omitempty"`
}

type ExportedTypeDump struct {
	Token     uint32 `json:"token"`
	Name      string `json:"name"`
	Forwarder bool   `json:"forwarder"`
	Target    string `json:"target,omitempty"`
}

func dumpJSON(path string) error {
	h, m, err := openAssembly(path)
	if err != nil {
		return err
	}
	defer h.Close()

	dump := &ModuleDump{
		File:        path,
		Name:        m.Name(),
		MVID:        formatGUID(m.MVID()),
		CoreLibrary: m.CoreAssemblyIdentity().String(),
	}
	if id, ok := m.Assembly(); ok {
		dump.Assembly = id.String()
	}

	for ar := range m.AssemblyRefs() {
		d := AssemblyRefDump{Token: uint32(ar.Token()), Identity: ar.String()}
		if mod := ar.Resolve(); mod != nil {
			d.Path = mod.Path()
		}
		dump.AssemblyRefs = append(dump.AssemblyRefs, d)
	}

	for td := range m.Types() {
		d := TypeDump{Token: uint32(td.Token()), Kind: typeKind(td), Name: td.FullName()}
		if base := td.BaseType(); base != nil {
			d.BaseType = base.FullName()
		}
		for _, it := range td.Interfaces() {
			d.Interfaces = append(d.Interfaces, it.FullName())
		}
		for _, f := range td.Fields() {
			d.Fields = append(d.Fields, f.Name()+" : "+typeName(f.Type()))
		}
		for _, mm := range td.Methods() {
			name := mm.Name()
			if s := mm.Signature(); s != nil {
				name += " " + s.String()
			}
			d.Methods = append(d.Methods, name)
		}
		dump.Types = append(dump.Types, d)
	}

	for tr := range m.TypeRefs() {
		d := TypeRefDump{Token: uint32(tr.Token()), Name: tr.FullName()}
		if def := tr.Definition(); def != nil {
			d.Definition = describeDefinition(def)
		}
		dump.TypeRefs = append(dump.TypeRefs, d)
	}

	for r := range m.MemberRefs() {
		d := MemberRefDump{Token: uint32(r.Token()), Name: r.FullName(), Signature: memberSignature(r)}
		if target := r.Resolve(); target != nil {
			d.Target = describeMember(target)
		}
		dump.MemberRefs = append(dump.MemberRefs, d)
	}

	for et := range m.ExportedTypes() {
		d := ExportedTypeDump{Token: uint32(et.Token()), Name: et.FullName(), Forwarder: et.IsForwarder()}
		if t := et.Target(); t != nil {
			d.Target = t.FullName()
		}
		dump.ExportedTypes = append(dump.ExportedTypes, d)
	}

	dump.Diagnostics = diagnosticStrings(m)

	enc := json.NewEncoder(output)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}

func diagnosticStrings(m *clr.Module) []string {
	diags := m.Diagnostics()
	if len(diags) == 0 {
		return nil
	}
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.String()
	}
	return out
}

func dumpText(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(output, "=== Assembly Information ===")
	if err := runInfo(cmd, args); err != nil {
		return err
	}

	fmt.Fprintln(output, "\n=== Types ===")
	if err := runTypes(cmd, args); err != nil {
		return err
	}

	fmt.Fprintln(output, "\n=== References ===")
	if err := runRefs(cmd, args); err != nil {
		return err
	}

	fmt.Fprintln(output, "\n=== Member References ===")
	if err := runMemberRefs(cmd, args); err != nil {
		return err
	}

	fmt.Fprintln(output, "\n=== Exported Types ===")
	if err := runExported(cmd, args); err != nil {
		return err
	}

	fmt.Fprintln(output, "\n=== Custom Attributes ===")
	return runAttrs(cmd, args)
}
