package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skdltmxn/clrmeta-go/clr"
)

var (
	outputFile string
	output     io.Writer

	config *Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "clrview",
	Short: ".NET assembly metadata viewer",
	Long: `clrview is a command-line tool for viewing and analyzing the
ECMA-335 metadata of .NET assemblies and modules.

It can display type definitions, type and member references, exported
types, custom attributes and the cross-assembly resolution of references.

Settings are read from clrview.yaml in the working directory, CLRVIEW_*
environment variables (a .env file is loaded first) and flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		config = cfg

		if logger, err = newLogger(cfg.LogLevel); err != nil {
			return err
		}

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	registerConfigFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(memberRefsCmd)
	rootCmd.AddCommand(exportedCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(attrsCmd)
	rootCmd.AddCommand(dumpCmd)
}

// openAssembly loads path into a fresh host. The caller closes the host.
func openAssembly(path string) (*clr.Host, *clr.Module, error) {
	cfg := config
	if cfg == nil {
		cfg = &Config{}
	}
	h := clr.NewHost(cfg.hostOptions(logger))
	m, err := h.Open(path)
	if err != nil {
		h.Close()
		return nil, nil, fmt.Errorf("failed to open assembly: %w", err)
	}
	return h, m, nil
}
