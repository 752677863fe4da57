// Package cli implements the heritage command line tool.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds the global flags shared by every command.
type RootOptions struct {
	ConfigPath string
	Format     string
	// Driver overrides storage.driver from the config file and environment.
	Driver string
	Trace  bool
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the heritage command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cmd := &cobra.Command{
		Use:           "heritage",
		Short:         "Heritage collection record store",
		Long:          "Register and inspect artifacts, loans, conservation records and digital surrogates.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Driver, "driver", "", "storage driver override (bolt|sqlite|postgres|memory)")
	flags.BoolVar(&opts.Trace, "trace", false, "write one JSON span per operation to stderr")

	cmd.AddCommand(
		NewDemoCommand(opts),
		NewStatusCommand(opts),
		NewGetCommand(opts),
		NewTitleCommand(opts),
		NewQueryCommand(opts),
		NewIngestCommand(opts),
		NewPreviewCommand(opts),
	)
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
