package cli

import (
	"fmt"
	"io"

	"etlpipe/internal/config"
	"etlpipe/internal/data"
	"etlpipe/internal/registry"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var sourcesListQuiet bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the source catalog",
	Long: `Inspect the catalog of sources a run extracts from.

The built-in catalog is used unless --sources-file points at a YAML catalog.
--include / --exclude narrow it the same way they do for "etlpipe run".

Examples:
  # List all sources
  etlpipe sources list

  # Show one source
  etlpipe sources show flc_tpc_data
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog sources",
	Long: `List sources in catalog order, which is also the sequential fetch order.

Examples:
  etlpipe sources list
  etlpipe sources list -q --sources-file sources.yaml

Output:
  A vertical list of sources:
    ----------------------------------------
    SOURCE: {NAME}
    ----------------------------------------
    {TITLE}
    URL, format, expected size, attempts, last update
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := selectedRegistry(cmd)
		if err != nil {
			return err
		}
		for _, d := range reg.List() {
			if sourcesListQuiet {
				fmt.Fprintln(cmd.OutOrStdout(), d.Name)
			} else {
				printSource(cmd.OutOrStdout(), d)
			}
		}
		return nil
	},
}

var sourcesShowCmd = &cobra.Command{
	Use:   "show [source-name]",
	Short: "Show details of a specific source",
	Long: `Show details of a specific source by its name.

Examples:
  etlpipe sources show boe_rd171
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := selectedRegistry(cmd)
		if err != nil {
			return err
		}
		d, ok := reg.Lookup(args[0])
		if !ok {
			return errors.Newf("source not found: %s", args[0])
		}
		printSource(cmd.OutOrStdout(), d)
		return nil
	},
}

func selectedRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return catalog(cfg)
}

func catalog(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.Default()
	if cfg.Sources.File != "" {
		r, err := registry.LoadFile(cfg.Sources.File)
		if err != nil {
			return nil, err
		}
		reg = r
	}
	return reg.Filter(cfg.Sources.Include, cfg.Sources.Exclude), nil
}

func printSource(w io.Writer, d data.SourceDescriptor) {
	bold := color.New(color.Bold)
	fmt.Fprintln(w, "----------------------------------------")
	bold.Fprintf(w, "SOURCE: %s\n", d.Name)
	fmt.Fprintln(w, "----------------------------------------")
	if d.Title != "" {
		fmt.Fprintln(w, d.Title)
	}
	fmt.Fprintf(w, "  URL:           %s\n", d.Address)
	fmt.Fprintf(w, "  Format:        %s\n", d.Format)
	if d.ExpectedSizeMB > 0 {
		fmt.Fprintf(w, "  Expected size: %.2f MB\n", d.ExpectedSizeMB)
	} else {
		fmt.Fprintln(w, "  Expected size: unknown")
	}
	fmt.Fprintf(w, "  Max attempts:  %d\n", d.MaxRetries)
	if !d.LastUpdated.IsZero() {
		fmt.Fprintf(w, "  Last updated:  %s\n", d.LastUpdated.Format("2006-01-02"))
	}
	fmt.Fprintln(w)
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	addSourceFlags(sourcesCmd.PersistentFlags())
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesListCmd.Flags().BoolVarP(&sourcesListQuiet, "quiet", "q", false, "Only print source names")
	sourcesCmd.AddCommand(sourcesShowCmd)
}
