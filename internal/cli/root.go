package cli

import (
	"fmt"
	"os"

	"etlpipe/internal/config"
	"etlpipe/internal/flags"
	"etlpipe/internal/logging"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "etlpipe",
	Short: "Extract, validate, transform and load public statistics sources",
	Long: `etlpipe downloads a catalog of public data sources, verifies each artifact,
normalizes the tabular ones into datasets and writes them as Parquet and CSV
together with a data quality score.

Examples:
	# Show available commands and global flags
	etlpipe --help

	# Run the pipeline against the built-in source catalog
	etlpipe run

	# List the configured sources
	etlpipe sources list

	# Print build info
	etlpipe version

Configuration:
	Settings are layered: built-in defaults, then --config (YAML, TOML or JSON),
	then ETLPIPE_* environment variables (ETLPIPE_FETCH_TIMEOUT=10s), then flags.`,
}

func init() {
	d := config.New()
	pf := rootCmd.PersistentFlags()
	pf.String(flags.FlagConfig, "", "Config file (YAML, TOML or JSON, by extension)")
	pf.Bool(flags.FlagVerbose, d.Runtime.Verbose, "Enable debug logging and full error details (request URLs are not scrubbed)")
	pf.String(flags.FlagLogFormat, d.Output.LogFormat, "Log stream format on stderr: console|json")
	pf.String(flags.FlagLogFile, logging.DefaultFile, "Append JSON log entries to this file (empty disables)")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

// loadConfig layers the --config file, environment and the flags of cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	file, _ := cmd.Flags().GetString(flags.FlagConfig)
	return config.Load(file, cmd.Flags())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
