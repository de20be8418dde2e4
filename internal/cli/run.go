package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"etlpipe/internal/config"
	"etlpipe/internal/engine"
	"etlpipe/internal/flags"
	"etlpipe/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const runHelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}Usage:
  {{.UseLine}}

{{if .HasAvailableLocalFlags}}Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}Environment:
	Every setting can be supplied as ETLPIPE_<SECTION>_<KEY>, for example
	ETLPIPE_FETCH_TIMEOUT=10s or ETLPIPE_RUNTIME_CONCURRENCY=2.

	github:// sources authenticate with a token. Sources (in order):
	1) --github-token / ETLPIPE_FETCH_GITHUB_TOKEN
	2) ETLPIPE_GITHUB_TOKEN or GITHUB_TOKEN environment variable
	3) GitHub CLI (gh) authentication via gh auth token
	Public repositories work without a token at a lower rate limit.

{{if .HasAvailableSubCommands}}Available Commands:
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the extraction pipeline once",
	Long: `Run one extraction pass: fetch every selected source with retries, validate
and checksum each artifact, transform tabular artifacts into datasets, then
write Parquet and CSV outputs and score their quality.

When no source yields a usable dataset, a deterministic synthetic dataset is
loaded instead so downstream consumers always receive a scored output.

Directories:
	--base-dir holds raw/ (artifacts and .metadata.json), processed/ (Parquet
	and CSV) and logs/ (the SQLite run ledger, pipeline.db). Earlier outputs are
	never overwritten; colliding names get a run timestamp suffix.

Output:
	Console output is controlled by --console-format (default: text).
	Structured outputs can be written via:
	- --out / --out-format: write the run summary (json) or the event stream (ndjson) to a file
	- --emit: write an additional structured stream to stdout (json or ndjson)
	- --report: write a Markdown run report
	- --no-console: suppress the console sink (use with --emit/--out for machine output)

	NDJSON mode emits one JSON object per line. Objects are lifecycle Events with a
	"type" field (run.started, source.finished, dataset.loaded, run.finished).
	run.finished carries the summary and the exit code.

Exit codes:
	0 = every source extracted, or a partial run without --fail-on-partial
	1 = no source produced a usable artifact (synthetic fallback only)
	2 = partial extraction with --fail-on-partial
	3 = fatal error (pipeline did not complete)

Examples:
	# Built-in catalog, parallel fetch
	etlpipe run

	# Custom catalog, sequential, only the INSST and ITSS sources
	etlpipe run --sources-file sources.yaml --sequential --include 'insst*,itss*'

	# Stream machine-readable events to stdout
	etlpipe run --no-console --emit ndjson
`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runPipeline(cmd.Context(), cmd))
	},
}

// runPipeline loads configuration for cmd and executes one run. It returns
// the process exit code.
func runPipeline(ctx context.Context, cmd *cobra.Command) int {
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}

	log, closeLog, err := logging.New(logging.Options{
		File:    cfg.Paths.LogFile,
		Format:  cfg.Output.LogFormat,
		Verbose: cfg.Runtime.Verbose,
		Quiet:   cfg.Output.NoConsole,
		Console: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 3
	}
	defer func() { _ = closeLog() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.NewEngine(log)
	eng.Stdout = cmd.OutOrStdout()
	eng.Stderr = stderr
	return eng.Run(ctx, cfg)
}

// addRunFlags registers every run-affecting flag. Defaults come from
// config.New so help text matches what Load applies.
func addRunFlags(fs *pflag.FlagSet) {
	d := config.New()

	// MAINTAINER NOTE: every flag here needs an entry in config.flagKeys,
	// otherwise its value never reaches the Config.

	// Paths
	fs.String(flags.FlagBaseDir, d.Paths.BaseDir, "Base directory for raw/, processed/ and logs/")
	fs.String(flags.FlagLedger, "", "SQLite run ledger path (default: <base-dir>/logs/pipeline.db)")
	fs.Bool(flags.FlagNoLedger, false, "Do not record the run in the ledger")

	// Sources
	addSourceFlags(fs)

	// Fetch
	fs.Duration(flags.FlagFetchTimeout, d.Fetch.Timeout, "Timeout for a single request")
	fs.Duration(flags.FlagBackoffBase, d.Fetch.BackoffBase, "Delay before the second attempt; later delays double")
	fs.Int(flags.FlagMaxRetries, d.Fetch.MaxRetries, "Override every source's attempt limit (0 = per-source)")
	fs.Float64(flags.FlagMinSizeRatio, d.Fetch.MinSizeRatio, "Reject artifacts smaller than this fraction of the expected size")
	fs.Float64(flags.FlagOversizeRatio, d.Fetch.OversizeRatio, "Warn when Content-Length exceeds this multiple of the expected size")
	fs.Float64(flags.FlagRatePerHost, d.Fetch.RatePerHost, "Requests per second per host (0 = unlimited)")
	fs.String(flags.FlagUserAgent, "", "User-Agent header for HTTP requests")
	fs.String(flags.FlagGitHubToken, "", "Token for github:// sources (default: GITHUB_TOKEN or gh auth token)")
	fs.String(flags.FlagGitHubAPI, "", "GitHub REST API root (GitHub Enterprise)")

	// Transform / quality
	fs.Uint64(flags.FlagSyntheticSeed, d.Transform.SyntheticSeed, "Seed of the synthetic fallback dataset")
	fs.Int(flags.FlagSyntheticRows, d.Transform.SyntheticRows, "Rows in the synthetic fallback dataset")
	fs.String(flags.FlagValidity, d.Quality.Validity, "Validity score: typed|fixed")

	// Output
	fs.String(flags.FlagConsoleFormat, d.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	fs.StringSlice(flags.FlagConsoleFilterStatus, nil, "Only print sources with these statuses (OK, FAIL). Comma-separated.")
	fs.String(flags.FlagReport, "", "Write a Markdown run report to this path")
	fs.String(flags.FlagOut, "", "Write structured output to this path")
	fs.String(flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	fs.StringSlice(flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	fs.Bool(flags.FlagNoConsole, false, "Suppress console output and stderr logs (use with --emit/--out/--report)")

	// Runtime
	fs.Bool(flags.FlagParallel, d.Runtime.Parallel, "Fetch sources concurrently")
	fs.Bool(flags.FlagSequential, false, "Fetch sources one at a time in catalog order")
	fs.Int(flags.FlagConcurrency, d.Runtime.Concurrency, "Concurrent fetch workers")
	fs.Duration(flags.FlagTimeout, d.Runtime.Timeout, "Bound on the whole run (0 = none)")
	fs.Bool(flags.FlagFailOnPartial, false, "Exit 2 when some sources fail")
}

func addSourceFlags(fs *pflag.FlagSet) {
	fs.String(flags.FlagSourcesFile, "", "YAML source catalog replacing the built-in one")
	fs.StringSlice(flags.FlagInclude, nil, "Include source name pattern(s) (Go path.Match; repeatable; comma-separated accepted)")
	fs.StringSlice(flags.FlagExclude, nil, "Exclude source name pattern(s); exclude wins over include")
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.SetHelpTemplate(runHelpTemplate)
	addRunFlags(runCmd.Flags())
}
