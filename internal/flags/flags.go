package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// config loading. The config layer binds each flag to its configuration key,
// so a rename here must stay in sync with config.flagKeys.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&baseDir, flags.FlagBaseDir, "", "...")
//	arg := "--" + flags.FlagBaseDir
const (
	// Global
	FlagConfig    = "config"
	FlagVerbose   = "verbose"
	FlagLogFormat = "log-format"
	FlagLogFile   = "log-file"

	// Paths
	FlagBaseDir  = "base-dir"
	FlagLedger   = "ledger"
	FlagNoLedger = "no-ledger"

	// Sources
	FlagSourcesFile = "sources-file"
	FlagInclude     = "include"
	FlagExclude     = "exclude"

	// Fetch
	FlagFetchTimeout  = "fetch-timeout"
	FlagBackoffBase   = "backoff-base"
	FlagMaxRetries    = "max-retries"
	FlagMinSizeRatio  = "min-size-ratio"
	FlagOversizeRatio = "oversize-ratio"
	FlagRatePerHost   = "rate-per-host"
	FlagUserAgent     = "user-agent"
	FlagGitHubToken   = "github-token"
	FlagGitHubAPI     = "github-api"

	// Transform / quality
	FlagSyntheticSeed = "synthetic-seed"
	FlagSyntheticRows = "synthetic-rows"
	FlagValidity      = "validity"

	// Output
	FlagConsoleFormat       = "console-format"
	FlagConsoleFilterStatus = "console-filter-status"
	FlagReport              = "report"
	FlagOut                 = "out"
	FlagOutFormat           = "out-format"
	FlagEmit                = "emit"
	FlagNoConsole           = "no-console"

	// Runtime
	FlagParallel      = "parallel"
	FlagSequential    = "sequential"
	FlagConcurrency   = "concurrency"
	FlagTimeout       = "timeout"
	FlagFailOnPartial = "fail-on-partial"
)
