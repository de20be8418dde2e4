package config

import (
	"strings"

	"etlpipe/internal/flags"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides: fetch.timeout is read from
// ETLPIPE_FETCH_TIMEOUT.
const EnvPrefix = "ETLPIPE"

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	flags.FlagVerbose:   "runtime.verbose",
	flags.FlagLogFormat: "output.log_format",
	flags.FlagLogFile:   "paths.log_file",

	flags.FlagBaseDir:  "paths.base_dir",
	flags.FlagLedger:   "paths.ledger",
	flags.FlagNoLedger: "paths.no_ledger",

	flags.FlagSourcesFile: "sources.file",
	flags.FlagInclude:     "sources.include",
	flags.FlagExclude:     "sources.exclude",

	flags.FlagFetchTimeout:  "fetch.timeout",
	flags.FlagBackoffBase:   "fetch.backoff_base",
	flags.FlagMaxRetries:    "fetch.max_retries",
	flags.FlagMinSizeRatio:  "fetch.min_size_ratio",
	flags.FlagOversizeRatio: "fetch.oversize_ratio",
	flags.FlagRatePerHost:   "fetch.rate_per_host",
	flags.FlagUserAgent:     "fetch.user_agent",
	flags.FlagGitHubToken:   "fetch.github_token",
	flags.FlagGitHubAPI:     "fetch.github_api",

	flags.FlagSyntheticSeed: "transform.synthetic_seed",
	flags.FlagSyntheticRows: "transform.synthetic_rows",
	flags.FlagValidity:      "quality.validity",

	flags.FlagConsoleFormat:       "output.console_format",
	flags.FlagConsoleFilterStatus: "output.console_filter_status",
	flags.FlagReport:              "output.report",
	flags.FlagOut:                 "output.out",
	flags.FlagOutFormat:           "output.out_format",
	flags.FlagEmit:                "output.emit",
	flags.FlagNoConsole:           "output.no_console",

	flags.FlagParallel:      "runtime.parallel",
	flags.FlagConcurrency:   "runtime.concurrency",
	flags.FlagTimeout:       "runtime.timeout",
	flags.FlagFailOnPartial: "runtime.fail_on_partial",
}

// Load layers configuration in increasing precedence: built-in defaults,
// the config file (YAML, TOML or JSON by extension), ETLPIPE_* environment
// variables, then flags explicitly set on fs. The result is validated.
// file and fs may both be empty/nil.
func Load(file string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, New())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", file)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "bind --%s", name)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	// --sequential is the negative spelling of --parallel.
	if fs != nil {
		if f := fs.Lookup(flags.FlagSequential); f != nil && f.Changed && f.Value.String() == "true" {
			cfg.Runtime.Parallel = false
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("paths.base_dir", d.Paths.BaseDir)
	v.SetDefault("paths.raw_dir", d.Paths.RawDir)
	v.SetDefault("paths.processed_dir", d.Paths.ProcessedDir)
	v.SetDefault("paths.logs_dir", d.Paths.LogsDir)
	v.SetDefault("paths.log_file", d.Paths.LogFile)
	v.SetDefault("paths.ledger", d.Paths.Ledger)
	v.SetDefault("paths.no_ledger", d.Paths.NoLedger)

	v.SetDefault("sources.file", d.Sources.File)
	v.SetDefault("sources.include", d.Sources.Include)
	v.SetDefault("sources.exclude", d.Sources.Exclude)

	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.backoff_base", d.Fetch.BackoffBase)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.min_size_ratio", d.Fetch.MinSizeRatio)
	v.SetDefault("fetch.oversize_ratio", d.Fetch.OversizeRatio)
	v.SetDefault("fetch.rate_per_host", d.Fetch.RatePerHost)
	v.SetDefault("fetch.burst", d.Fetch.Burst)
	v.SetDefault("fetch.max_cooldown", d.Fetch.MaxCooldown)
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.github_token", d.Fetch.GitHubToken)
	v.SetDefault("fetch.github_api", d.Fetch.GitHubAPI)

	v.SetDefault("transform.synthetic_seed", d.Transform.SyntheticSeed)
	v.SetDefault("transform.synthetic_rows", d.Transform.SyntheticRows)
	v.SetDefault("quality.validity", d.Quality.Validity)

	v.SetDefault("output.console_format", d.Output.ConsoleFormat)
	v.SetDefault("output.console_filter_status", d.Output.ConsoleFilterStatus)
	v.SetDefault("output.report", d.Output.Report)
	v.SetDefault("output.out", d.Output.Out)
	v.SetDefault("output.out_format", d.Output.OutFormat)
	v.SetDefault("output.emit", d.Output.Emit)
	v.SetDefault("output.no_console", d.Output.NoConsole)
	v.SetDefault("output.log_format", d.Output.LogFormat)

	v.SetDefault("runtime.parallel", d.Runtime.Parallel)
	v.SetDefault("runtime.concurrency", d.Runtime.Concurrency)
	v.SetDefault("runtime.timeout", d.Runtime.Timeout)
	v.SetDefault("runtime.fail_on_partial", d.Runtime.FailOnPartial)
	v.SetDefault("runtime.verbose", d.Runtime.Verbose)
}
