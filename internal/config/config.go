package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// LedgerFileName is the ledger database created inside the logs directory
// when no explicit ledger path is configured.
const LedgerFileName = "pipeline.db"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - defaults in setDefaults (load.go)
	// - flag bindings in flagKeys (load.go) and internal/cli/run.go
	Paths     Paths     `mapstructure:"paths"`
	Sources   Sources   `mapstructure:"sources"`
	Fetch     Fetch     `mapstructure:"fetch"`
	Transform Transform `mapstructure:"transform"`
	Quality   Quality   `mapstructure:"quality"`
	Output    Output    `mapstructure:"output"`
	Runtime   Runtime   `mapstructure:"runtime"`
}

type Paths struct {
	// BaseDir holds raw/, processed/ and logs/ (see --base-dir).
	BaseDir string `mapstructure:"base_dir"`

	// RawDir, ProcessedDir and LogsDir default to subdirectories of BaseDir.
	RawDir       string `mapstructure:"raw_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	LogsDir      string `mapstructure:"logs_dir"`

	// LogFile receives JSON log entries (see --log-file). Empty disables it.
	LogFile string `mapstructure:"log_file"`

	// Ledger is the SQLite audit database (see --ledger). Defaults to
	// LogsDir/pipeline.db.
	Ledger string `mapstructure:"ledger"`

	// NoLedger disables the audit database (see --no-ledger).
	NoLedger bool `mapstructure:"no_ledger"`
}

type Sources struct {
	// File is a YAML source list replacing the built-in registry (see --sources-file).
	File string `mapstructure:"file"`

	// Include / Exclude filter sources by name using Go path.Match patterns.
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

type Fetch struct {
	// Timeout bounds a single request (see --fetch-timeout).
	Timeout time.Duration `mapstructure:"timeout"`

	// BackoffBase is the first retry delay; later delays double (see --backoff-base).
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// MaxRetries overrides every source's attempt limit when > 0 (see --max-retries).
	MaxRetries int `mapstructure:"max_retries"`

	// MinSizeRatio rejects artifacts smaller than ratio × expected size.
	MinSizeRatio float64 `mapstructure:"min_size_ratio"`

	// OversizeRatio warns when Content-Length exceeds ratio × expected size.
	OversizeRatio float64 `mapstructure:"oversize_ratio"`

	// RatePerHost paces requests per host; 0 means unlimited.
	RatePerHost float64 `mapstructure:"rate_per_host"`
	Burst       int     `mapstructure:"burst"`

	// MaxCooldown caps a single Retry-After wait.
	MaxCooldown time.Duration `mapstructure:"max_cooldown"`

	UserAgent string `mapstructure:"user_agent"`

	// GitHubToken authenticates github:// sources. Empty falls back to
	// ETLPIPE_GITHUB_TOKEN, GITHUB_TOKEN and the gh CLI.
	GitHubToken string `mapstructure:"github_token"`

	// GitHubAPI overrides the GitHub REST root (GitHub Enterprise).
	GitHubAPI string `mapstructure:"github_api"`
}

type Transform struct {
	SyntheticSeed uint64 `mapstructure:"synthetic_seed"`
	SyntheticRows int    `mapstructure:"synthetic_rows"`
}

type Quality struct {
	// Validity selects the validity score: typed or fixed (see --validity).
	Validity string `mapstructure:"validity"`
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `mapstructure:"console_format"`

	// ConsoleFilterStatus filters per-source console lines (see --console-filter-status).
	// Allowed values: OK, FAIL.
	ConsoleFilterStatus []string `mapstructure:"console_filter_status"`

	// Report writes a Markdown run report to this path (see --report).
	Report string `mapstructure:"report"`

	// Out writes structured output to this path (see --out).
	Out string `mapstructure:"out"`

	// OutFormat selects the format for --out (see --out-format).
	// Allowed values: json, ndjson. If empty, it is inferred from the --out file extension.
	OutFormat string `mapstructure:"out_format"`

	// Emit writes an additional structured event stream to stdout (see --emit).
	// Allowed values: json, ndjson.
	Emit []string `mapstructure:"emit"`

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool `mapstructure:"no_console"`

	// LogFormat is the stderr log stream format: console or json (see --log-format).
	LogFormat string `mapstructure:"log_format"`
}

type Runtime struct {
	// Parallel fetches sources concurrently (see --parallel / --sequential).
	Parallel bool `mapstructure:"parallel"`

	// Concurrency is the parallel worker width (see --concurrency). Must be >= 1.
	Concurrency int `mapstructure:"concurrency"`

	// Timeout bounds the whole run (see --timeout). 0 means no limit.
	Timeout time.Duration `mapstructure:"timeout"`

	// FailOnPartial turns a partially failed extraction into exit code 2.
	FailOnPartial bool `mapstructure:"fail_on_partial"`

	// Verbose enables debug logging and unscrubbed error details.
	Verbose bool `mapstructure:"verbose"`
}

func New() *Config {
	return &Config{
		Paths: Paths{
			BaseDir: "data",
			LogFile: "etl_pipeline.log",
		},
		Fetch: Fetch{
			Timeout:       30 * time.Second,
			BackoffBase:   time.Second,
			MinSizeRatio:  0.1,
			OversizeRatio: 2.0,
			Burst:         1,
			MaxCooldown:   2 * time.Minute,
		},
		Transform: Transform{
			SyntheticSeed: 42,
			SyntheticRows: 1000,
		},
		Quality: Quality{
			Validity: "typed",
		},
		Output: Output{
			ConsoleFormat: "text",
			LogFormat:     "console",
		},
		Runtime: Runtime{
			Parallel:    true,
			Concurrency: 5,
		},
	}
}

// Validate normalizes list and enum inputs, derives unset directories and
// rejects invalid bounds.
func (c *Config) Validate() error {
	c.Sources.Include = splitCommaList(c.Sources.Include)
	c.Sources.Exclude = splitCommaList(c.Sources.Exclude)
	c.Output.ConsoleFilterStatus = splitCommaList(c.Output.ConsoleFilterStatus)
	c.Output.Emit = splitCommaList(c.Output.Emit)

	// Paths
	c.Paths.BaseDir = strings.TrimSpace(c.Paths.BaseDir)
	if c.Paths.BaseDir == "" {
		return errors.New("--base-dir must not be empty")
	}
	if c.Paths.RawDir == "" {
		c.Paths.RawDir = filepath.Join(c.Paths.BaseDir, "raw")
	}
	if c.Paths.ProcessedDir == "" {
		c.Paths.ProcessedDir = filepath.Join(c.Paths.BaseDir, "processed")
	}
	if c.Paths.LogsDir == "" {
		c.Paths.LogsDir = filepath.Join(c.Paths.BaseDir, "logs")
	}
	if c.Paths.Ledger == "" {
		c.Paths.Ledger = filepath.Join(c.Paths.LogsDir, LedgerFileName)
	}

	// Fetch
	if c.Fetch.Timeout <= 0 {
		return errors.New("--fetch-timeout must be > 0")
	}
	if c.Fetch.BackoffBase < 0 {
		return errors.New("--backoff-base must be >= 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return errors.New("--max-retries must be >= 0 (0 keeps each source's own limit)")
	}
	if c.Fetch.MinSizeRatio < 0 || c.Fetch.MinSizeRatio > 1 {
		return errors.New("--min-size-ratio must be between 0 and 1")
	}
	if c.Fetch.OversizeRatio < 1 {
		return errors.New("--oversize-ratio must be >= 1")
	}
	if c.Fetch.RatePerHost < 0 {
		return errors.New("--rate-per-host must be >= 0")
	}
	if c.Fetch.Burst < 1 {
		c.Fetch.Burst = 1
	}
	if c.Fetch.MaxCooldown < 0 {
		return errors.New("fetch.max_cooldown must be >= 0")
	}

	// Transform / quality
	if c.Transform.SyntheticRows <= 0 {
		return errors.New("--synthetic-rows must be >= 1")
	}
	c.Quality.Validity = normalizeEnumValue(c.Quality.Validity)
	if c.Quality.Validity == "" {
		c.Quality.Validity = "typed"
	}
	if c.Quality.Validity != "typed" && c.Quality.Validity != "fixed" {
		return errors.Newf("unsupported --validity: %s (must be one of: typed, fixed)", c.Quality.Validity)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return errors.Newf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, st := range c.Output.ConsoleFilterStatus {
		v := strings.ToUpper(strings.TrimSpace(st))
		if v != "OK" && v != "FAIL" {
			return errors.Newf("unsupported --console-filter-status value: %s (must be one of: OK, FAIL)", st)
		}
		c.Output.ConsoleFilterStatus[i] = v
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return errors.Newf("unsupported --emit value: %s (must be one of: json, ndjson)", v)
		}
		c.Output.Emit[i] = v
	}

	c.Output.LogFormat = normalizeEnumValue(c.Output.LogFormat)
	if c.Output.LogFormat == "" {
		c.Output.LogFormat = "console"
	}
	if c.Output.LogFormat != "console" && c.Output.LogFormat != "json" {
		return errors.Newf("unsupported --log-format: %s (must be one of: console, json)", c.Output.LogFormat)
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			ext := strings.ToLower(filepath.Ext(c.Output.Out))
			switch ext {
			case ".json":
				c.Output.OutFormat = "json"
			case ".ndjson", ".jsonl":
				c.Output.OutFormat = "ndjson"
			default:
				if ext == "" {
					return errors.New("cannot infer output format from file extension (missing extension); use --out-format")
				}
				return errors.Newf("cannot infer output format from file extension %q; use --out-format", ext)
			}
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return errors.Newf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout < 0 {
		return errors.New("--timeout must be >= 0")
	}

	return nil
}

// LedgerPath is the audit database path, or "" when the ledger is disabled.
func (c *Config) LedgerPath() string {
	if c.Paths.NoLedger {
		return ""
	}
	return c.Paths.Ledger
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
