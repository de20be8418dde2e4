package engine

import (
	"context"
	"fmt"
	"io"
	"os"

	"etlpipe/internal/config"
	"etlpipe/internal/data"
	"etlpipe/internal/fetcher"
	"etlpipe/internal/ledger"
	"etlpipe/internal/load"
	"etlpipe/internal/output"
	"etlpipe/internal/registry"
	"etlpipe/internal/transform"
	"etlpipe/internal/validate"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

func exitCodeForRun(fatal, noUsable, partial bool) int {
	// Exit code contract:
	// 0 = every source extracted, or a partial run without --fail-on-partial
	// 1 = no source produced a usable artifact (synthetic fallback only)
	// 2 = partial extraction with --fail-on-partial
	// 3 = fatal error (pipeline did not complete)
	if fatal {
		return 3
	}
	if noUsable {
		return 1
	}
	if partial {
		return 2
	}
	return 0
}

func setupOutputManager(cfg *config.Config, stdout io.Writer) (*output.Manager, error) {
	outMgr := output.NewManager()

	// Console Sink
	if !cfg.Output.NoConsole {
		if err := outMgr.AddSink(output.NewConsoleSink(stdout, cfg.Output.ConsoleFormat, cfg.Output.ConsoleFilterStatus)); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Emit Sinks (additional structured streams)
	for _, emit := range cfg.Output.Emit {
		es, err := output.NewEmitSink(stdout, emit)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(es); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// File Sink
	if cfg.Output.Out != "" {
		fs, err := output.NewFileSink(cfg.Output.Out, cfg.Output.OutFormat)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(fs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	// Report Sink
	if cfg.Output.Report != "" {
		rs, err := output.NewReportSink(cfg.Output.Report)
		if err != nil {
			outMgr.Close()
			return nil, err
		}
		if err := outMgr.AddSink(rs); err != nil {
			outMgr.Close()
			return nil, err
		}
	}

	return outMgr, nil
}

// loadSources resolves the registry for a run: the configured file or the
// built-in catalog, narrowed by include/exclude and with the attempt
// override applied.
func loadSources(cfg *config.Config) ([]data.SourceDescriptor, error) {
	reg := registry.Default()
	if cfg.Sources.File != "" {
		r, err := registry.LoadFile(cfg.Sources.File)
		if err != nil {
			return nil, err
		}
		reg = r
	}
	sources := reg.Filter(cfg.Sources.Include, cfg.Sources.Exclude).List()
	if len(sources) == 0 {
		return nil, errors.Wrap(data.ErrInvalidSource, "no sources selected")
	}
	if n := cfg.Fetch.MaxRetries; n > 0 {
		for i := range sources {
			sources[i].MaxRetries = n
		}
	}
	return sources, nil
}

func buildFetcher(cfg *config.Config, log *zap.SugaredLogger) *fetcher.Fetcher {
	v := validate.New(
		validate.WithMinSizeRatio(cfg.Fetch.MinSizeRatio),
		validate.WithLogger(log),
	)

	limiter := fetcher.NewHostLimiter(cfg.Fetch.RatePerHost, cfg.Fetch.Burst)
	limiter.SetMaxCooldown(cfg.Fetch.MaxCooldown)

	return fetcher.New(cfg.Paths.RawDir, v,
		fetcher.WithTimeout(cfg.Fetch.Timeout),
		fetcher.WithBackoffBase(cfg.Fetch.BackoffBase),
		fetcher.WithOversizeRatio(cfg.Fetch.OversizeRatio),
		fetcher.WithUserAgent(cfg.Fetch.UserAgent),
		fetcher.WithLimiter(limiter),
		fetcher.WithLogger(log),
		fetcher.WithEnv(fetcher.Env{
			GitHubToken: cfg.Fetch.GitHubToken,
			GitHubAPI:   cfg.Fetch.GitHubAPI,
			Verbose:     cfg.Runtime.Verbose,
		}),
	)
}

type Engine struct {
	// Stdout receives console and --emit output; Stderr receives progress
	// and fatal error lines. Nil means os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	Log *zap.SugaredLogger

	// newFetcher is a test seam. If nil, Engine builds the real fetcher.
	newFetcher func(cfg *config.Config, log *zap.SugaredLogger) SourceFetcher

	// pipelineOptions are appended after the configured options.
	pipelineOptions []PipelineOption
}

func NewEngine(log *zap.SugaredLogger) *Engine {
	return &Engine{Log: log}
}

func (e *Engine) streams() (io.Writer, io.Writer) {
	stdout, stderr := e.Stdout, e.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func (e *Engine) logger() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

// Run executes one pipeline run for cfg and returns the process exit code.
func (e *Engine) Run(ctx context.Context, cfg *config.Config) int {
	stdout, stderr := e.streams()
	log := e.logger()

	if cfg.Runtime.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.Timeout)
		defer cancel()
	}

	sources, err := loadSources(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading sources: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	if !cfg.Output.NoConsole {
		fmt.Fprintf(stderr, "Loaded %d sources.\n", len(sources))
	}

	outMgr, err := setupOutputManager(cfg, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "Error creating output sinks: %v\n", err)
		return exitCodeForRun(true, false, false)
	}
	defer func() {
		if err := outMgr.Close(); err != nil {
			fmt.Fprintf(stderr, "Error closing output sinks: %v\n", err)
		}
	}()

	var f SourceFetcher
	if e.newFetcher != nil {
		f = e.newFetcher(cfg, log)
	} else {
		f = buildFetcher(cfg, log)
	}
	coord, err := NewCoordinator(f, cfg.Runtime.Concurrency, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	validity, err := load.ParseValidityMode(cfg.Quality.Validity)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	opts := []PipelineOption{
		WithParallel(cfg.Runtime.Parallel),
		WithTransformer(transform.New(
			transform.WithSynthetic(cfg.Transform.SyntheticSeed, cfg.Transform.SyntheticRows),
			transform.WithLogger(log),
		)),
		WithValidity(validity),
		WithEmitter(outMgr),
		WithVerboseErrors(cfg.Runtime.Verbose),
		WithPipelineLogger(log),
	}

	if path := cfg.LedgerPath(); path != "" {
		l, err := ledger.Open(ctx, path)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening ledger: %v\n", err)
			return exitCodeForRun(true, false, false)
		}
		defer func() {
			if err := l.Close(); err != nil {
				log.Warnw("failed to close ledger", "path", path, "error", err)
			}
		}()
		opts = append(opts, WithRecorder(l))
	}
	opts = append(opts, e.pipelineOptions...)

	p, err := NewPipeline(Layout{
		RawDir:       cfg.Paths.RawDir,
		ProcessedDir: cfg.Paths.ProcessedDir,
		LogsDir:      cfg.Paths.LogsDir,
	}, coord, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCodeForRun(true, false, false)
	}

	summary, err := p.Execute(ctx, sources)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		code := exitCodeForRun(true, false, false)
		_ = outMgr.Write(output.RunFinished(summary, code))
		return code
	}

	code := exitCodeForRun(false, !summary.Usable(), cfg.Runtime.FailOnPartial && summary.Partial())
	_ = outMgr.Write(output.RunFinished(summary, code))
	return code
}
