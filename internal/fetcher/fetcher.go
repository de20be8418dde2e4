// Package fetcher retrieves source artifacts with bounded retries and
// exponential backoff, handing each completed download to a Validator.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"etlpipe/internal/data"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultBackoffBase   = time.Second
	DefaultOversizeRatio = 2.0
	DefaultAccept        = "application/pdf,application/vnd.ms-excel,text/csv,*/*"
	DefaultUserAgent     = "etlpipe/dev (+https://github.com/etlpipe/etlpipe)"
)

// Validator gates a downloaded artifact. A non-nil error rejects it.
type Validator interface {
	Validate(path string, src data.SourceDescriptor) (data.ArtifactMetadata, error)
}

type Fetcher struct {
	rawDir        string
	validator     Validator
	timeout       time.Duration
	backoffBase   time.Duration
	oversizeRatio float64
	header        http.Header
	limiter       *HostLimiter
	env           Env
	sleep         func(ctx context.Context, d time.Duration) error
	log           *zap.SugaredLogger

	getters *Cache[Getter]
	group   Group[Getter]
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithBackoffBase sets the delay before the second attempt. Later delays
// double each time.
func WithBackoffBase(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.backoffBase = d
		}
	}
}

func WithOversizeRatio(r float64) Option {
	return func(f *Fetcher) { f.oversizeRatio = r }
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.header.Set("User-Agent", ua)
		}
	}
}

func WithLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// WithEnv supplies provider settings (GitHub token, API root, HTTP client).
func WithEnv(env Env) Option {
	return func(f *Fetcher) { f.env = env }
}

// WithSleep replaces the backoff sleep. Tests use it to observe delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.sleep = fn
		}
	}
}

func New(rawDir string, v Validator, opts ...Option) *Fetcher {
	f := &Fetcher{
		rawDir:        rawDir,
		validator:     v,
		timeout:       DefaultTimeout,
		backoffBase:   DefaultBackoffBase,
		oversizeRatio: DefaultOversizeRatio,
		header:        http.Header{},
		sleep:         sleepContext,
		log:           zap.NewNop().Sugar(),
		getters:       NewCache[Getter](),
	}
	f.header.Set("User-Agent", DefaultUserAgent)
	f.header.Set("Accept", DefaultAccept)
	for _, o := range opts {
		o(f)
	}
	if f.env.HTTP == nil {
		f.env.HTTP = &http.Client{}
	}
	if f.env.Log == nil {
		f.env.Log = f.log
	}
	f.env.Header = f.header.Clone()
	return f
}

// Backoff is the delay after a failed attempt (1-based): base × 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Fetch runs the full attempt sequence for src and never returns an error:
// every failure is captured in the outcome.
func (f *Fetcher) Fetch(ctx context.Context, src data.SourceDescriptor) data.FetchOutcome {
	start := time.Now()
	out := f.fetch(ctx, src)
	out.Duration = time.Since(start)
	return out
}

func (f *Fetcher) fetch(ctx context.Context, src data.SourceDescriptor) data.FetchOutcome {
	if ctx == nil {
		return data.Failed(src.Name, 0, errors.New("Fetch: nil context"))
	}
	if f == nil || f.validator == nil {
		return data.Failed(src.Name, 0, errors.New("Fetch: nil Fetcher or Validator (use fetcher.New)"))
	}
	if err := src.Validate(); err != nil {
		return data.Failed(src.Name, 0, err)
	}

	log := f.log.With("source", src.Name)
	var lastErr error
	attempt := 0
	for attempt < src.MaxRetries {
		attempt++
		log.Infow("fetching source", "attempt", attempt, "max_retries", src.MaxRetries, "url", src.Address)

		path, err := f.attempt(ctx, src, log)
		if err == nil {
			meta, verr := f.validator.Validate(path, src)
			if verr != nil {
				f.discard(path, src)
				log.Warnw("artifact rejected", "attempt", attempt, "error", verr)
				return data.Failed(src.Name, attempt, errors.Mark(verr, data.ErrInvalidArtifact))
			}
			log.Infow("source extracted", "attempt", attempt, "path", path, "size_bytes", meta.SizeBytes)
			return data.Succeeded(src.Name, path, attempt, meta)
		}

		lastErr = err
		if !data.IsRetryable(err) || ctx.Err() != nil {
			log.Errorw("fetch failed", "attempt", attempt, "error", err)
			return data.Failed(src.Name, attempt, err)
		}
		if attempt >= src.MaxRetries {
			break
		}
		delay := Backoff(f.backoffBase, attempt)
		log.Warnw("fetch attempt failed, retrying", "attempt", attempt, "backoff", delay, "error", err)
		if serr := f.sleep(ctx, delay); serr != nil {
			return data.Failed(src.Name, attempt, errors.Wrapf(serr, "%s: interrupted during backoff", src.Name))
		}
	}

	log.Errorw("retries exhausted", "attempts", attempt, "error", lastErr)
	return data.Failed(src.Name, attempt, errors.Wrapf(lastErr, "%s: all %d attempts failed", src.Name, attempt))
}

// attempt performs one retrieval and leaves the body at the artifact path.
func (f *Fetcher) attempt(ctx context.Context, src data.SourceDescriptor, log *zap.SugaredLogger) (string, error) {
	getter, err := f.getter(ctx, src.Scheme())
	if err != nil {
		return "", err
	}

	host := src.Host()
	if err := f.limiter.Wait(ctx, host); err != nil {
		return "", errors.Wrapf(err, "%s: waiting for %s", src.Name, host)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := getter.Get(reqCtx, src)
	if err != nil {
		if errors.Is(err, data.ErrInvalidSource) || ctx.Err() != nil {
			return "", err
		}
		return "", errors.Mark(errors.Wrapf(err, "%s: request", src.Name), data.ErrTransient)
	}
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	defer resp.Body.Close()

	f.limiter.Observe(host, resp.StatusCode, resp.Header)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", errors.Wrapf(data.ErrTransient, "%s: unexpected status %d %s", src.Name, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if expected := src.ExpectedSizeBytes(); expected > 0 && f.oversizeRatio > 0 && resp.ContentLength > 0 &&
		float64(resp.ContentLength) > f.oversizeRatio*float64(expected) {
		log.Warnw("artifact larger than expected",
			"content_length_mb", data.BytesToMB(resp.ContentLength),
			"expected_mb", src.ExpectedSizeMB)
	}

	return f.writeArtifact(src, resp.Body)
}

// writeArtifact streams body to a temp file and renames it over the artifact
// path, so a failed retry never leaves a half-written artifact behind.
func (f *Fetcher) writeArtifact(src data.SourceDescriptor, body io.Reader) (string, error) {
	final := filepath.Join(f.rawDir, src.ArtifactFileName())
	tmp, err := os.CreateTemp(f.rawDir, "."+src.Name+".*.part")
	if err != nil {
		return "", errors.Wrapf(err, "%s: create artifact", src.Name)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	tr := &trackingReader{r: body}
	if _, err := io.Copy(tmp, tr); err != nil {
		_ = tmp.Close()
		if tr.err != nil {
			return "", errors.Mark(errors.Wrapf(err, "%s: read body", src.Name), data.ErrTransient)
		}
		return "", errors.Wrapf(err, "%s: write artifact", src.Name)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrapf(err, "%s: close artifact", src.Name)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", errors.Wrapf(err, "%s: commit artifact", src.Name)
	}
	committed = true
	return final, nil
}

func (f *Fetcher) discard(path string, src data.SourceDescriptor) {
	_ = os.Remove(path)
	_ = os.Remove(filepath.Join(filepath.Dir(path), src.MetadataFileName()))
}

func (f *Fetcher) getter(ctx context.Context, scheme string) (Getter, error) {
	p, ok := ResolveProvider(scheme)
	if !ok {
		return nil, errors.Wrapf(data.ErrInvalidSource, "no fetch provider for scheme %q", scheme)
	}
	g, err := Memo(f.getters, &f.group, p.Name(), func() (Getter, error) {
		return p.NewGetter(ctx, f.env)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "init %s provider", p.Name())
	}
	return g, nil
}

type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
