// Package github builds the API client used to fetch artifacts hosted in
// GitHub repositories.
package github

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/go-github/v81/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

type Client struct {
	Client *github.Client
	HTTP   *http.Client
}

type options struct {
	verbose bool
	log     *zap.SugaredLogger
	baseURL string
	timeout time.Duration
	agent   string
}

type Option func(*options)

// WithVerbose logs one debug line per request and response.
func WithVerbose(enabled bool, log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.verbose = enabled
		if log != nil {
			o.log = log
		}
	}
}

// WithBaseURL points the client at a GitHub Enterprise or test API root.
func WithBaseURL(raw string) Option {
	return func(o *options) { o.baseURL = strings.TrimSpace(raw) }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithUserAgent(ua string) Option {
	return func(o *options) { o.agent = ua }
}

// loggingRoundTripper emits one line per request and response, including
// latency. Query strings are dropped so tokens in URLs never reach the log.
type loggingRoundTripper struct {
	base http.RoundTripper
	log  *zap.SugaredLogger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	target := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	t.log.Debugw("github api request", "method", req.Method, "url", target)
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		t.log.Debugw("github api error", "url", target, "elapsed", dur, "error", err)
	} else {
		t.log.Debugw("github api response", "url", target, "status", resp.StatusCode, "elapsed", dur)
	}
	return resp, err
}

func NewClient(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, errors.New("github client: ctx is nil")
	}

	o := &options{log: zap.NewNop().Sugar()}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := http.DefaultTransport
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, log: o.log}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	tc := &http.Client{Transport: transport, Timeout: o.timeout}

	gc := github.NewClient(tc)
	if o.agent != "" {
		gc.UserAgent = o.agent
	}
	if o.baseURL != "" {
		raw := o.baseURL
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "github client: base url %q", o.baseURL)
		}
		gc.BaseURL = u
	}

	return &Client{
		Client: gc,
		HTTP:   tc,
	}, nil
}
