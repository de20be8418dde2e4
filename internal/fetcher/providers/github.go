package providers

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"etlpipe/internal/data"
	"etlpipe/internal/fetcher"
	gh "etlpipe/internal/github"

	"github.com/cockroachdb/errors"
	"github.com/google/go-github/v81/github"
	"go.uber.org/zap"
)

// githubProvider serves github://OWNER/REPO/PATH[?ref=REF] addresses through
// the contents API. Without a ref, the repository default branch is used.
type githubProvider struct{}

func (githubProvider) Name() string { return "github" }

func (githubProvider) Schemes() []string { return []string{"github"} }

func (githubProvider) NewGetter(ctx context.Context, env fetcher.Env) (fetcher.Getter, error) {
	log := env.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	token, source, err := gh.ResolveAuthToken(ctx, env.GitHubToken)
	if err != nil {
		return nil, errors.Wrap(err, "resolve github token")
	}
	if source == gh.AuthTokenSourceNone {
		log.Debugw("no github token found, using anonymous access")
	} else {
		log.Debugw("github token resolved", "token_source", string(source))
	}

	opts := []gh.Option{
		gh.WithVerbose(env.Verbose, log),
		gh.WithBaseURL(env.GitHubAPI),
	}
	if env.HTTP != nil {
		opts = append(opts, gh.WithTimeout(env.HTTP.Timeout))
	}
	if ua := env.Header.Get("User-Agent"); ua != "" {
		opts = append(opts, gh.WithUserAgent(ua))
	}
	client, err := gh.NewClient(ctx, token, opts...)
	if err != nil {
		return nil, err
	}
	return &githubGetter{
		client:   client,
		branches: fetcher.NewCache[string](),
	}, nil
}

type githubGetter struct {
	client   *gh.Client
	branches *fetcher.Cache[string]
	group    fetcher.Group[string]
}

type githubAddress struct {
	owner, repo, path, ref string
}

func parseGitHubAddress(raw string) (githubAddress, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return githubAddress{}, err
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if u.Host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return githubAddress{}, errors.Newf("want github://OWNER/REPO/PATH, got %q", raw)
	}
	return githubAddress{
		owner: u.Host,
		repo:  parts[0],
		path:  parts[1],
		ref:   strings.TrimSpace(u.Query().Get("ref")),
	}, nil
}

func (g *githubGetter) Get(ctx context.Context, src data.SourceDescriptor) (*fetcher.Response, error) {
	addr, err := parseGitHubAddress(src.Address)
	if err != nil {
		return nil, errors.Wrapf(data.ErrInvalidSource, "%s: %v", src.Name, err)
	}

	ref := addr.ref
	if ref == "" {
		var resp *fetcher.Response
		ref, resp, err = g.defaultBranch(ctx, addr.owner, addr.repo)
		if resp != nil {
			return resp, nil
		}
		if err != nil {
			return nil, err
		}
	}

	rc, resp, err := g.client.Client.Repositories.DownloadContents(ctx, addr.owner, addr.repo, addr.path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if r := statusResponse(resp); r != nil {
			return r, nil
		}
		return nil, err
	}
	out := &fetcher.Response{Body: rc, StatusCode: http.StatusOK, ContentLength: -1}
	if resp != nil {
		out.Header = resp.Header
	}
	return out, nil
}

// defaultBranch resolves and memoizes the default branch of owner/repo.
// Concurrent sources in the same repository share one lookup.
func (g *githubGetter) defaultBranch(ctx context.Context, owner, repo string) (string, *fetcher.Response, error) {
	key := strings.ToLower(owner + "/" + repo)
	var failed *fetcher.Response
	branch, err := fetcher.Memo(g.branches, &g.group, key, func() (string, error) {
		r, resp, err := g.client.Client.Repositories.Get(ctx, owner, repo)
		if err != nil {
			failed = statusResponse(resp)
			return "", errors.Wrapf(err, "resolve default branch of %s", key)
		}
		b := r.GetDefaultBranch()
		if b == "" {
			return "", errors.Newf("resolve default branch of %s: empty default branch", key)
		}
		return b, nil
	})
	if err != nil {
		return "", failed, err
	}
	return branch, nil, nil
}

func statusResponse(resp *github.Response) *fetcher.Response {
	if resp == nil || resp.Response == nil || resp.StatusCode/100 == 2 {
		return nil
	}
	return &fetcher.Response{
		Body:          io.NopCloser(strings.NewReader("")),
		StatusCode:    resp.StatusCode,
		ContentLength: 0,
		Header:        resp.Header,
	}
}

func init() {
	fetcher.RegisterProvider(githubProvider{})
}
