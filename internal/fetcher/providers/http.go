// Package providers registers the transports the fetcher can use. Import it
// for side effects.
package providers

import (
	"context"
	"net/http"

	"etlpipe/internal/data"
	"etlpipe/internal/fetcher"

	"github.com/cockroachdb/errors"
)

type httpProvider struct{}

func (httpProvider) Name() string { return "http" }

func (httpProvider) Schemes() []string { return []string{"http", "https"} }

func (httpProvider) NewGetter(_ context.Context, env fetcher.Env) (fetcher.Getter, error) {
	client := env.HTTP
	if client == nil {
		client = &http.Client{}
	}
	return &httpGetter{client: client, header: env.Header}, nil
}

type httpGetter struct {
	client *http.Client
	header http.Header
}

func (g *httpGetter) Get(ctx context.Context, src data.SourceDescriptor) (*fetcher.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Address, nil)
	if err != nil {
		return nil, errors.Wrapf(data.ErrInvalidSource, "%s: build request: %v", src.Name, err)
	}
	for k, vs := range g.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	return &fetcher.Response{
		Body:          resp.Body,
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength,
		Header:        resp.Header,
	}, nil
}

func init() {
	fetcher.RegisterProvider(httpProvider{})
}
