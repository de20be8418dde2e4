package providers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"etlpipe/internal/data"
	"etlpipe/internal/fetcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGetter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/csv" {
			w.WriteHeader(http.StatusNotAcceptable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	g, err := httpProvider{}.NewGetter(context.Background(), fetcher.Env{Header: http.Header{"Accept": []string{"text/csv"}}})
	require.NoError(t, err)

	src, err := data.NewSourceDescriptor("x", srv.URL+"/x.csv", data.FormatCSV, 0, 1, time.Time{})
	require.NoError(t, err)

	resp, err := g.Get(context.Background(), src)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(b))
}
