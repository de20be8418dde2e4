package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewClient_NilContextReturnsError(t *testing.T) {
	var nilCtx context.Context
	_, err := NewClient(nilCtx, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "ctx is nil") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClient_WithVerbose_LogsAndAuthHeader(t *testing.T) {
	ctx := context.Background()

	var gotAuth, gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(server.Close)

	tests := []struct {
		name     string
		token    string
		wantAuth bool
	}{
		{name: "unauthenticated", token: ""},
		{name: "authenticated", token: "test-token", wantAuth: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotAuth = ""
			core, logs := observer.New(zap.DebugLevel)

			c, err := NewClient(ctx, tt.token,
				WithVerbose(true, zap.New(core).Sugar()),
				WithBaseURL(server.URL),
				WithUserAgent("etlpipe-test"),
			)
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}

			req, err := c.Client.NewRequest("GET", "rate_limit?secret=1", nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			if _, err := c.Client.Do(ctx, req, nil); err != nil {
				t.Fatalf("Do: %v", err)
			}

			if logs.FilterMessage("github api request").Len() != 1 {
				t.Fatalf("expected one request log, got %v", logs.All())
			}
			for _, e := range logs.All() {
				if u, ok := e.ContextMap()["url"].(string); ok && strings.Contains(u, "secret") {
					t.Fatalf("query string leaked into log: %q", u)
				}
			}
			if gotAgent != "etlpipe-test" {
				t.Fatalf("expected user agent, got %q", gotAgent)
			}
			if tt.wantAuth && !strings.Contains(gotAuth, "test-token") {
				t.Fatalf("expected Authorization header to contain token, got %q", gotAuth)
			}
			if !tt.wantAuth && gotAuth != "" {
				t.Fatalf("expected no Authorization header, got %q", gotAuth)
			}
		})
	}
}
