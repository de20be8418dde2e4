package github

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeGHStub(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test uses a shell script gh stub")
	}
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "gh"), []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile gh stub failed: %v", err)
	}
	return tmp
}

func TestResolveAuthToken(t *testing.T) {
	tests := []struct {
		name       string
		provided   string
		appEnv     string
		env        string
		ghScript   string
		wantToken  string
		wantSource AuthTokenSource
	}{
		{name: "explicit token wins", provided: " explicit ", appEnv: "app", env: "env", wantToken: "explicit", wantSource: AuthTokenSourceExplicit},
		{name: "app env before GITHUB_TOKEN", appEnv: "app-token", env: "env-token", wantToken: "app-token", wantSource: AuthTokenSourceEnvApp},
		{name: "GITHUB_TOKEN used", env: "env-token", wantToken: "env-token", wantSource: AuthTokenSourceEnv},
		{name: "gh token used when env empty", ghScript: "#!/bin/sh\necho gh-token\n", wantToken: "gh-token", wantSource: AuthTokenSourceGitHubCL},
		{name: "gh not logged in", ghScript: "#!/bin/sh\nexit 1\n", wantSource: AuthTokenSourceNone},
		{name: "empty when neither env nor gh", wantSource: AuthTokenSourceNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ETLPIPE_GITHUB_TOKEN", tt.appEnv)
			t.Setenv("GITHUB_TOKEN", tt.env)
			if tt.ghScript != "" {
				t.Setenv("PATH", writeGHStub(t, tt.ghScript))
			} else {
				t.Setenv("PATH", t.TempDir())
			}

			tok, src, err := ResolveAuthToken(context.Background(), tt.provided)
			if err != nil {
				t.Fatalf("ResolveAuthToken error: %v", err)
			}
			if tok != tt.wantToken {
				t.Fatalf("want token %q, got %q", tt.wantToken, tok)
			}
			if src != tt.wantSource {
				t.Fatalf("want source %q, got %q", tt.wantSource, src)
			}
		})
	}
}

func TestResolveAuthToken_GHErrors(t *testing.T) {
	t.Run("invalid token output returns error", func(t *testing.T) {
		t.Setenv("ETLPIPE_GITHUB_TOKEN", "")
		t.Setenv("GITHUB_TOKEN", "")
		t.Setenv("PATH", writeGHStub(t, "#!/bin/sh\nprintf 'line1\\nline2\\n'\n"))

		if _, _, err := ResolveAuthToken(context.Background(), ""); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("context canceled propagates", func(t *testing.T) {
		t.Setenv("ETLPIPE_GITHUB_TOKEN", "")
		t.Setenv("GITHUB_TOKEN", "")
		t.Setenv("PATH", writeGHStub(t, "#!/bin/sh\necho gh-token\n"))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, _, err := ResolveAuthToken(ctx, "")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
