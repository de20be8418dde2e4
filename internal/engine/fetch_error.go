package engine

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/go-github/v81/github"
)

// presentFetchError renders a fetch failure for summaries and sinks. Unless
// verbose, request URLs are reduced to scheme://host so query-string
// credentials and signed paths stay out of reports.
func presentFetchError(err error, verbose bool) string {
	if err == nil {
		return ""
	}

	full := strings.TrimSpace(err.Error())
	if verbose {
		return full
	}

	// Prefer structured GitHub error types to avoid leaking full request URLs.
	var er *github.ErrorResponse
	if errors.As(err, &er) {
		prefix := strings.TrimSuffix(full, er.Error())
		msg := strings.TrimSpace(er.Message)
		if msg == "" {
			msg = "GitHub API request failed"
		}
		if er.Response != nil {
			code := er.Response.StatusCode
			return fmt.Sprintf("%sGitHub API request failed (%d %s): %s", prefix, code, http.StatusText(code), msg)
		}
		return fmt.Sprintf("%sGitHub API request failed: %s", prefix, msg)
	}

	var ue *url.Error
	if errors.As(err, &ue) && ue.URL != "" {
		full = strings.ReplaceAll(full, ue.URL, scrubURL(ue.URL))
	}

	// Fallback: best-effort scrub of anything that still looks like a URL.
	return scrubRequestURLs(full)
}

// urlPattern stops before trailing punctuation so "GET https://h/p: 404"
// keeps its colon.
var urlPattern = regexp.MustCompile(`https?://[^\s"']*[^\s"':,.]`)

func scrubRequestURLs(s string) string {
	return urlPattern.ReplaceAllStringFunc(s, scrubURL)
}

// scrubURL keeps scheme and host.
func scrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
