package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"etlpipe/internal/data"

	"go.uber.org/zap"
)

// Response is a transport-neutral view of one retrieval. Body must be closed
// by the caller. ContentLength is -1 when unknown.
type Response struct {
	Body          io.ReadCloser
	StatusCode    int
	ContentLength int64
	Header        http.Header
}

// Getter performs one retrieval attempt for a source. Transport failures are
// returned as errors; protocol-level failures come back as a non-2xx
// StatusCode so the Fetcher classifies every transport the same way.
type Getter interface {
	Get(ctx context.Context, src data.SourceDescriptor) (*Response, error)
}

// Env is what a provider may use to build its Getter.
type Env struct {
	HTTP   *http.Client
	Header http.Header
	Log    *zap.SugaredLogger

	// GitHubToken is an explicit token; empty falls back to the usual
	// environment and gh CLI resolution.
	GitHubToken string

	// GitHubAPI overrides the GitHub REST root.
	GitHubAPI string

	Verbose bool
}

// Provider builds Getters for a set of address schemes.
type Provider interface {
	Name() string
	Schemes() []string
	NewGetter(ctx context.Context, env Env) (Getter, error)
}

var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider makes p available for its schemes. It panics on a nil
// provider or a scheme claimed twice; providers register from init.
func RegisterProvider(p Provider) {
	if p == nil {
		panic("fetch provider is nil")
	}
	schemes := p.Schemes()
	if len(schemes) == 0 {
		panic(fmt.Sprintf("fetch provider %s declares no schemes", p.Name()))
	}

	providerMu.Lock()
	defer providerMu.Unlock()
	for _, s := range schemes {
		s = strings.ToLower(s)
		if existing, exists := providerRegistry[s]; exists {
			panic(fmt.Sprintf("scheme %s already registered by %s", s, existing.Name()))
		}
		providerRegistry[s] = p
	}
}

func ResolveProvider(scheme string) (Provider, bool) {
	providerMu.RLock()
	defer providerMu.RUnlock()
	p, ok := providerRegistry[strings.ToLower(scheme)]
	return p, ok
}

// ListSchemes returns every registered scheme, sorted.
func ListSchemes() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	out := make([]string, 0, len(providerRegistry))
	for s := range providerRegistry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
