package fetcher

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"
)

// HostLimiter paces requests per host and enforces Retry-After cooldowns
// announced by 429 and 503 responses. The zero rate means unlimited pacing;
// cooldowns apply either way.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	hosts    map[string]*hostState
	now      func() time.Time
	maxDelay time.Duration
}

type hostState struct {
	limiter  *rate.Limiter
	cooldown time.Time
	notifyCh chan struct{}
}

// DefaultMaxCooldown bounds a single Retry-After so one misbehaving server
// can't park a worker for hours.
const DefaultMaxCooldown = 2 * time.Minute

// NewHostLimiter paces each host at perSecond requests with the given burst.
// perSecond <= 0 disables pacing.
func NewHostLimiter(perSecond float64, burst int) *HostLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limit:    limit,
		burst:    burst,
		hosts:    make(map[string]*hostState),
		now:      time.Now,
		maxDelay: DefaultMaxCooldown,
	}
}

// SetMaxCooldown bounds a single Retry-After; d <= 0 keeps the default.
func (l *HostLimiter) SetMaxCooldown(d time.Duration) {
	if l == nil || d <= 0 {
		return
	}
	l.mu.Lock()
	l.maxDelay = d
	l.mu.Unlock()
}

func (l *HostLimiter) state(host string) *hostState {
	host = strings.ToLower(host)
	s, ok := l.hosts[host]
	if !ok {
		s = &hostState{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			notifyCh: make(chan struct{}),
		}
		l.hosts[host] = s
	}
	return s
}

// Wait blocks until a request to host may be sent.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if ctx == nil {
		return errors.New("HostLimiter.Wait: nil context")
	}
	if l == nil {
		return nil
	}
	for {
		l.mu.Lock()
		s := l.state(host)
		now := l.now()
		if !now.Before(s.cooldown) {
			lim := s.limiter
			l.mu.Unlock()
			return lim.Wait(ctx)
		}
		wait := s.cooldown.Sub(now)
		ch := s.notifyCh
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-ch:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Observe records a response's Retry-After header for host. Only 429 and 503
// responses start a cooldown.
func (l *HostLimiter) Observe(host string, status int, header http.Header) {
	if l == nil || header == nil {
		return
	}
	if status != http.StatusTooManyRequests && status != http.StatusServiceUnavailable {
		return
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	var until time.Time
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return
		}
		until = now.Add(time.Duration(seconds) * time.Second)
	} else if at, err := http.ParseTime(raw); err == nil {
		until = at
	} else {
		return
	}
	if ceiling := now.Add(l.maxDelay); until.After(ceiling) {
		until = ceiling
	}

	s := l.state(host)
	if until.After(s.cooldown) {
		s.cooldown = until
		close(s.notifyCh)
		s.notifyCh = make(chan struct{})
	}
}

// Cooldown reports the time before which host must not be contacted.
func (l *HostLimiter) Cooldown(host string) time.Time {
	if l == nil {
		return time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state(host).cooldown
}
