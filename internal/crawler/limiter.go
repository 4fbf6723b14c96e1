package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter enforces politeness per target host: a fixed pause after
// every completed request plus an optional token-bucket rate limit.
// The pause is a contract with the crawled site, not a tuning knob; it
// holds after failed attempts as well as successful ones.
type HostLimiter struct {
	delay       time.Duration
	rateEnabled bool
	requests    int
	window      time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	lastDone time.Time
	limiter  *rate.Limiter
}

// NewHostLimiter creates a limiter. A zero delay with no rate settings
// yields a limiter whose Wait never blocks.
func NewHostLimiter(delay time.Duration, requests int, window time.Duration) *HostLimiter {
	l := &HostLimiter{
		delay: delay,
		hosts: make(map[string]*hostState),
	}
	if requests > 0 && window > 0 {
		l.rateEnabled = true
		l.requests = requests
		l.window = window
	}
	return l
}

// Wait blocks until the host may be contacted again: at least delay after
// the previous attempt against it finished, and within the token budget.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	var sleep time.Duration
	var limiter *rate.Limiter
	now := time.Now()

	l.mu.Lock()
	state := l.ensureLocked(host)
	if l.delay > 0 && !state.lastDone.IsZero() {
		if rest := state.lastDone.Add(l.delay).Sub(now); rest > 0 {
			sleep = rest
		}
	}
	limiter = state.limiter
	l.mu.Unlock()

	if sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Record marks an attempt against the host as finished. The next Wait for
// the same host honours the full delay from this moment.
func (l *HostLimiter) Record(host string) {
	if l == nil || host == "" {
		return
	}
	host = strings.ToLower(host)
	l.mu.Lock()
	l.ensureLocked(host).lastDone = time.Now()
	l.mu.Unlock()
}

func (l *HostLimiter) ensureLocked(host string) *hostState {
	state, ok := l.hosts[host]
	if !ok {
		state = &hostState{}
		if l.rateEnabled {
			interval := l.window / time.Duration(l.requests)
			if interval <= 0 {
				interval = time.Millisecond
			}
			state.limiter = rate.NewLimiter(rate.Every(interval), l.requests)
		}
		l.hosts[host] = state
	}
	return state
}
