// Package crawler implements the crawl engine: frontier management, URL
// canonicalization, bounded breadth-first traversal, domain restriction,
// parameter-endpoint detection, and incremental graph construction.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Luka12-dev/Simple-Web-Crawler/internal/config"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/extractor"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/fetcher"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/graph"
	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// State is the engine lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

var (
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("engine already started")
	// ErrNotRunning is returned by Pause/Resume outside the Running loop.
	ErrNotRunning = errors.New("engine not running")
)

// Engine owns one crawl run: its frontier, graph, worker pool, and
// politeness limiter. Instances are single-use; construct a new Engine
// per run.
type Engine struct {
	cfg     config.Config
	logger  *slog.Logger
	fetch   fetcher.Fetcher
	limiter *HostLimiter

	frontier *Frontier
	graph    *graph.Builder

	state  atomic.Int32
	quit   atomic.Bool
	cond   *sync.Cond

	events chan types.ProgressEvent

	seedHost string
	seedKey  string

	inflight atomic.Int64
	wake     chan struct{}
}

// New builds an engine from configuration. Invalid limits fail here,
// before any page is touched; an unparseable seed URL fails the run at
// Run time instead, matching the start transition.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	httpFetcher, err := fetcher.NewHTTPFetcher(fetcher.Options{
		UserAgent:    cfg.Crawl.UserAgent,
		Headers:      cfg.Crawl.Headers,
		Timeout:      cfg.Crawl.RequestTimeout.Duration,
		MaxBodyBytes: cfg.Crawl.MaxBodyBytes,
		ProxyURL:     cfg.Crawl.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("http fetcher: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		fetch:  httpFetcher,
		limiter: NewHostLimiter(
			cfg.Crawl.Delay.Duration,
			cfg.Crawl.RateLimit.Requests,
			cfg.Crawl.RateLimit.Window.Duration,
		),
		frontier: NewFrontier(cfg.Crawl.MaxPages, cfg.Crawl.MaxDepth),
		graph:    graph.NewBuilder(strings.TrimSpace(cfg.Crawl.Seed)),
		events:   make(chan types.ProgressEvent, 256),
		wake:     make(chan struct{}, 1),
	}
	e.cond = sync.NewCond(&sync.Mutex{})
	return e, nil
}

// SetFetcher swaps the page fetcher. Useful for tests; must be called
// before Run.
func (e *Engine) SetFetcher(f fetcher.Fetcher) {
	if f != nil {
		e.fetch = f
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Snapshot returns a read-only copy of the graph built so far. The copy
// is stable once the engine reaches a terminal state.
func (e *Engine) Snapshot() *types.Graph {
	return e.graph.Snapshot()
}

// Events exposes the progress feed: one event per completed fetch, in
// completion order. The channel closes when the run terminates. Slow
// consumers lose events rather than stalling the crawl.
func (e *Engine) Events() <-chan types.ProgressEvent {
	return e.events
}

// Pause stops new fetch dispatch; in-flight fetches finish and their
// results are recorded. Resume continues the run.
func (e *Engine) Pause() error {
	if !e.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		return ErrNotRunning
	}
	e.logger.Info("crawl paused")
	return nil
}

// Resume continues a paused run.
func (e *Engine) Resume() error {
	if !e.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		return ErrNotRunning
	}
	e.cond.L.Lock()
	e.cond.Broadcast()
	e.cond.L.Unlock()
	e.logger.Info("crawl resumed")
	return nil
}

// Cancel cooperatively stops the run: no new fetches are dispatched,
// in-flight fetches run to completion (bounded by their own timeout) and
// are still recorded.
func (e *Engine) Cancel() {
	if e.quit.CompareAndSwap(false, true) {
		// a paused dispatcher must wake up to observe the flag
		e.state.CompareAndSwap(int32(StatePaused), int32(StateRunning))
		e.cond.L.Lock()
		e.cond.Broadcast()
		e.cond.L.Unlock()
		e.notify()
	}
}

// Run executes the crawl until the frontier drains, the page budget is
// exhausted, or the run is cancelled. ctx cancellation is treated as a
// cooperative cancel. Run returns an error only for setup failures.
func (e *Engine) Run(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	seedKey, seedURL, err := Canonicalize(nil, e.cfg.Crawl.Seed)
	if err != nil {
		e.state.Store(int32(StateFailed))
		close(e.events)
		return fmt.Errorf("seed %q: %w", e.cfg.Crawl.Seed, err)
	}
	e.seedKey = seedKey
	e.seedHost = seedURL.Hostname()

	pool, err := newWorkerPool(context.Background(), e.cfg.Worker.Concurrency, e.cfg.Worker.QueueSize)
	if err != nil {
		e.state.Store(int32(StateFailed))
		close(e.events)
		return err
	}

	stopWatch := context.AfterFunc(ctx, e.Cancel)
	defer stopWatch()

	e.frontier.Push(types.FrontierEntry{Key: seedKey, Raw: seedURL, Depth: 0})
	e.logger.Info("crawl started",
		"seed", seedKey,
		"max_depth", e.cfg.Crawl.MaxDepth,
		"max_pages", e.cfg.Crawl.MaxPages,
		"workers", e.cfg.Worker.Concurrency,
	)

	e.dispatch(pool)

	e.drain()
	pool.close()

	final := StateCompleted
	if e.quit.Load() {
		final = StateCancelled
	}
	e.state.Store(int32(final))
	close(e.events)
	e.logger.Info("crawl finished",
		"state", final.String(),
		"pages", e.graph.Pages(),
	)
	return nil
}

// dispatch pops frontier entries and hands them to the pool. Entries of
// depth d+1 are not dispatched until every depth-d fetch has completed,
// so a recorded depth is always the true BFS distance from the seed under
// the domain-filtered graph.
func (e *Engine) dispatch(pool *workerPool) {
	depth := 0
	for {
		if e.quit.Load() {
			return
		}
		e.waitWhilePaused()
		if e.quit.Load() {
			return
		}

		entry, ok := e.frontier.Pop()
		if !ok {
			if e.inflight.Load() > 0 {
				<-e.wake
				continue
			}
			// A worker may have pushed entries after the failed pop and
			// then decremented inflight before the load above. A push
			// happens-before that worker's decrement, so re-popping
			// under inflight == 0 is conclusive.
			entry, ok = e.frontier.Pop()
			if !ok {
				return
			}
		}

		if entry.Depth > depth {
			e.drain()
			depth = entry.Depth
			if e.quit.Load() {
				return
			}
		}

		e.inflight.Add(1)
		err := pool.submit(context.Background(), func(ctx context.Context) {
			defer func() {
				e.inflight.Add(-1)
				e.notify()
			}()
			e.process(entry)
		})
		if err != nil {
			e.inflight.Add(-1)
			return
		}
	}
}

// drain blocks until every dispatched fetch has completed.
func (e *Engine) drain() {
	for e.inflight.Load() > 0 {
		<-e.wake
	}
}

func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) waitWhilePaused() {
	e.cond.L.Lock()
	for e.State() == StatePaused {
		e.cond.Wait()
	}
	e.cond.L.Unlock()
}

// process performs one fetch and folds the outcome into the graph. The
// fetch context is detached from cancellation: an issued request runs to
// completion, bounded by the client timeout.
func (e *Engine) process(entry types.FrontierEntry) {
	host := entry.Raw.Hostname()
	if err := e.limiter.Wait(context.Background(), host); err != nil {
		e.logger.Warn("politeness wait interrupted", "url", entry.Key, "error", err)
	}
	res := e.fetch.Fetch(context.Background(), entry.Raw)
	e.limiter.Record(host)

	now := time.Now()

	if e.cfg.Crawl.DetectParams && entry.Raw.RawQuery != "" {
		e.graph.AddEndpoint(types.ParameterEndpoint{
			URL:     entry.Key,
			Kind:    types.EndpointQuery,
			Method:  http.MethodGet,
			Params:  queryParamNames(entry.Raw.RawQuery),
			Example: entry.Raw.String(),
		})
	}

	switch res.Kind {
	case fetcher.KindNetworkError:
		e.graph.RecordPage(entry.Key, entry.Depth, 0, res.NetErr, now)
		e.logger.Warn("fetch failed", "url", entry.Key, "depth", entry.Depth, "error", string(res.NetErr))
		e.emit(entry, 0, res.NetErr, 0, now)
		return
	case fetcher.KindTooLarge:
		e.graph.RecordPage(entry.Key, entry.Depth, res.StatusCode, types.ErrorTooLarge, now)
		e.logger.Warn("body too large, skipping extraction", "url", entry.Key, "depth", entry.Depth)
		e.emit(entry, res.StatusCode, types.ErrorTooLarge, 0, now)
		return
	}

	e.graph.RecordPage(entry.Key, entry.Depth, res.StatusCode, types.ErrorNone, now)

	// any HTML body is expanded, non-2xx included
	outDegree := 0
	if len(res.Body) > 0 && extractor.IsHTML(res.ContentType, res.Body) {
		outDegree = e.expand(entry, res)
	}
	e.graph.SetOutDegree(entry.Key, outDegree)

	e.logger.Info("fetched",
		"url", entry.Key,
		"depth", entry.Depth,
		"status", res.StatusCode,
		"links", outDegree,
	)
	e.emit(entry, res.StatusCode, types.ErrorNone, outDegree, now)
}

// expand extracts links and forms from a successful HTML fetch, records
// edges and parameter endpoints, and pushes admitted targets back into
// the frontier. The return value is the page's out-degree: the number of
// distinct canonical targets, including ones the domain filter excluded
// from fetching.
func (e *Engine) expand(entry types.FrontierEntry, res fetcher.Result) int {
	base := res.FinalURL
	if base == nil {
		base = entry.Raw
	}

	targets := make(map[string]struct{})

	for _, link := range extractor.Links(base, res.Body) {
		key, resolved, err := Canonicalize(nil, link.String())
		if err != nil {
			e.logger.Debug("dropping link", "page", entry.Key, "href", link.String(), "error", err)
			continue
		}
		targets[key] = struct{}{}
		e.graph.AddEdge(entry.Key, key)

		if e.cfg.Crawl.DetectParams && resolved.RawQuery != "" {
			e.graph.AddEndpoint(types.ParameterEndpoint{
				URL:     key,
				Kind:    types.EndpointQuery,
				Method:  http.MethodGet,
				Params:  queryParamNames(resolved.RawQuery),
				Example: resolved.String(),
			})
		}

		if HostAllowed(e.seedHost, resolved.Hostname(), e.cfg.Crawl.SameDomainOnly) {
			e.frontier.Push(types.FrontierEntry{Key: key, Raw: resolved, Depth: entry.Depth + 1})
		}
	}

	// form actions are edges and traversal targets regardless of the
	// detect-params setting; only the endpoint flagging is gated
	for _, form := range extractor.Forms(base, res.Body) {
		key, resolved, err := Canonicalize(nil, form.Action.String())
		if err != nil {
			e.logger.Debug("dropping form action", "page", entry.Key, "action", form.Action.String(), "error", err)
			continue
		}
		targets[key] = struct{}{}
		e.graph.AddEdge(entry.Key, key)
		if e.cfg.Crawl.DetectParams && len(form.Params) > 0 {
			e.graph.AddEndpoint(types.ParameterEndpoint{
				URL:     key,
				Kind:    types.EndpointForm,
				Method:  form.Method,
				Params:  form.Params,
				Example: formExample(resolved, form.Method, form.Params),
			})
		}
		if HostAllowed(e.seedHost, resolved.Hostname(), e.cfg.Crawl.SameDomainOnly) {
			e.frontier.Push(types.FrontierEntry{Key: key, Raw: resolved, Depth: entry.Depth + 1})
		}
	}

	return len(targets)
}

func (e *Engine) emit(entry types.FrontierEntry, status int, errKind types.ErrorKind, outDegree int, at time.Time) {
	ev := types.ProgressEvent{
		URL:        entry.Key,
		Depth:      entry.Depth,
		StatusCode: status,
		Error:      errKind,
		OutDegree:  outDegree,
		Timestamp:  at,
	}
	select {
	case e.events <- ev:
	default:
	}
}

// queryParamNames returns the parameter names of a raw query string in
// their original order, deduplicated.
func queryParamNames(rawQuery string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name := pair
		if i := strings.IndexByte(pair, '='); i >= 0 {
			name = pair[:i]
		}
		if unescaped, err := url.QueryUnescape(name); err == nil {
			name = unescaped
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// formExample builds a human-readable sample invocation of a form, the
// same shape the exporters display: a filled-in query string for GET, a
// method note for everything else.
func formExample(action *url.URL, method string, params []string) string {
	if method == http.MethodGet {
		pairs := make([]string, len(params))
		for i, p := range params {
			pairs[i] = p + "=example"
		}
		sep := "?"
		if action.RawQuery != "" {
			sep = "&"
		}
		return action.String() + sep + strings.Join(pairs, "&")
	}
	return fmt.Sprintf("%s form -> %s params: %s", method, action.String(), strings.Join(params, ","))
}
