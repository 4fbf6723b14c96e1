package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Luka12-dev/Simple-Web-Crawler/internal/config"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/crawler"
	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

var (
	// ErrMaxConcurrency signals that the concurrent run limit is reached.
	ErrMaxConcurrency = errors.New("maximum concurrent runs reached")
	// ErrRunNotFound signals an unknown run id.
	ErrRunNotFound = errors.New("run not found")
)

// recentEventCap bounds the per-run event buffer exposed over the API.
const recentEventCap = 200

// Manager owns crawl engine lifecycles keyed by run identifier.
type Manager struct {
	mu            sync.RWMutex
	runs          map[string]*Run
	base          config.Config
	maxConcurrent int
	running       int
	rootCtx       context.Context
	logger        *slog.Logger
}

// Run tracks one engine from start to terminal state.
type Run struct {
	ID        string
	Seed      string
	StartedAt time.Time

	engine *crawler.Engine

	mu         sync.Mutex
	finishedAt time.Time
	runErr     string
	recent     []types.ProgressEvent
}

// NewManager constructs a manager with the provided defaults.
func NewManager(base config.Config, maxConcurrent int, rootCtx context.Context, logger *slog.Logger) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runs:          make(map[string]*Run),
		base:          base,
		maxConcurrent: maxConcurrent,
		rootCtx:       rootCtx,
		logger:        logger,
	}
}

// StartRun materialises a config from the request and launches an engine.
func (m *Manager) StartRun(req CreateRunRequest) (*Run, error) {
	cfg, err := m.buildConfig(req)
	if err != nil {
		return nil, err
	}

	engine, err := crawler.New(cfg, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.running >= m.maxConcurrent {
		m.mu.Unlock()
		return nil, ErrMaxConcurrency
	}
	m.running++
	run := &Run{
		ID:        generateRunID(),
		Seed:      cfg.Crawl.Seed,
		StartedAt: time.Now(),
		engine:    engine,
	}
	m.runs[run.ID] = run
	m.mu.Unlock()

	go m.consumeEvents(run)
	go func() {
		err := engine.Run(m.rootCtx)

		run.mu.Lock()
		run.finishedAt = time.Now()
		if err != nil {
			run.runErr = err.Error()
		}
		run.mu.Unlock()

		m.mu.Lock()
		if m.running > 0 {
			m.running--
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Error("run failed", "run_id", run.ID, "error", err)
		}
	}()

	return run, nil
}

func (m *Manager) consumeEvents(run *Run) {
	for ev := range run.engine.Events() {
		run.mu.Lock()
		run.recent = append(run.recent, ev)
		if len(run.recent) > recentEventCap {
			run.recent = run.recent[len(run.recent)-recentEventCap:]
		}
		run.mu.Unlock()
	}
}

func (m *Manager) buildConfig(req CreateRunRequest) (config.Config, error) {
	cfg := m.base
	cfg.Crawl.Seed = strings.TrimSpace(req.SeedURL)
	if cfg.Crawl.Seed == "" {
		return cfg, errors.New("seed_url is required")
	}
	if req.MaxDepth != nil {
		cfg.Crawl.MaxDepth = *req.MaxDepth
	}
	if req.MaxPages != nil {
		cfg.Crawl.MaxPages = *req.MaxPages
	}
	if req.SameDomainOnly != nil {
		cfg.Crawl.SameDomainOnly = *req.SameDomainOnly
	}
	if req.DetectParams != nil {
		cfg.Crawl.DetectParams = *req.DetectParams
	}
	if req.Workers != nil {
		cfg.Worker.Concurrency = *req.Workers
	}
	if req.Delay != "" {
		var d config.Duration
		if err := d.UnmarshalText([]byte(req.Delay)); err != nil {
			return cfg, fmt.Errorf("delay: %w", err)
		}
		cfg.Crawl.Delay = d
	}
	if req.RequestTimeout != "" {
		var d config.Duration
		if err := d.UnmarshalText([]byte(req.RequestTimeout)); err != nil {
			return cfg, fmt.Errorf("request_timeout: %w", err)
		}
		cfg.Crawl.RequestTimeout = d
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Get returns the run for id.
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// List captures current summaries for all runs.
func (m *Manager) List() []RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]RunSummary, 0, len(m.runs))
	for _, run := range m.runs {
		summaries = append(summaries, run.Summary())
	}
	return summaries
}

// Cancel cooperatively stops a run.
func (m *Manager) Cancel(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	run.engine.Cancel()
	return nil
}

// Pause suspends fetch dispatch for a run.
func (m *Manager) Pause(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	return run.engine.Pause()
}

// Resume continues a paused run.
func (m *Manager) Resume(id string) error {
	run, err := m.Get(id)
	if err != nil {
		return err
	}
	return run.engine.Resume()
}

// Snapshot returns the run's current graph.
func (m *Manager) Snapshot(id string) (*types.Graph, error) {
	run, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return run.engine.Snapshot(), nil
}

// Shutdown cancels every run still in flight.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, run := range m.runs {
		run.engine.Cancel()
	}
}

// Summary renders the run's current status.
func (r *Run) Summary() RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := RunSummary{
		ID:        r.ID,
		Seed:      r.Seed,
		State:     r.engine.State().String(),
		Pages:     len(r.engine.Snapshot().Pages),
		StartedAt: r.StartedAt,
		Error:     r.runErr,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	return s
}

// Detail renders the summary plus the recent progress events.
func (r *Run) Detail() RunDetail {
	summary := r.Summary()
	r.mu.Lock()
	recent := make([]types.ProgressEvent, len(r.recent))
	copy(recent, r.recent)
	r.mu.Unlock()
	return RunDetail{RunSummary: summary, Recent: recent}
}

func generateRunID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
