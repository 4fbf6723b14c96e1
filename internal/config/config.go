package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything needed to run a crawl and hand its result to
// the exporters and the optional persistence layer.
type Config struct {
	Crawl   CrawlConfig   `yaml:"crawl"`
	Worker  WorkerConfig  `yaml:"worker"`
	Output  OutputConfig  `yaml:"output"`
	DB      SQLConfig     `yaml:"db"`
	Logging LoggingConfig `yaml:"logging"`
}

// CrawlConfig controls the frontier, limits, and request behaviour.
// It is immutable for the duration of a run.
type CrawlConfig struct {
	Seed           string            `yaml:"seed"`
	MaxDepth       int               `yaml:"max_depth"`
	MaxPages       int               `yaml:"max_pages"`
	SameDomainOnly bool              `yaml:"same_domain_only"`
	DetectParams   bool              `yaml:"detect_params"`
	Delay          Duration          `yaml:"delay"`
	RequestTimeout Duration          `yaml:"request_timeout"`
	UserAgent      string            `yaml:"user_agent"`
	Headers        map[string]string `yaml:"headers"`
	ProxyURL       string            `yaml:"proxy_url"`
	MaxBodyBytes   int64             `yaml:"max_body_bytes"`
	RateLimit      RateLimitConfig   `yaml:"rate_limit_per_host"`
}

// RateLimitConfig applies a token bucket per host on top of the fixed delay.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// Enabled reports whether per-host rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}

// WorkerConfig controls fetch concurrency and queue sizing.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queue_size"`
}

// OutputConfig selects export formats and their destination directory.
type OutputConfig struct {
	Directory string   `yaml:"directory"`
	Formats   []string `yaml:"formats"`
}

// SQLConfig describes an optional relational database for finished graphs.
// An empty driver or DSN disables persistence.
type SQLConfig struct {
	Driver          string   `yaml:"driver"`
	DSN             string   `yaml:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// KnownFormats lists the export formats WriteAll understands.
var KnownFormats = []string{"csv", "json", "dot", "markdown"}

// Default returns a Config populated with sensible defaults. The defaults
// mirror a cautious one-site crawl: same-domain, shallow, polite.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxDepth:       3,
			MaxPages:       200,
			SameDomainOnly: true,
			DetectParams:   true,
			Delay:          DurationFrom(0),
			RequestTimeout: DurationFrom(10 * time.Second),
			UserAgent:      "webmapper-bot/1.0",
			Headers:        map[string]string{},
			MaxBodyBytes:   5 * 1024 * 1024,
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			QueueSize:   1024,
		},
		Output: OutputConfig{
			Formats: []string{"json"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: false,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants a run depends on. A violation here is
// the only condition fatal to a whole run.
func (c Config) Validate() error {
	if c.Crawl.MaxDepth < 0 {
		return fmt.Errorf("crawl.max_depth must be >= 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.MaxPages < 1 {
		return fmt.Errorf("crawl.max_pages must be >= 1 (got %d)", c.Crawl.MaxPages)
	}
	if c.Crawl.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0 (got %s)", c.Crawl.RequestTimeout)
	}
	if c.Crawl.Delay.Duration < 0 {
		return fmt.Errorf("crawl.delay must be >= 0 (got %s)", c.Crawl.Delay)
	}
	if c.Crawl.MaxBodyBytes <= 0 {
		return fmt.Errorf("crawl.max_body_bytes must be > 0 (got %d)", c.Crawl.MaxBodyBytes)
	}
	if strings.TrimSpace(c.Crawl.UserAgent) == "" {
		return errors.New("crawl.user_agent must be set")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0 (got %d)", c.Worker.Concurrency)
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("worker.queue_size must be > 0 (got %d)", c.Worker.QueueSize)
	}
	if rl := c.Crawl.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("crawl.rate_limit_per_host.requests must be >= 0 (got %d)", rl.Requests)
	}
	for _, f := range c.Output.Formats {
		if !knownFormat(f) {
			return fmt.Errorf("output format %q not supported (known: %s)", f, strings.Join(KnownFormats, ", "))
		}
	}
	if (c.DB.Driver == "") != (c.DB.DSN == "") {
		return errors.New("db.driver and db.dsn must be set together")
	}
	return nil
}

func knownFormat(f string) bool {
	for _, k := range KnownFormats {
		if f == k {
			return true
		}
	}
	return false
}

func (c *Config) normalise() {
	c.Crawl.Seed = strings.TrimSpace(c.Crawl.Seed)
	c.Crawl.UserAgent = strings.TrimSpace(c.Crawl.UserAgent)
	if c.Crawl.Headers == nil {
		c.Crawl.Headers = map[string]string{}
	}
	c.Output.Directory = strings.TrimSpace(c.Output.Directory)
	if len(c.Output.Formats) > 0 {
		c.Output.Formats = dedupeLower(c.Output.Formats)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}
