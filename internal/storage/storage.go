// Package storage persists finished crawl graphs into a relational
// database. It is optional: an empty driver/DSN pair disables it, and the
// crawl itself never depends on it.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/Luka12-dev/Simple-Web-Crawler/internal/config"
	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// Store writes graphs through database/sql. The driver name comes from
// configuration; "sqlite" and "postgres" are the supported values.
type Store struct {
	db     *sql.DB
	driver string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	seed TEXT NOT NULL,
	pages INTEGER NOT NULL,
	edges INTEGER NOT NULL,
	endpoints INTEGER NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS pages (
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	depth INTEGER NOT NULL,
	status INTEGER NOT NULL,
	error TEXT NOT NULL,
	out_degree INTEGER NOT NULL,
	fetched_at TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, url)
);
CREATE TABLE IF NOT EXISTS edges (
	run_id TEXT NOT NULL,
	src TEXT NOT NULL,
	dst TEXT NOT NULL,
	PRIMARY KEY (run_id, src, dst)
);
CREATE TABLE IF NOT EXISTS endpoints (
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	kind TEXT NOT NULL,
	method TEXT NOT NULL,
	params TEXT NOT NULL,
	example TEXT NOT NULL,
	PRIMARY KEY (run_id, url, kind)
);
`

// Open connects, verifies, and migrates the schema.
func Open(cfg config.SQLConfig) (*Store, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveGraph writes a whole snapshot transactionally under the given run id.
func (s *Store) SaveGraph(ctx context.Context, runID string, g *types.Graph, finishedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.rebind("INSERT INTO runs (id, seed, pages, edges, endpoints, finished_at) VALUES (?, ?, ?, ?, ?, ?)"),
		runID, g.Seed, len(g.Pages), len(g.Edges), len(g.Endpoints), finishedAt,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, rec := range g.Pages {
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO pages (run_id, url, depth, status, error, out_degree, fetched_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
			runID, rec.URL, rec.Depth, rec.StatusCode, string(rec.Error), rec.OutDegree, rec.FetchedAt,
		); err != nil {
			return fmt.Errorf("insert page %s: %w", rec.URL, err)
		}
	}

	for _, e := range g.Edges {
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO edges (run_id, src, dst) VALUES (?, ?, ?)"),
			runID, e.From, e.To,
		); err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	for _, ep := range g.Endpoints {
		params, err := json.Marshal(ep.Params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO endpoints (run_id, url, kind, method, params, example) VALUES (?, ?, ?, ?, ?, ?)"),
			runID, ep.URL, string(ep.Kind), ep.Method, string(params), ep.Example,
		); err != nil {
			return fmt.Errorf("insert endpoint %s: %w", ep.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// rebind converts "?" placeholders to the driver's native style.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
