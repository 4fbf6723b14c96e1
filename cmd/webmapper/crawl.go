package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/Luka12-dev/Simple-Web-Crawler/internal/config"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/crawler"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/export"
	"github.com/Luka12-dev/Simple-Web-Crawler/internal/storage"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url]",
		Short: "Crawl a website and export its link graph",
		Long: `Crawl traverses a website breadth-first from the seed URL,
bounded by --max-depth and --max-pages, and exports the discovered
structure.

Examples:
  # Crawl with defaults (same domain, depth 3, 200 pages)
  webmapper crawl https://example.com

  # Deeper crawl with politeness delay and all export formats
  webmapper crawl -d 5 -p 1000 --delay 500ms -f csv,json,dot,markdown https://example.com

  # Use a configuration file
  webmapper crawl -c webmapper.yaml https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file path (YAML)")
	cmd.Flags().IntP("max-depth", "d", 3, "Maximum link distance from the seed")
	cmd.Flags().IntP("max-pages", "p", 200, "Maximum number of pages to fetch")
	cmd.Flags().Bool("same-domain", true, "Restrict crawling to the seed's host")
	cmd.Flags().Bool("detect-params", true, "Flag endpoints that accept parameters")
	cmd.Flags().Duration("delay", 0, "Politeness delay between requests per host")
	cmd.Flags().DurationP("timeout", "t", 10*time.Second, "Per-request timeout")
	cmd.Flags().IntP("workers", "w", 4, "Concurrent fetch workers")
	cmd.Flags().StringSliceP("formats", "f", []string{"json"}, "Export formats (csv, json, dot, markdown)")
	cmd.Flags().StringP("output", "o", "", "Output directory (default: XDG data dir)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := setupLogger(cfg.Logging, verbose)
	slog.SetDefault(logger)

	engine, err := crawler.New(*cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range engine.Events() {
			if ev.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] depth=%d FAILED (%s) %s\n",
					ev.Timestamp.Format("15:04:05"), ev.Depth, ev.Error, ev.URL)
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] depth=%d status=%d links=%d %s\n",
				ev.Timestamp.Format("15:04:05"), ev.Depth, ev.StatusCode, ev.OutDegree, ev.URL)
		}
	}()

	if err := engine.Run(ctx); err != nil {
		return err
	}
	<-done

	snapshot := engine.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "Crawl %s. Pages: %d, edges: %d, parameter endpoints: %d\n",
		engine.State(), len(snapshot.Pages), len(snapshot.Edges), len(snapshot.Endpoints))

	if err := export.WriteAll(context.Background(), cfg.Output.Directory, cfg.Output.Formats, snapshot); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", cfg.Output.Directory)

	if cfg.DB.Driver != "" {
		store, err := storage.Open(cfg.DB)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		runID := fmt.Sprintf("%d", time.Now().Unix())
		if err := store.SaveGraph(context.Background(), runID, snapshot, time.Now()); err != nil {
			return fmt.Errorf("persist graph: %w", err)
		}
		logger.Info("graph persisted", "run_id", runID, "driver", cfg.DB.Driver)
	}
	return nil
}

func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg config.Config
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	} else {
		cfg = config.Default()
	}

	if len(args) > 0 {
		cfg.Crawl.Seed = args[0]
	}
	if strings.TrimSpace(cfg.Crawl.Seed) == "" {
		return nil, fmt.Errorf("a seed URL is required (argument or config file)")
	}

	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		cfg.Crawl.MaxDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("max-pages") {
		cfg.Crawl.MaxPages, _ = flags.GetInt("max-pages")
	}
	if flags.Changed("same-domain") {
		cfg.Crawl.SameDomainOnly, _ = flags.GetBool("same-domain")
	}
	if flags.Changed("detect-params") {
		cfg.Crawl.DetectParams, _ = flags.GetBool("detect-params")
	}
	if flags.Changed("delay") {
		d, _ := flags.GetDuration("delay")
		cfg.Crawl.Delay = config.DurationFrom(d)
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Crawl.RequestTimeout = config.DurationFrom(d)
	}
	if flags.Changed("workers") {
		cfg.Worker.Concurrency, _ = flags.GetInt("workers")
	}
	if flags.Changed("formats") {
		cfg.Output.Formats, _ = flags.GetStringSlice("formats")
	}
	if flags.Changed("output") {
		cfg.Output.Directory, _ = flags.GetString("output")
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = filepath.Join(xdg.DataHome, "webmapper")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return &cfg, nil
}

func setupLogger(cfg config.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Structured {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
