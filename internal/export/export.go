// Package export serialises a crawl graph snapshot. Exporters are pure
// consumers: they receive the snapshot and own no traversal logic.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

var fileNames = map[string]string{
	"csv":      "crawl_results.csv",
	"json":     "crawl_results.json",
	"dot":      "crawl_graph.dot",
	"markdown": "crawl_report.md",
}

// WriteAll writes the snapshot in each requested format into dir,
// creating it if needed. Formats are written concurrently; the first
// failure cancels the rest.
func WriteAll(ctx context.Context, dir string, formats []string, g *types.Graph) error {
	if len(formats) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, format := range formats {
		format := format
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			name, ok := fileNames[format]
			if !ok {
				return fmt.Errorf("unknown export format %q", format)
			}
			return writeFile(filepath.Join(dir, name), format, g)
		})
	}
	return eg.Wait()
}

func writeFile(path, format string, g *types.Graph) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	switch format {
	case "csv":
		err = WriteCSV(fh, g)
	case "json":
		err = WriteJSON(fh, g)
	case "dot":
		err = WriteDOT(fh, g)
	case "markdown":
		err = WriteMarkdown(fh, g)
	}
	if err != nil {
		_ = fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}
