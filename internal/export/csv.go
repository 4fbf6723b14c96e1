package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// WriteCSV emits the node table: one row per page record, sorted by URL
// for deterministic output. Parameter examples are embedded as a JSON
// array, matching the JSON export.
func WriteCSV(w io.Writer, g *types.Graph) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"url", "status", "error", "accepts_params", "param_examples", "out_degree", "depth"}); err != nil {
		return err
	}

	examples := paramExamples(g)
	for _, key := range sortedPageKeys(g) {
		rec := g.Pages[key]
		exList := examples[key]
		if exList == nil {
			exList = []string{}
		}
		ex, err := json.Marshal(exList)
		if err != nil {
			return err
		}
		accepts := "false"
		if len(exList) > 0 {
			accepts = "true"
		}
		row := []string{
			rec.URL,
			strconv.Itoa(rec.StatusCode),
			string(rec.Error),
			accepts,
			string(ex),
			strconv.Itoa(rec.OutDegree),
			strconv.Itoa(rec.Depth),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sortedPageKeys(g *types.Graph) []string {
	keys := make([]string, 0, len(g.Pages))
	for k := range g.Pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// paramExamples groups endpoint examples by canonical URL. Endpoints may
// reference URLs without a page record; those only appear in the
// endpoint list itself.
func paramExamples(g *types.Graph) map[string][]string {
	byURL := make(map[string][]string)
	for _, ep := range g.Endpoints {
		if ep.Example == "" {
			continue
		}
		byURL[ep.URL] = append(byURL[ep.URL], ep.Example)
	}
	return byURL
}
