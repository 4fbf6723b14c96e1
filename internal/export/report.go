package export

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// WriteMarkdown emits a human-readable crawl report: run summary, page
// table, and the parameter endpoints worth a closer look.
func WriteMarkdown(w io.Writer, g *types.Graph) error {
	md := markdown.NewMarkdown(w)

	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + g.Seed + "`"},
			{"Generated", time.Now().UTC().Format("2006-01-02 15:04:05 MST")},
			{"Pages", strconv.Itoa(len(g.Pages))},
			{"Edges", strconv.Itoa(len(g.Edges))},
			{"Parameter endpoints", strconv.Itoa(len(g.Endpoints))},
		},
	})
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	rows := make([][]string, 0, len(g.Pages))
	for _, key := range sortedPageKeys(g) {
		rec := g.Pages[key]
		rows = append(rows, []string{
			"`" + rec.URL + "`",
			statusText(rec),
			strconv.Itoa(rec.Depth),
			strconv.Itoa(rec.OutDegree),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Depth", "Out-degree"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(g.Endpoints) > 0 {
		md.H2("Parameter Endpoints")
		md.PlainText("")
		eps := make([]types.ParameterEndpoint, len(g.Endpoints))
		copy(eps, g.Endpoints)
		sort.Slice(eps, func(i, j int) bool {
			if eps[i].URL != eps[j].URL {
				return eps[i].URL < eps[j].URL
			}
			return eps[i].Kind < eps[j].Kind
		})
		epRows := make([][]string, 0, len(eps))
		for _, ep := range eps {
			epRows = append(epRows, []string{
				"`" + ep.URL + "`",
				string(ep.Kind),
				ep.Method,
				strings.Join(ep.Params, ", "),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Kind", "Method", "Parameters"},
			Rows:   epRows,
		})
		md.PlainText("")
	}

	return md.Build()
}

func statusText(rec types.PageRecord) string {
	if rec.Failed() {
		return "error: " + string(rec.Error)
	}
	return strconv.Itoa(rec.StatusCode)
}
