package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// WriteDOT emits the link graph in Graphviz DOT form. Fetched pages are
// solid nodes, unfetched edge targets dashed, parameter endpoints filled.
func WriteDOT(w io.Writer, g *types.Graph) error {
	if _, err := fmt.Fprintln(w, "digraph crawl {"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "\trankdir=LR;"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "\tnode [shape=box, fontsize=10];"); err != nil {
		return err
	}

	paramURLs := make(map[string]struct{}, len(g.Endpoints))
	for _, ep := range g.Endpoints {
		paramURLs[ep.URL] = struct{}{}
	}

	// every edge endpoint becomes a node, fetched or not
	nodes := make(map[string]struct{}, len(g.Pages))
	for k := range g.Pages {
		nodes[k] = struct{}{}
	}
	for _, e := range g.Edges {
		nodes[e.From] = struct{}{}
		nodes[e.To] = struct{}{}
	}

	for _, key := range sortedKeys(nodes) {
		attrs := []string{fmt.Sprintf("label=%q", displayLabel(key))}
		var style []string
		if _, fetched := g.Pages[key]; !fetched {
			style = append(style, "dashed")
		}
		if _, param := paramURLs[key]; param {
			style = append(style, "filled")
			attrs = append(attrs, "fillcolor=lightyellow")
		}
		if len(style) > 0 {
			attrs = append(attrs, fmt.Sprintf("style=%q", strings.Join(style, ",")))
		}
		if _, err := fmt.Fprintf(w, "\t%q [%s];\n", key, strings.Join(attrs, ", ")); err != nil {
			return err
		}
	}

	for _, e := range g.Edges {
		if _, err := fmt.Fprintf(w, "\t%q -> %q;\n", e.From, e.To); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func displayLabel(key string) string {
	key = strings.TrimPrefix(key, "https://")
	return strings.TrimPrefix(key, "http://")
}
