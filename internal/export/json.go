package export

import (
	"encoding/json"
	"io"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// WriteJSON emits the full graph: pages, edges, and parameter endpoints.
func WriteJSON(w io.Writer, g *types.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}
