package types

import (
	"net/url"
	"time"
)

// ErrorKind classifies a failed fetch attempt.
type ErrorKind string

const (
	ErrorNone     ErrorKind = ""
	ErrorTimeout  ErrorKind = "timeout"
	ErrorRefused  ErrorKind = "refused"
	ErrorDNS      ErrorKind = "dns"
	ErrorTooLarge ErrorKind = "too-large"
)

// FrontierEntry is a work item waiting in the crawl frontier. Key is the
// canonical dedup key, Raw is the resolved URL used for the actual request.
type FrontierEntry struct {
	Key   string
	Raw   *url.URL
	Depth int
}

// PageRecord captures the outcome of one fetched page. A record is created
// exactly once per canonical URL; only OutDegree is updated afterwards.
type PageRecord struct {
	URL        string    `json:"url"`
	Depth      int       `json:"depth"`
	StatusCode int       `json:"status,omitempty"`
	Error      ErrorKind `json:"error,omitempty"`
	OutDegree  int       `json:"out_degree"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Failed reports whether the page could not be fetched at all.
func (r PageRecord) Failed() bool {
	return r.Error != ErrorNone
}

// Edge is a directed link between two canonical URLs. The target may not
// have a PageRecord when it was excluded from fetching by the domain filter.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EndpointKind distinguishes how a parameter-accepting endpoint was found.
type EndpointKind string

const (
	EndpointQuery EndpointKind = "query"
	EndpointForm  EndpointKind = "form"
)

// ParameterEndpoint describes a URL or form that accepts external input.
type ParameterEndpoint struct {
	URL     string       `json:"url"`
	Kind    EndpointKind `json:"kind"`
	Method  string       `json:"method"`
	Params  []string     `json:"params"`
	Example string       `json:"example,omitempty"`
}

// Graph is a snapshot of a crawl result: every fetched page, every
// discovered link, and every parameter endpoint.
type Graph struct {
	Seed      string                `json:"seed"`
	Pages     map[string]PageRecord `json:"pages"`
	Edges     []Edge                `json:"edges"`
	Endpoints []ParameterEndpoint   `json:"endpoints"`
}

// ProgressEvent is emitted once per completed fetch, in completion order.
// It exists for live logging only and carries no correctness guarantees.
type ProgressEvent struct {
	URL        string    `json:"url"`
	Depth      int       `json:"depth"`
	StatusCode int       `json:"status,omitempty"`
	Error      ErrorKind `json:"error,omitempty"`
	OutDegree  int       `json:"out_degree"`
	Timestamp  time.Time `json:"timestamp"`
}
