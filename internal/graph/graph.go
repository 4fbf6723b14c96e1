// Package graph accumulates the crawl result: one record per fetched page,
// a deduplicated directed edge list, and the parameter endpoints found
// along the way. The builder is the only shared sink the fetch workers
// write into, so every method takes the lock.
package graph

import (
	"sync"
	"time"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// Builder collects nodes, edges, and endpoints during a run. All methods
// are safe for concurrent use. Writes are append-only: a page record is
// never overwritten once created, only its out-degree is filled in later.
type Builder struct {
	mu        sync.Mutex
	seed      string
	pages     map[string]types.PageRecord
	edges     []types.Edge
	edgeSet   map[types.Edge]struct{}
	endpoints []types.ParameterEndpoint
	epSet     map[endpointKey]struct{}
}

type endpointKey struct {
	url  string
	kind types.EndpointKind
}

// NewBuilder creates an empty graph for the given seed.
func NewBuilder(seed string) *Builder {
	return &Builder{
		seed:    seed,
		pages:   make(map[string]types.PageRecord),
		edgeSet: make(map[types.Edge]struct{}),
		epSet:   make(map[endpointKey]struct{}),
	}
}

// RecordPage creates the page record for key on its first fetch attempt.
// Later calls for the same key are no-ops, preserving the status and the
// depth of first discovery.
func (b *Builder) RecordPage(key string, depth, status int, errKind types.ErrorKind, at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.pages[key]; exists {
		return false
	}
	b.pages[key] = types.PageRecord{
		URL:        key,
		Depth:      depth,
		StatusCode: status,
		Error:      errKind,
		FetchedAt:  at,
	}
	return true
}

// SetOutDegree fills in the distinct outbound link count once extraction
// for the page has completed. It is the only mutation of an existing record.
func (b *Builder) SetOutDegree(key string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.pages[key]
	if !ok {
		return
	}
	rec.OutDegree = n
	b.pages[key] = rec
}

// AddEdge records a directed link. Duplicate (from, to) pairs collapse to
// one edge; the return value reports whether the edge was new.
func (b *Builder) AddEdge(from, to string) bool {
	e := types.Edge{From: from, To: to}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.edgeSet[e]; dup {
		return false
	}
	b.edgeSet[e] = struct{}{}
	b.edges = append(b.edges, e)
	return true
}

// AddEndpoint records a parameter endpoint, deduplicated on (URL, kind).
func (b *Builder) AddEndpoint(ep types.ParameterEndpoint) bool {
	k := endpointKey{url: ep.URL, kind: ep.Kind}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.epSet[k]; dup {
		return false
	}
	b.epSet[k] = struct{}{}
	b.endpoints = append(b.endpoints, ep)
	return true
}

// Pages reports the number of page records so far.
func (b *Builder) Pages() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

// Snapshot returns a deep copy of the accumulated graph. It is safe to
// call at any point during a run; once the run reaches a terminal state
// the snapshot is final.
func (b *Builder) Snapshot() *types.Graph {
	b.mu.Lock()
	defer b.mu.Unlock()

	pages := make(map[string]types.PageRecord, len(b.pages))
	for k, v := range b.pages {
		pages[k] = v
	}
	edges := make([]types.Edge, len(b.edges))
	copy(edges, b.edges)
	endpoints := make([]types.ParameterEndpoint, len(b.endpoints))
	for i, ep := range b.endpoints {
		params := make([]string, len(ep.Params))
		copy(params, ep.Params)
		ep.Params = params
		endpoints[i] = ep
	}
	return &types.Graph{
		Seed:      b.seed,
		Pages:     pages,
		Edges:     edges,
		Endpoints: endpoints,
	}
}
