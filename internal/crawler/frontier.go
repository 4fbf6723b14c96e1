package crawler

import (
	"sync"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// Frontier is the bounded, depth-aware FIFO of URLs awaiting a fetch.
// Because entries are only ever pushed at the depth of the page that
// discovered them plus one, FIFO order yields strict breadth-first
// traversal: all depth-d entries drain before any depth-(d+1) entry.
//
// Dedup happens at push time against every key ever accepted, so no
// canonical URL is enqueued twice across the whole run regardless of how
// many workers discover it. The maxPages cap also applies at push, which
// keeps the final record count within budget without any pop-side checks.
type Frontier struct {
	mu       sync.Mutex
	queue    []types.FrontierEntry
	seen     map[string]struct{}
	accepted int
	maxPages int
	maxDepth int
}

// NewFrontier creates a frontier enforcing the two hard caps.
func NewFrontier(maxPages, maxDepth int) *Frontier {
	return &Frontier{
		seen:     make(map[string]struct{}, maxPages),
		maxPages: maxPages,
		maxDepth: maxDepth,
	}
}

// Push offers an entry to the frontier. It reports false when the entry is
// a duplicate, deeper than maxDepth, or the page budget is exhausted.
func (f *Frontier) Push(e types.FrontierEntry) bool {
	if e.Depth > f.maxDepth {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.seen[e.Key]; dup {
		return false
	}
	if f.accepted >= f.maxPages {
		return false
	}
	f.seen[e.Key] = struct{}{}
	f.accepted++
	f.queue = append(f.queue, e)
	return true
}

// Pop removes the next entry in BFS order. ok is false when the frontier
// is currently empty; workers may still push more afterwards.
func (f *Frontier) Pop() (e types.FrontierEntry, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return types.FrontierEntry{}, false
	}
	e = f.queue[0]
	f.queue = f.queue[1:]
	return e, true
}

// Len reports how many entries are queued but not yet popped.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Accepted reports how many entries were ever admitted, including the seed.
func (f *Frontier) Accepted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepted
}
