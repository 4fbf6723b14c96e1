package api

import (
	"time"

	"github.com/Luka12-dev/Simple-Web-Crawler/pkg/types"
)

// CreateRunRequest is the POST body for starting a crawl. Optional fields
// fall back to the server's base configuration.
type CreateRunRequest struct {
	SeedURL        string `json:"seed_url"`
	MaxDepth       *int   `json:"max_depth,omitempty"`
	MaxPages       *int   `json:"max_pages,omitempty"`
	SameDomainOnly *bool  `json:"same_domain_only,omitempty"`
	DetectParams   *bool  `json:"detect_params,omitempty"`
	Delay          string `json:"delay,omitempty"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	Workers        *int   `json:"workers,omitempty"`
}

// RunSummary is the wire form of one crawl run's status.
type RunSummary struct {
	ID         string     `json:"id"`
	Seed       string     `json:"seed"`
	State      string     `json:"state"`
	Pages      int        `json:"pages"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunDetail extends the summary with the most recent progress events.
type RunDetail struct {
	RunSummary
	Recent []types.ProgressEvent `json:"recent_events"`
}
