package session

import (
	"context"
	"time"
)

// Ports the controller depends on. Implementations live in their own feature
// packages (gateway, credits, history, auth) and are injected at wiring time,
// so the controller stays testable with hand-written fakes.

// Gateway executes typed search requests against the upstream provider.
// Validate must fail without touching the network so bad input can be
// rejected before any paid call.
type Gateway interface {
	Validate(req SearchRequest) error
	Execute(ctx context.Context, req SearchRequest) (*Result, error)
}

// CreditChecker answers whether the caller may spend estimatedCost credits
// now. A transport failure is an error, never a silent allow.
type CreditChecker interface {
	CheckCredits(ctx context.Context, estimatedCost int) (*CreditReport, error)
}

// Recorder persists the trace of one executed fetch.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// TokenSource reports whether a usable credential is present. Network
// operations are refused without one.
type TokenSource interface {
	IsAuthenticated() bool
}

// Snapshot is the durable form of a session, written on every state change
// and restored on construction while within its TTL.
type Snapshot struct {
	Query              Query      `json:"query"`
	Type               SearchType `json:"type,omitempty"`
	Filters            *Filter    `json:"filters,omitempty"`
	Sort               Sort       `json:"sort"`
	Page               int        `json:"page"`
	Limit              int        `json:"limit"`
	Persons            []Person   `json:"persons,omitempty"`
	TotalResults       int        `json:"total_results"`
	NewSearchPerformed bool       `json:"new_search_performed"`
	SavedAt            time.Time  `json:"saved_at"`
}

// SnapshotStore persists session snapshots. Load returns nil when no snapshot
// exists or the stored one has outlived its TTL; expired entries are removed
// on read.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
	Clear(ctx context.Context) error
}
