// Package models defines the search-history domain records.
package models

import (
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/session"
)

// Entry is one stored search trace, scoped to the user who ran it.
type Entry struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"-"`
	session.Record
}

// Page is one page of a user's history, newest first.
type Page struct {
	Entries     []Entry `json:"history"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	TotalItems  int     `json:"totalItems"`
}

// Statistics aggregates a user's metered usage over a date window.
type Statistics struct {
	TotalQueries     int        `json:"totalQueries"`
	TotalCreditsUsed int        `json:"totalCreditsUsed"`
	StartDate        *time.Time `json:"startDate,omitempty"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	CreditsLimit     int        `json:"creditsLimit"`
}

// Usage is the store-level aggregate behind Statistics. Earliest and Latest
// are nil when no entries match the window.
type Usage struct {
	Queries  int
	Credits  int
	Earliest *time.Time
	Latest   *time.Time
}
