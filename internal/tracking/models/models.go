// Package models defines the person-tracking domain records.
package models

import (
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/session"
)

// TrackedPerson is one person a user has pinned for monitoring. PersonKey is
// the identifier of the tracked row as the user saw it; the full person
// record is kept alongside so the watchlist renders without a new search.
type TrackedPerson struct {
	ID        uuid.UUID      `json:"id"`
	UserID    string         `json:"-"`
	PersonKey string         `json:"personKey"`
	Person    session.Person `json:"personData"`
	CreatedAt time.Time      `json:"createdAt"`
}
