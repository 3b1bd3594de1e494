package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"peoplefinder/internal/session"
	"peoplefinder/internal/tracking/models"
	"peoplefinder/pkg/sentinel"
)

// Postgres persists tracked people in the tracked_people table. The person
// record is stored as JSONB, matching the provider wire shape.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tracking store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Upsert(ctx context.Context, entry models.TrackedPerson) (bool, error) {
	person, err := json.Marshal(entry.Person)
	if err != nil {
		return false, fmt.Errorf("encode person: %w", err)
	}

	query := `
		INSERT INTO tracked_people (id, user_id, person_key, person_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, person_key) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, entry.ID, entry.UserID, entry.PersonKey, person, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("track person: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("track person: %w", err)
	}
	return affected > 0, nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID string) ([]models.TrackedPerson, error) {
	query := `
		SELECT id, user_id, person_key, person_data, created_at
		FROM tracked_people
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tracked people: %w", err)
	}
	defer rows.Close()

	entries := []models.TrackedPerson{}
	for rows.Next() {
		entry, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked people: %w", err)
	}
	return entries, nil
}

func (s *Postgres) Find(ctx context.Context, userID, personKey string) (*models.TrackedPerson, error) {
	query := `
		SELECT id, user_id, person_key, person_data, created_at
		FROM tracked_people
		WHERE user_id = $1 AND person_key = $2
	`
	entry, err := scanTracked(s.db.QueryRowContext(ctx, query, userID, personKey))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tracked person: %w", err)
	}
	return entry, nil
}

func (s *Postgres) Delete(ctx context.Context, userID, personKey string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_people WHERE user_id = $1 AND person_key = $2`, userID, personKey,
	)
	if err != nil {
		return fmt.Errorf("untrack person: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("untrack person: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTracked(row rowScanner) (*models.TrackedPerson, error) {
	var (
		entry  models.TrackedPerson
		person []byte
	)
	if err := row.Scan(&entry.ID, &entry.UserID, &entry.PersonKey, &person, &entry.CreatedAt); err != nil {
		return nil, err
	}
	if len(person) > 0 {
		var p session.Person
		if err := json.Unmarshal(person, &p); err != nil {
			return nil, fmt.Errorf("decode person: %w", err)
		}
		entry.Person = p
	}
	return &entry, nil
}
