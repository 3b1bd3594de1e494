package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"peoplefinder/internal/history/models"
	"peoplefinder/internal/session"
	"peoplefinder/pkg/sentinel"
)

// Postgres persists history entries in the search_history table. The upstream
// response, sort, and filters are stored as JSONB since their shapes follow
// the provider wire format rather than a relational schema.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed history store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Insert(ctx context.Context, entry models.Entry) error {
	response, err := json.Marshal(entry.Response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	sortJSON, err := json.Marshal(entry.Sort)
	if err != nil {
		return fmt.Errorf("encode sort: %w", err)
	}
	var filters []byte
	if entry.Filters != nil {
		if filters, err = json.Marshal(entry.Filters); err != nil {
			return fmt.Errorf("encode filters: %w", err)
		}
	}

	query := `
		INSERT INTO search_history
			(id, user_id, date, keyword, type, result_type, response, sort, "offset", page, count, filters, credits_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Date, entry.Keyword, entry.Type, entry.ResultType,
		response, sortJSON, entry.Offset, entry.Page, entry.Count, filters, entry.CreditsUsed,
	)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Entry, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_history WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	query := `
		SELECT id, user_id, date, keyword, type, result_type, response, sort, "offset", page, count, filters, credits_used
		FROM search_history
		WHERE user_id = $1
		ORDER BY date DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []models.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate history: %w", err)
	}
	return entries, total, nil
}

func (s *Postgres) GetByID(ctx context.Context, userID string, id uuid.UUID) (*models.Entry, error) {
	query := `
		SELECT id, user_id, date, keyword, type, result_type, response, sort, "offset", page, count, filters, credits_used
		FROM search_history
		WHERE id = $1 AND user_id = $2
	`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get history entry: %w", err)
	}
	return entry, nil
}

func (s *Postgres) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_history WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete history entry: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Aggregate(ctx context.Context, userID string, from, to *time.Time) (models.Usage, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(credits_used), 0), MIN(date), MAX(date)
		FROM search_history
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR date >= $2)
		  AND ($3::timestamptz IS NULL OR date <= $3)
	`
	var (
		usage            models.Usage
		earliest, latest sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, userID, from, to).
		Scan(&usage.Queries, &usage.Credits, &earliest, &latest)
	if err != nil {
		return models.Usage{}, fmt.Errorf("aggregate history: %w", err)
	}
	if earliest.Valid {
		usage.Earliest = &earliest.Time
	}
	if latest.Valid {
		usage.Latest = &latest.Time
	}
	return usage, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		entry    models.Entry
		response []byte
		sortJSON []byte
		filters  []byte
	)
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Date, &entry.Keyword, &entry.Type, &entry.ResultType,
		&response, &sortJSON, &entry.Offset, &entry.Page, &entry.Count, &filters, &entry.CreditsUsed,
	)
	if err != nil {
		return nil, err
	}

	if len(response) > 0 {
		if err := json.Unmarshal(response, &entry.Response); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	if len(sortJSON) > 0 {
		if err := json.Unmarshal(sortJSON, &entry.Sort); err != nil {
			return nil, fmt.Errorf("decode sort: %w", err)
		}
	}
	if len(filters) > 0 {
		var f session.Filter
		if err := json.Unmarshal(filters, &f); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
		entry.Filters = &f
	}
	return &entry, nil
}
