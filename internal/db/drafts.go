package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoDraft is returned when a cafe has no stored draft.
var ErrNoDraft = errors.New("no draft stored")

type Draft struct {
	CafeID    string
	Payload   []byte
	UpdatedAt time.Time
}

// SaveDraft stores (or replaces) the unsaved layout of a cafe.
func (db *DB) SaveDraft(ctx context.Context, cafeID string, payload []byte) error {
	_, err := db.q.ExecContext(ctx, `
		INSERT INTO seating_drafts (cafe_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cafe_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		cafeID, string(payload), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save draft for cafe %s: %w", cafeID, err)
	}
	return nil
}

// LoadDraft returns the stored draft payload, or ErrNoDraft.
func (db *DB) LoadDraft(ctx context.Context, cafeID string) ([]byte, error) {
	var payload string
	err := db.q.QueryRowContext(ctx,
		`SELECT payload FROM seating_drafts WHERE cafe_id = ?`, cafeID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoDraft
	}
	if err != nil {
		return nil, fmt.Errorf("load draft for cafe %s: %w", cafeID, err)
	}
	return []byte(payload), nil
}

// DeleteDraft removes a cafe's draft. Deleting a missing draft is not an error.
func (db *DB) DeleteDraft(ctx context.Context, cafeID string) error {
	if _, err := db.q.ExecContext(ctx, `DELETE FROM seating_drafts WHERE cafe_id = ?`, cafeID); err != nil {
		return fmt.Errorf("delete draft for cafe %s: %w", cafeID, err)
	}
	return nil
}

// ListDrafts returns every stored draft, most recently updated first.
func (db *DB) ListDrafts(ctx context.Context) ([]Draft, error) {
	rows, err := db.q.QueryContext(ctx,
		`SELECT cafe_id, payload, updated_at FROM seating_drafts ORDER BY updated_at DESC, cafe_id`)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var (
			d       Draft
			payload string
			updated int64
		)
		if err := rows.Scan(&d.CafeID, &payload, &updated); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		d.Payload = []byte(payload)
		d.UpdatedAt = time.Unix(updated, 0)
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	return drafts, nil
}
