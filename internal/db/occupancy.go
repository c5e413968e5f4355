package db

import (
	"context"
	"fmt"
	"time"
)

// OccupancyRecord is one occupancy sync attempt made from this device.
type OccupancyRecord struct {
	CafeID        string
	OccupancyRate int
	Capacity      int
	Occupied      int
	Synced        bool
	RecordedAt    time.Time
}

// RecordOccupancy appends one entry to the occupancy log.
func (db *DB) RecordOccupancy(ctx context.Context, rec OccupancyRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	synced := 0
	if rec.Synced {
		synced = 1
	}
	_, err := db.q.ExecContext(ctx, `
		INSERT INTO occupancy_log (cafe_id, occupancy_rate, capacity, occupied, synced, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.CafeID, rec.OccupancyRate, rec.Capacity, rec.Occupied, synced, rec.RecordedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record occupancy for cafe %s: %w", rec.CafeID, err)
	}
	return nil
}

// RecentOccupancy returns up to limit records for a cafe, newest first.
func (db *DB) RecentOccupancy(ctx context.Context, cafeID string, limit int) ([]OccupancyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.q.QueryContext(ctx, `
		SELECT cafe_id, occupancy_rate, capacity, occupied, synced, recorded_at
		FROM occupancy_log
		WHERE cafe_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, cafeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list occupancy for cafe %s: %w", cafeID, err)
	}
	defer rows.Close()

	var out []OccupancyRecord
	for rows.Next() {
		var (
			rec      OccupancyRecord
			synced   int
			recorded int64
		)
		if err := rows.Scan(&rec.CafeID, &rec.OccupancyRate, &rec.Capacity, &rec.Occupied, &synced, &recorded); err != nil {
			return nil, fmt.Errorf("scan occupancy record: %w", err)
		}
		rec.Synced = synced == 1
		rec.RecordedAt = time.UnixMilli(recorded)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list occupancy for cafe %s: %w", cafeID, err)
	}
	return out, nil
}

// RecordSave logs a save's occupancy entry and, when clearDraft is set,
// drops the cafe's draft in the same transaction.
func (db *DB) RecordSave(ctx context.Context, rec OccupancyRecord, clearDraft bool) error {
	return db.RunInTx(ctx, func(tx *DB) error {
		if err := tx.RecordOccupancy(ctx, rec); err != nil {
			return err
		}
		if clearDraft {
			return tx.DeleteDraft(ctx, rec.CafeID)
		}
		return nil
	})
}
