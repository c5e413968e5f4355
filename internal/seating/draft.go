package seating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codr1/cafespot/internal/db"
)

// Draft is an unsaved layout as kept in the local store.
type Draft struct {
	CafeID  string    `json:"cafe_id"`
	Tables  []Table   `json:"tables"`
	Base    *Counts   `json:"base,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// DecodeDraft parses a draft payload as written by SaveDraft.
func DecodeDraft(payload []byte) (Draft, error) {
	var d Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return Draft{}, fmt.Errorf("decode seating draft: %w", err)
	}
	return d, nil
}

// Snapshot derives the draft's capacity and occupancy.
func (d Draft) Snapshot() Snapshot {
	return snapshotOf(d.Tables, true, d.Base)
}

// Draft captures the current layout.
func (m *Manager) Draft() Draft {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := Draft{
		CafeID:  m.cafeID,
		Tables:  cloneTables(m.tables),
		SavedAt: time.Now().UTC(),
	}
	if m.base != nil {
		b := *m.base
		d.Base = &b
	}
	return d
}

// Restore replaces the layout with a draft and marks it unsaved. Base
// counts from the draft are only used when none were hydrated.
func (m *Manager) Restore(d Draft) error {
	if d.CafeID != "" && d.CafeID != m.cafeID {
		return fmt.Errorf("draft belongs to cafe %s, not %s", d.CafeID, m.cafeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables = cloneTables(d.Tables)
	if m.tables == nil {
		m.tables = []Table{}
	}
	if m.base == nil && d.Base != nil {
		b := *d.Base
		m.base = &b
	}
	m.touchLocked()
	return nil
}

// SaveDraft writes the current layout to the draft store, if one is set.
func (m *Manager) SaveDraft(ctx context.Context) error {
	if m.drafts == nil {
		return nil
	}
	payload, err := json.Marshal(m.Draft())
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := m.drafts.SaveDraft(ctx, m.cafeID, payload); err != nil {
		return err
	}
	m.logger.Debug().Msg("Stored seating draft")
	return nil
}

// RestoreDraft applies a stored draft. It reports false when none exists.
func (m *Manager) RestoreDraft(ctx context.Context) (bool, error) {
	if m.drafts == nil {
		return false, nil
	}
	payload, err := m.drafts.LoadDraft(ctx, m.cafeID)
	if errors.Is(err, db.ErrNoDraft) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	d, err := DecodeDraft(payload)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Discarding unreadable seating draft")
		m.clearDraft(ctx)
		return false, nil
	}
	if err := m.Restore(d); err != nil {
		return false, err
	}
	m.logger.Info().Int("tables", len(d.Tables)).Msg("Restored unsaved seating draft")
	return true, nil
}

func (m *Manager) clearDraft(ctx context.Context) {
	if m.drafts == nil {
		return
	}
	if err := m.drafts.DeleteDraft(ctx, m.cafeID); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to clear seating draft")
	}
}
