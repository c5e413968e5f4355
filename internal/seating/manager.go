package seating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/db"
	"github.com/codr1/cafespot/internal/request"
)

var (
	ErrInvalidTableSize = errors.New("table size must be 2 or 4")
	ErrTableNotFound    = errors.New("table not found")
	ErrNoBaseCounts     = errors.New("no base table counts to reset to")
)

// CafeAPI is the slice of the backend client the manager needs.
type CafeAPI interface {
	GetCafe(ctx context.Context, cafeID string) (*apiclient.Cafe, error)
	UpdateCafe(ctx context.Context, cafeID string, update apiclient.CafeUpdate) (*apiclient.Cafe, error)
	SyncOccupancy(ctx context.Context, snapshot apiclient.OccupancySnapshot) error
	OccupancyHistory(ctx context.Context, cafeID string) ([]apiclient.OccupancyPoint, error)
}

// DraftStore persists unsaved layouts between sessions.
type DraftStore interface {
	SaveDraft(ctx context.Context, cafeID string, payload []byte) error
	LoadDraft(ctx context.Context, cafeID string) ([]byte, error)
	DeleteDraft(ctx context.Context, cafeID string) error
}

// OccupancyRecorder keeps a local log of occupancy sync attempts.
type OccupancyRecorder interface {
	RecordOccupancy(ctx context.Context, rec db.OccupancyRecord) error
}

// SaveJournal records a finished save as one local write: the occupancy
// entry, plus removal of the draft when clearDraft is set.
type SaveJournal interface {
	RecordSave(ctx context.Context, rec db.OccupancyRecord, clearDraft bool) error
}

// Store is a local store that can serve every persistence role.
type Store interface {
	DraftStore
	OccupancyRecorder
	SaveJournal
}

type Option func(*Manager)

func WithDraftStore(store DraftStore) Option {
	return func(m *Manager) { m.drafts = store }
}

func WithOccupancyRecorder(r OccupancyRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithStore uses one store for drafts, the occupancy log and save journaling.
func WithStore(s Store) Option {
	return func(m *Manager) {
		m.drafts = s
		m.recorder = s
		m.journal = s
	}
}

// Manager owns the editable layout of one cafe. It is safe for concurrent
// use; its lock is never held across a backend call.
type Manager struct {
	api      CafeAPI
	cafeID   string
	drafts   DraftStore
	recorder OccupancyRecorder
	journal  SaveJournal
	logger   zerolog.Logger
	loads    request.Sequence

	mu      sync.Mutex
	tables  []Table
	base    *Counts
	unsaved bool
	// revision increases on every change to tables, so that a save can
	// tell whether the layout moved while its request was in flight.
	revision uint64
}

func NewManager(api CafeAPI, cafeID string, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		cafeID: cafeID,
		tables: []Table{},
		logger: log.With().Str("component", "seating").Str("cafe_id", cafeID).Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) CafeID() string { return m.cafeID }

// Hydrate replaces the layout with the one described by a cafe record.
// The unsaved flag is left as it is.
func (m *Manager) Hydrate(cafe *apiclient.Cafe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hydrateLocked(cafe)
}

func (m *Manager) hydrateLocked(cafe *apiclient.Cafe) {
	tables, base := tablesFromLayout(cafe.Layout())
	m.tables = tables
	m.base = base
	m.revision++
	m.logger.Debug().
		Int("tables", len(tables)).
		Int("capacity", capacityOf(tables)).
		Bool("has_base", base != nil).
		Msg("Hydrated seating layout")
}

// Load fetches the cafe and hydrates from it. A load overtaken by a newer
// load, a local edit or a save is discarded.
func (m *Manager) Load(ctx context.Context) error {
	token := m.loads.Next()
	cafe, err := m.api.GetCafe(ctx, m.cafeID)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to load cafe layout")
		return fmt.Errorf("load cafe %s: %w", m.cafeID, err)
	}

	// Edits invalidate under mu, so the check and the hydrate must share it.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loads.Stale(token, "seating") {
		return nil
	}
	m.hydrateLocked(cafe)
	return nil
}

// AddTable appends an empty table of the given size with the next free id.
func (m *Manager) AddTable(size int) (Table, error) {
	if size != SmallTable && size != LargeTable {
		return Table{}, fmt.Errorf("%w: got %d", ErrInvalidTableSize, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t := Table{ID: nextID(m.tables), Size: size}
	m.tables = append(m.tables, t)
	m.touchLocked()
	return t, nil
}

// RemoveLastTable removes the most recently added table. It does nothing on
// an empty layout.
func (m *Manager) RemoveLastTable() (Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tables) == 0 {
		return Table{}, false
	}
	last := m.tables[len(m.tables)-1]
	m.tables = m.tables[:len(m.tables)-1]
	m.touchLocked()
	return last, true
}

// SetSeats records how many seats of a table are occupied. The value is not
// clamped; callers keep it within [0, size].
func (m *Manager) SetSeats(tableID, seats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tables {
		if m.tables[i].ID == tableID {
			m.tables[i].Seats = seats
			m.touchLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrTableNotFound, tableID)
}

// ResetToBase rebuilds the layout from the counts captured at hydration.
func (m *Manager) ResetToBase() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base == nil {
		m.logger.Warn().Msg("Reset requested but no base table counts are known")
		return ErrNoBaseCounts
	}
	m.tables = GenerateTables(*m.base)
	m.touchLocked()
	return nil
}

func (m *Manager) touchLocked() {
	m.unsaved = true
	m.revision++
	m.loads.Invalidate()
}

// Save writes the layout to the backend, reports occupancy and re-reads
// the cafe. On failure the layout stays unsaved and the error is returned.
// If the layout changes while the save is in flight, the local changes and
// the unsaved flag are kept and the re-read is skipped.
func (m *Manager) Save(ctx context.Context) error {
	m.loads.Invalidate()
	m.mu.Lock()
	tables := cloneTables(m.tables)
	rev := m.revision
	m.mu.Unlock()

	counts := countsOf(tables)
	entries := toEntries(tables)
	_, err := m.api.UpdateCafe(ctx, m.cafeID, apiclient.CafeUpdate{
		TwoTables:   &counts.Two,
		FourTables:  &counts.Four,
		TableConfig: &entries,
	})
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to save seating layout")
		return fmt.Errorf("save seating layout: %w", err)
	}

	rec := m.pushOccupancy(ctx, tables)

	m.mu.Lock()
	settled := m.revision == rev
	if settled {
		m.unsaved = false
	}
	m.mu.Unlock()

	m.recordSave(ctx, rec, settled)
	if !settled {
		m.logger.Info().Msg("Layout changed during save; keeping local edits")
		return nil
	}

	token := m.loads.Next()
	cafe, err := m.api.GetCafe(ctx, m.cafeID)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Layout saved but re-reading the cafe failed")
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revision == rev && !m.loads.Stale(token, "seating") {
		m.hydrateLocked(cafe)
	}
	return nil
}

// SyncOccupancy reports the occupancy of tables to the backend. Failures
// are logged and never returned.
func (m *Manager) SyncOccupancy(ctx context.Context, tables []Table) {
	m.recordOccupancy(ctx, m.pushOccupancy(ctx, tables))
}

// pushOccupancy posts the occupancy of tables and returns the local log
// entry describing the attempt.
func (m *Manager) pushOccupancy(ctx context.Context, tables []Table) db.OccupancyRecord {
	snap := occupancyFor(m.cafeID, tables)
	err := m.api.SyncOccupancy(ctx, snap)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to sync occupancy")
	}
	capacity := capacityOf(tables)
	occupied := snap.TwoSeatsOccupied + snap.FourSeatsOccupied
	return db.OccupancyRecord{
		CafeID:        m.cafeID,
		OccupancyRate: OccupancyRate(capacity, occupied),
		Capacity:      capacity,
		Occupied:      occupied,
		Synced:        err == nil,
		RecordedAt:    time.Now(),
	}
}

func (m *Manager) recordOccupancy(ctx context.Context, rec db.OccupancyRecord) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordOccupancy(ctx, rec); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to record occupancy locally")
	}
}

// recordSave logs the save's occupancy entry and, once the saved layout is
// the current one, drops the draft.
func (m *Manager) recordSave(ctx context.Context, rec db.OccupancyRecord, clearDraft bool) {
	if m.journal == nil {
		m.recordOccupancy(ctx, rec)
		if clearDraft {
			m.clearDraft(ctx)
		}
		return
	}
	if err := m.journal.RecordSave(ctx, rec, clearDraft); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to record save locally")
	}
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshotOf(m.tables, m.unsaved, m.base)
}

func (m *Manager) Unsaved() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsaved
}

// HistoryPoint is one backend occupancy sample.
type HistoryPoint struct {
	At    time.Time
	Level int
}

// History returns the cafe's recorded occupancy levels, oldest first as
// the backend sends them.
func (m *Manager) History(ctx context.Context) ([]HistoryPoint, error) {
	points, err := m.api.OccupancyHistory(ctx, m.cafeID)
	if err != nil {
		return nil, fmt.Errorf("occupancy history for cafe %s: %w", m.cafeID, err)
	}
	out := make([]HistoryPoint, 0, len(points))
	for _, p := range points {
		out = append(out, HistoryPoint{At: p.CreatedAt.Time, Level: p.OccupancyLevel})
	}
	return out, nil
}
