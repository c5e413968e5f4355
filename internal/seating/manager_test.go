package seating

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/db"
	"github.com/codr1/cafespot/internal/testutil"
)

func intPtr(n int) *int { return &n }

func hydrated(t *testing.T, cafe *apiclient.Cafe) *Manager {
	t.Helper()
	m := NewManager(nil, cafe.ID)
	m.Hydrate(cafe)
	return m
}

func TestOccupancyRate(t *testing.T) {
	tests := []struct {
		capacity, occupied, want int
	}{
		{0, 0, 0},
		{0, 7, 0},
		{10, 5, 50},
		{3, 1, 33},
		{3, 2, 67},
		{8, 1, 13},
		{12, 2, 17},
		{8, 8, 100},
	}
	for _, tt := range tests {
		if got := OccupancyRate(tt.capacity, tt.occupied); got != tt.want {
			t.Errorf("OccupancyRate(%d, %d) = %d, want %d", tt.capacity, tt.occupied, got, tt.want)
		}
	}
}

func TestHydrate(t *testing.T) {
	tests := []struct {
		name     string
		cafe     apiclient.Cafe
		want     []Table
		wantBase *Counts
	}{
		{
			name: "detailed entries win",
			cafe: apiclient.Cafe{
				ID:          "c1",
				TwoTables:   intPtr(5),
				TableConfig: apiclient.TableConfig{Entries: []apiclient.TableEntry{{ID: 7, Size: 4, Seats: 3}}},
			},
			want:     []Table{{ID: 7, Size: 4, Seats: 3}},
			wantBase: &Counts{Two: 5},
		},
		{
			name: "summary counts generate tables",
			cafe: apiclient.Cafe{
				ID:          "c1",
				TableConfig: apiclient.TableConfig{Summary: &apiclient.TableCounts{Two: 2, Four: 1}},
			},
			want:     []Table{{ID: 1, Size: 2}, {ID: 2, Size: 2}, {ID: 3, Size: 4}},
			wantBase: &Counts{Two: 2, Four: 1},
		},
		{
			name:     "top-level counts",
			cafe:     apiclient.Cafe{ID: "c1", TwoTables: intPtr(0), FourTables: intPtr(2)},
			want:     []Table{{ID: 1, Size: 4}, {ID: 2, Size: 4}},
			wantBase: &Counts{Four: 2},
		},
		{
			name: "nothing known",
			cafe: apiclient.Cafe{ID: "c1"},
			want: []Table{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := hydrated(t, &tt.cafe)
			snap := m.Snapshot()
			if !reflect.DeepEqual(snap.Tables, tt.want) {
				t.Errorf("Tables = %+v, want %+v", snap.Tables, tt.want)
			}
			if !reflect.DeepEqual(snap.Base, tt.wantBase) {
				t.Errorf("Base = %+v, want %+v", snap.Base, tt.wantBase)
			}
			if snap.Capacity != capacityOf(tt.want) {
				t.Errorf("Capacity = %d, want %d", snap.Capacity, capacityOf(tt.want))
			}
			if snap.Unsaved {
				t.Error("Hydrate marked the layout unsaved")
			}
		})
	}
}

func TestCapacityTracksMutations(t *testing.T) {
	m := hydrated(t, &apiclient.Cafe{ID: "c1", TwoTables: intPtr(1), FourTables: intPtr(1)})

	steps := []func(){
		func() { _, _ = m.AddTable(LargeTable) },
		func() { _, _ = m.AddTable(SmallTable) },
		func() { m.RemoveLastTable() },
		func() { _ = m.ResetToBase() },
		func() { m.RemoveLastTable() },
		func() { m.RemoveLastTable() },
		func() { m.RemoveLastTable() },
	}
	for i, step := range steps {
		step()
		snap := m.Snapshot()
		if snap.Capacity != capacityOf(snap.Tables) {
			t.Fatalf("step %d: Capacity = %d, want %d", i, snap.Capacity, capacityOf(snap.Tables))
		}
		if snap.Capacity < 0 {
			t.Fatalf("step %d: negative capacity", i)
		}
	}
}

func TestAddTableIDs(t *testing.T) {
	m := NewManager(nil, "c1")

	first, err := m.AddTable(SmallTable)
	if err != nil || first.ID != 1 {
		t.Fatalf("AddTable() on empty = %+v, %v, want id 1", first, err)
	}
	m.Hydrate(&apiclient.Cafe{ID: "c1", TableConfig: apiclient.TableConfig{Entries: []apiclient.TableEntry{
		{ID: 1, Size: 2}, {ID: 9, Size: 4}, {ID: 3, Size: 2},
	}}})
	next, _ := m.AddTable(LargeTable)
	if next.ID != 10 {
		t.Errorf("AddTable() id = %d, want 10", next.ID)
	}

	m.RemoveLastTable()
	m.RemoveLastTable()
	again, _ := m.AddTable(SmallTable)
	if again.ID != 10 {
		t.Errorf("AddTable() after removals id = %d, want max+1 = 10", again.ID)
	}

	if _, err := m.AddTable(3); !errors.Is(err, ErrInvalidTableSize) {
		t.Errorf("AddTable(3) error = %v, want ErrInvalidTableSize", err)
	}
}

func TestRemoveLastTableOnEmpty(t *testing.T) {
	m := NewManager(nil, "c1")
	if _, ok := m.RemoveLastTable(); ok {
		t.Error("RemoveLastTable() on empty layout reported a removal")
	}
	if m.Unsaved() {
		t.Error("RemoveLastTable() on empty layout marked it unsaved")
	}
}

func TestSetSeats(t *testing.T) {
	m := hydrated(t, &apiclient.Cafe{ID: "c1", TwoTables: intPtr(1), FourTables: intPtr(1)})

	for id, size := range map[int]int{1: SmallTable, 2: LargeTable} {
		for seats := 0; seats <= size; seats++ {
			if err := m.SetSeats(id, seats); err != nil {
				t.Fatalf("SetSeats(%d, %d) error = %v", id, seats, err)
			}
		}
	}
	for _, tbl := range m.Snapshot().Tables {
		if tbl.Seats < 0 || tbl.Seats > tbl.Size {
			t.Errorf("table %d seats = %d, outside [0, %d]", tbl.ID, tbl.Seats, tbl.Size)
		}
	}

	before := m.Snapshot().Tables
	if err := m.SetSeats(42, 1); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("SetSeats(42) error = %v, want ErrTableNotFound", err)
	}
	if !reflect.DeepEqual(m.Snapshot().Tables, before) {
		t.Error("SetSeats on an unknown id changed the layout")
	}
}

func TestResetToBase(t *testing.T) {
	m := hydrated(t, &apiclient.Cafe{ID: "c1", TableConfig: apiclient.TableConfig{Summary: &apiclient.TableCounts{Two: 2, Four: 1}}})
	_ = m.SetSeats(1, 2)
	_, _ = m.AddTable(LargeTable)

	if err := m.ResetToBase(); err != nil {
		t.Fatalf("ResetToBase() error = %v", err)
	}
	first := m.Snapshot().Tables
	if err := m.ResetToBase(); err != nil {
		t.Fatalf("second ResetToBase() error = %v", err)
	}
	if second := m.Snapshot().Tables; !reflect.DeepEqual(first, second) {
		t.Errorf("ResetToBase() not idempotent: %+v then %+v", first, second)
	}

	empty := NewManager(nil, "c2")
	if err := empty.ResetToBase(); !errors.Is(err, ErrNoBaseCounts) {
		t.Errorf("ResetToBase() without base error = %v, want ErrNoBaseCounts", err)
	}
	if empty.Unsaved() {
		t.Error("failed ResetToBase() marked the layout unsaved")
	}
}

func TestEndToEndScenario(t *testing.T) {
	m := hydrated(t, &apiclient.Cafe{ID: "c1", TableConfig: apiclient.TableConfig{Summary: &apiclient.TableCounts{Two: 2, Four: 1}}})
	original := []Table{{ID: 1, Size: 2}, {ID: 2, Size: 2}, {ID: 3, Size: 4}}

	snap := m.Snapshot()
	if !reflect.DeepEqual(snap.Tables, original) || snap.Capacity != 8 {
		t.Fatalf("hydrated = %+v capacity %d", snap.Tables, snap.Capacity)
	}

	if err := m.SetSeats(1, 2); err != nil {
		t.Fatalf("SetSeats() error = %v", err)
	}
	snap = m.Snapshot()
	if snap.Occupied != 2 || snap.OccupancyRate != 25 {
		t.Errorf("after SetSeats occupied=%d rate=%d, want 2 and 25", snap.Occupied, snap.OccupancyRate)
	}

	added, err := m.AddTable(LargeTable)
	if err != nil {
		t.Fatalf("AddTable() error = %v", err)
	}
	if added != (Table{ID: 4, Size: 4}) {
		t.Errorf("AddTable() = %+v", added)
	}
	snap = m.Snapshot()
	if snap.Capacity != 12 || snap.OccupancyRate != 17 {
		t.Errorf("after AddTable capacity=%d rate=%d, want 12 and 17", snap.Capacity, snap.OccupancyRate)
	}

	if err := m.ResetToBase(); err != nil {
		t.Fatalf("ResetToBase() error = %v", err)
	}
	snap = m.Snapshot()
	if !reflect.DeepEqual(snap.Tables, original) || snap.Capacity != 8 || !snap.Unsaved {
		t.Errorf("after reset = %+v capacity=%d unsaved=%v", snap.Tables, snap.Capacity, snap.Unsaved)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})

	m := NewManager(client, cafeID)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, size := range []int{SmallTable, SmallTable, SmallTable, LargeTable, LargeTable} {
		if _, err := m.AddTable(size); err != nil {
			t.Fatalf("AddTable() error = %v", err)
		}
	}
	_ = m.SetSeats(4, 3)

	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	patches := stub.RequestsTo(http.MethodPatch, "/cafes/{cafeId}")
	if len(patches) != 1 {
		t.Fatalf("PATCH count = %d, want 1", len(patches))
	}
	var body struct {
		Two    int                    `json:"two_tables"`
		Four   int                    `json:"four_tables"`
		Config []apiclient.TableEntry `json:"table_config"`
	}
	if err := patches[0].JSON(&body); err != nil {
		t.Fatalf("decode PATCH body: %v", err)
	}
	if body.Two != 3 || body.Four != 2 || len(body.Config) != 5 {
		t.Errorf("PATCH body = %+v, want 3 two-seat, 2 four-seat and 5 entries", body)
	}

	snap := m.Snapshot()
	if snap.Capacity != 14 || snap.Unsaved {
		t.Errorf("after save capacity=%d unsaved=%v, want 14 and false", snap.Capacity, snap.Unsaved)
	}
	if snap.Base == nil || *snap.Base != (Counts{Two: 3, Four: 2}) {
		t.Errorf("Base after re-hydrate = %+v", snap.Base)
	}

	snaps := stub.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("occupancy posts = %d, want 1", len(snaps))
	}
	want := apiclient.OccupancySnapshot{
		CafeID:             cafeID,
		TwoTables:          3,
		FourTables:         2,
		TwoTableSeats:      6,
		FourTableSeats:     8,
		FourTablesOccupied: 1,
		FourSeatsOccupied:  3,
	}
	got := snaps[0]
	got.TableConfig = nil
	if !reflect.DeepEqual(got, want) {
		t.Errorf("occupancy = %+v, want %+v", got, want)
	}
	if cafe, _ := stub.Cafe(cafeID); cafe["occupancy_level"] != float64(21) {
		t.Errorf("occupancy_level = %v, want 21", cafe["occupancy_level"])
	}
}

func TestSaveFailureKeepsUnsaved(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava", "two_tables": 1, "four_tables": 0})

	m := NewManager(client, cafeID)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	_, _ = m.AddTable(LargeTable)

	stub.FailNext(http.MethodPatch, "/cafes/{cafeId}", http.StatusBadRequest, "Invalid table configuration")
	err := m.Save(ctx)
	if got := apiclient.ErrorMessage(err); got != "Invalid table configuration" {
		t.Errorf("Save() message = %q, want server detail", got)
	}
	if !m.Unsaved() || m.Snapshot().Capacity != 6 {
		t.Errorf("after failed save unsaved=%v capacity=%d", m.Unsaved(), m.Snapshot().Capacity)
	}
	if len(stub.Snapshots()) != 0 {
		t.Error("occupancy was synced after a failed save")
	}
}

type recorderFunc func(db.OccupancyRecord) error

func (f recorderFunc) RecordOccupancy(_ context.Context, rec db.OccupancyRecord) error {
	return f(rec)
}

func TestSyncFailureDoesNotFailSave(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})

	var mu sync.Mutex
	var records []db.OccupancyRecord
	m := NewManager(client, cafeID, WithOccupancyRecorder(recorderFunc(func(rec db.OccupancyRecord) error {
		mu.Lock()
		defer mu.Unlock()
		records = append(records, rec)
		return nil
	})))
	_, _ = m.AddTable(SmallTable)
	_ = m.SetSeats(1, 1)

	stub.FailNext(http.MethodPost, "/occupancy/", http.StatusInternalServerError, "db down")
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v, want occupancy failure swallowed", err)
	}
	if m.Unsaved() {
		t.Error("layout still unsaved after a successful PATCH")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(records) != 1 || records[0].Synced || records[0].OccupancyRate != 50 {
		t.Errorf("records = %+v, want one unsynced record at 50%%", records)
	}
}

// editingAPI mutates the layout while the PATCH is in flight.
type editingAPI struct {
	CafeAPI
	during func()
	gets   int
}

func (a *editingAPI) UpdateCafe(ctx context.Context, cafeID string, update apiclient.CafeUpdate) (*apiclient.Cafe, error) {
	a.during()
	return a.CafeAPI.UpdateCafe(ctx, cafeID, update)
}

func (a *editingAPI) GetCafe(ctx context.Context, cafeID string) (*apiclient.Cafe, error) {
	a.gets++
	return a.CafeAPI.GetCafe(ctx, cafeID)
}

func TestEditDuringSaveIsKept(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})

	api := &editingAPI{CafeAPI: client}
	m := NewManager(api, cafeID)
	_, _ = m.AddTable(SmallTable)
	api.during = func() { _, _ = m.AddTable(LargeTable) }

	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	snap := m.Snapshot()
	if len(snap.Tables) != 2 || !snap.Unsaved {
		t.Errorf("after overlapping save tables=%d unsaved=%v, want 2 and true", len(snap.Tables), snap.Unsaved)
	}
	if api.gets != 0 {
		t.Errorf("re-read %d times, want the re-hydrate skipped", api.gets)
	}
}

func TestDraftPersistence(t *testing.T) {
	store := testutil.NewTestDB(t)
	ctx := context.Background()
	cafe := &apiclient.Cafe{ID: "c1", TwoTables: intPtr(2), FourTables: intPtr(0)}

	m := NewManager(nil, "c1", WithDraftStore(store))
	m.Hydrate(cafe)
	_, _ = m.AddTable(LargeTable)
	_ = m.SetSeats(3, 2)
	if err := m.SaveDraft(ctx); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}

	restored := NewManager(nil, "c1", WithDraftStore(store))
	restored.Hydrate(cafe)
	ok, err := restored.RestoreDraft(ctx)
	if err != nil || !ok {
		t.Fatalf("RestoreDraft() = %v, %v", ok, err)
	}
	snap := restored.Snapshot()
	if !reflect.DeepEqual(snap.Tables, m.Snapshot().Tables) || !snap.Unsaved {
		t.Errorf("restored = %+v unsaved=%v", snap.Tables, snap.Unsaved)
	}

	other := NewManager(nil, "c2", WithDraftStore(store))
	if ok, err := other.RestoreDraft(ctx); ok || err != nil {
		t.Errorf("RestoreDraft() for another cafe = %v, %v, want false, nil", ok, err)
	}
}

func TestRestoreRejectsOtherCafe(t *testing.T) {
	m := NewManager(nil, "c1")
	if err := m.Restore(Draft{CafeID: "c2", Tables: []Table{{ID: 1, Size: 2}}}); err == nil {
		t.Error("Restore() of another cafe's draft error = nil")
	}
}

func TestHistory(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})

	m := NewManager(client, cafeID)
	_, _ = m.AddTable(LargeTable)
	_ = m.SetSeats(1, 1)
	m.SyncOccupancy(ctx, m.Snapshot().Tables)

	points, err := m.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(points) != 1 || points[0].Level != 25 || points[0].At.IsZero() {
		t.Errorf("History() = %+v, want one point at 25", points)
	}
}

// heldLoadAPI holds its first GetCafe, after reading the cafe, until
// release is closed.
type heldLoadAPI struct {
	CafeAPI
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newHeldLoadAPI(api CafeAPI) *heldLoadAPI {
	return &heldLoadAPI{CafeAPI: api, started: make(chan struct{}), release: make(chan struct{})}
}

func (a *heldLoadAPI) GetCafe(ctx context.Context, cafeID string) (*apiclient.Cafe, error) {
	cafe, err := a.CafeAPI.GetCafe(ctx, cafeID)
	held := false
	a.once.Do(func() { held = true })
	if held {
		close(a.started)
		<-a.release
	}
	return cafe, err
}

func TestOlderLoadDoesNotOverwrite(t *testing.T) {
	tests := []struct {
		name        string
		change      func(t *testing.T, m *Manager)
		wantUnsaved bool
	}{
		{
			name: "save",
			change: func(t *testing.T, m *Manager) {
				if err := m.Save(context.Background()); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			},
			wantUnsaved: false,
		},
		{
			name:        "local edit",
			change:      func(t *testing.T, m *Manager) {},
			wantUnsaved: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub, client := testutil.NewStubBackend(t)
			ctx := context.Background()
			cafeID := stub.PutCafe(map[string]any{"name": "Kava", "two_tables": 1, "four_tables": 0})
			cafe, err := client.GetCafe(ctx, cafeID)
			if err != nil {
				t.Fatalf("GetCafe() error = %v", err)
			}

			api := newHeldLoadAPI(client)
			m := NewManager(api, cafeID)
			m.Hydrate(cafe)

			done := make(chan error, 1)
			go func() { done <- m.Load(ctx) }()
			<-api.started

			if _, err := m.AddTable(LargeTable); err != nil {
				t.Fatalf("AddTable() error = %v", err)
			}
			tt.change(t, m)
			close(api.release)
			if err := <-done; err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			snap := m.Snapshot()
			if len(snap.Tables) != 2 || snap.Capacity != 6 || snap.Unsaved != tt.wantUnsaved {
				t.Errorf("tables=%d capacity=%d unsaved=%v, want 2, 6, %v",
					len(snap.Tables), snap.Capacity, snap.Unsaved, tt.wantUnsaved)
			}
		})
	}
}

func TestSaveJournalsThroughStore(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	store := testutil.NewTestDB(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})

	m := NewManager(client, cafeID, WithStore(store))
	_, _ = m.AddTable(SmallTable)
	_ = m.SetSeats(1, 2)
	if err := m.SaveDraft(ctx); err != nil {
		t.Fatalf("SaveDraft() error = %v", err)
	}
	if err := m.Save(ctx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := store.LoadDraft(ctx, cafeID); !errors.Is(err, db.ErrNoDraft) {
		t.Errorf("LoadDraft() after save error = %v, want ErrNoDraft", err)
	}
	recs, err := store.RecentOccupancy(ctx, cafeID, 5)
	if err != nil {
		t.Fatalf("RecentOccupancy() error = %v", err)
	}
	if len(recs) != 1 || !recs[0].Synced || recs[0].OccupancyRate != 100 {
		t.Errorf("occupancy log = %+v, want one synced entry at 100%%", recs)
	}
}
