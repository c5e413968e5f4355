// Package seating keeps an admin's editable table layout for one cafe in
// step with the backend and derives occupancy from it.
package seating

import (
	"math"

	"github.com/codr1/cafespot/internal/apiclient"
)

const (
	SmallTable = 2
	LargeTable = 4
)

// Table is one table of the layout. Seats is the number of occupied seats.
type Table struct {
	ID    int `json:"id"`
	Size  int `json:"size"`
	Seats int `json:"seats"`
}

// Counts is the coarse two/four-seat summary a layout can be rebuilt from.
type Counts struct {
	Two  int `json:"two"`
	Four int `json:"four"`
}

// Snapshot is a read-only view of the layout and its derived values.
type Snapshot struct {
	Tables          []Table
	Capacity        int
	Occupied        int
	OccupancyRate   int
	TablesInUse     int
	TablesAvailable int
	Unsaved         bool
	Base            *Counts
}

// OccupancyRate is the share of seats occupied, as a whole percentage
// rounded half away from zero. An empty layout is 0% occupied.
func OccupancyRate(capacity, occupied int) int {
	if capacity <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(occupied) / float64(capacity)))
}

// GenerateTables builds a fresh layout from counts: two-seat tables first
// with ids 1..Two, then four-seat tables. All seats start empty.
func GenerateTables(c Counts) []Table {
	two, four := max(c.Two, 0), max(c.Four, 0)
	tables := make([]Table, 0, two+four)
	for i := 0; i < two; i++ {
		tables = append(tables, Table{ID: len(tables) + 1, Size: SmallTable})
	}
	for i := 0; i < four; i++ {
		tables = append(tables, Table{ID: len(tables) + 1, Size: LargeTable})
	}
	return tables
}

func capacityOf(tables []Table) int {
	total := 0
	for _, t := range tables {
		total += t.Size
	}
	return total
}

func nextID(tables []Table) int {
	highest := 0
	for _, t := range tables {
		highest = max(highest, t.ID)
	}
	return highest + 1
}

func cloneTables(tables []Table) []Table {
	if tables == nil {
		return nil
	}
	return append([]Table(nil), tables...)
}

// tablesFromLayout converts a normalized cafe layout into tables and the
// base counts captured from it (nil when the record carried no counts).
func tablesFromLayout(layout apiclient.TableLayout) ([]Table, *Counts) {
	var base *Counts
	if layout.Counts != nil {
		base = &Counts{Two: layout.Counts.Two, Four: layout.Counts.Four}
	}

	switch {
	case len(layout.Entries) > 0:
		tables := make([]Table, 0, len(layout.Entries))
		for _, e := range layout.Entries {
			tables = append(tables, Table{ID: e.ID, Size: e.Size, Seats: e.Seats})
		}
		return tables, base
	case base != nil:
		return GenerateTables(*base), base
	default:
		return []Table{}, nil
	}
}

// occupancyFor derives the backend occupancy snapshot of a layout.
func occupancyFor(cafeID string, tables []Table) apiclient.OccupancySnapshot {
	snap := apiclient.OccupancySnapshot{
		CafeID:      cafeID,
		TableConfig: toEntries(tables),
	}
	for _, t := range tables {
		switch t.Size {
		case SmallTable:
			snap.TwoTables++
			snap.TwoTableSeats += t.Size
			if t.Seats > 0 {
				snap.TwoTablesOccupied++
			}
			snap.TwoSeatsOccupied += t.Seats
		case LargeTable:
			snap.FourTables++
			snap.FourTableSeats += t.Size
			if t.Seats > 0 {
				snap.FourTablesOccupied++
			}
			snap.FourSeatsOccupied += t.Seats
		}
	}
	return snap
}

func toEntries(tables []Table) []apiclient.TableEntry {
	entries := make([]apiclient.TableEntry, 0, len(tables))
	for _, t := range tables {
		entries = append(entries, apiclient.TableEntry{ID: t.ID, Size: t.Size, Seats: t.Seats})
	}
	return entries
}

func countsOf(tables []Table) Counts {
	var c Counts
	for _, t := range tables {
		switch t.Size {
		case SmallTable:
			c.Two++
		case LargeTable:
			c.Four++
		}
	}
	return c
}

func snapshotOf(tables []Table, unsaved bool, base *Counts) Snapshot {
	s := Snapshot{
		Tables:   cloneTables(tables),
		Capacity: capacityOf(tables),
		Unsaved:  unsaved,
	}
	if s.Tables == nil {
		s.Tables = []Table{}
	}
	for _, t := range tables {
		s.Occupied += t.Seats
		if t.Seats > 0 {
			s.TablesInUse++
		}
	}
	s.TablesAvailable = len(tables) - s.TablesInUse
	s.OccupancyRate = OccupancyRate(s.Capacity, s.Occupied)
	if base != nil {
		b := *base
		s.Base = &b
	}
	return s
}
