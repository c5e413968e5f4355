package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// TableEntry is one table of a detailed layout.
type TableEntry struct {
	ID     int    `json:"id"`
	Size   int    `json:"size"`
	Seats  int    `json:"seats"`
	Status string `json:"status,omitempty"`
}

// TableCounts is the coarse two/four-seat summary of a layout.
type TableCounts struct {
	Two  int `json:"two_tables"`
	Four int `json:"four_tables"`
}

// Empty reports whether the summary describes no tables at all.
func (c TableCounts) Empty() bool {
	return c.Two <= 0 && c.Four <= 0
}

// TableConfig is the table_config field as the backend may send it: a
// detailed array, a summary object, or nothing. Exactly one of Entries and
// Summary is populated after decoding a non-null value.
type TableConfig struct {
	Entries []TableEntry
	Summary *TableCounts
}

func (c *TableConfig) UnmarshalJSON(data []byte) error {
	*c = TableConfig{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var raw []rawTableEntry
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("decode table_config array: %w", err)
		}
		c.Entries = make([]TableEntry, 0, len(raw))
		for i, item := range raw {
			c.Entries = append(c.Entries, item.normalize(i))
		}
		return nil
	case '{':
		var summary struct {
			Two  *int `json:"two_tables"`
			Four *int `json:"four_tables"`
		}
		if err := json.Unmarshal(trimmed, &summary); err != nil {
			return fmt.Errorf("decode table_config summary: %w", err)
		}
		counts := TableCounts{}
		if summary.Two != nil {
			counts.Two = *summary.Two
		}
		if summary.Four != nil {
			counts.Four = *summary.Four
		}
		c.Summary = &counts
		return nil
	default:
		log.Debug().Str("table_config", string(trimmed)).Msg("Ignoring table_config of unexpected shape")
		return nil
	}
}

// MarshalJSON always emits the detailed array form.
func (c TableConfig) MarshalJSON() ([]byte, error) {
	if c.Entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Entries)
}

type rawTableEntry struct {
	ID     json.RawMessage `json:"id"`
	Size   int             `json:"size"`
	Seats  *int            `json:"seats"`
	Status string          `json:"status"`
}

func (r rawTableEntry) normalize(index int) TableEntry {
	entry := TableEntry{
		ID:     parseTableID(r.ID, index),
		Size:   r.Size,
		Status: r.Status,
	}
	if r.Seats != nil {
		entry.Seats = *r.Seats
	}
	return entry
}

// parseTableID accepts numeric ids, numeric strings and labels such as
// "T3". Anything else falls back to the entry's 1-based position.
func parseTableID(raw json.RawMessage, index int) int {
	fallback := index + 1
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		if id, err := strconv.Atoi(number.String()); err == nil {
			return id
		}
		if f, err := number.Float64(); err == nil {
			return int(f)
		}
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if id, err := strconv.Atoi(text); err == nil {
			return id
		}
		digits := strings.TrimLeftFunc(text, func(r rune) bool { return r < '0' || r > '9' })
		if id, err := strconv.Atoi(digits); err == nil {
			return id
		}
	}

	log.Debug().RawJSON("id", raw).Int("fallback", fallback).Msg("Table id not numeric; using position")
	return fallback
}

// TableLayout is the canonical shape seating logic works from.
type TableLayout struct {
	// Entries is the detailed layout; empty when the record had none.
	Entries []TableEntry
	// Counts is the summary, from a summary table_config or the record's
	// top-level two_tables/four_tables. Nil when neither was present.
	Counts *TableCounts
}

// Layout resolves the table shape of a cafe record. A summary table_config
// that describes no tables defers to the top-level counts.
func (c *Cafe) Layout() TableLayout {
	if c == nil {
		return TableLayout{}
	}
	layout := TableLayout{}
	if len(c.TableConfig.Entries) > 0 {
		layout.Entries = append([]TableEntry(nil), c.TableConfig.Entries...)
	}

	switch {
	case c.TableConfig.Summary != nil && !c.TableConfig.Summary.Empty():
		counts := *c.TableConfig.Summary
		layout.Counts = &counts
	case c.TwoTables != nil || c.FourTables != nil:
		counts := TableCounts{}
		if c.TwoTables != nil {
			counts.Two = *c.TwoTables
		}
		if c.FourTables != nil {
			counts.Four = *c.FourTables
		}
		layout.Counts = &counts
	case c.TableConfig.Summary != nil:
		counts := *c.TableConfig.Summary
		layout.Counts = &counts
	}
	return layout
}
