package reservations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/request"
)

// BookAPI is the slice of the backend client the admin book needs.
type BookAPI interface {
	ListCafeReservations(ctx context.Context, cafeID string) ([]apiclient.Reservation, error)
	UpdateReservation(ctx context.Context, id string, update apiclient.ReservationStatusUpdate) (*apiclient.Reservation, error)
}

// CafeBook is the admin view of one cafe's reservations.
type CafeBook struct {
	api    BookAPI
	cafeID string
	logger zerolog.Logger
	loads  request.Sequence

	mu           sync.Mutex
	reservations []Reservation
}

func NewCafeBook(api BookAPI, cafeID string) *CafeBook {
	return &CafeBook{
		api:          api,
		cafeID:       cafeID,
		reservations: []Reservation{},
		logger:       log.With().Str("component", "cafe_book").Str("cafe_id", cafeID).Logger(),
	}
}

func (b *CafeBook) Refresh(ctx context.Context) error {
	token := b.loads.Next()
	list, err := b.api.ListCafeReservations(ctx, b.cafeID)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to load cafe reservations")
		return fmt.Errorf("load reservations for cafe %s: %w", b.cafeID, err)
	}
	if b.loads.Stale(token, "cafe_book") {
		return nil
	}
	b.mu.Lock()
	b.reservations = fromAPIList(list)
	b.mu.Unlock()
	return nil
}

func (b *CafeBook) Confirm(ctx context.Context, id string) error {
	return b.transition(ctx, id, apiclient.ReservationStatusUpdate{Status: string(StatusConfirmed)})
}

func (b *CafeBook) Complete(ctx context.Context, id string) error {
	return b.transition(ctx, id, apiclient.ReservationStatusUpdate{Status: string(StatusCompleted)})
}

// Cancel cancels on the cafe's behalf; the reason is shown to the guest.
func (b *CafeBook) Cancel(ctx context.Context, id, reason string) error {
	return b.transition(ctx, id, apiclient.ReservationStatusUpdate{
		Status:             string(StatusCancelled),
		CancellationReason: strings.TrimSpace(reason),
	})
}

func (b *CafeBook) transition(ctx context.Context, id string, update apiclient.ReservationStatusUpdate) error {
	logger := b.logger.With().Str("reservation_id", id).Str("status", update.Status).Logger()
	if _, err := b.api.UpdateReservation(ctx, id, update); err != nil {
		logger.Warn().Err(err).Msg("Status change rejected")
		return fmt.Errorf("set reservation %s to %s: %w", id, update.Status, err)
	}
	logger.Info().Msg("Reservation status changed")
	if err := b.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Status changed but refresh failed")
	}
	return nil
}

func (b *CafeBook) Reservations() []Reservation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return clone(b.reservations)
}

// Pending returns the reservations awaiting confirmation.
func (b *CafeBook) Pending() []Reservation {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Reservation
	for _, r := range b.reservations {
		if r.Status == StatusPending {
			out = append(out, r)
		}
	}
	return out
}

// Upcoming returns active reservations from the start of now's day onward,
// earliest first.
func (b *CafeBook) Upcoming(now time.Time) []Reservation {
	y, mo, d := now.Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, now.Location())

	b.mu.Lock()
	var out []Reservation
	for _, r := range b.reservations {
		if r.Status.Active() && !r.Date.Before(today) {
			out = append(out, r)
		}
	}
	b.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := dayOf(out[i].Date), dayOf(out[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return slotMinutes(out[i].Time) < slotMinutes(out[j].Time)
	})
	return out
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

var slotLayouts = []string{"3:04 PM", "3:04PM", "15:04"}

// slotMinutes orders time-slot labels such as "10:30 AM". Labels that do
// not parse sort last.
func slotMinutes(label string) int {
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, layout := range slotLayouts {
		if t, err := time.Parse(layout, label); err == nil {
			return t.Hour()*60 + t.Minute()
		}
	}
	return 24 * 60
}
