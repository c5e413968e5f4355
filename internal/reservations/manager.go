package reservations

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/request"
)

// GuestAPI is the slice of the backend client the guest manager needs.
type GuestAPI interface {
	ListUserReservations(ctx context.Context, userSub string) ([]apiclient.Reservation, error)
	CreateReservation(ctx context.Context, req apiclient.ReservationRequest) (*apiclient.Reservation, error)
	UpdateReservation(ctx context.Context, id string, update apiclient.ReservationStatusUpdate) (*apiclient.Reservation, error)
}

// Manager holds the signed-in guest's reservations. Every successful write
// is followed by a full refetch; the list is never patched locally.
type Manager struct {
	api    GuestAPI
	users  authz.Provider
	logger zerolog.Logger
	loads  request.Sequence

	mu           sync.Mutex
	reservations []Reservation
	inFlight     int
}

func NewManager(api GuestAPI, users authz.Provider) *Manager {
	return &Manager{
		api:          api,
		users:        users,
		reservations: []Reservation{},
		logger:       log.With().Str("component", "reservations").Logger(),
	}
}

// Refresh replaces the list with the server's. A refresh overtaken by a
// newer one leaves the list to the newer one. Signed out, the list is
// cleared and ErrUnauthenticated returned.
func (m *Manager) Refresh(ctx context.Context) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		m.loads.Invalidate()
		m.mu.Lock()
		m.reservations = []Reservation{}
		m.mu.Unlock()
		return err
	}

	token := m.loads.Next()
	m.setLoading(true)
	defer m.setLoading(false)

	list, err := m.api.ListUserReservations(ctx, user.Sub)
	if err != nil {
		m.logger.Error().Err(err).Str("user_sub", user.Sub).Msg("Failed to load reservations")
		return fmt.Errorf("load reservations: %w", err)
	}
	if m.loads.Stale(token, "reservations") {
		return nil
	}

	m.mu.Lock()
	m.reservations = fromAPIList(list)
	m.mu.Unlock()
	return nil
}

// Reserve books a table. On success the list is refetched; the created
// record in the response is not trusted. A failed refetch after a
// successful booking is logged, not returned, so callers do not re-book.
func (m *Manager) Reserve(ctx context.Context, b Booking) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}

	logger := m.logger.With().Str("user_sub", user.Sub).Str("cafe_id", b.CafeID).Logger()
	if _, err := m.api.CreateReservation(ctx, b.request(user.Sub)); err != nil {
		logger.Warn().Err(err).Msg("Reservation rejected")
		return fmt.Errorf("create reservation: %w", err)
	}
	logger.Info().Int("party_size", b.PartySize).Msg("Reservation created")

	if err := m.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("Reservation created but refresh failed")
	}
	return nil
}

// Cancel moves a reservation to cancelled, then refetches.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	if _, err := authz.RequireUser(ctx, m.users); err != nil {
		return err
	}
	if _, err := m.api.UpdateReservation(ctx, id, apiclient.ReservationStatusUpdate{Status: string(StatusCancelled)}); err != nil {
		m.logger.Warn().Err(err).Str("reservation_id", id).Msg("Cancellation rejected")
		return fmt.Errorf("cancel reservation %s: %w", id, err)
	}
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn().Err(err).Str("reservation_id", id).Msg("Reservation cancelled but refresh failed")
	}
	return nil
}

// HasActive reports whether the guest holds a pending or confirmed
// reservation at the cafe.
func (m *Manager) HasActive(cafeID string) bool {
	_, ok := m.GetActive(cafeID)
	return ok
}

// GetActive returns the first pending or confirmed reservation at the cafe.
func (m *Manager) GetActive(cafeID string) (Reservation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.CafeID == cafeID && r.Status.Active() {
			return r, true
		}
	}
	return Reservation{}, false
}

func (m *Manager) Reservations() []Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.reservations)
}

// Loading reports whether a refresh is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

func (m *Manager) setLoading(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.inFlight++
	} else {
		m.inFlight--
	}
}
