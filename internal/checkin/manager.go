// Package checkin tracks which cafes the signed-in user has checked in to
// today. The set belongs to one calendar day and empties when the day ends.
package checkin

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/request"
	"github.com/codr1/cafespot/internal/scheduler"
)

// RolloverCron fires at local midnight.
const RolloverCron = "0 0 * * *"

type API interface {
	TodayCheckIns(ctx context.Context, userSub string) ([]string, error)
	CreateCheckIn(ctx context.Context, req apiclient.CheckInRequest) error
}

type Option func(*Manager)

// WithClock sets the time source that decides the current day.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	api    API
	users  authz.Provider
	now    func() time.Time
	logger zerolog.Logger
	loads  request.Sequence

	mu       sync.Mutex
	day      string
	ids      []string
	inFlight int
}

func NewManager(api API, users authz.Provider, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		users:  users,
		now:    time.Now,
		ids:    []string{},
		logger: log.With().Str("component", "checkin").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.day = m.today()
	return m
}

func (m *Manager) today() string {
	return m.now().Format(time.DateOnly)
}

// Load replaces the set with the backend's check-ins for today. Signed
// out, it does nothing.
func (m *Manager) Load(ctx context.Context) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		m.logger.Debug().Msg("Skipping check-in load; no user")
		return nil
	}

	token := m.loads.Next()
	day := m.today()
	m.setLoading(true)
	defer m.setLoading(false)

	ids, err := m.api.TodayCheckIns(ctx, user.Sub)
	if err != nil {
		m.logger.Error().Err(err).Str("user_sub", user.Sub).Msg("Failed to load check-ins")
		return fmt.Errorf("load check-ins: %w", err)
	}
	// AddCheckIn invalidates under mu, so the check and the replace share it.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loads.Stale(token, "checkin") {
		return nil
	}
	if day != m.today() {
		m.logger.Debug().Str("day", day).Msg("Discarding check-ins loaded for a past day")
		return nil
	}
	m.day = day
	m.ids = dedupe(ids)
	return nil
}

// AddCheckIn records a check-in. The cafe joins the set only once the
// backend accepts it; failures are logged and returned.
func (m *Manager) AddCheckIn(ctx context.Context, cafeID string) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		return err
	}

	logger := m.logger.With().Str("user_sub", user.Sub).Str("cafe_id", cafeID).Logger()
	if err := m.api.CreateCheckIn(ctx, apiclient.CheckInRequest{UserSub: user.Sub, CafeID: cafeID}); err != nil {
		logger.Error().Err(err).Msg("Check-in failed")
		return fmt.Errorf("check in to cafe %s: %w", cafeID, err)
	}
	logger.Info().Msg("Checked in")

	m.mu.Lock()
	defer m.mu.Unlock()
	// A load issued before this check-in may not have seen it.
	m.loads.Invalidate()
	m.rollLocked()
	if !slices.Contains(m.ids, cafeID) {
		m.ids = append(m.ids, cafeID)
	}
	return nil
}

func (m *Manager) IsCheckedIn(cafeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked()
	return slices.Contains(m.ids, cafeID)
}

func (m *Manager) CheckIns() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollLocked()
	return append([]string(nil), m.ids...)
}

// Loading reports whether a load is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlight > 0
}

// RollOver empties the set if the day has changed since it was filled,
// and reports whether it did.
func (m *Manager) RollOver() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollLocked()
}

func (m *Manager) rollLocked() bool {
	today := m.today()
	if today == m.day {
		return false
	}
	m.logger.Info().Str("from", m.day).Str("to", today).Int("cleared", len(m.ids)).Msg("Check-in day rolled over")
	m.day = today
	m.ids = []string{}
	m.loads.Invalidate()
	return true
}

// ScheduleRollover registers a midnight job that rolls the set over even
// when nothing reads it.
func (m *Manager) ScheduleRollover(s *scheduler.Service) (gocron.Job, error) {
	return s.AddJob("checkin_rollover", RolloverCron, func() { m.RollOver() })
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

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
