// Package saved keeps the signed-in user's favourite cafes. Toggles apply
// locally first and are rolled back if the backend rejects them.
package saved

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

// Cafe is the snapshot stored at save time. It is not kept in step with
// the live cafe record.
type Cafe struct {
	ID      string
	Name    string
	Address string
	Image   string
}

type API interface {
	GetUser(ctx context.Context, sub string) (*apiclient.User, error)
	SaveCafe(ctx context.Context, sub, cafeID string) error
	UnsaveCafe(ctx context.Context, sub, cafeID string) error
}

type Manager struct {
	api    API
	users  authz.Provider
	logger zerolog.Logger
	loads  request.Sequence

	mu    sync.Mutex
	cafes []Cafe
}

func NewManager(api API, users authz.Provider) *Manager {
	return &Manager{
		api:    api,
		users:  users,
		cafes:  []Cafe{},
		logger: log.With().Str("component", "saved").Logger(),
	}
}

// Load replaces the list with the one embedded in the user's profile.
// Signed out, it does nothing.
func (m *Manager) Load(ctx context.Context) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		m.logger.Debug().Msg("Skipping saved cafes load; no user")
		return nil
	}

	token := m.loads.Next()
	profile, err := m.api.GetUser(ctx, user.Sub)
	if err != nil {
		m.logger.Error().Err(err).Str("user_sub", user.Sub).Msg("Failed to load saved cafes")
		return fmt.Errorf("load saved cafes: %w", err)
	}
	if m.loads.Stale(token, "saved") {
		return nil
	}

	list := make([]Cafe, 0, len(profile.SavedCafes))
	for _, s := range profile.SavedCafes {
		if s.ID == "" {
			continue
		}
		list = append(list, Cafe{ID: s.ID, Name: s.Name, Address: s.Address, Image: s.Image})
	}
	m.mu.Lock()
	m.cafes = list
	m.mu.Unlock()
	return nil
}

// Toggle saves or unsaves cafe. The local list changes before the backend
// call; if the call fails, only this cafe's membership is restored, a
// reconciliation warning is logged and the error returned.
func (m *Manager) Toggle(ctx context.Context, cafe Cafe) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		return err
	}

	// A toggle supersedes any load still in flight.
	m.loads.Invalidate()

	m.mu.Lock()
	wasSaved := indexOf(m.cafes, cafe.ID) >= 0
	if wasSaved {
		m.cafes = remove(m.cafes, cafe.ID)
	} else {
		m.cafes = append(m.cafes, cafe)
	}
	m.mu.Unlock()

	if wasSaved {
		err = m.api.UnsaveCafe(ctx, user.Sub, cafe.ID)
	} else {
		err = m.api.SaveCafe(ctx, user.Sub, cafe.ID)
	}
	if err == nil {
		return nil
	}

	m.logger.Warn().
		Err(err).
		Str("user_sub", user.Sub).
		Str("cafe_id", cafe.ID).
		Bool("was_saved", wasSaved).
		Msg("Saved cafe toggle rejected; rolling back local state")

	m.mu.Lock()
	present := indexOf(m.cafes, cafe.ID) >= 0
	switch {
	case wasSaved && !present:
		m.cafes = append(m.cafes, cafe)
	case !wasSaved && present:
		m.cafes = remove(m.cafes, cafe.ID)
	}
	m.mu.Unlock()

	if wasSaved {
		return fmt.Errorf("unsave cafe %s: %w", cafe.ID, err)
	}
	return fmt.Errorf("save cafe %s: %w", cafe.ID, err)
}

func (m *Manager) IsSaved(cafeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return indexOf(m.cafes, cafeID) >= 0
}

func (m *Manager) Cafes() []Cafe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Cafe(nil), m.cafes...)
}

func indexOf(list []Cafe, id string) int {
	for i, c := range list {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func remove(list []Cafe, id string) []Cafe {
	out := make([]Cafe, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}
