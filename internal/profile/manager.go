// Package profile loads and edits the signed-in user's backend profile.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/request"
)

var ErrNotLoaded = errors.New("profile not loaded")

type Profile struct {
	Sub           string
	Email         string
	Username      string
	Preferences   apiclient.Preferences
	SavedCount    int
	TotalReviews  int
	TotalCheckIns int
}

func fromAPI(u *apiclient.User) Profile {
	return Profile{
		Sub:           u.CognitoSub,
		Email:         u.Email,
		Username:      u.Username,
		Preferences:   u.Preferences,
		SavedCount:    len(u.SavedCafes),
		TotalReviews:  u.TotalReviews,
		TotalCheckIns: u.TotalCheckins,
	}
}

type API interface {
	GetUser(ctx context.Context, sub string) (*apiclient.User, error)
	CreateUser(ctx context.Context, user apiclient.NewUser) (*apiclient.User, error)
	UpdateUser(ctx context.Context, sub string, fields map[string]any) (*apiclient.User, error)
	DeleteUser(ctx context.Context, sub string) error
}

// Attributes supplies identity attributes used to create a missing profile.
type Attributes interface {
	FetchUserAttributes(ctx context.Context) (map[string]string, error)
}

type Option func(*Manager)

func WithAttributes(a Attributes) Option {
	return func(m *Manager) { m.attrs = a }
}

type Manager struct {
	api    API
	users  authz.Provider
	attrs  Attributes
	logger zerolog.Logger
	loads  request.Sequence

	mu       sync.Mutex
	profile  *Profile
	revision uint64
}

func NewManager(api API, users authz.Provider, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		users:  users,
		logger: log.With().Str("component", "profile").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load fetches the profile, creating it on first sign-in when the backend
// has none.
func (m *Manager) Load(ctx context.Context) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		return err
	}
	logger := m.logger.With().Str("user_sub", user.Sub).Logger()

	token := m.loads.Next()
	record, err := m.api.GetUser(ctx, user.Sub)
	if errors.Is(err, apiclient.ErrNotFound) {
		logger.Info().Msg("No profile yet; creating one")
		record, err = m.create(ctx, user)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load profile")
		return fmt.Errorf("load profile: %w", err)
	}
	if m.loads.Stale(token, "profile") {
		return nil
	}
	m.set(record)
	return nil
}

func (m *Manager) create(ctx context.Context, user *authz.User) (*apiclient.User, error) {
	email, username := user.Email, ""
	if m.attrs != nil {
		attrs, err := m.attrs.FetchUserAttributes(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Could not read identity attributes; using token claims")
		} else {
			if v := attrs["email"]; v != "" {
				email = v
			}
			username = firstNonEmpty(attrs["preferred_username"], attrs["name"])
		}
	}
	if username == "" {
		username = user.DisplayName()
	}
	return m.api.CreateUser(ctx, apiclient.NewUser{
		CognitoSub: user.Sub,
		Email:      email,
		Username:   username,
	})
}

// UpdatePreferences applies prefs locally, then PATCHes them. A rejected
// update restores the previous profile and returns the error; an accepted
// one is followed by a reload.
func (m *Manager) UpdatePreferences(ctx context.Context, prefs apiclient.Preferences) error {
	m.mu.Lock()
	if m.profile == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	previous := *m.profile
	m.profile.Preferences = prefs
	m.revision++
	rev := m.revision
	sub := previous.Sub
	m.mu.Unlock()

	// A load started before this edit must not overwrite it.
	m.loads.Invalidate()

	if _, err := m.api.UpdateUser(ctx, sub, map[string]any{"preferences": prefs}); err != nil {
		m.logger.Warn().Err(err).Str("user_sub", sub).Msg("Preference update rejected; rolling back")
		m.mu.Lock()
		if m.revision == rev {
			m.profile = &previous
			m.revision++
		}
		m.mu.Unlock()
		return fmt.Errorf("update preferences: %w", err)
	}

	if err := m.Load(ctx); err != nil {
		m.logger.Warn().Err(err).Str("user_sub", sub).Msg("Preferences saved but reload failed")
	}
	return nil
}

// UpdateUsername changes the display name shown with reviews and stories.
func (m *Manager) UpdateUsername(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	m.mu.Lock()
	if m.profile == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	sub := m.profile.Sub
	m.mu.Unlock()

	record, err := m.api.UpdateUser(ctx, sub, map[string]any{"username": username})
	if err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	m.loads.Invalidate()
	m.set(record)
	return nil
}

// Delete removes the backend profile and forgets the local copy.
func (m *Manager) Delete(ctx context.Context) error {
	user, err := authz.RequireUser(ctx, m.users)
	if err != nil {
		return err
	}
	if err := m.api.DeleteUser(ctx, user.Sub); err != nil {
		m.logger.Error().Err(err).Str("user_sub", user.Sub).Msg("Failed to delete profile")
		return fmt.Errorf("delete profile: %w", err)
	}
	m.loads.Invalidate()
	m.mu.Lock()
	m.profile = nil
	m.revision++
	m.mu.Unlock()
	m.logger.Info().Str("user_sub", user.Sub).Msg("Profile deleted")
	return nil
}

func (m *Manager) Profile() (Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return Profile{}, false
	}
	return *m.profile, true
}

func (m *Manager) set(record *apiclient.User) {
	p := fromAPI(record)
	m.mu.Lock()
	m.profile = &p
	m.revision++
	m.mu.Unlock()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
