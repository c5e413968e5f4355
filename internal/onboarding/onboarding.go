// Package onboarding resolves an owner's cafe and registers new ones.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
)

const (
	MaxDescriptionLength = 300
	phoneRegion          = "US"
)

var (
	// ErrNoCafe means the owner has not registered a cafe yet. It is a
	// normal state that leads into onboarding, not a failure.
	ErrNoCafe             = errors.New("no cafe registered for this owner")
	ErrInvalidApplication = errors.New("invalid cafe application")
)

type API interface {
	GetCafeByOwner(ctx context.Context, userID string) (*apiclient.Cafe, error)
	CreateCafe(ctx context.Context, form apiclient.CafeForm) (*apiclient.Cafe, error)
	UpdateCafe(ctx context.Context, cafeID string, update apiclient.CafeUpdate) (*apiclient.Cafe, error)
}

// Resolution is where an owner lands after sign-in.
type Resolution struct {
	Cafe *apiclient.Cafe
	// NeedsOnboarding is set when there is no cafe or its onboarding was
	// never finished.
	NeedsOnboarding bool
}

type Service struct {
	api   API
	users authz.Provider
}

func NewService(api API, users authz.Provider) *Service {
	return &Service{api: api, users: users}
}

// ResolveOwnerCafe finds the signed-in owner's cafe. A missing cafe yields
// ErrNoCafe together with a resolution that needs onboarding.
func (s *Service) ResolveOwnerCafe(ctx context.Context) (Resolution, error) {
	user, err := authz.RequireUser(ctx, s.users)
	if err != nil {
		return Resolution{}, err
	}
	logger := log.Ctx(ctx).With().Str("component", "onboarding").Str("user_sub", user.Sub).Logger()

	cafe, err := s.api.GetCafeByOwner(ctx, user.Sub)
	if errors.Is(err, apiclient.ErrNotFound) {
		logger.Info().Msg("Owner has no cafe; onboarding required")
		return Resolution{NeedsOnboarding: true}, ErrNoCafe
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve owner cafe")
		return Resolution{}, fmt.Errorf("resolve owner cafe: %w", err)
	}
	return Resolution{Cafe: cafe, NeedsOnboarding: !cafe.OnboardingCompleted}, nil
}

// Application is the onboarding form.
type Application struct {
	Name         string
	Description  string
	Address      string
	City         string
	PhoneNumber  string
	WebsiteLink  string
	InstagramURL string
	Latitude     float64
	Longitude    float64
	TwoTables    int
	FourTables   int
	Amenities    []string
	CafePhotos   []apiclient.File
	MenuPhotos   []apiclient.File
}

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Validate returns every problem with the form, joined, each wrapping
// ErrInvalidApplication.
func (a Application) Validate() error {
	var problems []error
	add := func(field, reason string) {
		problems = append(problems, fmt.Errorf("%w: %w", ErrInvalidApplication, FieldError{Field: field, Reason: reason}))
	}

	if strings.TrimSpace(a.Name) == "" {
		add("name", "is required")
	}
	if strings.TrimSpace(a.Address) == "" {
		add("address", "is required")
	}
	if strings.TrimSpace(a.City) == "" {
		add("city", "is required")
	}
	if a.Latitude < -90 || a.Latitude > 90 {
		add("latitude", "must be between -90 and 90")
	}
	if a.Longitude < -180 || a.Longitude > 180 {
		add("longitude", "must be between -180 and 180")
	}
	if utf8.RuneCountInString(a.Description) > MaxDescriptionLength {
		add("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	if a.TwoTables < 0 {
		add("two_tables", "must not be negative")
	}
	if a.FourTables < 0 {
		add("four_tables", "must not be negative")
	}
	if a.PhoneNumber != "" {
		if _, err := normalizePhone(a.PhoneNumber); err != nil {
			add("phone_number", "is not a valid phone number")
		}
	}
	for field, raw := range map[string]string{"website_link": a.WebsiteLink, "instagram_url": a.InstagramURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(field, "must be an http(s) URL")
		}
	}
	return errors.Join(problems...)
}

func normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), phoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number %q", raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (a Application) form(ownerSub string) apiclient.CafeForm {
	fields := map[string]string{
		"cognito_sub": ownerSub,
		"name":        strings.TrimSpace(a.Name),
		"address":     strings.TrimSpace(a.Address),
		"city":        strings.TrimSpace(a.City),
		"latitude":    strconv.FormatFloat(a.Latitude, 'f', -1, 64),
		"longitude":   strconv.FormatFloat(a.Longitude, 'f', -1, 64),
		"two_tables":  strconv.Itoa(a.TwoTables),
		"four_tables": strconv.Itoa(a.FourTables),
	}
	optional := map[string]string{
		"description":   strings.TrimSpace(a.Description),
		"website_link":  a.WebsiteLink,
		"instagram_url": a.InstagramURL,
		"amenities":     strings.Join(a.Amenities, ","),
	}
	if phone, err := normalizePhone(a.PhoneNumber); err == nil {
		optional["phone_number"] = phone
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return apiclient.CafeForm{Fields: fields, CafePhotos: a.CafePhotos, MenuPhotos: a.MenuPhotos}
}

// Submit validates the form and registers the cafe for the signed-in owner.
func (s *Service) Submit(ctx context.Context, app Application) (*apiclient.Cafe, error) {
	user, err := authz.RequireUser(ctx, s.users)
	if err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}

	cafe, err := s.api.CreateCafe(ctx, app.form(user.Sub))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_sub", user.Sub).Msg("Cafe registration failed")
		return nil, fmt.Errorf("register cafe: %w", err)
	}
	log.Ctx(ctx).Info().Str("cafe_id", cafe.ID).Str("user_sub", user.Sub).Msg("Cafe registered")
	return cafe, nil
}

// Complete marks a cafe's onboarding as finished.
func (s *Service) Complete(ctx context.Context, cafeID string) error {
	done := true
	if _, err := s.api.UpdateCafe(ctx, cafeID, apiclient.CafeUpdate{OnboardingCompleted: &done}); err != nil {
		return fmt.Errorf("complete onboarding for cafe %s: %w", cafeID, err)
	}
	return nil
}
