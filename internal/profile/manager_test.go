package profile

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/testutil"
)

var signedIn = authz.Static{User: &authz.User{Sub: "u1", Email: "ana@example.com"}}

type staticAttributes map[string]string

func (a staticAttributes) FetchUserAttributes(context.Context) (map[string]string, error) {
	return a, nil
}

func boolPtr(b bool) *bool { return &b }

func TestLoadCreatesMissingProfile(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	m := NewManager(client, signedIn, WithAttributes(staticAttributes{
		"email":              "ana@example.com",
		"preferred_username": "ana.c",
	}))

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, ok := m.Profile()
	if !ok || p.Sub != "u1" || p.Username != "ana.c" || p.Email != "ana@example.com" {
		t.Errorf("Profile() = %+v, %v", p, ok)
	}
	if got := len(stub.RequestsTo(http.MethodPost, "/users/")); got != 1 {
		t.Errorf("POST /users/ count = %d, want 1", got)
	}

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got := len(stub.RequestsTo(http.MethodPost, "/users/")); got != 1 {
		t.Errorf("POST /users/ count = %d after reload, want 1", got)
	}
}

func TestLoadFallsBackToDisplayName(t *testing.T) {
	_, client := testutil.NewStubBackend(t)
	m := NewManager(client, signedIn)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p, _ := m.Profile(); p.Username != "ana" {
		t.Errorf("Username = %q, want email local part", p.Username)
	}
}

func TestUpdatePreferences(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	stub.PutUser(map[string]any{"cognito_sub": "u1", "username": "ana", "preferences": map[string]any{"work_friendly": false}})

	m := NewManager(client, signedIn)
	if err := m.UpdatePreferences(ctx, apiclient.Preferences{}); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("UpdatePreferences() before load error = %v, want ErrNotLoaded", err)
	}
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := apiclient.Preferences{WorkFriendly: boolPtr(true), Amenities: []string{"wifi"}}
	if err := m.UpdatePreferences(ctx, want); err != nil {
		t.Fatalf("UpdatePreferences() error = %v", err)
	}
	p, _ := m.Profile()
	if p.Preferences.WorkFriendly == nil || !*p.Preferences.WorkFriendly || len(p.Preferences.Amenities) != 1 {
		t.Errorf("Preferences = %+v", p.Preferences)
	}

	stub.FailNext(http.MethodPatch, "/users/{sub}", http.StatusBadRequest, "Invalid preference")
	err := m.UpdatePreferences(ctx, apiclient.Preferences{WorkFriendly: boolPtr(false)})
	if got := apiclient.ErrorMessage(err); got != "Invalid preference" {
		t.Errorf("ErrorMessage() = %q", got)
	}
	p, _ = m.Profile()
	if p.Preferences.WorkFriendly == nil || !*p.Preferences.WorkFriendly {
		t.Errorf("Preferences after rejected update = %+v, want the previous ones", p.Preferences)
	}
}

func TestDelete(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	stub.PutUser(map[string]any{"cognito_sub": "u1"})

	m := NewManager(client, signedIn)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := m.Delete(ctx); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := m.Profile(); ok {
		t.Error("Profile() still present after Delete()")
	}
	if _, ok := stub.User("u1"); ok {
		t.Error("backend user still present after Delete()")
	}
}

func TestUpdateUsername(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	stub.PutUser(map[string]any{"cognito_sub": "u1", "username": "ana"})

	m := NewManager(client, signedIn)
	if err := m.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := m.UpdateUsername(ctx, "  "); err == nil {
		t.Error("UpdateUsername(blank) error = nil")
	}
	if err := m.UpdateUsername(ctx, "ana.c"); err != nil {
		t.Fatalf("UpdateUsername() error = %v", err)
	}
	if p, _ := m.Profile(); p.Username != "ana.c" {
		t.Errorf("Username = %q", p.Username)
	}
}
