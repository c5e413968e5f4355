package authz

import (
	"context"
	"errors"
	"testing"
)

type failingProvider struct{ err error }

func (p failingProvider) CurrentUser(context.Context) (*User, error) { return nil, p.err }

func TestRequireUser(t *testing.T) {
	backendErr := errors.New("session store offline")
	signedIn := &User{Sub: "sub-1", Email: "ana@example.com"}

	tests := []struct {
		name     string
		ctx      context.Context
		provider Provider
		wantSub  string
		wantErr  error
	}{
		{"nil provider", context.Background(), nil, "", ErrUnauthenticated},
		{"signed out", context.Background(), Static{}, "", ErrUnauthenticated},
		{"signed in", context.Background(), Static{User: signedIn}, "sub-1", nil},
		{"context wins", ContextWithUser(context.Background(), &User{Sub: "ctx-sub"}), Static{User: signedIn}, "ctx-sub", nil},
		{"provider error", context.Background(), failingProvider{err: backendErr}, "", backendErr},
		{"wrapped unauthenticated", context.Background(), failingProvider{err: errors.Join(ErrUnauthenticated)}, "", ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := RequireUser(tt.ctx, tt.provider)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RequireUser() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if user.Sub != tt.wantSub {
				t.Errorf("RequireUser() sub = %q, want %q", user.Sub, tt.wantSub)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		user *User
		want string
	}{
		{nil, ""},
		{&User{Name: "Ana"}, "Ana"},
		{&User{Email: "ben@example.com"}, "ben"},
		{&User{}, "User"},
	}
	for _, tt := range tests {
		if got := tt.user.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}

func TestUserFromContextNil(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	if got := UserFromContext(nil); got != nil {
		t.Fatalf("UserFromContext(nil) = %+v, want nil", got)
	}
}
