package authz

import (
	"context"
	"errors"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// User is the signed-in identity as seen by the client managers.
type User struct {
	Sub   string
	Email string
	Name  string
}

// DisplayName returns the name, falling back to the local part of the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// Provider resolves the current user. Implementations return
// ErrUnauthenticated when nobody is signed in.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
}

// Static is a Provider backed by a fixed user; a nil *User means signed out.
type Static struct {
	User *User
}

func (s Static) CurrentUser(context.Context) (*User, error) {
	if s.User == nil || s.User.Sub == "" {
		return nil, ErrUnauthenticated
	}
	u := *s.User
	return &u, nil
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the User stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*User)
	if !ok {
		return nil
	}

	return user
}

// RequireUser resolves the current user, preferring one already carried by ctx.
func RequireUser(ctx context.Context, provider Provider) (*User, error) {
	if user := UserFromContext(ctx); user != nil && user.Sub != "" {
		return user, nil
	}
	if provider == nil {
		return nil, ErrUnauthenticated
	}
	user, err := provider.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if user == nil || user.Sub == "" {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
