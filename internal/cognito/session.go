package cognito

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/golang-jwt/jwt/v5"

	"github.com/codr1/cafespot/internal/authz"
)

// refreshSkew refreshes tokens slightly before they actually expire.
const refreshSkew = time.Minute

// Session holds the tokens of a signed-in user.
type Session struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         authz.User
}

// Expired reports whether the tokens should be refreshed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Add(refreshSkew).Before(s.ExpiresAt)
}

type idTokenClaims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	jwt.RegisteredClaims
}

// userFromIDToken reads identity claims from a Cognito ID token. The token
// came straight from the user pool over TLS, so the signature is not
// re-verified on the client.
func userFromIDToken(raw string) (authz.User, time.Time, error) {
	claims := &idTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return authz.User{}, time.Time{}, fmt.Errorf("parse id token: %w", err)
	}
	if claims.Subject == "" {
		return authz.User{}, time.Time{}, errors.New("id token has no sub claim")
	}

	name := claims.Name
	if name == "" {
		name = claims.PreferredUsername
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return authz.User{Sub: claims.Subject, Email: claims.Email, Name: name}, expires, nil
}

// sessionFromResult builds a session from an auth result. A refresh result
// carries no refresh token, so the previous one is kept.
func sessionFromResult(result *types.AuthenticationResultType, previousRefresh string, now time.Time) (*Session, error) {
	if result == nil || result.IdToken == nil {
		return nil, errors.New("authentication result has no id token")
	}
	user, expires, err := userFromIDToken(*result.IdToken)
	if err != nil {
		return nil, err
	}
	if expires.IsZero() && result.ExpiresIn > 0 {
		expires = now.Add(time.Duration(result.ExpiresIn) * time.Second)
	}

	s := &Session{
		IDToken:      *result.IdToken,
		RefreshToken: previousRefresh,
		ExpiresAt:    expires,
		User:         user,
	}
	if result.AccessToken != nil {
		s.AccessToken = *result.AccessToken
	}
	if result.RefreshToken != nil && *result.RefreshToken != "" {
		s.RefreshToken = *result.RefreshToken
	}
	return s, nil
}
