package cognito

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/config"
	"github.com/codr1/cafespot/internal/ratelimit"
)

// ErrCognitoThrottled marks errors returned when Cognito throttles requests.
var ErrCognitoThrottled = errors.New("cognito throttling")

// ErrCognitoNotAuthorized marks errors returned when Cognito rejects credentials.
var ErrCognitoNotAuthorized = errors.New("cognito not authorized")

// ErrCognitoExpiredCode marks errors returned when Cognito sees expired codes.
var ErrCognitoExpiredCode = errors.New("cognito code expired")

// ErrCognitoCodeMismatch marks errors returned when Cognito sees mismatched codes.
var ErrCognitoCodeMismatch = errors.New("cognito code mismatch")

// ErrCognitoUserExists marks errors returned when trying to create an existing user.
var ErrCognitoUserExists = errors.New("cognito user already exists")

// ErrCognitoUserNotConfirmed marks sign-ins by users who never confirmed sign-up.
var ErrCognitoUserNotConfirmed = errors.New("cognito user not confirmed")

// ErrChallengeRequired is returned when the pool answers sign-in with a
// challenge this client does not handle (e.g. NEW_PASSWORD_REQUIRED).
var ErrChallengeRequired = errors.New("cognito challenge required")

// ErrRateLimited is returned when the client-side limiter blocks a request.
var ErrRateLimited = errors.New("too many attempts")

// API is the subset of the Cognito identity provider client used here.
type API interface {
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	SignUp(ctx context.Context, in *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, in *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cognitoidentityprovider.ResendConfirmationCodeInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ResendConfirmationCodeOutput, error)
	GlobalSignOut(ctx context.Context, in *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
	GetUser(ctx context.Context, in *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

type CognitoClient struct {
	api      API
	poolID   string
	clientID string
	limiter  *ratelimit.Limiter
	now      func() time.Time

	mu      sync.RWMutex
	session *Session
}

type Option func(*CognitoClient)

// WithAPI replaces the SDK client, typically with a fake in tests.
func WithAPI(api API) Option {
	return func(c *CognitoClient) { c.api = api }
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *CognitoClient) { c.limiter = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *CognitoClient) { c.now = now }
}

// NewClient creates a Cognito client for the configured user pool.
// The region is taken from cfg.Region or extracted from the pool ID
// (format: "region_poolid").
func NewClient(ctx context.Context, cfg config.IdentityConfig, opts ...Option) (*CognitoClient, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("cognito client id is required")
	}

	c := &CognitoClient{
		poolID:   cfg.UserPoolID,
		clientID: cfg.ClientID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.DefaultConfig())
	}

	if c.api == nil {
		region := cfg.Region
		if region == "" {
			var err error
			region, err = regionFromPoolID(cfg.UserPoolID)
			if err != nil {
				return nil, err
			}
		}

		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		c.api = cognitoidentityprovider.NewFromConfig(awsCfg)
	}

	return c, nil
}

// Close releases the client's rate limiter.
func (c *CognitoClient) Close() {
	c.limiter.Close()
}

// SignIn authenticates with USER_PASSWORD_AUTH and stores the session.
func (c *CognitoClient) SignIn(ctx context.Context, username, password string) (*authz.User, error) {
	username = normalizeUsername(username)
	if result := c.limiter.CheckSignIn(username); !result.Allowed {
		ratelimit.LogLimitExceeded("sign_in", username, result.Reason)
		return nil, fmt.Errorf("%w: retry in %s", ErrRateLimited, result.RetryAfter.Round(time.Second))
	}

	out, err := c.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(c.clientID),
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	})
	if err != nil {
		mapped := mapCognitoError(err)
		if errors.Is(mapped, ErrCognitoNotAuthorized) {
			if c.limiter.RecordSignInFailure(username) {
				ratelimit.LogLimitExceeded("sign_in", username, "lockout")
			}
		}
		return nil, mapped
	}
	if out.ChallengeName != "" {
		return nil, fmt.Errorf("%w: %s", ErrChallengeRequired, out.ChallengeName)
	}

	session, err := sessionFromResult(out.AuthenticationResult, "", c.now())
	if err != nil {
		return nil, err
	}
	c.limiter.RecordSignInSuccess(username)
	c.setSession(session)

	log.Info().
		Str("user_sub", session.User.Sub).
		Str("identifier", ratelimit.SanitizeIdentifier(username)).
		Msg("Signed in")
	user := session.User
	return &user, nil
}

type SignUpResult struct {
	UserSub   string
	Confirmed bool
}

// SignUp registers a user. Phone usernames also set the phone_number
// attribute so the pool can deliver the confirmation code by SMS.
func (c *CognitoClient) SignUp(ctx context.Context, username, password string, attributes map[string]string) (*SignUpResult, error) {
	username = normalizeUsername(username)
	attrs := make([]types.AttributeType, 0, len(attributes)+1)
	for _, name := range sortedAttributeNames(attributes) {
		attrs = append(attrs, types.AttributeType{Name: aws.String(name), Value: aws.String(attributes[name])})
	}
	if IsPhoneNumber(username) {
		if _, ok := attributes["phone_number"]; !ok {
			attrs = append(attrs, types.AttributeType{Name: aws.String("phone_number"), Value: aws.String(username)})
		}
	}

	out, err := c.api.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId:       aws.String(c.clientID),
		Username:       aws.String(username),
		Password:       aws.String(password),
		UserAttributes: attrs,
	})
	if err != nil {
		return nil, mapCognitoError(err)
	}
	c.limiter.RecordResend(username)

	return &SignUpResult{UserSub: aws.ToString(out.UserSub), Confirmed: out.UserConfirmed}, nil
}

// ConfirmSignUp confirms a registration with the code sent to the user.
func (c *CognitoClient) ConfirmSignUp(ctx context.Context, username, code string) error {
	_, err := c.api.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(c.clientID),
		Username:         aws.String(normalizeUsername(username)),
		ConfirmationCode: aws.String(strings.TrimSpace(code)),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	return nil
}

// ResendSignUpCode sends a new confirmation code, subject to the resend cooldown.
func (c *CognitoClient) ResendSignUpCode(ctx context.Context, username string) error {
	username = normalizeUsername(username)
	if result := c.limiter.CheckResend(username); !result.Allowed {
		ratelimit.LogLimitExceeded("resend_code", username, result.Reason)
		return fmt.Errorf("%w: retry in %s", ErrRateLimited, result.RetryAfter.Round(time.Second))
	}

	_, err := c.api.ResendConfirmationCode(ctx, &cognitoidentityprovider.ResendConfirmationCodeInput{
		ClientId: aws.String(c.clientID),
		Username: aws.String(username),
	})
	if err != nil {
		return mapCognitoError(err)
	}
	c.limiter.RecordResend(username)
	return nil
}

// SignOut revokes the session's tokens. The local session is cleared even
// when revocation fails.
func (c *CognitoClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	if session == nil || session.AccessToken == "" {
		return nil
	}
	_, err := c.api.GlobalSignOut(ctx, &cognitoidentityprovider.GlobalSignOutInput{
		AccessToken: aws.String(session.AccessToken),
	})
	if err != nil {
		mapped := mapCognitoError(err)
		if errors.Is(mapped, ErrCognitoNotAuthorized) {
			// Token already revoked or expired
			return nil
		}
		log.Warn().Err(err).Str("user_sub", session.User.Sub).Msg("Global sign-out failed")
		return mapped
	}
	return nil
}

// CurrentUser returns the signed-in user from the stored ID token.
func (c *CognitoClient) CurrentUser(ctx context.Context) (*authz.User, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, authz.ErrUnauthenticated
	}
	user := c.session.User
	return &user, nil
}

// FetchUserAttributes returns the user's attributes from the pool.
func (c *CognitoClient) FetchUserAttributes(ctx context.Context) (map[string]string, error) {
	session, err := c.FetchAuthSession(ctx)
	if err != nil {
		return nil, err
	}
	out, err := c.api.GetUser(ctx, &cognitoidentityprovider.GetUserInput{
		AccessToken: aws.String(session.AccessToken),
	})
	if err != nil {
		return nil, mapCognitoError(err)
	}

	attrs := make(map[string]string, len(out.UserAttributes))
	for _, a := range out.UserAttributes {
		attrs[aws.ToString(a.Name)] = aws.ToString(a.Value)
	}
	return attrs, nil
}

// FetchAuthSession returns the current session, refreshing its tokens with
// REFRESH_TOKEN_AUTH when they are about to expire.
func (c *CognitoClient) FetchAuthSession(ctx context.Context) (*Session, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()

	if session == nil {
		return nil, authz.ErrUnauthenticated
	}
	if !session.Expired(c.now()) {
		s := *session
		return &s, nil
	}
	if session.RefreshToken == "" {
		c.setSession(nil)
		return nil, authz.ErrUnauthenticated
	}

	out, err := c.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(c.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": session.RefreshToken,
		},
	})
	if err != nil {
		mapped := mapCognitoError(err)
		if errors.Is(mapped, ErrCognitoNotAuthorized) {
			c.setSession(nil)
			return nil, fmt.Errorf("%w: refresh token rejected", authz.ErrUnauthenticated)
		}
		return nil, mapped
	}

	refreshed, err := sessionFromResult(out.AuthenticationResult, session.RefreshToken, c.now())
	if err != nil {
		return nil, err
	}
	c.setSession(refreshed)
	log.Debug().Str("user_sub", refreshed.User.Sub).Msg("Refreshed session tokens")
	s := *refreshed
	return &s, nil
}

// IDToken returns a valid ID token for API calls, or "" when signed out.
func (c *CognitoClient) IDToken(ctx context.Context) (string, error) {
	session, err := c.FetchAuthSession(ctx)
	if errors.Is(err, authz.ErrUnauthenticated) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return session.IDToken, nil
}

func (c *CognitoClient) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func mapCognitoError(err error) error {
	var throttled *types.TooManyRequestsException
	if errors.As(err, &throttled) {
		return fmt.Errorf("%w: %v", ErrCognitoThrottled, err)
	}
	var notAuthorized *types.NotAuthorizedException
	if errors.As(err, &notAuthorized) {
		return fmt.Errorf("%w: %v", ErrCognitoNotAuthorized, err)
	}
	var notConfirmed *types.UserNotConfirmedException
	if errors.As(err, &notConfirmed) {
		return fmt.Errorf("%w: %v", ErrCognitoUserNotConfirmed, err)
	}
	var expired *types.ExpiredCodeException
	if errors.As(err, &expired) {
		return fmt.Errorf("%w: %v", ErrCognitoExpiredCode, err)
	}
	var mismatch *types.CodeMismatchException
	if errors.As(err, &mismatch) {
		return fmt.Errorf("%w: %v", ErrCognitoCodeMismatch, err)
	}
	var userExists *types.UsernameExistsException
	if errors.As(err, &userExists) {
		return fmt.Errorf("%w: %v", ErrCognitoUserExists, err)
	}
	return err
}

func regionFromPoolID(poolID string) (string, error) {
	parts := strings.SplitN(poolID, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid cognito pool id: %q", poolID)
	}
	return parts[0], nil
}

func sortedAttributeNames(attrs map[string]string) []string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
