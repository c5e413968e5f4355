package cognito

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/config"
)

// ErrNotConfigured is returned by Instance before Configure has run.
var ErrNotConfigured = errors.New("cognito not configured")

var (
	configureOnce sync.Once
	defaultMu     sync.RWMutex
	defaultClient *CognitoClient
	defaultErr    error
)

// Configure builds the process-wide client. Only the first call has any
// effect; later calls return the outcome of the first.
func Configure(ctx context.Context, cfg config.IdentityConfig, opts ...Option) (*CognitoClient, error) {
	called := false
	configureOnce.Do(func() {
		called = true
		client, err := NewClient(ctx, cfg, opts...)
		defaultMu.Lock()
		defaultClient, defaultErr = client, err
		defaultMu.Unlock()
	})
	if !called {
		log.Debug().Msg("Cognito already configured; ignoring repeat Configure")
	}

	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient, defaultErr
}

// Instance returns the client built by Configure.
func Instance() (*CognitoClient, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultErr != nil {
		return nil, defaultErr
	}
	if defaultClient == nil {
		return nil, ErrNotConfigured
	}
	return defaultClient, nil
}
