// Package app wires configuration into the clients and stores a CLI
// process needs.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/cache"
	"github.com/codr1/cafespot/internal/cognito"
	"github.com/codr1/cafespot/internal/config"
	"github.com/codr1/cafespot/internal/db"
	"github.com/codr1/cafespot/internal/logging"
	"github.com/codr1/cafespot/internal/scheduler"
)

type Options struct {
	ConfigPath string
	// Username and Password sign in through the user pool when one is
	// configured.
	Username string
	Password string
	// UserSub acts as the signed-in user when no user pool is configured,
	// for use against the stub backend.
	UserSub string
}

type App struct {
	Config    *config.Config
	API       *apiclient.Client
	Users     authz.Provider
	Identity  *cognito.CognitoClient
	Store     *db.DB
	Scheduler *scheduler.Service
	Registry  *prometheus.Registry

	closers []func() error
}

// New loads configuration from opts.ConfigPath and builds the app.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.App.Environment, cfg.Logging.Level)
	return FromConfig(ctx, cfg, opts)
}

// FromConfig builds the app from an already loaded configuration. On error
// everything opened so far is closed.
func FromConfig(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clientCfg := apiclient.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout}
	if cfg.Features.EnableMetrics {
		metrics, err := apiclient.NewMetrics(a.Registry)
		if err != nil {
			return nil, fmt.Errorf("register api metrics: %w", err)
		}
		clientCfg.Metrics = metrics
	}

	if cfg.Cache.Enabled {
		rc, err := cache.Connect(ctx, cfg.Cache)
		if err != nil {
			// The cache only saves requests; run without it.
			log.Warn().Err(err).Msg("Response cache unavailable")
		} else {
			a.closers = append(a.closers, rc.Close)
			clientCfg.Cache = rc
			clientCfg.CacheTTL = cfg.Cache.TTL
		}
	}

	if cfg.Identity.Enabled() {
		identity, err := cognito.Configure(ctx, cfg.Identity)
		if err != nil {
			return nil, fmt.Errorf("configure identity: %w", err)
		}
		a.Identity = identity
		a.closers = append(a.closers, func() error { identity.Close(); return nil })
		a.Users = identity
		clientCfg.Token = identity.IDToken

		if opts.Username != "" {
			if _, err := identity.SignIn(ctx, opts.Username, opts.Password); err != nil {
				return nil, fmt.Errorf("sign in: %w", err)
			}
		}
	} else {
		var user *authz.User
		if opts.UserSub != "" {
			user = &authz.User{Sub: opts.UserSub}
		}
		a.Users = authz.Static{User: user}
	}

	a.API, err = apiclient.New(clientCfg)
	if err != nil {
		return nil, err
	}

	a.Store, err = db.NewFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.closers = append(a.closers, a.Store.Close)

	a.Scheduler, err = scheduler.New()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	a.closers = append(a.closers, a.Scheduler.Stop)

	return a, nil
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
