// cmd/stubapi/server.go
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/codr1/cafespot/internal/stubapi"
)

// Seed is the optional fixture file loaded at startup.
type Seed struct {
	Cafes []map[string]any `yaml:"cafes"`
	Users []map[string]any `yaml:"users"`
}

func newServer(config *Config) (*http.Server, error) {
	var opts []stubapi.Option
	if config.Latency > 0 {
		opts = append(opts, stubapi.WithLatency(config.Latency))
	}
	backend := stubapi.New(opts...)

	if config.SeedFile != "" {
		seed, err := loadSeed(config.SeedFile)
		if err != nil {
			return nil, err
		}
		applySeed(backend, seed)
		log.Info().
			Str("seed_file", config.SeedFile).
			Int("cafes", len(seed.Cafes)).
			Int("users", len(seed.Users)).
			Msg("Stub backend seeded")
	}

	return &http.Server{
		Addr:         ":" + config.Port,
		Handler:      backend.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

func loadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("error parsing seed file: %w", err)
	}
	return &seed, nil
}

func applySeed(backend *stubapi.Server, seed *Seed) {
	for _, cafe := range seed.Cafes {
		backend.PutCafe(cafe)
	}
	for _, user := range seed.Users {
		backend.PutUser(user)
	}
}
