// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the pipeline settings from a YAML file and the
// environment.
//
// Example (YAML):
//
//	geocoding:
//	  country: ca
//	  fallback_token: pk.xxx
//	pacing:
//	  row_interval: 1s
//	  retry_backoff: 2s
//	storage:
//	  db_path: db/mapies.duckdb
//	  redis_url: redis://localhost:6379/0
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/massimahiou/mapies-sub001/geocoding"
	"github.com/massimahiou/mapies-sub001/ingest"
	"github.com/massimahiou/mapies-sub001/store"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Geocoding Geocoding `yaml:"geocoding"`
	Pacing    Pacing    `yaml:"pacing"`
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
}

// Geocoding configures the providers. Credentials are never hardcoded.
type Geocoding struct {
	PrimaryURL    string        `yaml:"primary_url"`
	FallbackURL   string        `yaml:"fallback_url"`
	FallbackToken string        `yaml:"fallback_token"`
	Country       string        `yaml:"country"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Pacing configures how fast providers are called.
type Pacing struct {
	RowInterval    time.Duration `yaml:"row_interval"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
	VariationDelay time.Duration `yaml:"variation_delay"`
	MaxVariations  int           `yaml:"max_variations"`
}

type Storage struct {
	DBPath   string `yaml:"db_path"`
	RedisURL string `yaml:"redis_url"`
	// DuplicateRadius is in meters, 0 disables duplicate detection.
	DuplicateRadius float64 `yaml:"duplicate_radius_m"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Geocoding: Geocoding{
			PrimaryURL:  geocoding.DefaultNominatimURL,
			FallbackURL: geocoding.DefaultMapboxURL,
			Country:     "ca",
			UserAgent:   geocoding.DefaultUserAgent,
			Timeout:     30 * time.Second,
		},
		Pacing: Pacing{
			RowInterval:    geocoding.DefaultPacerOptions.RowInterval,
			RetryBackoff:   geocoding.DefaultPacerOptions.RetryBackoff,
			MaxAttempts:    ingest.DefaultMaxAttempts,
			VariationDelay: geocoding.DefaultPacerOptions.VariationDelay,
			MaxVariations:  geocoding.DefaultMaxVariations,
		},
		Storage: Storage{
			DBPath:          store.DefaultPath,
			DuplicateRadius: store.DefaultDuplicateRadius,
		},
		Server: Server{
			Listen: "localhost:8080",
		},
	}
}

// Load returns the defaults overridden by the YAML file at path (optional)
// and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}

		if err := cfg.decode(b); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) decode(b []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	vars := []struct {
		name string
		dst  *string
	}{
		{"MAPIES_DB_PATH", &c.Storage.DBPath},
		{"MAPIES_LISTEN", &c.Server.Listen},
		{"MAPIES_REDIS_URL", &c.Storage.RedisURL},
		{"MAPIES_COUNTRY", &c.Geocoding.Country},
		{"NOMINATIM_URL", &c.Geocoding.PrimaryURL},
		{"MAPBOX_URL", &c.Geocoding.FallbackURL},
		{"MAPBOX_ACCESS_TOKEN", &c.Geocoding.FallbackToken},
	}

	for _, v := range vars {
		if val, ok := lookup(v.name); ok && strings.TrimSpace(val) != "" {
			*v.dst = strings.TrimSpace(val)
		}
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"geocoding.timeout", c.Geocoding.Timeout},
		{"pacing.row_interval", c.Pacing.RowInterval},
		{"pacing.retry_backoff", c.Pacing.RetryBackoff},
		{"pacing.variation_delay", c.Pacing.VariationDelay},
	}

	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative (got: %s)", d.name, d.value))
		}
	}

	if c.Pacing.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("pacing.max_attempts must be at least 1 (got: %d)", c.Pacing.MaxAttempts))
	}

	if c.Pacing.MaxVariations < 1 {
		errs = append(errs, fmt.Errorf("pacing.max_variations must be at least 1 (got: %d)", c.Pacing.MaxVariations))
	}

	if c.Storage.DuplicateRadius < 0 {
		errs = append(errs, fmt.Errorf("storage.duplicate_radius_m must not be negative (got: %v)", c.Storage.DuplicateRadius))
	}

	if strings.TrimSpace(c.Geocoding.PrimaryURL) == "" {
		errs = append(errs, errors.New("geocoding.primary_url is required"))
	}

	return errors.Join(errs...)
}

// PacerOptions returns the delays for geocoding.NewPacer.
func (c Config) PacerOptions() geocoding.PacerOptions {
	return geocoding.PacerOptions{
		RowInterval:    c.Pacing.RowInterval,
		RetryBackoff:   c.Pacing.RetryBackoff,
		VariationDelay: c.Pacing.VariationDelay,
	}
}
