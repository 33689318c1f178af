// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package config provides layered configuration loading for FleetMan.
//
// Configuration precedence (highest wins):
//  1. Environment variables
//  2. YAML config file (CONFIG_PATH or default search paths)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the FleetMan notification service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Notify   NotifyConfig   `koanf:"notify"`
	Store    StoreConfig    `koanf:"store"`
	NATS     NATSConfig     `koanf:"nats"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the listen address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// ReadHeaderTimeout bounds header parsing for new connections.
	// The stream endpoint holds connections open indefinitely, so the
	// server carries no global read/write timeout.
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Environment is "development" or "production". Production enforces
	// stricter validation (JWT secret length, CORS origins).
	Environment string `koanf:"environment"`
}

// SecurityConfig holds authentication and transport-security settings.
type SecurityConfig struct {
	// JWTSecret signs and verifies access tokens (HS256). Required.
	JWTSecret string `koanf:"jwt_secret"`

	// SessionTimeout is the validity window for issued tokens.
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// RateLimitReqs and RateLimitWindow configure the default API rate limit.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	// TrustedProxies lists proxy addresses whose forwarding headers are honored.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// NotifyConfig holds live-push settings.
type NotifyConfig struct {
	// KeepAliveInterval is the period between SSE keep-alive comment frames.
	KeepAliveInterval time.Duration `koanf:"keep_alive_interval"`

	// WriteTimeout bounds a single frame write to a subscriber before the
	// subscriber is considered dead and dropped.
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// StoreConfig holds notification persistence settings.
type StoreConfig struct {
	// Path is the Badger database directory. Empty means in-memory.
	Path string `koanf:"path"`

	// RetentionDays is how long notification records are kept.
	RetentionDays int `koanf:"retention_days"`

	// GCInterval is the period between Badger value-log GC passes.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// NATSConfig holds the optional cross-instance relay settings.
type NATSConfig struct {
	// Enabled turns on the NATS relay. Single-instance deployments
	// leave this off and lose nothing.
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server connection URL.
	URL string `koanf:"url"`

	// SubjectPrefix is the prefix for relay subjects; events for a user
	// are published on "<prefix>.<userID>".
	SubjectPrefix string `koanf:"subject_prefix"`

	// ReconnectWait is the delay between client reconnect attempts.
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// APIConfig holds REST API behavior settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks the configuration for invalid or unsafe values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if c.IsProduction() && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters in production")
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("security.session_timeout must be positive")
	}

	if c.Notify.KeepAliveInterval <= 0 {
		return fmt.Errorf("notify.keep_alive_interval must be positive")
	}
	if c.Notify.WriteTimeout <= 0 {
		return fmt.Errorf("notify.write_timeout must be positive")
	}

	if c.Store.RetentionDays <= 0 {
		return fmt.Errorf("store.retention_days must be positive")
	}
	if c.Store.GCInterval <= 0 {
		return fmt.Errorf("store.gc_interval must be positive")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	if c.NATS.Enabled && c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix is required when nats.enabled is true")
	}

	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be positive")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size must be >= api.default_page_size")
	}

	if c.IsProduction() {
		for _, origin := range c.Security.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("security.cors_origins must not contain %q in production", "*")
			}
		}
	}

	return nil
}
