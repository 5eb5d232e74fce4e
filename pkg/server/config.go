// Package server exposes the GPU session reservation API over HTTP.
package server

import (
	"fmt"
	"time"
)

// Config holds the configuration for the reservation server
type Config struct {
	Namespace      string
	Port           string
	IdleTimeout    string
	ReapInterval   string
	DefaultProfile string // Optional SessionProfile applied when a request names none
	LedgerDSN      string // Optional MySQL DSN for the reservation ledger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if _, err := time.ParseDuration(c.IdleTimeout); err != nil {
		return fmt.Errorf("invalid idle timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.ReapInterval); err != nil {
		return fmt.Errorf("invalid reap interval: %w", err)
	}
	return nil
}

// GetIdleTimeout parses and returns the idle timeout duration
func (c *Config) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	return d
}

// GetReapInterval parses and returns the reap interval duration
func (c *Config) GetReapInterval() time.Duration {
	d, _ := time.ParseDuration(c.ReapInterval)
	return d
}
