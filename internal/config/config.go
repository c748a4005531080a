// Package config holds the programmatically constructed, validated
// configuration for an imsphone client (SPEC_FULL.md §4.L). No
// environment variables or files are read by the core, per spec.md §6.
package config

import (
	"fmt"

	"github.com/arzzra/imsphone/internal/account"
	"github.com/arzzra/imsphone/internal/imserrors"
	"github.com/arzzra/imsphone/internal/rtp"
)

// Config is the top-level programmatic configuration for one Client.
type Config struct {
	LocalAddress    string // "ip:port" the client binds to
	ServerEndpoint  string // "ip:port" of the IMS core / registrar
	Transport       string // "TCP" | "UDP"
	Account         *account.Account
	SupportedFormats []rtp.MediaFormat
}

// Validate checks non-empty addresses, a supported transport token, and at
// least one supported media format.
func (c *Config) Validate() error {
	if c.LocalAddress == "" {
		return fmt.Errorf("config: LocalAddress is required: %w", imserrors.ErrInvariantViolation)
	}
	if c.ServerEndpoint == "" {
		return fmt.Errorf("config: ServerEndpoint is required: %w", imserrors.ErrInvariantViolation)
	}
	if c.Transport != "TCP" && c.Transport != "UDP" {
		return fmt.Errorf("config: Transport must be TCP or UDP, got %q: %w", c.Transport, imserrors.ErrInvariantViolation)
	}
	if c.Account == nil {
		return fmt.Errorf("config: Account is required: %w", imserrors.ErrInvariantViolation)
	}
	if len(c.SupportedFormats) == 0 {
		return fmt.Errorf("config: at least one supported media format is required: %w", imserrors.ErrInvariantViolation)
	}
	return nil
}
