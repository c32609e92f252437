package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minParallelTransfers = 1
	maxParallelTransfers = 64
	minMaxRetries        = 0
	maxMaxRetries        = 20
	minConnectTimeout    = 1 * time.Second
	minDataTimeout       = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.ServerURL == "" {
		errs = append(errs, errors.New("auth.server_url: must not be empty"))
	}

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ParallelTransfers < minParallelTransfers || t.ParallelTransfers > maxParallelTransfers {
		errs = append(errs, fmt.Errorf("transfers.parallel_transfers: must be between %d and %d, got %d",
			minParallelTransfers, maxParallelTransfers, t.ParallelTransfers))
	}

	if t.MaxRetries < minMaxRetries || t.MaxRetries > maxMaxRetries {
		errs = append(errs, fmt.Errorf("transfers.max_retries: must be between %d and %d, got %d",
			minMaxRetries, maxMaxRetries, t.MaxRetries))
	}

	if _, err := time.ParseDuration(t.BackoffBase); err != nil {
		errs = append(errs, fmt.Errorf("transfers.backoff_base: invalid duration %q: %w", t.BackoffBase, err))
	}

	if _, err := time.ParseDuration(t.BackoffMax); err != nil {
		errs = append(errs, fmt.Errorf("transfers.backoff_max: invalid duration %q: %w", t.BackoffMax, err))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
