// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the vault engine CLI.
package config

// Config is the top-level configuration structure. Unlike a multi-drive
// sync daemon's config, there is exactly one of these per session: mounts
// and repos themselves are discovered from the server (Mounts/Repos
// components), not declared here. This file only holds the settings
// needed to reach that server and drive the Transfers Engine.
type Config struct {
	Auth      AuthConfig      `toml:"auth"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// AuthConfig controls the OAuth2 login flow and the remote host targeted.
type AuthConfig struct {
	ServerURL      string `toml:"server_url"`
	ClientID       string `toml:"client_id"`
	TokenStorePath string `toml:"token_store_path"`
}

// TransfersConfig controls the Transfers Engine's concurrency and retry
// behavior.
type TransfersConfig struct {
	ParallelTransfers int    `toml:"parallel_transfers"`
	MaxRetries        int    `toml:"max_retries"`
	BackoffBase       string `toml:"backoff_base"`
	BackoffMax        string `toml:"backoff_max"`
	PartialCacheDir   string `toml:"partial_cache_dir"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP/WebSocket client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	EventStreamURL string `toml:"event_stream_url"`
	UserAgent      string `toml:"user_agent"`
}
