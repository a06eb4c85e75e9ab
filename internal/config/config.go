// Package config defines the top-level configuration for the perplex client
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PERPLEX_* environment
// variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	API       APIConfig       `toml:"api"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Messenger MessengerConfig `toml:"messenger"`
	Poll      PollConfig      `toml:"poll"`
	Cache     CacheConfig     `toml:"cache"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the signing credential. Either a raw hex private key or
// an encrypted keyfile path plus its password.
type WalletConfig struct {
	PrivateKey  string `toml:"private_key"`
	KeyfilePath string `toml:"keyfile_path"`
	KeyPassword string `toml:"key_password"`
}

// APIConfig holds the exchange metadata API endpoint.
type APIConfig struct {
	URL string `toml:"url"`
}

// GatewayConfig holds the ledger gateway/indexer endpoint.
type GatewayConfig struct {
	URL string `toml:"url"`
}

// MessengerConfig holds the message-submission and compute endpoints.
type MessengerConfig struct {
	MuURL string `toml:"mu_url"`
	CuURL string `toml:"cu_url"`
}

// PollConfig bounds the confirmation polls.
type PollConfig struct {
	MaxRetries int      `toml:"max_retries"`
	RetryAfter duration `toml:"retry_after"`
}

// CacheConfig holds the session cache TTLs.
type CacheConfig struct {
	ReservesTTL duration `toml:"reserves_ttl"`
	SummaryTTL  duration `toml:"summary_ttl"`
}

// RedisConfig holds the optional snapshot mirror parameters. An empty addr
// disables the mirror.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	Namespace   string   `toml:"namespace"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
}

// PostgresConfig holds the optional trade journal connection parameters. An
// empty DSN with an empty host disables the journal.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds the optional snapshot archive parameters. An empty bucket
// disables archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeedConfig holds the market data websocket parameters.
type FeedConfig struct {
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		API: APIConfig{
			URL: "https://api.perplex.finance/graphql",
		},
		Gateway: GatewayConfig{
			URL: "https://arweave-search.goldsky.com/graphql",
		},
		Messenger: MessengerConfig{
			MuURL: "https://mu.ao-testnet.xyz",
			CuURL: "https://cu.ao-testnet.xyz",
		},
		Poll: PollConfig{
			MaxRetries: 40,
			RetryAfter: duration{500 * time.Millisecond},
		},
		Cache: CacheConfig{
			ReservesTTL: duration{time.Minute},
			SummaryTTL:  duration{time.Minute},
		},
		Redis: RedisConfig{
			Addr:        "",
			DB:          0,
			Namespace:   "mainnet",
			SnapshotTTL: duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "",
			Port:          5432,
			Database:      "perplex",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "",
			ForcePathStyle: true,
		},
		Feed: FeedConfig{
			URL:     "wss://feed.perplex.finance/ws",
			Enabled: false,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.API.URL == "" {
		errs = append(errs, "api: url must not be empty")
	}
	if c.Gateway.URL == "" {
		errs = append(errs, "gateway: url must not be empty")
	}
	if c.Messenger.MuURL == "" {
		errs = append(errs, "messenger: mu_url must not be empty")
	}
	if c.Messenger.CuURL == "" {
		errs = append(errs, "messenger: cu_url must not be empty")
	}

	if c.Wallet.KeyfilePath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when keyfile_path is set")
	}

	if c.Poll.MaxRetries < 1 {
		errs = append(errs, "poll: max_retries must be >= 1")
	}
	if c.Poll.RetryAfter.Duration < 0 {
		errs = append(errs, "poll: retry_after must not be negative")
	}

	if c.Cache.ReservesTTL.Duration < 0 || c.Cache.SummaryTTL.Duration < 0 {
		errs = append(errs, "cache: ttls must not be negative")
	}

	if c.Redis.Addr != "" && c.Redis.Namespace == "" {
		errs = append(errs, "redis: namespace must not be empty when addr is set")
	}

	if c.Postgres.DSN != "" || c.Postgres.Host != "" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	if c.Feed.Enabled && c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// JournalEnabled reports whether a trade journal connection is configured.
func (c *Config) JournalEnabled() bool {
	return c.Postgres.DSN != "" || c.Postgres.Host != ""
}

// MirrorEnabled reports whether the Redis snapshot mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.Redis.Addr != ""
}

// ArchiveEnabled reports whether the S3 snapshot archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3.Bucket != ""
}
