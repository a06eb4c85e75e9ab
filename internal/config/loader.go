package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPLEX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPLEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PERPLEX_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyfilePath, "PERPLEX_WALLET_KEYFILE_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PERPLEX_WALLET_KEY_PASSWORD")

	// ── Endpoints ──
	setStr(&cfg.API.URL, "PERPLEX_API_URL")
	setStr(&cfg.Gateway.URL, "PERPLEX_GATEWAY_URL")
	setStr(&cfg.Messenger.MuURL, "PERPLEX_MESSENGER_MU_URL")
	setStr(&cfg.Messenger.CuURL, "PERPLEX_MESSENGER_CU_URL")

	// ── Poll ──
	setInt(&cfg.Poll.MaxRetries, "PERPLEX_POLL_MAX_RETRIES")
	setDuration(&cfg.Poll.RetryAfter, "PERPLEX_POLL_RETRY_AFTER")

	// ── Cache ──
	setDuration(&cfg.Cache.ReservesTTL, "PERPLEX_CACHE_RESERVES_TTL")
	setDuration(&cfg.Cache.SummaryTTL, "PERPLEX_CACHE_SUMMARY_TTL")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPLEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPLEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPLEX_REDIS_DB")
	setStr(&cfg.Redis.Namespace, "PERPLEX_REDIS_NAMESPACE")
	setDuration(&cfg.Redis.SnapshotTTL, "PERPLEX_REDIS_SNAPSHOT_TTL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PERPLEX_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPLEX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPLEX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPLEX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPLEX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPLEX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPLEX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PERPLEX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPLEX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PERPLEX_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PERPLEX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPLEX_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPLEX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PERPLEX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPLEX_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "PERPLEX_S3_FORCE_PATH_STYLE")

	// ── Feed ──
	setStr(&cfg.Feed.URL, "PERPLEX_FEED_URL")
	setBool(&cfg.Feed.Enabled, "PERPLEX_FEED_ENABLED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PERPLEX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
