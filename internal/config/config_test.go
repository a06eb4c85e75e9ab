package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
	if cfg.Poll.MaxRetries != 40 || cfg.Poll.RetryAfter.Duration != 500*time.Millisecond {
		t.Errorf("poll defaults = %d x %v", cfg.Poll.MaxRetries, cfg.Poll.RetryAfter.Duration)
	}
	if cfg.JournalEnabled() || cfg.MirrorEnabled() || cfg.ArchiveEnabled() {
		t.Error("optional integrations enabled by default")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "verbose"
	cfg.API.URL = ""
	cfg.Poll.MaxRetries = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "api: url", "max_retries"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidateOptionalSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"keyfile without password", func(c *Config) { c.Wallet.KeyfilePath = "wallet.json" }, "key_password"},
		{"redis without namespace", func(c *Config) { c.Redis.Addr = "localhost:6379"; c.Redis.Namespace = "" }, "namespace"},
		{"postgres bad port", func(c *Config) { c.Postgres.Host = "localhost"; c.Postgres.Port = 0 }, "port"},
		{"postgres pool bounds", func(c *Config) {
			c.Postgres.Host = "localhost"
			c.Postgres.PoolMinConns = 20
		}, "pool_min_conns"},
		{"s3 without region", func(c *Config) { c.S3.Bucket = "snapshots"; c.S3.Region = "" }, "region"},
		{"feed enabled without url", func(c *Config) { c.Feed.Enabled = true; c.Feed.URL = "" }, "feed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadTOML(t *testing.T) {
	content := `
log_level = "debug"

[wallet]
private_key = "deadbeef"

[poll]
max_retries = 10
retry_after = "250ms"

[cache]
reserves_ttl = "30s"

[postgres]
host = "db.internal"
database = "perplex"
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Wallet.PrivateKey != "deadbeef" {
		t.Errorf("parsed config = %+v", cfg)
	}
	if cfg.Poll.MaxRetries != 10 || cfg.Poll.RetryAfter.Duration != 250*time.Millisecond {
		t.Errorf("poll = %d x %v", cfg.Poll.MaxRetries, cfg.Poll.RetryAfter.Duration)
	}
	if cfg.Cache.ReservesTTL.Duration != 30*time.Second {
		t.Errorf("reserves ttl = %v", cfg.Cache.ReservesTTL.Duration)
	}
	// Values absent from the file keep their defaults.
	if cfg.API.URL != Defaults().API.URL || cfg.Cache.SummaryTTL.Duration != time.Minute {
		t.Errorf("defaults not preserved: %+v", cfg)
	}
	if !cfg.JournalEnabled() {
		t.Error("postgres host set but journal not enabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PERPLEX_API_URL", "https://staging.api.test/graphql")
	t.Setenv("PERPLEX_POLL_MAX_RETRIES", "7")
	t.Setenv("PERPLEX_CACHE_RESERVES_TTL", "5s")
	t.Setenv("PERPLEX_POSTGRES_RUN_MIGRATIONS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.URL != "https://staging.api.test/graphql" {
		t.Errorf("api url = %s", cfg.API.URL)
	}
	if cfg.Poll.MaxRetries != 7 {
		t.Errorf("max retries = %d", cfg.Poll.MaxRetries)
	}
	if cfg.Cache.ReservesTTL.Duration != 5*time.Second {
		t.Errorf("reserves ttl = %v", cfg.Cache.ReservesTTL.Duration)
	}
	if cfg.Postgres.RunMigrations {
		t.Error("run_migrations override ignored")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("missing explicit config path accepted")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var parsed duration
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if parsed.Duration != d.Duration {
		t.Errorf("round trip: %v != %v", parsed.Duration, d.Duration)
	}
	if err := parsed.UnmarshalText([]byte("soon")); err == nil {
		t.Error("bad duration accepted")
	}
}
