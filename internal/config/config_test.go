package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Server.WriteTimeout = %v, want default 30s", cfg.Server.WriteTimeout)
	}
	if cfg.Identity.Audience != "vitrine" {
		t.Errorf("Identity.Audience = %q", cfg.Identity.Audience)
	}
	if len(cfg.Identity.Algorithms) != 2 {
		t.Errorf("Identity.Algorithms = %v, want 2 entries", cfg.Identity.Algorithms)
	}
	if cfg.Cache.Driver != "redis" || cfg.Cache.Prefix != "admin:" || cfg.Cache.DefaultTTL != 2*time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Cache.MaxEntries != 10000 {
		t.Errorf("Cache.MaxEntries = %d, want default 10000", cfg.Cache.MaxEntries)
	}
	if cfg.Metrics.NoCacheParam != "fresh" {
		t.Errorf("Metrics.NoCacheParam = %q, want fresh", cfg.Metrics.NoCacheParam)
	}
	if cfg.Preferences.Driver != "postgres" || cfg.Preferences.MaxOpenConns != 10 {
		t.Errorf("Preferences = %+v", cfg.Preferences)
	}
	if cfg.Database.QueryTimeout != 5*time.Second {
		t.Errorf("Database.QueryTimeout = %v, want 5s", cfg.Database.QueryTimeout)
	}
	if cfg.Capability.Cache.TTL != time.Minute {
		t.Errorf("Capability.Cache.TTL = %v, want 1m", cfg.Capability.Cache.TTL)
	}
	if len(cfg.Definitions.Directories) != 2 {
		t.Errorf("Definitions.Directories = %v", cfg.Definitions.Directories)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_missing_identity(t *testing.T) {
	_, err := Load("testdata/missing_identity.yaml")
	if err == nil {
		t.Fatal("Load() with missing identity should return error")
	}
}

func TestLoad_guestsWithoutIdentity(t *testing.T) {
	cfg, err := Load("testdata/guests.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Identity.AllowGuests {
		t.Error("Identity.AllowGuests = false, want true")
	}
}

func TestLoad_malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [port"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Capability.Cache.TTL != 5*time.Minute {
		t.Errorf("default Capability.Cache.TTL = %v, want 5m", cfg.Capability.Cache.TTL)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if cfg.Cache.Driver != "memory" || cfg.Preferences.Driver != "memory" {
		t.Errorf("default drivers = %q/%q, want memory", cfg.Cache.Driver, cfg.Preferences.Driver)
	}
	if !cfg.Metrics.CacheEnabled || cfg.Metrics.NoCacheParam != "no_cache" {
		t.Errorf("default Metrics = %+v", cfg.Metrics)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VITRINE_SERVER_PORT", "3000")
	t.Setenv("VITRINE_IDENTITY_ISSUER", "https://env-issuer.com")
	t.Setenv("VITRINE_IDENTITY_JWKS_URL", "https://env-issuer.com/.well-known/jwks.json")
	t.Setenv("VITRINE_IDENTITY_AUDIENCE", "env-audience")
	t.Setenv("VITRINE_CACHE_DRIVER", "memory")
	t.Setenv("VITRINE_DEFINITIONS_DIRECTORIES", "/a,/b,/c")
	t.Setenv("VITRINE_OBSERVABILITY_LOG_LEVEL", "error")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000 (env override)", cfg.Server.Port)
	}
	if cfg.Identity.Issuer != "https://env-issuer.com" {
		t.Errorf("Identity.Issuer = %q, want env override", cfg.Identity.Issuer)
	}
	if cfg.Identity.Audience != "env-audience" {
		t.Errorf("Identity.Audience = %q, want env override", cfg.Identity.Audience)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q, want env override", cfg.Cache.Driver)
	}
	if len(cfg.Definitions.Directories) != 3 {
		t.Errorf("Definitions.Directories = %v, want 3 entries", cfg.Definitions.Directories)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Identity.Issuer = "https://auth.example.com"
		cfg.Identity.JWKSURL = "https://auth.example.com/.well-known/jwks.json"
		cfg.Identity.Audience = "vitrine"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"cache driver", func(c *Config) { c.Cache.Driver = "memcached" }, "cache.driver"},
		{"redis addr", func(c *Config) { c.Cache.Driver = "redis" }, "cache.addr_env"},
		{"preferences driver", func(c *Config) { c.Preferences.Driver = "sqlite" }, "preferences.driver"},
		{"postgres dsn", func(c *Config) { c.Preferences.Driver = "postgres" }, "preferences.dsn_env"},
		{"database dsn", func(c *Config) { c.Database.DSNEnv = "" }, "database.dsn_env"},
		{"no cache param", func(c *Config) { c.Metrics.NoCacheParam = "" }, "metrics.no_cache_param"},
		{"definitions", func(c *Config) { c.Definitions.Directories = nil }, "definitions.directories"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_env_priority_over_file(t *testing.T) {
	// File sets port 9090, env sets 5555.
	t.Setenv("VITRINE_SERVER_PORT", "5555")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 5555 {
		t.Errorf("Server.Port = %d, want 5555 (env override beats file)", cfg.Server.Port)
	}
}
