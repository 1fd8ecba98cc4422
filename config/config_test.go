package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Auth.Mode != AuthModeOAuth {
		t.Errorf("Auth.Mode = %q, want %q", cfg.Auth.Mode, AuthModeOAuth)
	}
	if cfg.Auth.Session.FreshnessWindow != 24*time.Hour {
		t.Errorf("FreshnessWindow = %v, want 24h", cfg.Auth.Session.FreshnessWindow)
	}
	if cfg.Auth.Session.ProfileFallbackMaxAge != 7*24*time.Hour {
		t.Errorf("ProfileFallbackMaxAge = %v, want 168h", cfg.Auth.Session.ProfileFallbackMaxAge)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.HTTP.DeviceCookieName != "identity_device" {
		t.Errorf("DeviceCookieName = %q, want identity_device", cfg.HTTP.DeviceCookieName)
	}
	if !cfg.Observability.Metrics.Enabled {
		t.Error("metrics should default to enabled")
	}
	if cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", cfg.Observability.Metrics.Path)
	}
}

func TestAuthModeUnmarshalText(t *testing.T) {
	tests := []struct {
		input       string
		expected    AuthMode
		expectError bool
	}{
		{"oauth", AuthModeOAuth, false},
		{"OAUTH", AuthModeOAuth, false},
		{"mock", AuthModeMock, false},
		{"Mock", AuthModeMock, false},
		{"ldap", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var mode AuthMode
			err := mode.UnmarshalText([]byte(tt.input))
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if mode != tt.expected {
				t.Errorf("mode = %q, want %q", mode, tt.expected)
			}
		})
	}
}

func TestAuthModeFromEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "mock")
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Auth.Mode != AuthModeMock {
		t.Errorf("Auth.Mode = %q, want mock", cfg.Auth.Mode)
	}
}

func TestSessionConfigSanitize(t *testing.T) {
	s := SessionConfig{
		FreshnessWindow:       -time.Hour,
		ProfileQueryTimeout:   0,
		ProfileFallbackMaxAge: -1,
	}
	s.Sanitize()
	if s.FreshnessWindow != 24*time.Hour {
		t.Errorf("FreshnessWindow = %v, want 24h", s.FreshnessWindow)
	}
	if s.ProfileQueryTimeout != 8*time.Second {
		t.Errorf("ProfileQueryTimeout = %v, want 8s", s.ProfileQueryTimeout)
	}
	if s.ProfileFallbackMaxAge != 7*24*time.Hour {
		t.Errorf("ProfileFallbackMaxAge = %v, want 168h", s.ProfileFallbackMaxAge)
	}
}

func TestHTTPConfigSanitize(t *testing.T) {
	h := HTTPConfig{}
	h.Sanitize()
	if h.DeviceCookieName != "identity_device" {
		t.Errorf("DeviceCookieName = %q, want identity_device", h.DeviceCookieName)
	}
	if h.ShutdownGrace != 10*time.Second {
		t.Errorf("ShutdownGrace = %v, want 10s", h.ShutdownGrace)
	}
}

func TestObservabilityConfigSanitize(t *testing.T) {
	c := ObservabilityConfig{LogLevel: " WARN "}
	c.Metrics.Path = "metrics"
	c.Sanitize()
	if c.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", c.LogLevel)
	}
	if c.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want /metrics", c.Metrics.Path)
	}

	c = ObservabilityConfig{LogLevel: "verbose"}
	c.Sanitize()
	if c.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info fallback", c.LogLevel)
	}
}

func TestDBConfigDSN(t *testing.T) {
	d := DBConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "identity", SSLMode: "require"}
	got := d.DSN()
	want := "host=db port=5433 user=u password=p dbname=identity sslmode=require"
	if got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
