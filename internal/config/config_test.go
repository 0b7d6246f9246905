package config

import (
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.MetricsAddr != defaultMetricsAddr {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, defaultMetricsAddr)
	}
	if cfg.DefaultFromName != defaultFromName {
		t.Errorf("DefaultFromName = %q, want %q", cfg.DefaultFromName, defaultFromName)
	}
	if cfg.DefaultFromEmail != defaultFromEmail {
		t.Errorf("DefaultFromEmail = %q, want %q", cfg.DefaultFromEmail, defaultFromEmail)
	}
	if cfg.HTTPClientTimeout != defaultHTTPClientTimeout {
		t.Errorf("HTTPClientTimeout = %v, want %v", cfg.HTTPClientTimeout, defaultHTTPClientTimeout)
	}
	if cfg.DispatchConcurrency != defaultDispatchWorkers {
		t.Errorf("DispatchConcurrency = %d, want %d", cfg.DispatchConcurrency, defaultDispatchWorkers)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DEFAULT_FROM_NAME", "Custom Bot")
	t.Setenv("DEFAULT_FROM_EMAIL", "bot@example.com")
	t.Setenv("HTTP_CLIENT_TIMEOUT_SECONDS", "5")
	t.Setenv("DISPATCH_CONCURRENCY", "3")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.HTTPClientTimeout != 5*time.Second {
		t.Errorf("HTTPClientTimeout = %v, want 5s", cfg.HTTPClientTimeout)
	}
	if cfg.DispatchConcurrency != 3 {
		t.Errorf("DispatchConcurrency = %d, want 3", cfg.DispatchConcurrency)
	}

	identity := cfg.CommitIdentity()
	if identity.Name != "Custom Bot" || identity.Email != "bot@example.com" {
		t.Errorf("CommitIdentity = %+v, want Custom Bot/bot@example.com", identity)
	}
}

func TestLoadConfig_InvalidHTTPTimeout(t *testing.T) {
	t.Setenv("HTTP_CLIENT_TIMEOUT_SECONDS", "not-a-number")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for invalid HTTP_CLIENT_TIMEOUT_SECONDS")
	}
}

func TestLoadConfig_InvalidDispatchConcurrency(t *testing.T) {
	t.Setenv("DISPATCH_CONCURRENCY", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-positive DISPATCH_CONCURRENCY")
	}
}
