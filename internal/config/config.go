// Package config loads the boot-time configuration for the operator
// process from environment variables, following the teacher's
// internal/agent/config.go LoadConfig shape: a Config struct, a
// LoadConfig() (*Config, error) constructor, defaults applied inline,
// and small accessor methods for derived values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ia-eknorr/gitops-operator/internal/gitengine"
)

// Config holds every setting the process needs before it can start
// watching Deployments and serving reconciliation requests.
type Config struct {
	ListenAddr          string
	MetricsAddr         string
	Kubeconfig          string
	WatchNamespace      string
	DefaultFromName     string
	DefaultFromEmail    string
	DefaultRegistryURL  string
	HTTPClientTimeout   time.Duration
	DispatchConcurrency int64
	LogLevel            string
}

const (
	defaultListenAddr         = ":8080"
	defaultMetricsAddr        = ":8081"
	defaultFromName           = "GitOps Operator"
	defaultFromEmail          = "kainlite+gitops@gmail.com"
	defaultRegistryURLSetting = "https://registry-1.docker.io"
	defaultHTTPClientTimeout  = 10 * time.Second
	defaultDispatchWorkers    = 8
	defaultLogLevel           = "info"
)

// LoadConfig reads process configuration from environment variables,
// applying the same defaults-inline pattern as the teacher's agent config.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ListenAddr:         os.Getenv("LISTEN_ADDR"),
		MetricsAddr:        os.Getenv("METRICS_ADDR"),
		Kubeconfig:         os.Getenv("KUBECONFIG"),
		WatchNamespace:     os.Getenv("WATCH_NAMESPACE"),
		DefaultFromName:    os.Getenv("DEFAULT_FROM_NAME"),
		DefaultFromEmail:   os.Getenv("DEFAULT_FROM_EMAIL"),
		DefaultRegistryURL: os.Getenv("DEFAULT_REGISTRY_URL"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = defaultMetricsAddr
	}
	if cfg.DefaultFromName == "" {
		cfg.DefaultFromName = defaultFromName
	}
	if cfg.DefaultFromEmail == "" {
		cfg.DefaultFromEmail = defaultFromEmail
	}
	if cfg.DefaultRegistryURL == "" {
		cfg.DefaultRegistryURL = defaultRegistryURLSetting
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	cfg.HTTPClientTimeout = defaultHTTPClientTimeout
	if v := os.Getenv("HTTP_CLIENT_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parsing HTTP_CLIENT_TIMEOUT_SECONDS: %w", err)
		}
		cfg.HTTPClientTimeout = time.Duration(secs) * time.Second
	}

	cfg.DispatchConcurrency = defaultDispatchWorkers
	if v := os.Getenv("DISPATCH_CONCURRENCY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("parsing DISPATCH_CONCURRENCY: must be a positive integer, got %q", v)
		}
		cfg.DispatchConcurrency = n
	}

	return cfg, nil
}

// CommitIdentity builds the git commit identity used on every patch commit,
// letting DEFAULT_FROM_NAME / DEFAULT_FROM_EMAIL override the spec's fixed
// default per spec.md §3.
func (c *Config) CommitIdentity() gitengine.Signature {
	return gitengine.Signature{Name: c.DefaultFromName, Email: c.DefaultFromEmail}
}
