package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// ImageChecker is the capability interface the reconciliation orchestrator
// depends on (spec.md §9's trait surface), satisfied by *Checker.
type ImageChecker interface {
	CheckImage(ctx context.Context, image, tag string) (bool, error)
}

// ImageCheckerFactory builds an ImageChecker bound to one registry and one
// optional "Basic ..." auth token, mirroring RegistryChecker::new's
// per-reconciliation construction.
type ImageCheckerFactory interface {
	New(ctx context.Context, registryURL, authToken string) (ImageChecker, error)
}

// tokenResponse is the subset of a registry token endpoint's response body
// this prober needs.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// Metrics is the narrow observability capability this package reports probe
// durations through, satisfied by *internal/metrics.Metrics, matching
// spec.md §3's domain-stack row for registry probe counters (C4).
type Metrics interface {
	ObserveRegistryProbe(result string, duration time.Duration)
}

// Checker probes a single registry for image tag existence, handling the
// Bearer challenge/response flow transparently.
type Checker struct {
	httpClient  *http.Client
	registryURL string
	authToken   string
	username    string
	password    string
	metrics     Metrics
}

var _ ImageChecker = (*Checker)(nil)

// Factory constructs Checkers sharing one underlying http.Client.
type Factory struct {
	HTTPClient *http.Client
	// DefaultRegistryURL is used when New is called with an empty
	// registryURL, wired from config.Config.DefaultRegistryURL.
	DefaultRegistryURL string
	// Metrics is optional; nil disables instrumentation (used by tests).
	Metrics Metrics
}

var _ ImageCheckerFactory = (*Factory)(nil)

// NewFactory builds a Factory with a default-timeout client, grounded on the
// teacher's NewClient (explicit Timeout, no implicit http.DefaultClient use).
func NewFactory() *Factory {
	return &Factory{HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// New builds a Checker for registryURL, decoding username/password out of a
// "Basic <base64(user:pass)>" authToken when present — matching
// registry.rs's RegistryChecker::new credential extraction.
func (f *Factory) New(ctx context.Context, registryURL, authToken string) (ImageChecker, error) {
	client := f.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if registryURL == "" {
		registryURL = f.DefaultRegistryURL
	}

	username, password := decodeBasicCredentials(authToken)
	return &Checker{
		httpClient:  client,
		registryURL: registryURL,
		authToken:   authToken,
		username:    username,
		password:    password,
		metrics:     f.Metrics,
	}, nil
}

func decodeBasicCredentials(authToken string) (string, string) {
	const prefix = "Basic "
	if !strings.HasPrefix(authToken, prefix) {
		return "", ""
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authToken, prefix))
	if err != nil {
		return "", ""
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// normalizeRegistryURL rewrites a trailing "/v1/" to "/v2", trims a trailing
// "/v2/" to "/v2", and appends /v2 to anything else, so the result never ends
// in a slash — matching registry.rs's check_image URL normalization.
func normalizeRegistryURL(raw string) string {
	switch {
	case strings.HasSuffix(raw, "/v1/"):
		return strings.TrimSuffix(raw, "/v1/") + "/v2"
	case strings.HasSuffix(raw, "/v2/"):
		return strings.TrimSuffix(raw, "/v2/") + "/v2"
	default:
		return strings.TrimRight(raw, "/") + "/v2"
	}
}

// CheckImage HEADs the registry's manifest endpoint for image:tag. A 401
// carrying a Bearer WWW-Authenticate challenge triggers one token exchange
// and retry; any other outcome maps the final HTTP status to a bool.
func (c *Checker) CheckImage(ctx context.Context, image, tag string) (found bool, err error) {
	start := time.Now()
	defer func() {
		if c.metrics == nil {
			return
		}
		result := "found"
		switch {
		case err != nil:
			result = "error"
		case !found:
			result = "not_found"
		}
		c.metrics.ObserveRegistryProbe(result, time.Since(start))
	}()

	logger := log.Log.WithName("registry").WithValues("image", image, "tag", tag)

	manifestURL := fmt.Sprintf("%s/%s/manifests/%s", normalizeRegistryURL(c.registryURL), image, tag)
	logger.Info("checking image", "url", manifestURL)

	status, authHeader, err := c.head(ctx, manifestURL, c.authToken)
	if err != nil {
		return false, err
	}
	if status != http.StatusUnauthorized {
		return isSuccess(status), nil
	}

	challenge, ok := FromHeader(authHeader)
	if !ok {
		return isSuccess(status), nil
	}

	token, err := c.bearerToken(ctx, challenge)
	if err != nil {
		return false, err
	}
	status, _, err = c.head(ctx, manifestURL, "Bearer "+token)
	if err != nil {
		return false, err
	}
	logger.Info("registry checker status", "status", status)
	return isSuccess(status), nil
}

func (c *Checker) head(ctx context.Context, targetURL, authorization string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("probing registry: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, resp.Header.Get("WWW-Authenticate"), nil
}

func (c *Checker) bearerToken(ctx context.Context, challenge AuthChallenge) (string, error) {
	reqURL, err := url.Parse(challenge.Realm)
	if err != nil {
		return "", fmt.Errorf("parsing auth realm %q: %w", challenge.Realm, err)
	}
	q := reqURL.Query()
	q.Set("service", challenge.Service)
	q.Set("scope", challenge.Scope)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting bearer token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to get bearer token: HTTP %d", resp.StatusCode)
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding bearer token response: %w", err)
	}
	if parsed.AccessToken != "" {
		return parsed.AccessToken, nil
	}
	return parsed.Token, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
