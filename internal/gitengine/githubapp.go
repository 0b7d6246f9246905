package gitengine

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gogithttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/golang-jwt/jwt/v5"
)

// GitHubAppToken is the result of exchanging a GitHub App's private key for
// an installation access token.
type GitHubAppToken struct {
	Token     string
	ExpiresAt time.Time
}

// installationTokenResponse is the subset of GitHub's access-token response
// this enrichment needs.
type installationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExchangeGitHubAppToken mints a short-lived App JWT (RS256, iss=appID) and
// exchanges it for an installation access token, following GitHub's
// documented App-authentication flow. This is a domain-stack enrichment
// selectable per Entry via auth_type=github_app (see entry.Config.AuthType
// and Orchestrator.buildAuth): the Rust original only ever authenticates
// over SSH, and the teacher's own internal/git/auth.go selects this same
// credential source through a CRD field (GitAuthSpec.GitHubApp) rather than
// an annotation — the JWT-signing/token-exchange mechanics themselves are
// grounded on golang-jwt/jwt/v5's standard claims-signing usage, since
// neither the teacher nor the original has a body for this exchange (see
// DESIGN.md).
func ExchangeGitHubAppToken(ctx context.Context, pemBytes []byte, appID, installationID string, apiBaseURL string) (*GitHubAppToken, error) {
	if apiBaseURL == "" {
		apiBaseURL = "https://api.github.com"
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub App private key: %w", err)
	}

	appJWT, err := mintAppJWT(key, appID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/app/installations/%s/access_tokens", apiBaseURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building installation token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting installation token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading installation token response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("installation token request failed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed installationTokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding installation token response: %w", err)
	}
	return &GitHubAppToken{Token: parsed.Token, ExpiresAt: parsed.ExpiresAt}, nil
}

func mintAppJWT(key *rsa.PrivateKey, appID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    appID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing GitHub App JWT: %w", err)
	}
	return signed, nil
}

// GitHubAppAuth adapts a GitHubAppToken into a go-git HTTP BasicAuth
// credential, the transport GitHub expects installation tokens over.
func GitHubAppAuth(token *GitHubAppToken) transport.AuthMethod {
	return &gogithttp.BasicAuth{Username: "x-access-token", Password: token.Token}
}

// BuildGitHubAppAuth exchanges a GitHub App's PEM private key for an
// installation access token and returns it as a go-git AuthMethod — the
// single entry point the orchestrator calls for an auth_type=github_app
// Entry, mirroring how BuildSSHAuth is the entry point for the default
// auth_type=ssh path.
func BuildGitHubAppAuth(ctx context.Context, pemBytes []byte, appID, installationID, apiBaseURL string) (transport.AuthMethod, error) {
	token, err := ExchangeGitHubAppToken(ctx, pemBytes, appID, installationID, apiBaseURL)
	if err != nil {
		return nil, err
	}
	return GitHubAppAuth(token), nil
}
