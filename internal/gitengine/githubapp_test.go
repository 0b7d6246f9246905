package gitengine

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	gogithttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

func testGitHubAppPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return pem.EncodeToMemory(block)
}

func TestExchangeGitHubAppToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/installations/99/access_tokens" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got == "" || got[:7] != "Bearer " {
			t.Fatalf("expected a Bearer authorization header, got %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "ghs_abc123"})
	}))
	defer srv.Close()

	token, err := ExchangeGitHubAppToken(context.Background(), testGitHubAppPEM(t), "app-1", "99", srv.URL)
	if err != nil {
		t.Fatalf("ExchangeGitHubAppToken: %v", err)
	}
	if token.Token != "ghs_abc123" {
		t.Fatalf("unexpected token: %q", token.Token)
	}
}

func TestExchangeGitHubAppToken_NonCreatedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := ExchangeGitHubAppToken(context.Background(), testGitHubAppPEM(t), "app-1", "99", srv.URL); err == nil {
		t.Fatal("expected an error for a non-201 installation token response")
	}
}

func TestExchangeGitHubAppToken_InvalidPEM(t *testing.T) {
	if _, err := ExchangeGitHubAppToken(context.Background(), []byte("not a key"), "app-1", "99", "https://example.invalid"); err == nil {
		t.Fatal("expected an error for an invalid PEM key")
	}
}

func TestBuildGitHubAppAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "ghs_xyz"})
	}))
	defer srv.Close()

	auth, err := BuildGitHubAppAuth(context.Background(), testGitHubAppPEM(t), "app-1", "99", srv.URL)
	if err != nil {
		t.Fatalf("BuildGitHubAppAuth: %v", err)
	}
	basicAuth, ok := auth.(*gogithttp.BasicAuth)
	if !ok {
		t.Fatalf("expected *http.BasicAuth, got %T", auth)
	}
	if basicAuth.Username != "x-access-token" || basicAuth.Password != "ghs_xyz" {
		t.Fatalf("unexpected credentials: %+v", basicAuth)
	}
}
