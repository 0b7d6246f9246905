package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckImage_DirectSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Fatalf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	factory := NewFactory()
	checker, err := factory.New(context.Background(), srv.URL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ok, err := checker.CheckImage(context.Background(), "lib/app", "abc123")
	if err != nil {
		t.Fatalf("CheckImage: %v", err)
	}
	if !ok {
		t.Fatalf("expected image to be found")
	}
}

func TestCheckImage_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	factory := NewFactory()
	checker, _ := factory.New(context.Background(), srv.URL, "")
	ok, err := checker.CheckImage(context.Background(), "lib/app", "missing-tag")
	if err != nil {
		t.Fatalf("CheckImage: %v", err)
	}
	if ok {
		t.Fatalf("expected image to be reported missing")
	}
}

func TestCheckImage_BearerChallengeThenRetry(t *testing.T) {
	var tokenServer *httptest.Server
	registryServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good-token" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("WWW-Authenticate",
			`Bearer realm="`+tokenServer.URL+`",service="registry",scope="repository:lib/app:pull"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer registryServer.Close()

	tokenServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"good-token"}`))
	}))
	defer tokenServer.Close()

	factory := NewFactory()
	checker, _ := factory.New(context.Background(), registryServer.URL, "")
	ok, err := checker.CheckImage(context.Background(), "lib/app", "abc123")
	if err != nil {
		t.Fatalf("CheckImage: %v", err)
	}
	if !ok {
		t.Fatalf("expected the retried request with the bearer token to succeed")
	}
}

func TestNormalizeRegistryURL(t *testing.T) {
	cases := map[string]string{
		"https://index.docker.io/v1/": "https://index.docker.io/v2",
		"https://registry.example.com/v2/": "https://registry.example.com/v2",
		"https://registry.example.com":      "https://registry.example.com/v2",
	}
	for in, want := range cases {
		if got := normalizeRegistryURL(in); got != want {
			t.Fatalf("normalizeRegistryURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeBasicCredentials(t *testing.T) {
	user, pass := decodeBasicCredentials("Basic dXNlcjpwYXNz") // user:pass
	if user != "user" || pass != "pass" {
		t.Fatalf("got user=%q pass=%q", user, pass)
	}
	user, pass = decodeBasicCredentials("")
	if user != "" || pass != "" {
		t.Fatalf("expected empty credentials for an empty token")
	}
}
