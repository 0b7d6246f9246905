// Package registry is the C4 Registry Prober: it checks whether an image
// tag exists in an OCI/Docker registry, handling the Bearer-token
// challenge/response dance registries use to gate manifest reads.
//
// Grounded on the original's src/registry/registry.rs for exact semantics
// (AuthChallenge header parsing, v1->v2 URL normalization, the
// HEAD-then-challenge-then-retry flow) and on the teacher's
// internal/ignition/client.go for the Go HTTP-client-wrapper shape
// (BaseURL/HTTPClient struct, context-aware requests, explicit timeouts).
package registry

import "strings"

// AuthChallenge is a parsed WWW-Authenticate: Bearer header.
type AuthChallenge struct {
	Realm   string
	Service string
	Scope   string
}

// FromHeader parses a "Bearer realm=\"...\",service=\"...\",scope=\"...\""
// challenge header. It returns false if the header isn't a Bearer challenge
// or is missing any of the three fields, matching registry.rs's
// all-or-nothing from_header.
func FromHeader(header string) (AuthChallenge, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return AuthChallenge{}, false
	}
	rest := strings.TrimPrefix(header, prefix)

	var realm, service, scope string
	var haveRealm, haveService, haveScope bool

	for _, pair := range strings.Split(rest, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := kv[0]
		value := strings.Trim(kv[1], `"`)
		switch key {
		case "realm":
			realm, haveRealm = value, true
		case "service":
			service, haveService = value, true
		case "scope":
			scope, haveScope = value, true
		}
	}

	if !haveRealm || !haveService || !haveScope {
		return AuthChallenge{}, false
	}
	return AuthChallenge{Realm: realm, Service: service, Scope: scope}, true
}
