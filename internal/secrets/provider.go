// Package secrets resolves the three Secret shapes the reconciliation
// pipeline reads: SSH private keys, notification webhook URLs, and
// docker-config registry credentials (C1).
package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Error kinds surfaced by this package, matching spec.md §7's C1 row.
var (
	ErrSecretMissing      = errors.New("secrets: secret not found")
	ErrSecretFieldMissing = errors.New("secrets: required field missing from secret data")
	ErrDecode             = errors.New("secrets: failed to decode secret field")
	ErrAuthNotFound       = errors.New("secrets: auth not found for registry")
)

const (
	keySSHPrivateKey       = "ssh-privatekey"
	keyWebhookURL          = "webhook-url"
	keyDockerConfigJSON    = ".dockerconfigjson"
	keyGitHubAppPrivateKey = "private-key"
)

// Provider is the narrow capability interface the orchestrator (C7) depends
// on, per spec.md §9's "four capabilities" design note. Production code
// uses K8sProvider; tests inject an in-memory fake.
type Provider interface {
	GetSSHKey(ctx context.Context, name, namespace string) (string, error)
	GetNotificationEndpoint(ctx context.Context, name, namespace string) (string, error)
	GetRegistryAuth(ctx context.Context, secretName, namespace, registryURL string) (string, error)
	GetGitHubAppPrivateKey(ctx context.Context, name, namespace string) (string, error)
}

// K8sProvider reads Secrets directly through a controller-runtime client,
// never through the cached object reader — secrets are re-read every
// reconciliation per spec.md §3's "no caching" rule.
type K8sProvider struct {
	Client client.Client
}

var _ Provider = (*K8sProvider)(nil)

// NewK8sProvider builds a K8sProvider over an existing controller-runtime client.
func NewK8sProvider(c client.Client) *K8sProvider {
	return &K8sProvider{Client: c}
}

// GetSSHKey reads and UTF-8 decodes the ssh-privatekey field.
func (p *K8sProvider) GetSSHKey(ctx context.Context, name, namespace string) (string, error) {
	secret, err := p.fetch(ctx, name, namespace)
	if err != nil {
		return "", err
	}
	raw, ok := secret.Data[keySSHPrivateKey]
	if !ok {
		return "", fmt.Errorf("%w: field %q in secret %s/%s (recreate with --from-file=%s=/path)",
			ErrSecretFieldMissing, keySSHPrivateKey, namespace, name, keySSHPrivateKey)
	}
	return string(raw), nil
}

// GetGitHubAppPrivateKey reads and UTF-8 decodes the private-key field of a
// GitHub App's PEM-encoded private key secret.
func (p *K8sProvider) GetGitHubAppPrivateKey(ctx context.Context, name, namespace string) (string, error) {
	secret, err := p.fetch(ctx, name, namespace)
	if err != nil {
		return "", err
	}
	raw, ok := secret.Data[keyGitHubAppPrivateKey]
	if !ok {
		return "", fmt.Errorf("%w: field %q in secret %s/%s", ErrSecretFieldMissing, keyGitHubAppPrivateKey, namespace, name)
	}
	return string(raw), nil
}

// GetNotificationEndpoint reads the webhook-url field. An empty name means
// "no notifications configured" and short-circuits before any API call,
// never failing.
func (p *K8sProvider) GetNotificationEndpoint(ctx context.Context, name, namespace string) (string, error) {
	if name == "" {
		return "", nil
	}
	secret, err := p.fetch(ctx, name, namespace)
	if err != nil {
		return "", err
	}
	raw, ok := secret.Data[keyWebhookURL]
	if !ok {
		return "", fmt.Errorf("%w: field %q in secret %s/%s", ErrSecretFieldMissing, keyWebhookURL, namespace, name)
	}
	return string(raw), nil
}

// dockerConfigJSON mirrors the on-disk .dockerconfigjson shape:
// {"auths":{"<registry-url>":{"auth":"<base64 user:pass>"}}}.
type dockerConfigJSON struct {
	Auths map[string]struct {
		Auth string `json:"auth"`
	} `json:"auths"`
}

// GetRegistryAuth reads .dockerconfigjson, parses it, and looks up
// auths[registryURL].auth, returning it prefixed as an HTTP Basic header
// value ("Basic <b64>") ready to attach to a registry request.
func (p *K8sProvider) GetRegistryAuth(ctx context.Context, secretName, namespace, registryURL string) (string, error) {
	secret, err := p.fetch(ctx, secretName, namespace)
	if err != nil {
		return "", err
	}
	raw, ok := secret.Data[keyDockerConfigJSON]
	if !ok {
		return "", fmt.Errorf("%w: field %q in secret %s/%s", ErrSecretFieldMissing, keyDockerConfigJSON, namespace, secretName)
	}

	var cfg dockerConfigJSON
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	entry, ok := cfg.Auths[registryURL]
	if !ok || entry.Auth == "" {
		return "", fmt.Errorf("%w %s", ErrAuthNotFound, registryURL)
	}
	// Validate it actually decodes as base64 user:pass, matching the
	// original's decode-on-read path, even though we pass the encoded
	// form straight through as the Basic header value.
	if _, err := base64.StdEncoding.DecodeString(entry.Auth); err != nil {
		return "", fmt.Errorf("%w: auth field is not valid base64: %v", ErrDecode, err)
	}
	return "Basic " + entry.Auth, nil
}

func (p *K8sProvider) fetch(ctx context.Context, name, namespace string) (*corev1.Secret, error) {
	secret := &corev1.Secret{}
	key := types.NamespacedName{Name: name, Namespace: namespace}
	if err := p.Client.Get(ctx, key, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSecretMissing, namespace, name)
		}
		return nil, fmt.Errorf("getting secret %s/%s: %w", namespace, name, err)
	}
	return secret, nil
}
