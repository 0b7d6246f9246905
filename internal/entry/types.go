package entry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// State is the tagged-union reconciliation outcome for one Entry.
//
// It mirrors the original's four-variant enum: Queued carries no payload,
// the other three carry a human-readable message. JSON encoding matches
// spec.md exactly: "Queued" as a bare string, the rest as single-key
// objects ({"Success":"..."}) — Go has no sum types, so MarshalJSON/
// UnmarshalJSON hand-encode the variant tag.
type State struct {
	Kind    StateKind
	Message string
}

// StateKind enumerates the four State variants.
type StateKind int

const (
	StateQueued StateKind = iota
	StateProcessing
	StateSuccess
	StateFailure
)

func (k StateKind) String() string {
	switch k {
	case StateQueued:
		return "Queued"
	case StateProcessing:
		return "Processing"
	case StateSuccess:
		return "Success"
	case StateFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Queued is the initial state assigned to every freshly parsed Entry.
func Queued() State { return State{Kind: StateQueued} }

// Processing builds a Processing(msg) state.
func Processing(msg string) State { return State{Kind: StateProcessing, Message: msg} }

// Success builds a Success(msg) state.
func Success(msg string) State { return State{Kind: StateSuccess, Message: msg} }

// Failure builds a Failure(msg) state.
func Failure(msg string) State { return State{Kind: StateFailure, Message: msg} }

func (s State) MarshalJSON() ([]byte, error) {
	if s.Kind == StateQueued {
		return json.Marshal("Queued")
	}
	return json.Marshal(map[string]string{s.Kind.String(): s.Message})
}

func (s *State) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var tag string
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			return err
		}
		if tag != "Queued" {
			return fmt.Errorf("entry: unknown bare State tag %q", tag)
		}
		*s = Queued()
		return nil
	}

	var obj map[string]string
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	for k, v := range obj {
		switch k {
		case "Processing":
			*s = Processing(v)
		case "Success":
			*s = Success(v)
		case "Failure":
			*s = Failure(v)
		default:
			return fmt.Errorf("entry: unknown State variant %q", k)
		}
		return nil
	}
	return fmt.Errorf("entry: empty State object")
}

// Config is the set of gitops.operator.* annotation values resolved for one
// Entry, plus the reconciliation State it currently carries.
type Config struct {
	Enabled                         bool   `json:"enabled"`
	Namespace                       string `json:"namespace"`
	AppRepository                   string `json:"app_repository"`
	ManifestRepository              string `json:"manifest_repository"`
	ImageName                       string `json:"image_name"`
	DeploymentPath                  string `json:"deployment_path"`
	ObserveBranch                   string `json:"observe_branch"`
	TagType                         string `json:"tag_type"`
	SSHKeyName                      string `json:"ssh_key_name"`
	SSHKeyNamespace                 string `json:"ssh_key_namespace"`
	NotificationsSecretName         string `json:"notifications_secret_name,omitempty"`
	NotificationsSecretNamespace    string `json:"notifications_secret_namespace,omitempty"`
	RegistryURL                     string `json:"registry_url,omitempty"`
	RegistrySecretName              string `json:"registry_secret_name,omitempty"`
	RegistrySecretNamespace         string `json:"registry_secret_namespace,omitempty"`
	AuthType                        string `json:"auth_type"`
	GitHubAppID                     string `json:"github_app_id,omitempty"`
	GitHubAppInstallationID         string `json:"github_app_installation_id,omitempty"`
	GitHubAppPrivateKeySecretName       string `json:"github_app_private_key_secret_name,omitempty"`
	GitHubAppPrivateKeySecretNamespace  string `json:"github_app_private_key_secret_namespace,omitempty"`
	GitHubAppAPIBaseURL             string `json:"github_app_api_base_url,omitempty"`
	State                           State  `json:"state"`
}

// Entry is one opted-in workload snapshot, built from a single Deployment's
// metadata and first container. It is owned by the request handler that
// created it and discarded at the end of that reconciliation.
type Entry struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace"`
	Container   string            `json:"container"`
	Version     string            `json:"version"`
	Annotations map[string]string `json:"annotations"`
	Config      Config            `json:"config"`
}

// Image returns "{Container}:{Version}", or Container alone when Version is
// empty. An image parsed without a tag has Version "latest", so for it Image
// returns "{Container}:latest" rather than the original bare reference.
func (e *Entry) Image() string {
	if e.Version == "" {
		return e.Container
	}
	return e.Container + ":" + e.Version
}

// EffectiveRegistryURL returns Config.RegistryURL, defaulted per §3.
func (c Config) EffectiveRegistryURL() string {
	if c.RegistryURL != "" {
		return c.RegistryURL
	}
	return defaultRegistryURL
}

// EffectiveRegistrySecretName returns Config.RegistrySecretName, defaulted.
func (c Config) EffectiveRegistrySecretName() string {
	if c.RegistrySecretName != "" {
		return c.RegistrySecretName
	}
	return defaultRegistrySecretName
}

// EffectiveRegistrySecretNamespace returns Config.RegistrySecretNamespace, defaulted.
func (c Config) EffectiveRegistrySecretNamespace() string {
	if c.RegistrySecretNamespace != "" {
		return c.RegistrySecretNamespace
	}
	return defaultRegistrySecretNamespace
}

// EffectiveNotificationsSecretNamespace returns the configured namespace, defaulted.
func (c Config) EffectiveNotificationsSecretNamespace() string {
	if c.NotificationsSecretNamespace != "" {
		return c.NotificationsSecretNamespace
	}
	return defaultNotificationsSecretNamespace
}

// IsGitHubAppAuth reports whether this Entry authenticates git operations
// through a GitHub App installation token instead of the default SSH key.
func (c Config) IsGitHubAppAuth() bool {
	return c.AuthType == AuthTypeGitHubApp
}

// EffectiveGitHubAppAPIBaseURL returns Config.GitHubAppAPIBaseURL, defaulted
// to GitHub's public API.
func (c Config) EffectiveGitHubAppAPIBaseURL() string {
	if c.GitHubAppAPIBaseURL != "" {
		return c.GitHubAppAPIBaseURL
	}
	return defaultGitHubAppAPIBaseURL
}

// AppRepoPath is the persistent clone directory for the application repo (§3).
func (e *Entry) AppRepoPath() string {
	return fmt.Sprintf("/tmp/app-%s-%s/", e.Name, e.Config.ObserveBranch)
}

// ManifestRepoPath is the persistent clone directory for the manifest repo (§3).
func (e *Entry) ManifestRepoPath() string {
	return fmt.Sprintf("/tmp/manifest-%s-%s/", e.Name, e.Config.ObserveBranch)
}
