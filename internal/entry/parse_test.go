package entry

import (
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func baseDeployment(annotations map[string]string) *appsv1.Deployment {
	d := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "test-app",
			Namespace:   "default",
			Annotations: annotations,
		},
	}
	d.Spec.Template.Spec.Containers = []corev1.Container{
		{Image: "test-app:old-sha"},
	}
	return d
}

func fullAnnotations(overrides map[string]string) map[string]string {
	base := map[string]string{
		AnnotationEnabled:            "true",
		AnnotationAppRepository:      "git@example.com:org/app.git",
		AnnotationManifestRepository: "git@example.com:org/manifest.git",
		AnnotationImageName:          "test-app",
		AnnotationDeploymentPath:     "deploy/test-app/deployment.yaml",
		AnnotationSSHKeyName:         "deploy-key",
		AnnotationSSHKeyNamespace:    "default",
	}
	for k, v := range overrides {
		base[k] = v
	}
	return base
}

func TestParse_HappyPath(t *testing.T) {
	d := baseDeployment(fullAnnotations(nil))
	e, ok := Parse(d)
	if !ok {
		t.Fatalf("expected an Entry, got none")
	}
	if e.Container != "test-app" || e.Version != "old-sha" {
		t.Fatalf("unexpected container/version: %q/%q", e.Container, e.Version)
	}
	if e.Image() != "test-app:old-sha" {
		t.Fatalf("Image() = %q", e.Image())
	}
	if e.Config.ObserveBranch != "master" {
		t.Fatalf("expected default observe_branch master, got %q", e.Config.ObserveBranch)
	}
	if e.Config.TagType != "long" {
		t.Fatalf("expected default tag_type long, got %q", e.Config.TagType)
	}
	if e.Config.State.Kind != StateQueued {
		t.Fatalf("expected a freshly parsed Entry to be Queued")
	}
}

func TestParse_BareImageDefaultsToLatest(t *testing.T) {
	d := baseDeployment(fullAnnotations(nil))
	d.Spec.Template.Spec.Containers[0].Image = "test-app"
	e, ok := Parse(d)
	if !ok {
		t.Fatalf("expected an Entry")
	}
	if e.Version != "latest" {
		t.Fatalf("expected version latest, got %q", e.Version)
	}
}

func TestParse_MissingRequiredAnnotation(t *testing.T) {
	annotations := fullAnnotations(nil)
	delete(annotations, AnnotationImageName)
	d := baseDeployment(annotations)
	if _, ok := Parse(d); ok {
		t.Fatalf("expected no Entry when a required annotation is missing (P1)")
	}
}

func TestParse_UnparseableEnabledDefaultsFalseButStillConstructsEntry(t *testing.T) {
	d := baseDeployment(fullAnnotations(map[string]string{AnnotationEnabled: "not-a-bool"}))
	e, ok := Parse(d)
	if !ok {
		t.Fatalf("expected an Entry even with an unparseable enabled annotation")
	}
	if e.Config.Enabled {
		t.Fatalf("expected Enabled=false for an unparseable annotation")
	}
}

func TestParse_ShortTagType(t *testing.T) {
	d := baseDeployment(fullAnnotations(map[string]string{AnnotationTagType: "short"}))
	e, ok := Parse(d)
	if !ok {
		t.Fatalf("expected an Entry")
	}
	if e.Config.TagType != "short" {
		t.Fatalf("expected tag_type short, got %q", e.Config.TagType)
	}
}

func TestParse_NoAnnotations(t *testing.T) {
	d := baseDeployment(nil)
	if _, ok := Parse(d); ok {
		t.Fatalf("expected no Entry with a nil annotations map")
	}
}

func githubAppAnnotations(overrides map[string]string) map[string]string {
	base := map[string]string{
		AnnotationEnabled:                          "true",
		AnnotationAppRepository:                    "git@example.com:org/app.git",
		AnnotationManifestRepository:                "git@example.com:org/manifest.git",
		AnnotationImageName:                        "test-app",
		AnnotationDeploymentPath:                    "deploy/test-app/deployment.yaml",
		AnnotationAuthType:                          AuthTypeGitHubApp,
		AnnotationGitHubAppID:                       "123456",
		AnnotationGitHubAppInstallationID:           "789",
		AnnotationGitHubAppPrivateKeySecretName:      "gh-app-key",
		AnnotationGitHubAppPrivateKeySecretNamespace: "default",
	}
	for k, v := range overrides {
		base[k] = v
	}
	return base
}

func TestParse_GitHubAppAuth(t *testing.T) {
	d := baseDeployment(githubAppAnnotations(nil))
	e, ok := Parse(d)
	if !ok {
		t.Fatalf("expected an Entry")
	}
	if !e.Config.IsGitHubAppAuth() {
		t.Fatalf("expected auth_type=github_app to select GitHub App auth")
	}
	if e.Config.GitHubAppID != "123456" || e.Config.GitHubAppInstallationID != "789" {
		t.Fatalf("unexpected GitHub App id/installation id: %q/%q", e.Config.GitHubAppID, e.Config.GitHubAppInstallationID)
	}
	if e.Config.EffectiveGitHubAppAPIBaseURL() != "https://api.github.com" {
		t.Fatalf("expected default API base URL, got %q", e.Config.EffectiveGitHubAppAPIBaseURL())
	}
	if e.Config.SSHKeyName != "" {
		t.Fatalf("expected no ssh_key_name for a github_app Entry, got %q", e.Config.SSHKeyName)
	}
}

func TestParse_GitHubAppAuth_MissingRequiredAnnotation(t *testing.T) {
	annotations := githubAppAnnotations(nil)
	delete(annotations, AnnotationGitHubAppInstallationID)
	d := baseDeployment(annotations)
	if _, ok := Parse(d); ok {
		t.Fatalf("expected no Entry when github_app_installation_id is missing")
	}
}

func TestParse_GitHubAppAuth_DoesNotRequireSSHAnnotations(t *testing.T) {
	d := baseDeployment(githubAppAnnotations(nil))
	if _, ok := Parse(d); !ok {
		t.Fatalf("expected an Entry even without ssh_key_name/ssh_key_namespace for auth_type=github_app")
	}
}

func TestParse_DefaultAuthTypeIsSSH(t *testing.T) {
	d := baseDeployment(fullAnnotations(nil))
	e, ok := Parse(d)
	if !ok {
		t.Fatalf("expected an Entry")
	}
	if e.Config.AuthType != AuthTypeSSH {
		t.Fatalf("expected default auth_type ssh, got %q", e.Config.AuthType)
	}
	if e.Config.IsGitHubAppAuth() {
		t.Fatalf("expected IsGitHubAppAuth()=false for default auth_type")
	}
}

func TestState_JSONRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		s    State
		want string
	}{
		{"queued", Queued(), `"Queued"`},
		{"processing", Processing("working"), `{"Processing":"working"}`},
		{"success", Success("done"), `{"Success":"done"}`},
		{"failure", Failure("broke"), `{"Failure":"broke"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.s.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("MarshalJSON(%v) = %s, want %s", tc.s, got, tc.want)
			}
			var back State
			if err := back.UnmarshalJSON(got); err != nil {
				t.Fatalf("UnmarshalJSON: %v", err)
			}
			if back != tc.s {
				t.Fatalf("round-trip mismatch: %+v != %+v", back, tc.s)
			}
		})
	}
}
