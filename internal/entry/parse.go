package entry

import (
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
)

// Parse builds an Entry from a cluster Deployment, implementing C6.
//
// Required: a namespace, an annotations map, and a non-empty container list
// in the first pod template, plus every required annotation in the §3
// table (enabled, app_repository, manifest_repository, image_name,
// deployment_path). Any of those missing means no Entry is produced at all
// — never a half-built one.
//
// The remaining credential annotations are required conditionally on
// auth_type: "ssh" (the default) requires ssh_key_name/ssh_key_namespace,
// "github_app" requires github_app_id/github_app_installation_id/
// github_app_private_key_secret_name/github_app_private_key_secret_namespace
// instead.
//
// The `enabled` annotation being present-but-unparseable does NOT reject
// the Entry: it is still constructed with Enabled=false, matching the
// original implementation's `.parse().unwrap_or(false)` (only a *missing*
// `enabled` annotation short-circuits, via the `?` operator, to no Entry).
// This is a deliberate deviation from spec.md §3's looser wording ("anything
// else -> Entry is rejected by parse"); see the internal/entry section of
// DESIGN.md.
func Parse(d *appsv1.Deployment) (*Entry, bool) {
	if d == nil {
		return nil, false
	}
	namespace := d.Namespace
	if namespace == "" {
		return nil, false
	}
	annotations := d.Annotations
	if annotations == nil {
		return nil, false
	}
	if d.Spec.Template.Spec.Containers == nil || len(d.Spec.Template.Spec.Containers) == 0 {
		return nil, false
	}
	image := d.Spec.Template.Spec.Containers[0].Image
	if image == "" {
		return nil, false
	}

	container, version := splitImage(image)

	enabledRaw, ok := annotations[AnnotationEnabled]
	if !ok {
		return nil, false
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(enabledRaw))
	if err != nil {
		enabled = false
	}

	appRepository, ok := annotations[AnnotationAppRepository]
	if !ok {
		return nil, false
	}
	manifestRepository, ok := annotations[AnnotationManifestRepository]
	if !ok {
		return nil, false
	}
	imageName, ok := annotations[AnnotationImageName]
	if !ok {
		return nil, false
	}
	deploymentPath, ok := annotations[AnnotationDeploymentPath]
	if !ok {
		return nil, false
	}

	authType := annotations[AnnotationAuthType]
	if authType == "" {
		authType = AuthTypeSSH
	}

	var sshKeyName, sshKeyNamespace string
	var githubAppID, githubAppInstallationID, githubAppSecretName, githubAppSecretNamespace string
	switch authType {
	case AuthTypeGitHubApp:
		githubAppID, ok = annotations[AnnotationGitHubAppID]
		if !ok {
			return nil, false
		}
		githubAppInstallationID, ok = annotations[AnnotationGitHubAppInstallationID]
		if !ok {
			return nil, false
		}
		githubAppSecretName, ok = annotations[AnnotationGitHubAppPrivateKeySecretName]
		if !ok {
			return nil, false
		}
		githubAppSecretNamespace, ok = annotations[AnnotationGitHubAppPrivateKeySecretNamespace]
		if !ok {
			return nil, false
		}
	default:
		sshKeyName, ok = annotations[AnnotationSSHKeyName]
		if !ok {
			return nil, false
		}
		sshKeyNamespace, ok = annotations[AnnotationSSHKeyNamespace]
		if !ok {
			return nil, false
		}
	}

	observeBranch := annotations[AnnotationObserveBranch]
	if observeBranch == "" {
		observeBranch = defaultObserveBranch
	}

	tagType := defaultTagType
	if annotations[AnnotationTagType] == "short" {
		tagType = "short"
	}

	e := &Entry{
		Name:        d.Name,
		Namespace:   namespace,
		Container:   container,
		Version:     version,
		Annotations: copyMap(annotations),
		Config: Config{
			Enabled:                      enabled,
			Namespace:                    namespace,
			AppRepository:                appRepository,
			ManifestRepository:           manifestRepository,
			ImageName:                    imageName,
			DeploymentPath:               deploymentPath,
			ObserveBranch:                observeBranch,
			TagType:                      tagType,
			SSHKeyName:                   sshKeyName,
			SSHKeyNamespace:              sshKeyNamespace,
			NotificationsSecretName:      annotations[AnnotationNotificationsSecretName],
			NotificationsSecretNamespace: annotations[AnnotationNotificationsSecretNamespace],
			RegistryURL:                  annotations[AnnotationRegistryURL],
			RegistrySecretName:           annotations[AnnotationRegistrySecretName],
			RegistrySecretNamespace:      annotations[AnnotationRegistrySecretNamespace],
			AuthType:                     authType,
			GitHubAppID:                  githubAppID,
			GitHubAppInstallationID:      githubAppInstallationID,
			GitHubAppPrivateKeySecretName:      githubAppSecretName,
			GitHubAppPrivateKeySecretNamespace: githubAppSecretNamespace,
			GitHubAppAPIBaseURL:          annotations[AnnotationGitHubAppAPIBaseURL],
			State:                        Queued(),
		},
	}
	return e, true
}

// splitImage splits strictly on the first ':', matching (P2); a bare
// reference with no ':' defaults the version to "latest".
func splitImage(image string) (container, version string) {
	idx := strings.Index(image, ":")
	if idx < 0 {
		return image, "latest"
	}
	return image[:idx], image[idx+1:]
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
