// Package entry builds reconciliation Entry values from cluster Deployment
// annotations and holds the small State/Config types the rest of the
// pipeline passes around.
package entry

const (
	// AnnotationPrefix namespaces every annotation this controller reads.
	AnnotationPrefix = "gitops.operator"

	AnnotationEnabled                        = AnnotationPrefix + ".enabled"
	AnnotationAppRepository                  = AnnotationPrefix + ".app_repository"
	AnnotationManifestRepository              = AnnotationPrefix + ".manifest_repository"
	AnnotationImageName                      = AnnotationPrefix + ".image_name"
	AnnotationDeploymentPath                 = AnnotationPrefix + ".deployment_path"
	AnnotationObserveBranch                  = AnnotationPrefix + ".observe_branch"
	AnnotationTagType                        = AnnotationPrefix + ".tag_type"
	AnnotationSSHKeyName                     = AnnotationPrefix + ".ssh_key_name"
	AnnotationSSHKeyNamespace                = AnnotationPrefix + ".ssh_key_namespace"
	AnnotationNotificationsSecretName        = AnnotationPrefix + ".notifications_secret_name"
	AnnotationNotificationsSecretNamespace   = AnnotationPrefix + ".notifications_secret_namespace"
	AnnotationRegistryURL                    = AnnotationPrefix + ".registry_secret_url"
	AnnotationRegistrySecretName             = AnnotationPrefix + ".registry_secret_name"
	AnnotationRegistrySecretNamespace        = AnnotationPrefix + ".registry_secret_namespace"

	// AnnotationAuthType selects which credential source CloneOrUpdate/
	// StageAndPush authenticate with: "ssh" (default) or "github_app".
	AnnotationAuthType                            = AnnotationPrefix + ".auth_type"
	AnnotationGitHubAppID                         = AnnotationPrefix + ".github_app_id"
	AnnotationGitHubAppInstallationID             = AnnotationPrefix + ".github_app_installation_id"
	AnnotationGitHubAppPrivateKeySecretName        = AnnotationPrefix + ".github_app_private_key_secret_name"
	AnnotationGitHubAppPrivateKeySecretNamespace   = AnnotationPrefix + ".github_app_private_key_secret_namespace"
	AnnotationGitHubAppAPIBaseURL                  = AnnotationPrefix + ".github_app_api_base_url"

	// AuthTypeSSH and AuthTypeGitHubApp are the two values AuthType accepts.
	AuthTypeSSH       = "ssh"
	AuthTypeGitHubApp = "github_app"

	// defaults applied when the optional annotations above are absent.
	defaultObserveBranch              = "master"
	defaultTagType                    = "long"
	defaultNotificationsSecretNamespace = "gitops-operator"
	defaultRegistryURL                = "https://index.docker.io/v1/"
	defaultRegistrySecretName         = "regcred"
	defaultRegistrySecretNamespace    = "gitops-operator"
	defaultGitHubAppAPIBaseURL        = "https://api.github.com"
)
