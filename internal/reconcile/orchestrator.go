// Package reconcile is the C7 Reconciliation Orchestrator: given one opted-in
// Entry, it resolves credentials, clones the app and manifest repositories,
// reads the app repo's head commit, patches the manifest if it is stale, and
// reports the terminal State — the exact sequence configuration.rs's
// DeploymentProcessor::process follows, rewired onto this module's Go
// capability interfaces (C1 secrets, C2 gitengine, C3 manifest, C4 registry,
// C5 notify) instead of kube-rs/reqwest/git2.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ia-eknorr/gitops-operator/internal/entry"
	"github.com/ia-eknorr/gitops-operator/internal/gitengine"
	"github.com/ia-eknorr/gitops-operator/internal/manifest"
	"github.com/ia-eknorr/gitops-operator/internal/notify"
	"github.com/ia-eknorr/gitops-operator/internal/registry"
	"github.com/ia-eknorr/gitops-operator/internal/secrets"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// defaultIdentity is the committer identity used when Orchestrator.Identity
// is left unset, matching the original's hard-coded DeploymentProcessor
// commit signature.
var defaultIdentity = gitengine.Signature{Name: "GitOps Operator", Email: "kainlite+gitops@gmail.com"}

// Metrics is the narrow observability capability this package reports
// reconciliation duration/outcome through, satisfied by
// *internal/metrics.Metrics (spec.md §3's domain-stack row for C7/C8).
type Metrics interface {
	ObserveReconcile(namespace, name, result string, duration time.Duration)
}

// Orchestrator wires the four reconciliation capabilities together, matching
// DeploymentProcessor's constructor-injected dyn-trait fields.
type Orchestrator struct {
	Secrets             secrets.Provider
	GitClient           gitengine.Client
	ImageCheckerFactory registry.ImageCheckerFactory
	Notifier            notify.NotificationSender

	// Identity overrides the commit signature used on every patch commit,
	// wired from DEFAULT_FROM_NAME / DEFAULT_FROM_EMAIL. Zero value falls
	// back to defaultIdentity.
	Identity gitengine.Signature
	// Metrics is optional; nil disables instrumentation (used by tests).
	Metrics Metrics
}

// New builds an Orchestrator from its four capabilities (production() in the
// original; here the caller wires concrete or fake implementations).
func New(secretsProvider secrets.Provider, gitClient gitengine.Client, checkerFactory registry.ImageCheckerFactory, notifier notify.NotificationSender) *Orchestrator {
	return &Orchestrator{
		Secrets:             secretsProvider,
		GitClient:           gitClient,
		ImageCheckerFactory: checkerFactory,
		Notifier:            notifier,
		Identity:            defaultIdentity,
	}
}

func (o *Orchestrator) identity() gitengine.Signature {
	if o.Identity.Name == "" && o.Identity.Email == "" {
		return defaultIdentity
	}
	return o.Identity
}

// buildAuth resolves the git transport credentials for e, selecting between
// the default SSH key and a GitHub App installation token per
// e.Config.AuthType (annotation gitops.operator.auth_type).
func (o *Orchestrator) buildAuth(ctx context.Context, e *entry.Entry) (transport.AuthMethod, error) {
	if e.Config.IsGitHubAppAuth() {
		pemKey, err := o.Secrets.GetGitHubAppPrivateKey(ctx, e.Config.GitHubAppPrivateKeySecretName, e.Config.GitHubAppPrivateKeySecretNamespace)
		if err != nil {
			return nil, fmt.Errorf("getting GitHub App private key: %w", err)
		}
		auth, err := gitengine.BuildGitHubAppAuth(ctx, []byte(pemKey), e.Config.GitHubAppID, e.Config.GitHubAppInstallationID, e.Config.EffectiveGitHubAppAPIBaseURL())
		if err != nil {
			return nil, fmt.Errorf("exchanging GitHub App token: %w", err)
		}
		return auth, nil
	}

	sshKey, err := o.Secrets.GetSSHKey(ctx, e.Config.SSHKeyName, e.Config.SSHKeyNamespace)
	if err != nil {
		return nil, fmt.Errorf("getting SSH key: %w", err)
	}
	auth, err := gitengine.BuildSSHAuth([]byte(sshKey))
	if err != nil {
		return nil, fmt.Errorf("building SSH credentials: %w", err)
	}
	return auth, nil
}

// Process runs the full reconciliation pipeline for one Entry and returns
// its terminal state. It never returns a Go error: every failure mode is
// encoded as entry.Failure(message), matching the original's State-only
// return type.
func (o *Orchestrator) Process(ctx context.Context, e *entry.Entry) (state entry.State) {
	start := time.Now()
	defer func() {
		if o.Metrics == nil {
			return
		}
		result := "success"
		if state.Kind == entry.StateFailure {
			result = "failure"
		}
		o.Metrics.ObserveReconcile(e.Namespace, e.Name, result, time.Since(start))
	}()

	logger := log.Log.WithName("reconcile").WithValues("namespace", e.Namespace, "name", e.Name)
	logger.Info("processing entry")

	notificationEndpoint := o.notificationsEndpoint(ctx, e)

	auth, err := o.buildAuth(ctx, e)
	if err != nil {
		logger.Error(err, "failed to build git credentials")
		return entry.Failure(fmt.Sprintf("Failed to get SSH key: %v", err))
	}

	registryURL := e.Config.EffectiveRegistryURL()
	imageChecker := o.buildImageChecker(ctx, e, registryURL, logger)

	appRepoPath := e.AppRepoPath()
	manifestRepoPath := e.ManifestRepoPath()

	logger.Info("cloning repositories")
	if err := o.cloneBoth(ctx, e, appRepoPath, manifestRepoPath, auth); err != nil {
		logger.Error(err, "failed to clone repositories")
	}

	logger.Info("getting latest commit")
	newSHA, err := o.GitClient.GetLatestCommit(ctx, appRepoPath, e.Config.ObserveBranch, e.Config.TagType, auth)
	if err != nil {
		logger.Error(err, "failed to get latest SHA")
		return entry.Failure(fmt.Sprintf("Failed to get latest SHA: %v", err))
	}

	paths, err := manifest.ResolvePaths(manifestRepoPath, e.Config.DeploymentPath)
	if err != nil {
		logger.Error(err, "failed to resolve deployment_path")
		return entry.Failure(fmt.Sprintf("Failed to resolve deployment_path: %v", err))
	}

	anyNeedsPatching := false
	for _, path := range paths {
		needs, err := manifest.NeedsPatching(path, newSHA)
		if err != nil {
			logger.Error(err, "failed to check whether manifest needs patching", "path", path)
			continue
		}
		if needs {
			anyNeedsPatching = true
			break
		}
	}

	if !anyNeedsPatching {
		message := fmt.Sprintf("Deployment: %s is up to date, proceeding to next deployment...", e.Name)
		logger.Info(message)
		return entry.Success(message)
	}

	if imageChecker != nil {
		logger.Info("checking image", "image", e.Config.ImageName)
		found, err := imageChecker.CheckImage(ctx, e.Config.ImageName, newSHA)
		if err != nil {
			logger.Error(err, "failed to probe registry for image", "image", e.Config.ImageName)
		}
		if !found {
			message := fmt.Sprintf(
				":probing_cane: image: https://hub.docker.com/repository/docker/%s/tags with SHA: %s not found in registry, it is likely still building...",
				e.Config.ImageName, newSHA)
			o.notify(ctx, notificationEndpoint, message, logger)
			logger.Info(message)
			return entry.Failure(message)
		}
	}

	for _, path := range paths {
		if err := manifest.PatchDeployment(path, e.Config.ImageName, newSHA); err != nil {
			_ = os.RemoveAll(manifestRepoPath)
			message := fmt.Sprintf("Failed to patch deployment: %s to version: %s", e.Name, newSHA)
			o.notify(ctx, notificationEndpoint, message, logger)
			logger.Error(err, "failed to patch deployment")
		} else {
			logger.Info("file patched successfully")
		}
	}

	identity := o.identity()
	if err := o.GitClient.CommitChanges(ctx, manifestRepoPath, auth, identity); err != nil {
		_ = os.RemoveAll(manifestRepoPath)
		logger.Error(err, "failed to commit changes, cleaning up manifests repo for next run")
	} else {
		logger.Info("changes committed successfully")
	}

	successMessage := fmt.Sprintf("Deployment %s has been patched successfully to version: %s", e.Name, newSHA)
	o.notify(ctx, notificationEndpoint, successMessage, logger)

	message := fmt.Sprintf("Deployment: %s patched successfully to version: %s", e.Name, newSHA)
	logger.Info(message)
	return entry.Success(message)
}

// cloneBoth clones the app and manifest repositories concurrently, mirroring
// the original's tokio::try_join! over two spawn_blocking clone_repo calls.
func (o *Orchestrator) cloneBoth(ctx context.Context, e *entry.Entry, appRepoPath, manifestRepoPath string, auth transport.AuthMethod) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)

	go func() {
		defer wg.Done()
		errs[0] = o.GitClient.CloneOrUpdate(ctx, e.Config.AppRepository, appRepoPath, e.Config.ObserveBranch, auth)
	}()
	go func() {
		defer wg.Done()
		errs[1] = o.GitClient.CloneOrUpdate(ctx, e.Config.ManifestRepository, manifestRepoPath, e.Config.ObserveBranch, auth)
	}()
	wg.Wait()

	if errs[0] != nil {
		return errs[0]
	}
	return errs[1]
}

func (o *Orchestrator) notificationsEndpoint(ctx context.Context, e *entry.Entry) string {
	secretName := e.Config.NotificationsSecretName
	if secretName == "" {
		return ""
	}
	namespace := e.Config.EffectiveNotificationsSecretNamespace()
	endpoint, err := o.Secrets.GetNotificationEndpoint(ctx, secretName, namespace)
	if err != nil {
		log.Log.WithName("reconcile").Error(err, "failed to get notifications secret")
		return ""
	}
	return endpoint
}

func (o *Orchestrator) buildImageChecker(ctx context.Context, e *entry.Entry, registryURL string, logger logr.Logger) registry.ImageChecker {
	credentials, err := o.Secrets.GetRegistryAuth(ctx, e.Config.EffectiveRegistrySecretName(), e.Config.EffectiveRegistrySecretNamespace(), registryURL)
	if err != nil {
		logger.Error(err, "failed to get registry credentials")
		return nil
	}
	logger.Info("creating registry checker", "registry_url", registryURL)
	checker, err := o.ImageCheckerFactory.New(ctx, registryURL, credentials)
	if err != nil {
		logger.Error(err, "failed to create image checker")
		return nil
	}
	return checker
}

func (o *Orchestrator) notify(ctx context.Context, endpoint, message string, logger logr.Logger) {
	if endpoint == "" {
		return
	}
	if err := o.Notifier.Send(ctx, message, endpoint); err != nil {
		logger.Info("failed to send notification", "error", err.Error())
		return
	}
	logger.Info("notification sent successfully")
}
