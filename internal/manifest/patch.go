// Package manifest is the C3 Manifest Patcher: it reads a Deployment
// manifest file from the cloned manifest repository, decides whether its
// container image already carries the target commit SHA, and rewrites the
// image tag in place when it does not.
//
// Grounded on the original's src/files/files.rs (needs_patching/
// patch_deployment, including the exact substring-match semantics) with the
// YAML codec swapped for sigs.k8s.io/yaml, the same library client-go and
// apimachinery themselves use to round-trip typed Kubernetes objects through
// YAML.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/yaml"
)

// ErrAlreadyUpToDate is returned by PatchDeployment when the container image
// already contains new_sha — mirrors the Rust original's guard that refuses
// to patch a manifest that is already current.
var ErrAlreadyUpToDate = errors.New("manifest: image tag is already up to date")

func readDeployment(filePath string) (*appsv1.Deployment, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading deployment manifest %s: %w", filePath, err)
	}
	var deployment appsv1.Deployment
	if err := yaml.Unmarshal(raw, &deployment); err != nil {
		return nil, fmt.Errorf("parsing deployment manifest %s: %w", filePath, err)
	}
	return &deployment, nil
}

// NeedsPatching reports whether filePath's containers are missing newSHA.
// It returns false (no error) the moment any container image already
// contains newSHA, matching files.rs's early "Aborting mission!" return.
func NeedsPatching(filePath, newSHA string) (bool, error) {
	logger := log.Log.WithName("manifest").WithValues("file", filePath)
	logger.V(1).Info("comparing deployment file")

	deployment, err := readDeployment(filePath)
	if err != nil {
		return false, err
	}

	if deployment.Spec.Template.Spec.Containers != nil {
		for _, container := range deployment.Spec.Template.Spec.Containers {
			if strings.Contains(container.Image, newSHA) {
				logger.Info("image tag already updated, nothing to patch")
				return false, nil
			}
		}
	}
	return true, nil
}

// PatchDeployment rewrites every container in filePath whose image contains
// imageName to "{imageName}:{newSHA}", and writes the result back to disk.
// It refuses (ErrAlreadyUpToDate) if any container already carries newSHA.
func PatchDeployment(filePath, imageName, newSHA string) error {
	logger := log.Log.WithName("manifest").WithValues("file", filePath)
	logger.Info("patching image tag in deployment file")

	deployment, err := readDeployment(filePath)
	if err != nil {
		return err
	}

	containers := deployment.Spec.Template.Spec.Containers
	for i := range containers {
		image := containers[i].Image
		if strings.Contains(image, newSHA) {
			logger.Info("image tag already updated, refusing to patch")
			return fmt.Errorf("%w: %s", ErrAlreadyUpToDate, newSHA)
		}
		if strings.Contains(image, imageName) {
			containers[i].Image = fmt.Sprintf("%s:%s", imageName, newSHA)
		}
	}

	updated, err := yaml.Marshal(deployment)
	if err != nil {
		return fmt.Errorf("serializing updated deployment: %w", err)
	}
	if err := os.WriteFile(filePath, updated, 0o644); err != nil {
		return fmt.Errorf("writing updated manifest %s: %w", filePath, err)
	}
	return nil
}
