package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ResolvePaths expands an Entry's deployment_path annotation into the set of
// concrete manifest files to patch. A path with no glob metacharacters is
// joined onto manifestRepoPath and returned as a single-element slice,
// without checking that the file exists; a pattern like
// "deploy/**/*.yaml" is expanded against the manifest repository checkout,
// matching doublestar.Glob the way the teacher's syncengine package matches
// exclude patterns against a repo-relative tree.
func ResolvePaths(manifestRepoPath, deploymentPath string) ([]string, error) {
	if !doublestar.ValidatePattern(deploymentPath) {
		return nil, fmt.Errorf("manifest: invalid deployment_path pattern %q", deploymentPath)
	}

	full := filepath.Join(manifestRepoPath, deploymentPath)
	if !containsMeta(deploymentPath) {
		return []string{full}, nil
	}

	matches, err := doublestar.FilepathGlob(full)
	if err != nil {
		return nil, fmt.Errorf("manifest: expanding deployment_path %q: %w", deploymentPath, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("manifest: deployment_path %q matched no files", deploymentPath)
	}
	return matches, nil
}

func containsMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
