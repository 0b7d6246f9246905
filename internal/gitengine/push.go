package gitengine

import (
	"context"
	"fmt"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// StageAndPush adds every worktree change, commits it with commitMessage as
// identity, and pushes refs/heads/master to origin — always master,
// regardless of the tracked branch (spec.md §9 Q1, preserved for parity).
func (g *GoGitClient) StageAndPush(ctx context.Context, repoPath, commitMessage string, auth transport.AuthMethod, identity Signature) (err error) {
	start := time.Now()
	defer func() { g.observe("stage_and_push", start, err) }()

	logger := log.Log.WithName("gitengine").WithValues("repo", repoPath)

	repo, err := gogit.PlainOpen(repoPath)
	if err != nil {
		return fmt.Errorf("opening repo at %s: %w", repoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("reading worktree status: %w", err)
	}
	if hasConflicts(status) {
		logger.Info("merge conflicts detected, skipping commit")
		return nil
	}

	if _, err := wt.Add("."); err != nil {
		return fmt.Errorf("staging changes: %w", err)
	}

	headRef, err := repo.Head()
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}
	parentCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return fmt.Errorf("resolving parent commit: %w", err)
	}

	sig := identity.toObjectSignature(time.Now())
	logger.Info("creating commit", "author", sig.Name)
	if _, err := wt.Commit(commitMessage, &gogit.CommitOptions{
		Author:    &sig,
		Committer: &sig,
		Parents:   []plumbing.Hash{parentCommit.Hash},
	}); err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	logger.Info("pushing to remote")
	err = repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []gogitconfig.RefSpec{"refs/heads/master:refs/heads/master"},
	})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return fmt.Errorf("%w: %v", ErrPush, err)
	}
	return nil
}

// CommitChanges opens repoPath and invokes StageAndPush with the fixed
// commit message, matching the original's commit_changes entry point.
func (g *GoGitClient) CommitChanges(ctx context.Context, repoPath string, auth transport.AuthMethod, identity Signature) error {
	return g.StageAndPush(ctx, repoPath, DefaultCommitMessage, auth, identity)
}

func hasConflicts(status gogit.Status) bool {
	for _, s := range status {
		if s.Staging == gogit.Conflict || s.Worktree == gogit.Conflict {
			return true
		}
	}
	return false
}
