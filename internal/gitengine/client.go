// Package gitengine is the C2 Git Engine: clone-or-update a repository, read
// the head commit of a remote branch, and stage+commit+push local changes,
// all authenticated through a single in-memory SSH credentials callback.
//
// Grounded on the teacher's internal/git/client.go (PlainClone/PlainOpen/
// FetchContext/Worktree.Checkout usage, the isCloned/ensureRemoteURL
// helpers) and on the Rust original's src/git/git.rs for the exact
// operation semantics (merge analysis dispatch, hard-coded master quirks,
// short/long SHA truncation) that the teacher has no analogue for.
package gitengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gogitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Error kinds surfaced by this package, matching spec.md §7's C2 row.
var (
	ErrClone            = errors.New("gitengine: clone failed")
	ErrFetch            = errors.New("gitengine: fetch failed")
	ErrPush             = errors.New("gitengine: push failed")
	ErrBranchNotFound   = errors.New("gitengine: branch not found")
	ErrUnsupportedMerge = errors.New("gitengine: unsupported merge analysis case")
	ErrInvalidTagType   = errors.New("gitengine: invalid tag_type, must be short or long")
)

// Signature is the committer/author identity used on every commit this
// package creates. Fixed per spec.md §3, overridable via env at the
// config layer (DEFAULT_FROM_NAME / DEFAULT_FROM_EMAIL).
type Signature struct {
	Name  string
	Email string
}

func (s Signature) toObjectSignature(when time.Time) object.Signature {
	return object.Signature{Name: s.Name, Email: s.Email, When: when}
}

// DefaultCommitMessage is the fixed literal committed to the manifest repo
// on every successful patch.
const DefaultCommitMessage = "chore(refs): gitops-operator updating image tags"

// Client is the C2 operation surface the orchestrator depends on.
type Client interface {
	// CloneOrUpdate clones url into localPath if it does not yet exist, or
	// opens the existing clone, fetches branch, and merges FETCH_HEAD in.
	CloneOrUpdate(ctx context.Context, url, localPath, branch string, auth transport.AuthMethod) error

	// GetLatestCommit fetches branch from origin and returns its head
	// commit id, truncated to 7 hex chars when tagType == "short".
	GetLatestCommit(ctx context.Context, path, branch, tagType string, auth transport.AuthMethod) (string, error)

	// StageAndPush adds every change in the worktree, commits it with
	// commitMessage as identity, and pushes refs/heads/master to origin.
	StageAndPush(ctx context.Context, repoPath, commitMessage string, auth transport.AuthMethod, identity Signature) error

	// CommitChanges opens repoPath and stages+commits+pushes with the fixed
	// commit message (the entry point the orchestrator calls after a patch).
	CommitChanges(ctx context.Context, repoPath string, auth transport.AuthMethod, identity Signature) error
}

// Metrics is the narrow observability capability this package reports
// operation durations through, satisfied by *internal/metrics.Metrics.
// Matches spec.md §3's domain-stack row for git operation duration
// histograms (C2).
type Metrics interface {
	ObserveGitOperation(operation, result string, duration time.Duration)
}

// GoGitClient implements Client using go-git, never shelling out to the
// native git binary — unlike the teacher's NativeGitClient variant, this
// controller always runs against small manifest/app repos where go-git's
// in-memory pack handling is not a concern.
type GoGitClient struct {
	// Metrics is optional; nil disables instrumentation (used by tests).
	Metrics Metrics
}

var _ Client = (*GoGitClient)(nil)

func (g *GoGitClient) observe(operation string, start time.Time, err error) {
	if g.Metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	g.Metrics.ObserveGitOperation(operation, result, time.Since(start))
}

func (g *GoGitClient) CloneOrUpdate(ctx context.Context, url, localPath, branch string, auth transport.AuthMethod) (err error) {
	start := time.Now()
	defer func() { g.observe("clone_or_update", start, err) }()

	if isCloned(localPath) {
		err = g.fetchAndMerge(ctx, url, localPath, branch, auth)
		return err
	}
	err = g.cloneFresh(ctx, url, localPath, branch, auth)
	return err
}

func (g *GoGitClient) cloneFresh(ctx context.Context, url, localPath, branch string, auth transport.AuthMethod) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("%w: creating parent dir: %v", ErrClone, err)
	}
	_, err := gogit.PlainCloneContext(ctx, localPath, false, &gogit.CloneOptions{
		URL:           url,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  false,
		Tags:          gogit.AllTags,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClone, err)
	}
	return nil
}

func (g *GoGitClient) fetchAndMerge(ctx context.Context, url, localPath, branch string, auth transport.AuthMethod) error {
	repo, err := gogit.PlainOpen(localPath)
	if err != nil {
		return fmt.Errorf("opening repo at %s: %w", localPath, err)
	}
	if err := ensureRemoteURL(repo, url); err != nil {
		return err
	}

	refspec := gogitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/remotes/origin/%s", branch, branch))
	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []gogitconfig.RefSpec{refspec},
		Tags:       gogit.AllTags,
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBranchNotFound, branch, err)
	}
	remoteCommit, err := repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return fmt.Errorf("resolving fetched commit: %w", err)
	}

	headRef, err := repo.Head()
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}
	localCommit, err := repo.CommitObject(headRef.Hash())
	if err != nil {
		return fmt.Errorf("resolving HEAD commit: %w", err)
	}

	return mergeFetchedCommit(repo, localCommit, remoteCommit)
}

// ensureRemoteURL recreates the origin remote if its configured URL drifted
// from the Entry's current annotation value.
func ensureRemoteURL(repo *gogit.Repository, desiredURL string) error {
	remote, err := repo.Remote("origin")
	if err != nil {
		return fmt.Errorf("getting origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) > 0 && urls[0] == desiredURL {
		return nil
	}
	if err := repo.DeleteRemote("origin"); err != nil {
		return fmt.Errorf("deleting origin remote: %w", err)
	}
	if _, err := repo.CreateRemote(&gogitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{desiredURL},
	}); err != nil {
		return fmt.Errorf("creating origin remote: %w", err)
	}
	return nil
}

func isCloned(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// GetLatestCommit fetches refs/remotes/origin/{branch} and returns its head
// commit id as 40 hex chars ("long") or the first 7 ("short").
func (g *GoGitClient) GetLatestCommit(ctx context.Context, path, branch, tagType string, auth transport.AuthMethod) (id string, err error) {
	start := time.Now()
	defer func() { g.observe("get_latest_commit", start, err) }()

	if tagType != "short" && tagType != "long" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTagType, tagType)
	}

	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return "", fmt.Errorf("opening repo at %s: %w", path, err)
	}

	refspec := gogitconfig.RefSpec(fmt.Sprintf("+refs/remotes/origin/%s:refs/remotes/origin/%s", branch, branch))
	err = repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: "origin",
		Auth:       auth,
		RefSpecs:   []gogitconfig.RefSpec{refspec},
		Force:      true,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	commit, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("%w: peeling %s to commit: %v", ErrBranchNotFound, branch, err)
	}

	hash := commit.Hash.String()
	if tagType == "short" {
		return hash[:7], nil
	}
	return hash, nil
}
