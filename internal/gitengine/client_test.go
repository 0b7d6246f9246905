package gitengine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// testRepo mirrors the original's TestRepo helper: a throwaway git repo
// built with the real git binary (so fixtures have real commit history),
// not go-git itself.
type testRepo struct {
	dir string
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	r := &testRepo{dir: dir}
	r.git(t, "init", "-b", "master")
	r.git(t, "config", "user.name", "test")
	r.git(t, "config", "user.email", "test@example.com")
	r.writeAndCommit(t, "README.md", "# Test Repository", "Initial commit")
	return r
}

func (r *testRepo) git(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
	return string(out)
}

func (r *testRepo) writeAndCommit(t *testing.T, filename, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(r.dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", filename, err)
	}
	r.git(t, "add", filename)
	r.git(t, "commit", "-m", message)
}

func (r *testRepo) createBareRemote(t *testing.T) string {
	t.Helper()
	bareDir := t.TempDir()
	cmd := exec.Command("git", "init", "--bare", "-b", "master")
	cmd.Dir = bareDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git init --bare: %v\n%s", err, out)
	}
	r.git(t, "remote", "add", "origin", bareDir)
	r.git(t, "push", "origin", "master")
	return "file://" + bareDir
}

func TestCloneOrUpdate_FreshClone(t *testing.T) {
	source := newTestRepo(t)
	source.writeAndCommit(t, "test.txt", "test content", "Add test file")
	remoteURL := source.createBareRemote(t)

	target := filepath.Join(t.TempDir(), "clone")
	client := &GoGitClient{}
	if err := client.CloneOrUpdate(context.Background(), remoteURL, target, "master", nil); err != nil {
		t.Fatalf("CloneOrUpdate: %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, ".git")); err != nil {
		t.Fatalf("expected .git directory: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(target, "test.txt"))
	if err != nil {
		t.Fatalf("reading cloned file: %v", err)
	}
	if string(content) != "test content" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestCloneOrUpdate_FastForwardsExistingClone(t *testing.T) {
	source := newTestRepo(t)
	source.writeAndCommit(t, "initial.txt", "initial content", "Initial file")
	remoteURL := source.createBareRemote(t)

	target := filepath.Join(t.TempDir(), "clone")
	client := &GoGitClient{}
	if err := client.CloneOrUpdate(context.Background(), remoteURL, target, "master", nil); err != nil {
		t.Fatalf("initial clone: %v", err)
	}

	source.writeAndCommit(t, "new.txt", "new content", "Add new file")
	source.git(t, "push", "origin", "master")

	if err := client.CloneOrUpdate(context.Background(), remoteURL, target, "master", nil); err != nil {
		t.Fatalf("update: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(target, "new.txt"))
	if err != nil {
		t.Fatalf("expected new.txt after fast-forward: %v", err)
	}
	if string(content) != "new content" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestCloneOrUpdate_InvalidURL(t *testing.T) {
	target := filepath.Join(t.TempDir(), "clone")
	client := &GoGitClient{}
	err := client.CloneOrUpdate(context.Background(), "file:///nonexistent/repo", target, "master", nil)
	if err == nil {
		t.Fatalf("expected an error cloning a nonexistent repository")
	}
}

func TestGetLatestCommit_LongAndShort(t *testing.T) {
	source := newTestRepo(t)
	remoteURL := source.createBareRemote(t)

	target := filepath.Join(t.TempDir(), "clone")
	client := &GoGitClient{}
	if err := client.CloneOrUpdate(context.Background(), remoteURL, target, "master", nil); err != nil {
		t.Fatalf("clone: %v", err)
	}

	long, err := client.GetLatestCommit(context.Background(), target, "master", "long", nil)
	if err != nil {
		t.Fatalf("GetLatestCommit(long): %v", err)
	}
	if len(long) != 40 {
		t.Fatalf("expected 40 hex chars, got %d: %q", len(long), long)
	}

	short, err := client.GetLatestCommit(context.Background(), target, "master", "short", nil)
	if err != nil {
		t.Fatalf("GetLatestCommit(short): %v", err)
	}
	if len(short) != 7 {
		t.Fatalf("expected 7 hex chars, got %d: %q", len(short), short)
	}
	if long[:7] != short {
		t.Fatalf("short form %q should be the long form's %q prefix", short, long[:7])
	}
}

func TestGetLatestCommit_InvalidTagType(t *testing.T) {
	source := newTestRepo(t)
	remoteURL := source.createBareRemote(t)
	target := filepath.Join(t.TempDir(), "clone")
	client := &GoGitClient{}
	if err := client.CloneOrUpdate(context.Background(), remoteURL, target, "master", nil); err != nil {
		t.Fatalf("clone: %v", err)
	}
	if _, err := client.GetLatestCommit(context.Background(), target, "master", "medium", nil); err == nil {
		t.Fatalf("expected an error for an invalid tag_type")
	}
}

func TestStageAndPush_CommitsAndPushes(t *testing.T) {
	source := newTestRepo(t)
	remoteURL := source.createBareRemote(t)

	target := filepath.Join(t.TempDir(), "clone")
	client := &GoGitClient{}
	if err := client.CloneOrUpdate(context.Background(), remoteURL, target, "master", nil); err != nil {
		t.Fatalf("clone: %v", err)
	}

	if err := os.WriteFile(filepath.Join(target, "patched.txt"), []byte("patched"), 0o644); err != nil {
		t.Fatalf("writing patched file: %v", err)
	}

	identity := Signature{Name: "GitOps Operator", Email: "kainlite+gitops@gmail.com"}
	if err := client.CommitChanges(context.Background(), target, nil, identity); err != nil {
		t.Fatalf("CommitChanges: %v", err)
	}

	// Re-clone into a fresh directory to verify the push actually landed.
	verify := filepath.Join(t.TempDir(), "verify")
	if err := client.CloneOrUpdate(context.Background(), remoteURL, verify, "master", nil); err != nil {
		t.Fatalf("verify clone: %v", err)
	}
	if _, err := os.Stat(filepath.Join(verify, "patched.txt")); err != nil {
		t.Fatalf("expected pushed file to appear on a fresh clone: %v", err)
	}
}
