package gitops_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/signalnine/fiveworlds/internal/gitops"
)

func createTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cmds := [][]string{
		{"git", "init", "-b", "main"},
		{"git", "config", "user.email", "test@test.com"},
		{"git", "config", "user.name", "Test"},
	}
	for _, args := range cmds {
		run(t, dir, args...)
	}
	os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644)
	run(t, dir, "git", "add", ".")
	run(t, dir, "git", "commit", "-m", "initial")
	return dir
}

func run(t *testing.T, dir string, args ...string) {
	t.Helper()
	c := exec.Command(args[0], args[1:]...)
	c.Dir = dir
	if out, err := c.CombinedOutput(); err != nil {
		t.Fatalf("%v: %s", err, out)
	}
}

func TestWorktreeAddAndRemove(t *testing.T) {
	ctx := context.Background()
	repo := createTestRepo(t)
	g := gitops.New(repo)
	wt := filepath.Join(t.TempDir(), "wt")

	if err := g.WorktreeAdd(ctx, wt, "fiveworlds/test", "HEAD"); err != nil {
		t.Fatalf("WorktreeAdd: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(wt, "hello.txt"))
	if err != nil || string(content) != "hello" {
		t.Fatalf("worktree content: %q, %v", content, err)
	}
	if !g.BranchExists(ctx, "fiveworlds/test") {
		t.Error("branch should exist")
	}

	if err := g.WorktreeRemove(ctx, wt); err != nil {
		t.Fatalf("WorktreeRemove: %v", err)
	}
	if _, err := os.Stat(wt); !os.IsNotExist(err) {
		t.Error("worktree directory should be gone")
	}
	if err := g.DeleteBranch(ctx, "fiveworlds/test"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if g.BranchExists(ctx, "fiveworlds/test") {
		t.Error("branch should be deleted")
	}
}

func TestWorktreeAddExistingBranchFails(t *testing.T) {
	ctx := context.Background()
	repo := createTestRepo(t)
	g := gitops.New(repo)
	if err := g.WorktreeAdd(ctx, filepath.Join(t.TempDir(), "a"), "dup", "HEAD"); err != nil {
		t.Fatal(err)
	}
	if err := g.WorktreeAdd(ctx, filepath.Join(t.TempDir(), "b"), "dup", "HEAD"); err == nil {
		t.Fatal("expected error reusing a branch")
	}
}

func TestBranches(t *testing.T) {
	ctx := context.Background()
	repo := createTestRepo(t)
	g := gitops.New(repo)
	run(t, repo, "git", "branch", "fiveworlds/a")
	run(t, repo, "git", "branch", "fiveworlds/b")
	run(t, repo, "git", "branch", "other")

	got, err := g.Branches(ctx, "fiveworlds/*")
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %v, want 2 fiveworlds branches", got)
	}
	none, err := g.Branches(ctx, "nothing/*")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no branches, got %v, %v", none, err)
	}
}

func TestCaptureChanges(t *testing.T) {
	ctx := context.Background()
	repo := createTestRepo(t)
	os.WriteFile(filepath.Join(repo, "hello.txt"), []byte("modified"), 0o644)
	os.WriteFile(filepath.Join(repo, "new.txt"), []byte("new file"), 0o644)
	diff, err := gitops.New(repo).CaptureChanges(ctx)
	if err != nil {
		t.Fatalf("CaptureChanges: %v", err)
	}
	if len(diff) == 0 {
		t.Error("expected non-empty diff")
	}
}

func TestCaptureChangesNoChanges(t *testing.T) {
	repo := createTestRepo(t)
	diff, err := gitops.New(repo).CaptureChanges(context.Background())
	if err != nil {
		t.Fatalf("CaptureChanges: %v", err)
	}
	if len(diff) != 0 {
		t.Errorf("expected empty diff, got %d bytes", len(diff))
	}
}

func TestRejectsOptionLikeRefs(t *testing.T) {
	ctx := context.Background()
	g := gitops.New(createTestRepo(t))
	for _, ref := range []string{"--option", "", " spaces", "../escape", "a:b"} {
		if err := g.WorktreeAdd(ctx, t.TempDir(), ref, "HEAD"); err == nil {
			t.Errorf("expected error for branch %q", ref)
		}
		if err := g.DeleteBranch(ctx, ref); err == nil {
			t.Errorf("expected error deleting %q", ref)
		}
	}
}

func TestRevParse(t *testing.T) {
	ctx := context.Background()
	g := gitops.New(createTestRepo(t))
	sha, err := g.RevParse(ctx, "HEAD")
	if err != nil {
		t.Fatalf("RevParse: %v", err)
	}
	if len(sha) != 40 {
		t.Errorf("sha: got %q", sha)
	}
	if _, err := g.RevParse(ctx, "does-not-exist"); err == nil {
		t.Error("expected error for missing ref")
	}
}

func TestTopLevel(t *testing.T) {
	ctx := context.Background()
	repo := createTestRepo(t)
	sub := filepath.Join(repo, "pkg", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := gitops.New(sub).TopLevel(ctx)
	if err != nil {
		t.Fatalf("TopLevel: %v", err)
	}
	want, _ := filepath.EvalSymlinks(repo)
	if resolved, _ := filepath.EvalSymlinks(got); resolved != want {
		t.Errorf("TopLevel: got %q, want %q", got, want)
	}

	if _, err := gitops.New(t.TempDir()).TopLevel(ctx); err == nil {
		t.Error("expected error outside a repository")
	}
}
