package gitops

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git runs git commands against the repository at Dir.
type Git struct {
	Dir string
}

func New(dir string) *Git {
	return &Git{Dir: dir}
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// validRef rejects names git could parse as options or that escape the
// refs namespace.
func validRef(ref string) error {
	if ref == "" || strings.HasPrefix(ref, "-") || strings.Contains(ref, "..") || strings.ContainsAny(ref, " \t\n~^:?*[\\") {
		return fmt.Errorf("invalid ref %q", ref)
	}
	return nil
}

func (g *Git) TopLevel(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--show-toplevel")
}

func (g *Git) RevParse(ctx context.Context, ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "-") {
		return "", fmt.Errorf("invalid ref %q", ref)
	}
	return g.run(ctx, "rev-parse", "--verify", ref+"^{commit}")
}

// WorktreeAdd checks out a new branch created from base into path.
func (g *Git) WorktreeAdd(ctx context.Context, path, branch, base string) error {
	if err := validRef(branch); err != nil {
		return err
	}
	if base == "" || strings.HasPrefix(base, "-") {
		return fmt.Errorf("invalid base %q", base)
	}
	_, err := g.run(ctx, "worktree", "add", "-b", branch, "--", path, base)
	return err
}

func (g *Git) WorktreeRemove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "worktree", "remove", "--force", "--", path)
	return err
}

func (g *Git) WorktreePrune(ctx context.Context) error {
	_, err := g.run(ctx, "worktree", "prune")
	return err
}

func (g *Git) DeleteBranch(ctx context.Context, branch string) error {
	if err := validRef(branch); err != nil {
		return err
	}
	_, err := g.run(ctx, "branch", "-D", "--", branch)
	return err
}

func (g *Git) BranchExists(ctx context.Context, branch string) bool {
	if validRef(branch) != nil {
		return false
	}
	_, err := g.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil
}

// Branches lists local branch names matching a glob such as "fiveworlds/*".
func (g *Git) Branches(ctx context.Context, pattern string) ([]string, error) {
	out, err := g.run(ctx, "branch", "--list", "--format=%(refname:short)", pattern)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CaptureChanges stages all changes (including untracked files) and returns
// the diff against HEAD.
func (g *Git) CaptureChanges(ctx context.Context) ([]byte, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return nil, err
	}
	diff := exec.CommandContext(ctx, "git", "diff", "--cached")
	diff.Dir = g.Dir
	out, err := diff.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff --cached: %w", err)
	}
	return out, nil
}
