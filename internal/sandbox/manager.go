// Package sandbox creates and destroys the branch-backed worktrees each
// world works in.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/signalnine/fiveworlds/internal/gitops"
	"github.com/signalnine/fiveworlds/internal/world"
)

// ErrExists is returned when a sandbox directory or branch is already taken.
var ErrExists = errors.New("sandbox already exists")

// Handle identifies one spawned sandbox.
type Handle struct {
	World  world.ID `json:"world"`
	Ticket int      `json:"ticket"`
	TaskID string   `json:"task_id"`
	Path   string   `json:"path"`
	Branch string   `json:"branch"`
}

type handleKey struct {
	ticket int
	taskID string
	world  world.ID
}

// Manager is the only writer of sandbox creation and removal under its root.
type Manager struct {
	git     *gitops.Git
	root    string
	baseRef string
	logger  *slog.Logger

	mu      sync.Mutex
	handles map[handleKey]Handle
}

// NewManager manages worktrees of the repository at repoDir, placed under
// root and branched from baseRef.
func NewManager(repoDir, root, baseRef string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if baseRef == "" {
		baseRef = "HEAD"
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving sandbox root: %w", err)
	}
	return &Manager{
		git:     gitops.New(repoDir),
		root:    absRoot,
		baseRef: baseRef,
		logger:  logger.With("component", "sandbox"),
		handles: make(map[handleKey]Handle),
	}, nil
}

// Root is the directory sandboxes are created in.
func (m *Manager) Root() string {
	return m.root
}

// SpawnAllWorlds creates one worktree per world. Either all five exist when
// it returns nil, or none of the ones it created remain.
func (m *Manager) SpawnAllWorlds(ctx context.Context, ticket int, taskID, runTag string) ([world.Count]Handle, error) {
	var handles [world.Count]Handle
	if ticket < 0 {
		return handles, fmt.Errorf("invalid ticket number %d", ticket)
	}
	if world.Slug(taskID) == "" {
		return handles, fmt.Errorf("invalid task id %q", taskID)
	}
	if _, err := m.git.RevParse(ctx, m.baseRef); err != nil {
		return handles, fmt.Errorf("resolving base ref: %w", err)
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return handles, fmt.Errorf("creating sandbox root: %w", err)
	}

	var created []Handle
	rollback := func() {
		for _, h := range created {
			m.remove(context.WithoutCancel(ctx), h)
		}
	}

	for _, id := range world.All() {
		cfg := world.DefaultConfig(id, taskID, ticket, m.root, runTag)
		h := Handle{World: id, Ticket: ticket, TaskID: taskID, Path: cfg.SandboxPath, Branch: cfg.Branch}
		if _, err := os.Stat(h.Path); err == nil {
			rollback()
			return handles, fmt.Errorf("%s: %s: %w", id, h.Path, ErrExists)
		}
		if m.git.BranchExists(ctx, h.Branch) {
			rollback()
			return handles, fmt.Errorf("%s: branch %s: %w", id, h.Branch, ErrExists)
		}
		if err := m.git.WorktreeAdd(ctx, h.Path, h.Branch, m.baseRef); err != nil {
			rollback()
			return handles, fmt.Errorf("creating sandbox for %s: %w", id, err)
		}
		created = append(created, h)
		handles[id.Index()] = h
	}

	m.mu.Lock()
	for _, h := range handles {
		m.handles[handleKey{ticket, taskID, h.World}] = h
	}
	m.mu.Unlock()

	m.logger.Info("sandboxes spawned", "ticket", ticket, "task", taskID, "root", m.root)
	return handles, nil
}

// GetWorldHandle returns the last handle spawned for id on this task.
func (m *Manager) GetWorldHandle(ticket int, taskID string, id world.ID) (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[handleKey{ticket, taskID, id}]
	return h, ok
}

// CleanupWorld removes a sandbox's worktree, directory and branch. Failures
// are logged and returned; the sandbox is forgotten either way.
func (m *Manager) CleanupWorld(ctx context.Context, h Handle) error {
	err := m.remove(ctx, h)
	m.mu.Lock()
	key := handleKey{h.Ticket, h.TaskID, h.World}
	if cur, ok := m.handles[key]; ok && cur.Path == h.Path {
		delete(m.handles, key)
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) remove(ctx context.Context, h Handle) error {
	var errs []error
	if err := m.removePath(ctx, h.Path); err != nil {
		errs = append(errs, err)
	}
	if h.Branch != "" && m.git.BranchExists(ctx, h.Branch) {
		if err := m.git.DeleteBranch(ctx, h.Branch); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warn("sandbox cleanup failed", "world", h.World, "path", h.Path, "error", err)
	} else {
		m.logger.Debug("sandbox removed", "world", h.World, "path", h.Path)
	}
	return err
}

// removePath drops the worktree registration and the directory. A worktree
// git no longer knows about is removed from disk and pruned.
func (m *Manager) removePath(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return m.git.WorktreePrune(ctx)
	}
	if err := m.git.WorktreeRemove(ctx, path); err == nil {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return m.git.WorktreePrune(ctx)
}

// CleanupAllWorldsForIssue removes every sandbox and branch belonging to
// ticket, whatever task or run created it.
func (m *Manager) CleanupAllWorldsForIssue(ctx context.Context, ticket int) error {
	var errs []error

	entries, err := os.ReadDir(m.root)
	if err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("reading sandbox root: %w", err))
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !world.IsIssueSandbox(e.Name(), ticket) {
			continue
		}
		if err := m.removePath(ctx, filepath.Join(m.root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	branches, err := m.git.Branches(ctx, world.BranchPrefix+"*")
	if err != nil {
		errs = append(errs, err)
	}
	for _, b := range branches {
		if !world.IsIssueSandbox(strings.TrimPrefix(b, world.BranchPrefix), ticket) {
			continue
		}
		if err := m.git.DeleteBranch(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	for k := range m.handles {
		if k.ticket == ticket {
			delete(m.handles, k)
		}
	}
	m.mu.Unlock()

	err = errors.Join(errs...)
	if err != nil {
		m.logger.Warn("issue cleanup incomplete", "ticket", ticket, "removed", removed, "error", err)
	} else {
		m.logger.Info("issue sandboxes removed", "ticket", ticket, "removed", removed)
	}
	return err
}

// List returns the sandbox directory names under the root for ticket.
func (m *Manager) List(ticket int) ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && world.IsIssueSandbox(e.Name(), ticket) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
