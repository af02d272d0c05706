// Package agent runs a world's generation step as an adapter container
// working in the world's sandbox, then reviews what it produced.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalnine/fiveworlds/internal/docker"
	"github.com/signalnine/fiveworlds/internal/gitops"
	"github.com/signalnine/fiveworlds/internal/pricing"
	"github.com/signalnine/fiveworlds/internal/runner"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

const (
	scratchMount = "/fiveworlds"
	usageLog     = "usage.jsonl"
	taskFile     = "task.md"

	defaultTimeout = 30 * time.Minute
)

// ExitReasonFromCode maps an adapter's exit status onto the reasons
// recorded for a world.
func ExitReasonFromCode(code int, timedOut bool) string {
	if timedOut {
		return "timeout"
	}
	switch code {
	case 0:
		return "completed"
	case 2:
		return "gave_up"
	default:
		return "crashed"
	}
}

// ContainerFunc starts a container and waits for it. docker.RunContainer in
// production.
type ContainerFunc func(ctx context.Context, opts *docker.RunOpts) (*docker.RunResult, error)

// Container implements runner.WorldRunner.
type Container struct {
	Image string
	// Adapter is a host script mounted at /adapter.sh and run with bash.
	// Without one the image's own command runs.
	Adapter     string
	Env         map[string]string
	SecretsFile string
	CPULimit    float64
	MemoryLimit int64
	// Timeout caps the container. A sooner context deadline wins.
	Timeout  time.Duration
	Pricing  *pricing.Table
	Reviewer *validation.Reviewer
	Logger   *slog.Logger
	Run      ContainerFunc
}

var _ runner.WorldRunner = (*Container)(nil)

func (c *Container) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Container) RunWorld(ctx context.Context, cfg world.Config, task world.Task, sandboxPath string) (*runner.Outcome, error) {
	log := c.logger().With("component", "agent", "world", cfg.World, "model", cfg.Model)

	scratch, err := os.MkdirTemp("", "fiveworlds-"+cfg.World.Slug()+"-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)
	// The container runs as the host user and must be able to write here.
	if err := os.Chmod(scratch, 0o777); err != nil {
		return nil, fmt.Errorf("preparing scratch dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(scratch, taskFile), []byte(TaskMarkdown(task)), 0o644); err != nil {
		return nil, fmt.Errorf("writing task description: %w", err)
	}

	env, err := c.environment(cfg, task)
	if err != nil {
		return nil, err
	}

	mounts := []docker.Mount{{Source: scratch, Target: scratchMount}}
	command := []string(nil)
	if c.Adapter != "" {
		adapterAbs, err := filepath.Abs(c.Adapter)
		if err != nil {
			return nil, fmt.Errorf("resolving adapter path: %w", err)
		}
		mounts = append(mounts, docker.Mount{Source: adapterAbs, Target: "/adapter.sh", ReadOnly: true})
		command = []string{"bash", "/adapter.sh"}
	}
	// Mount host ~/.claude/.credentials.json to /tmp if it exists.
	// The adapter copies it into a writable ~/.claude/ dir at runtime.
	if home, err := os.UserHomeDir(); err == nil {
		credsFile := filepath.Join(home, ".claude", ".credentials.json")
		if _, err := os.Stat(credsFile); err == nil {
			mounts = append(mounts, docker.Mount{Source: credsFile, Target: "/tmp/.claude-credentials.json", ReadOnly: true})
		}
	}

	run := c.Run
	if run == nil {
		run = docker.RunContainer
	}
	res, err := run(ctx, &docker.RunOpts{
		Image:   c.Image,
		Command: command,
		WorkDir: sandboxPath,
		Env:     env,
		Labels: map[string]string{
			"world":  cfg.World.Slug(),
			"branch": cfg.Branch,
			"task":   task.ID,
		},
		Timeout:     c.timeout(ctx),
		ExtraMounts: mounts,
		CPULimit:    c.CPULimit,
		MemoryLimit: c.MemoryLimit,
		UserID:      fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	})
	if err != nil {
		return nil, fmt.Errorf("running container: %w", err)
	}
	log.Debug("adapter finished", "exit_code", res.ExitCode, "duration", res.Duration)

	if reason := ExitReasonFromCode(res.ExitCode, res.TimedOut); reason != "completed" {
		return nil, fmt.Errorf("agent %s (exit %d)%s", reason, res.ExitCode, lastLine(res.Logs))
	}

	patch, err := gitops.New(sandboxPath).CaptureChanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing changes: %w", err)
	}
	if len(patch) == 0 {
		return nil, errors.New("agent completed without changing the sandbox")
	}

	out := &runner.Outcome{Patch: patch}
	records, err := pricing.ParseUsageLog(filepath.Join(scratch, usageLog))
	if err != nil {
		log.Warn("usage log unreadable", "error", err)
	}
	in, outTok := pricing.TotalUsage(records)
	out.Tokens = in + outTok
	table := c.Pricing
	if table == nil {
		table = pricing.Default()
	}
	out.CostUSD = table.Estimate(records)

	if c.Reviewer == nil {
		return nil, errors.New("no reviewer configured")
	}
	signals, err := c.Reviewer.Review(ctx, sandboxPath)
	if err != nil {
		return nil, fmt.Errorf("reviewing candidate: %w", err)
	}
	out.Signals = signals
	return out, nil
}

// environment layers the secrets file, configured variables and the
// per-world variables, later layers winning.
func (c *Container) environment(cfg world.Config, task world.Task) (map[string]string, error) {
	env := map[string]string{}
	if c.SecretsFile != "" {
		secrets, err := godotenv.Read(c.SecretsFile)
		if err != nil {
			return nil, fmt.Errorf("reading secrets env file: %w", err)
		}
		for k, v := range secrets {
			env[k] = v
		}
	}
	for k, v := range c.Env {
		env[k] = v
	}
	for k, v := range map[string]string{
		"TASK_DIR":         "/workspace",
		"TASK_DESCRIPTION": scratchMount + "/" + taskFile,
		"TASK_ID":          task.ID,
		"TASK_TITLE":       task.Title,
		"TASK_TYPE":        task.Type,
		"TASK_PRIORITY":    task.Priority,
		"USAGE_LOG":        scratchMount + "/" + usageLog,
		"WORLD":            cfg.World.String(),
		"MODEL":            cfg.Model,
		"TEMPERATURE":      strconv.FormatFloat(cfg.Temperature, 'f', -1, 64),
	} {
		env[k] = v
	}
	return env, nil
}

func (c *Container) timeout(ctx context.Context) time.Duration {
	t := c.Timeout
	if t <= 0 {
		t = defaultTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < t {
			t = left
		}
	}
	return t
}

// TaskMarkdown renders the task as the adapter's prompt file.
func TaskMarkdown(task world.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", task.Title)
	if task.Type != "" || task.Priority != "" {
		fmt.Fprintf(&b, "Type: %s\nPriority: %s\n\n", orDash(task.Type), orDash(task.Priority))
	}
	if task.Description != "" {
		b.WriteString(strings.TrimSpace(task.Description))
		b.WriteString("\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func lastLine(logs string) string {
	logs = strings.TrimSpace(logs)
	if logs == "" {
		return ""
	}
	if i := strings.LastIndexByte(logs, '\n'); i >= 0 {
		logs = logs[i+1:]
	}
	return ": " + strings.TrimSpace(logs)
}
