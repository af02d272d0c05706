package validation

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// CommandRunner executes a shell command against a workspace and reports its
// combined output and exit code. A non-nil error means the command could not
// be run at all; a failing command is reported through the exit code.
type CommandRunner interface {
	Run(ctx context.Context, workDir, command string) (output string, exitCode int, err error)
}

// DockerCommand runs commands in a throwaway container with the workspace
// mounted at /workspace.
type DockerCommand struct {
	Image string
}

func (d DockerCommand) Run(ctx context.Context, workDir, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm",
		"--label", "fiveworlds=true",
		"-v", workDir+":/workspace", "-w", "/workspace",
		d.Image, "sh", "-c", command)
	return runCmd(cmd)
}

// LocalCommand runs commands with sh in the workspace directory.
type LocalCommand struct{}

func (LocalCommand) Run(ctx context.Context, workDir, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir
	return runCmd(cmd)
}

func runCmd(cmd *exec.Cmd) (string, int, error) {
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, fmt.Errorf("running %q: %w", cmd.Args, err)
	}
	return string(out), 0, nil
}

// NewCommandRunner picks DockerCommand when an image is configured and
// LocalCommand otherwise.
func NewCommandRunner(image string) CommandRunner {
	if image == "" {
		return LocalCommand{}
	}
	return DockerCommand{Image: image}
}
