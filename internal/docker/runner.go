// Package docker runs one-shot agent containers against a sandbox.
package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// ExitCodeTimeout is reported when the container is killed for running past
// its timeout, matching timeout(1).
const ExitCodeTimeout = 124

// Label marks every container this tool creates.
const Label = "fiveworlds"

type RunOpts struct {
	Image       string
	Command     []string
	WorkDir     string
	Env         map[string]string
	Labels      map[string]string
	Timeout     time.Duration
	ExtraMounts []Mount
	CPULimit    float64
	MemoryLimit int64
	UserID      string
	// LogTail is how many trailing log lines to keep. Zero keeps 100.
	LogTail int
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

type RunResult struct {
	ExitCode int
	TimedOut bool
	Duration time.Duration
	Logs     string
}

// RunContainer starts the container with WorkDir bind-mounted at /workspace
// and waits for it to exit or for Timeout to pass. A timeout is a result,
// not an error; cancellation of ctx is returned as an error after the
// container is killed.
func RunContainer(ctx context.Context, opts *RunOpts) (*RunResult, error) {
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("container timeout must be positive")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	envSlice := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: opts.WorkDir,
			Target: "/workspace",
		},
	}
	for _, m := range opts.ExtraMounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts:     mounts,
		Init:       &initTrue,
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	labels := map[string]string{Label: "true"}
	for k, v := range opts.Labels {
		labels[Label+"."+k] = v
	}
	containerCfg := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Command,
		Env:        envSlice,
		Labels:     labels,
		WorkingDir: "/workspace",
	}
	if opts.UserID != "" {
		containerCfg.User = opts.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tail := opts.LogTail
	if tail <= 0 {
		tail = 100
	}
	logs := func() string {
		r, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{
			ShowStdout: true, ShowStderr: true, Tail: strconv.Itoa(tail),
		})
		if err != nil || r == nil {
			return ""
		}
		defer r.Close()
		data, _ := io.ReadAll(r)
		return string(data)
	}

	waitResult := cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err == nil {
				continue
			}
			cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
			if ctx.Err() != nil {
				return nil, fmt.Errorf("container %s: %w", containerID[:min(12, len(containerID))], ctx.Err())
			}
			if timeoutCtx.Err() == nil {
				return nil, fmt.Errorf("waiting for container: %w", err)
			}
			return &RunResult{
				ExitCode: ExitCodeTimeout,
				TimedOut: true,
				Duration: time.Since(start),
				Logs:     logs(),
			}, nil
		case status := <-waitResult.Result:
			return &RunResult{
				ExitCode: int(status.StatusCode),
				Duration: time.Since(start),
				Logs:     logs(),
			}, nil
		}
	}
}
