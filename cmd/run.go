package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/fiveworlds/internal/agent"
	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/docker"
	"github.com/signalnine/fiveworlds/internal/gitops"
	"github.com/signalnine/fiveworlds/internal/notify"
	"github.com/signalnine/fiveworlds/internal/pricing"
	"github.com/signalnine/fiveworlds/internal/result"
	"github.com/signalnine/fiveworlds/internal/runner"
	"github.com/signalnine/fiveworlds/internal/sandbox"
	"github.com/signalnine/fiveworlds/internal/scaler"
	"github.com/signalnine/fiveworlds/internal/telemetry"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

var (
	flagTicket       int
	flagMode         string
	flagWorldTimeout time.Duration
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run TASK_FILE",
		Short: "Run a task in all five worlds",
		Args:  cobra.ExactArgs(1),
		RunE:  runFiveWorlds,
	}
	cmd.Flags().IntVar(&flagTicket, "ticket", 0, "issue number the run belongs to")
	cmd.Flags().StringVar(&flagMode, "mode", "", "override execution mode (parallel, sequential)")
	cmd.Flags().DurationVar(&flagWorldTimeout, "world-timeout", 0, "override per-world timeout")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}

func runFiveWorlds(cmd *cobra.Command, args []string) error {
	task, err := world.LoadTask(args[0])
	if err != nil {
		return err
	}
	modeName := cfg.Mode
	if flagMode != "" {
		modeName = flagMode
	}
	mode, err := runner.ParseMode(modeName)
	if err != nil {
		return err
	}
	timeout := cfg.WorldTimeout
	if flagWorldTimeout > 0 {
		timeout = flagWorldTimeout
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	mgr, err := newManager(ctx)
	if err != nil {
		return err
	}

	breakers := breaker.NewRegistry(cfg.Breaker)
	store := result.NewBreakerStore(cfg.Results.Dir)
	if err := store.Load(breakers); err != nil {
		logger.Warn("ignoring unreadable breaker state", "path", store.Path, "error", err)
	}

	sc := scaler.New(scaler.HostSampler{}, cfg.Scaler, logger)
	sc.Refresh(ctx)
	scaleCtx, stopScaler := context.WithCancel(ctx)
	defer stopScaler()
	go sc.Run(scaleCtx)

	prices := pricing.Default()
	if cfg.Pricing.Path != "" {
		if prices, err = pricing.Load(cfg.Pricing.Path); err != nil {
			return err
		}
	}

	reviewer := validation.NewReviewer(
		validation.NewCommandRunner(cfg.Validation.Image),
		cfg.Validation.ReviewOpts(),
		logger,
	)
	worlds := &agent.Container{
		Image:       cfg.Agent.Image,
		Adapter:     cfg.Agent.Adapter,
		Env:         cfg.Agent.Env,
		SecretsFile: cfg.Secrets.EnvFile,
		CPULimit:    cfg.Agent.CPULimit,
		MemoryLimit: cfg.Agent.MemoryLimit,
		Timeout:     timeout,
		Pricing:     prices,
		Reviewer:    reviewer,
		Logger:      logger,
		Run:         docker.RunContainer,
	}

	sink := notify.NewAsync(notify.Log(logger), logger)
	defer sink.Close()

	exec, err := runner.New(runner.Options{
		Sandboxes:    mgr,
		Runner:       worlds,
		Breakers:     breakers,
		Limiter:      sc,
		Mode:         mode,
		WorldTimeout: timeout,
		Overrides:    cfg.Overrides(),
		Weights:      cfg.Weights(),
		Sink:         sink,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	res, err := exec.Execute(ctx, *task, flagTicket)
	if saveErr := store.Save(exec.Breakers()); saveErr != nil {
		logger.Warn("saving breaker state failed", "error", saveErr)
	}
	if err != nil {
		return err
	}

	runDir, err := result.CreateRunDir(cfg.Results.Dir, flagTicket, task.ID)
	if err != nil {
		return err
	}
	if err := result.WriteRun(runDir, result.FromRun(*task, res), res); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run directory: %s\n\n", runDir)
	return printSummary(out, res)
}

// newManager opens the sandbox manager on the top level of the configured
// repository, so a repo path inside a subdirectory still works.
func newManager(ctx context.Context) (*sandbox.Manager, error) {
	top, err := gitops.New(cfg.Repo).TopLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository %s: %w", cfg.Repo, err)
	}
	return sandbox.NewManager(top, cfg.SandboxRoot, cfg.BaseRef, logger)
}

func printSummary(w io.Writer, res *runner.FiveWorldsResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WORLD\tMODEL\tSTATUS\tSCORE\tDURATION\tCOST\tREASON")
	for _, r := range res.Ordered() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\t$%.2f\t%s\n",
			r.World, r.Model, r.Status, r.Score.Total,
			r.Duration.Round(time.Second), r.CostUSD, r.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if win := res.WinnerResult(); win != nil {
		fmt.Fprintf(w, "\nWinner: %s (%.1f) on branch %s\n", win.World, win.Score.Total, win.Branch)
		fmt.Fprintf(w, "Sandbox: %s\n", win.SandboxPath)
	} else {
		fmt.Fprintln(w, "\nNo world succeeded; all sandboxes were removed.")
	}
	return nil
}
