package validation

import (
	"context"
	"fmt"
	"log/slog"
)

// ReviewOpts configures which commands a Reviewer runs. Empty commands are
// skipped: no build command counts as a successful build, no test command as
// zero tests, no lint command as zero warnings.
type ReviewOpts struct {
	InstallCmd     string
	BuildCmd       string
	TestCmd        string
	LintCmd        string
	BaselineIssues int
}

// Reviewer turns a finished workspace into score Signals.
type Reviewer struct {
	Runner CommandRunner
	Opts   ReviewOpts
	Logger *slog.Logger
}

func NewReviewer(runner CommandRunner, opts ReviewOpts, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{Runner: runner, Opts: opts, Logger: logger}
}

// Review runs build, tests, lint, code metrics and the security scan. Only a
// failure to launch the build command is returned as an error; other stages
// degrade to their worst value with a warning.
func (r *Reviewer) Review(ctx context.Context, workDir string) (Signals, error) {
	var s Signals
	log := r.Logger.With("workdir", workDir)

	s.BuildSuccess = true
	if r.Opts.BuildCmd != "" {
		out, code, err := r.Runner.Run(ctx, workDir, r.Opts.BuildCmd)
		if err != nil {
			return s, fmt.Errorf("running build: %w", err)
		}
		s.BuildSuccess = code == 0
		if !s.BuildSuccess {
			log.Debug("build failed", "exit_code", code, "output", tail(out, 2000))
		}
	}

	if r.Opts.TestCmd != "" {
		tr, err := RunTests(ctx, r.Runner, workDir, r.Opts.InstallCmd, r.Opts.TestCmd)
		if err != nil {
			log.Warn("tests did not run", "error", err)
		} else {
			s.TestsPassed, s.TestsTotal = tr.Passed, tr.Total
		}
	}

	if lr, err := RunLint(ctx, r.Runner, workDir, r.Opts.LintCmd, r.Opts.BaselineIssues); err != nil {
		log.Warn("lint did not run", "error", err)
	} else {
		s.LintWarnings = lr.NetNewIssues
	}

	if mr, err := RunCodeMetrics(workDir); err != nil {
		log.Warn("code metrics failed", "error", err)
	} else {
		s.CodeQuality = mr.Score
	}

	if sr, err := RunSecurityScan(workDir); err != nil {
		log.Warn("security scan failed", "error", err)
	} else {
		s.Security = sr.Score
		for _, f := range sr.Findings {
			log.Debug("security finding", "file", f.File, "line", f.Line, "rule", f.Rule)
		}
	}
	return s, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
