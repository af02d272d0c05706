package validation

import (
	"context"
	"fmt"
	"strings"
)

type LintResult struct {
	Warnings     int
	NetNewIssues int
	Output       string
	ExitCode     int
}

// RunLint executes the lint command and counts issues above baselineIssues.
func RunLint(ctx context.Context, runner CommandRunner, workDir, lintCmd string, baselineIssues int) (*LintResult, error) {
	if lintCmd == "" {
		return &LintResult{}, nil
	}
	out, code, err := runner.Run(ctx, workDir, lintCmd)
	if err != nil {
		return nil, fmt.Errorf("running lint: %w", err)
	}
	return ParseLintResults(out, code, baselineIssues), nil
}

// ParseLintResults counts issue lines. A failing linter that prints nothing
// recognisable still counts as one issue.
func ParseLintResults(output string, exitCode int, baselineIssues int) *LintResult {
	totalIssues := 0
	for _, line := range strings.Split(output, "\n") {
		if isLintIssue(strings.TrimSpace(line)) {
			totalIssues++
		}
	}
	if totalIssues == 0 && exitCode != 0 {
		totalIssues = 1
	}
	netNew := totalIssues - baselineIssues
	if netNew < 0 {
		netNew = 0
	}
	return &LintResult{Warnings: totalIssues, NetNewIssues: netNew, Output: output, ExitCode: exitCode}
}

func isLintIssue(line string) bool {
	if line == "" {
		return false
	}
	for _, marker := range []string{": error", ": warning", "Error:", "Warning:", ": note:"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	// file.go:12:3: message (go vet, staticcheck, golangci-lint)
	parts := strings.SplitN(line, ":", 4)
	if len(parts) == 4 && strings.Contains(parts[0], ".") && isDigits(parts[1]) && isDigits(parts[2]) {
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
