package validation

import (
	"context"
	"fmt"
	"strings"
)

type TestResult struct {
	Passed   int
	Total    int
	Output   string
	ExitCode int
}

// Ratio is Passed/Total, or 0 when no tests were counted.
func (r *TestResult) Ratio() float64 {
	return passRatio(r.Passed, r.Total)
}

// RunTests runs the optional install command and then the test command.
func RunTests(ctx context.Context, runner CommandRunner, workDir, installCmd, testCmd string) (*TestResult, error) {
	if installCmd != "" {
		if out, code, err := runner.Run(ctx, workDir, installCmd); err != nil {
			return nil, fmt.Errorf("running install: %w", err)
		} else if code != 0 {
			return &TestResult{Output: out, ExitCode: code}, nil
		}
	}

	out, code, err := runner.Run(ctx, workDir, testCmd)
	if err != nil {
		return nil, fmt.Errorf("running tests: %w", err)
	}
	return ParseTestResults(out, code), nil
}

// ParseTestResults extracts pass/total counts from test output. When no
// counts can be found the exit code decides: 0 is one passing suite, anything
// else one failing suite.
func ParseTestResults(output string, exitCode int) *TestResult {
	passed, total, ok := parseCounts(output)
	if !ok {
		total = 1
		if exitCode == 0 {
			passed = 1
		}
	}
	return &TestResult{Passed: passed, Total: total, Output: output, ExitCode: exitCode}
}

func parseCounts(output string) (passed, total int, ok bool) {
	if strings.Contains(output, "<testsuite") {
		return parseJUnitXML(output)
	}
	if p, t, ok := parseGoVerbose(output); ok {
		return p, t, true
	}

	for _, line := range strings.Split(output, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "= ")
		var p, f int
		if n, _ := fmt.Sscanf(line, "%d passed", &p); n == 1 {
			fmt.Sscanf(line, "%d passed, %d failed", &p, &f)
			if p+f > 0 {
				return p, p + f, true
			}
		}
		if n, _ := fmt.Sscanf(line, "Tests: %d failed, %d passed", &f, &p); n == 2 {
			return p, p + f, true
		}
		if n, _ := fmt.Sscanf(line, "Tests: %d passed", &p); n == 1 && p > 0 {
			return p, p, true
		}
	}
	return 0, 0, false
}

// parseGoVerbose counts `go test -v` result lines for top-level tests.
func parseGoVerbose(output string) (passed, total int, ok bool) {
	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "--- PASS"):
			passed++
			total++
		case strings.HasPrefix(line, "--- FAIL"):
			total++
		}
	}
	return passed, total, total > 0
}

// parseJUnitXML sums every <testsuite> element in the report.
func parseJUnitXML(output string) (passed, total int, ok bool) {
	var failed int
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "<testsuite ") && !strings.Contains(line, "<testsuite>") {
			continue
		}
		var tests, failures, errs int
		fmt.Sscanf(extractAttr(line, "tests"), "%d", &tests)
		fmt.Sscanf(extractAttr(line, "failures"), "%d", &failures)
		fmt.Sscanf(extractAttr(line, "errors"), "%d", &errs)
		total += tests
		failed += failures + errs
	}
	if total == 0 {
		return 0, 0, false
	}
	passed = total - failed
	if passed < 0 {
		passed = 0
	}
	return passed, total, true
}

func extractAttr(line, attr string) string {
	key := " " + attr + `="`
	idx := strings.Index(line, key)
	if idx < 0 {
		return ""
	}
	start := idx + len(key)
	end := strings.Index(line[start:], `"`)
	if end < 0 {
		return ""
	}
	return line[start : start+end]
}
