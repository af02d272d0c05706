package validation_test

import (
	"testing"

	"github.com/signalnine/fiveworlds/internal/validation"
)

func TestParseTestOutput(t *testing.T) {
	result := validation.ParseTestResults(`===== 8 passed, 2 failed =====`, 1)
	if result.Passed != 8 || result.Total != 10 {
		t.Errorf("counts: got %d/%d, want 8/10", result.Passed, result.Total)
	}
}

func TestParseTestOutputAllPass(t *testing.T) {
	result := validation.ParseTestResults("", 0)
	if result.Ratio() != 1.0 {
		t.Errorf("ratio: got %f, want 1.0", result.Ratio())
	}
}

func TestParseTestOutputAllFail(t *testing.T) {
	result := validation.ParseTestResults("", 1)
	if result.Ratio() != 0.0 {
		t.Errorf("ratio: got %f, want 0.0", result.Ratio())
	}
}

func TestParseTestOutputJUnit(t *testing.T) {
	output := `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
<testsuite name="a" tests="10" failures="2" errors="1" time="1.234">
</testsuite>
<testsuite name="b" tests="5" failures="0" errors="0">
</testsuite>
</testsuites>`
	result := validation.ParseTestResults(output, 1)
	if result.Passed != 12 || result.Total != 15 {
		t.Errorf("counts: got %d/%d, want 12/15", result.Passed, result.Total)
	}
}

func TestParseTestOutputGoVerbose(t *testing.T) {
	output := `=== RUN   TestA
--- PASS: TestA (0.00s)
=== RUN   TestB
    --- PASS: TestB/sub (0.00s)
--- FAIL: TestB (0.00s)
--- PASS: TestC (0.00s)
FAIL`
	result := validation.ParseTestResults(output, 1)
	if result.Passed != 2 || result.Total != 3 {
		t.Errorf("counts: got %d/%d, want 2/3", result.Passed, result.Total)
	}
}

func TestParseTestOutputJest(t *testing.T) {
	result := validation.ParseTestResults("Tests: 1 failed, 4 passed, 5 total", 1)
	if result.Passed != 4 || result.Total != 5 {
		t.Errorf("counts: got %d/%d, want 4/5", result.Passed, result.Total)
	}
}

func TestParseLintOutput(t *testing.T) {
	output := "main.go:10:2: unused variable x\nsrc/a.ts:3:1: warning no-console\nall done"
	result := validation.ParseLintResults(output, 1, 0)
	if result.Warnings != 2 {
		t.Errorf("warnings: got %d, want 2", result.Warnings)
	}
	withBaseline := validation.ParseLintResults(output, 1, 5)
	if withBaseline.NetNewIssues != 0 {
		t.Errorf("net new issues: got %d, want 0", withBaseline.NetNewIssues)
	}
}

func TestParseLintOutputClean(t *testing.T) {
	result := validation.ParseLintResults("", 0, 0)
	if result.Warnings != 0 {
		t.Errorf("warnings: got %d, want 0", result.Warnings)
	}
}

func TestParseLintOutputFailingWithoutIssues(t *testing.T) {
	result := validation.ParseLintResults("linter crashed", 2, 0)
	if result.NetNewIssues != 1 {
		t.Errorf("net new: got %d, want 1", result.NetNewIssues)
	}
}
