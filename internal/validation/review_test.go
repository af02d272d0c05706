package validation_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/fiveworlds/internal/validation"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRunCodeMetrics(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n\nfunc A() {}\n")
	writeFile(t, dir, "b.go", "package a\n// comment\nfunc B() {}\n")
	writeFile(t, dir, "c/c.py", "def c():\n    pass\n")
	writeFile(t, dir, "a_test.go", "package a\n")
	writeFile(t, dir, "node_modules/x/index.js", strings.Repeat("x()\n", 1000))

	m, err := validation.RunCodeMetrics(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, m.FileCount)
	assert.Equal(t, 1, m.TestFileCount)
	assert.InDelta(t, 0.9, m.Score, 1e-9)
}

func TestRunCodeMetricsMonolith(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", strings.Repeat("x := 1\n", 900))
	m, err := validation.RunCodeMetrics(dir)
	require.NoError(t, err)
	assert.Equal(t, 900, m.MaxFileLOC)
	assert.InDelta(t, 0.1, m.Score, 1e-9)
}

func TestRunSecurityScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clean.go", "package main\n\nfunc main() {}\n")
	clean, err := validation.RunSecurityScan(dir)
	require.NoError(t, err)
	assert.Equal(t, 1.0, clean.Score)
	assert.Empty(t, clean.Findings)

	writeFile(t, dir, "bad.go", "package main\n\nconst apiKey = \"sk-live-123456789\"\nvar tls = Config{InsecureSkipVerify: true}\n")
	writeFile(t, dir, "bad_test.go", "const password = \"hunter2hunter2\"\n")
	dirty, err := validation.RunSecurityScan(dir)
	require.NoError(t, err)
	assert.Len(t, dirty.Findings, 2)
	assert.InDelta(t, 0.6, dirty.Score, 1e-9)
}

type fakeCommands map[string]struct {
	out  string
	code int
}

func (f fakeCommands) Run(ctx context.Context, workDir, command string) (string, int, error) {
	r := f[command]
	return r.out, r.code, nil
}

func TestReviewerCollectsSignals(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n")
	runner := fakeCommands{
		"make build": {"", 0},
		"make test":  {"3 passed, 1 failed", 1},
		"make lint":  {"main.go:1:1: exported thing", 1},
	}
	r := validation.NewReviewer(runner, validation.ReviewOpts{
		BuildCmd: "make build",
		TestCmd:  "make test",
		LintCmd:  "make lint",
	}, nil)

	s, err := r.Review(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, s.BuildSuccess)
	assert.Equal(t, 3, s.TestsPassed)
	assert.Equal(t, 4, s.TestsTotal)
	assert.Equal(t, 1, s.LintWarnings)
	assert.Equal(t, 1.0, s.Security)
	assert.Greater(t, s.CodeQuality, 0.0)
}

func TestReviewerFailedBuild(t *testing.T) {
	runner := fakeCommands{"make build": {"boom", 2}}
	r := validation.NewReviewer(runner, validation.ReviewOpts{BuildCmd: "make build"}, nil)
	s, err := r.Review(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.False(t, s.BuildSuccess)
}

func TestLocalCommand(t *testing.T) {
	dir := t.TempDir()
	out, code, err := validation.LocalCommand{}.Run(context.Background(), dir, "echo hi && exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, "hi\n", out)
}
