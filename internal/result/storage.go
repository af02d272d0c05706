// Package result persists run records and breaker state under the results
// directory.
package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalnine/fiveworlds/internal/runner"
	"github.com/signalnine/fiveworlds/internal/world"
)

const (
	RunFile  = "run.json"
	MetaFile = "meta.json"
	DiffFile = "diff.patch"
)

// CreateRunDir makes runs/{timestamp}-issue-{ticket}-{task} under baseDir
// and points baseDir/latest at it.
func CreateRunDir(baseDir string, ticket int, taskID string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, fmt.Sprintf("%s-issue-%d-%s", stamp, ticket, world.Slug(taskID)))
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	// Two runs of the same task within a second get a numeric suffix.
	candidate := runDir
	for n := 2; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("%s-%d", runDir, n)
	}
	runDir = candidate
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

func WorldDir(runDir string, id world.ID) string {
	return filepath.Join(runDir, "worlds", id.Slug())
}

// WriteRun stores run.json, and for every world its meta.json and, when the
// world produced one, diff.patch.
func WriteRun(runDir string, rec *RunRecord, r *runner.FiveWorldsResult) error {
	if err := writeJSON(filepath.Join(runDir, RunFile), rec); err != nil {
		return err
	}
	for _, meta := range rec.Worlds {
		id, err := world.Parse(meta.World)
		if err != nil {
			return err
		}
		dir := WorldDir(runDir, id)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating world dir: %w", err)
		}
		if err := writeJSON(filepath.Join(dir, MetaFile), meta); err != nil {
			return err
		}
		if r == nil {
			continue
		}
		if res := r.Results[id]; res != nil && len(res.Patch) > 0 {
			if err := os.WriteFile(filepath.Join(dir, DiffFile), res.Patch, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", DiffFile, err)
			}
		}
	}
	return nil
}

func ReadRun(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run: %w", err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing run: %w", err)
	}
	return &rec, nil
}

func ReadWorldMeta(path string) (*WorldMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta WorldMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}
