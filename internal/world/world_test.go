package world_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/fiveworlds/internal/world"
)

func TestAllIsCanonicalOrder(t *testing.T) {
	want := []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon"}
	all := world.All()
	if len(all) != world.Count {
		t.Fatalf("got %d worlds, want %d", len(all), world.Count)
	}
	for i, id := range all {
		if id.String() != want[i] {
			t.Errorf("world %d: got %q, want %q", i, id, want[i])
		}
		if id.Index() != i {
			t.Errorf("%s index: got %d, want %d", id, id.Index(), i)
		}
		if i > 0 && !all[i-1].Less(id) {
			t.Errorf("%s should sort before %s", all[i-1], id)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    world.ID
		wantErr bool
	}{
		{"Alpha", world.Alpha, false},
		{"gamma", world.Gamma, false},
		{" EPSILON ", world.Epsilon, false},
		{"zeta", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := world.Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDefaultConfigDeterministic(t *testing.T) {
	a := world.DefaultConfig(world.Delta, "TASK-7", 42, "/sandboxes", "ab12")
	b := world.DefaultConfig(world.Delta, "TASK-7", 42, "/sandboxes", "ab12")
	if a != b {
		t.Fatalf("configs differ: %+v vs %+v", a, b)
	}
	if a.SandboxPath != filepath.Join("/sandboxes", "delta-issue-42-task-7-ab12") {
		t.Errorf("sandbox path: got %q", a.SandboxPath)
	}
	if a.Branch != "fiveworlds/delta-issue-42-task-7-ab12" {
		t.Errorf("branch: got %q", a.Branch)
	}
	if a.Model != world.DefaultGeneration(world.Delta).Model {
		t.Errorf("model: got %q", a.Model)
	}
}

func TestDefaultConfigsDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, id := range world.All() {
		cfg := world.DefaultConfig(id, "t1", 1, "/s", "")
		if seen[cfg.SandboxPath] {
			t.Errorf("duplicate sandbox path %q", cfg.SandboxPath)
		}
		seen[cfg.SandboxPath] = true
	}
}

func TestSandboxNameNeverCollidesAcrossTasksOrTickets(t *testing.T) {
	names := map[string]bool{}
	for _, ticket := range []int{1, 11, 111} {
		for _, task := range []string{"a", "a-1", "b"} {
			n := world.SandboxName(world.Alpha, ticket, task, "")
			if names[n] {
				t.Errorf("collision: %q", n)
			}
			names[n] = true
		}
	}
	if world.SandboxName(world.Alpha, 3, "x", "r1") == world.SandboxName(world.Alpha, 3, "x", "r2") {
		t.Error("run tags should produce distinct names")
	}
}

func TestIsIssueSandbox(t *testing.T) {
	tests := []struct {
		name   string
		ticket int
		want   bool
	}{
		{"alpha-issue-1-task", 1, true},
		{"epsilon-issue-1-task-abc", 1, true},
		{"alpha-issue-12-task", 1, false},
		{"zeta-issue-1-task", 1, false},
		{"alpha-issue-12-task", 12, true},
	}
	for _, tt := range tests {
		if got := world.IsIssueSandbox(tt.name, tt.ticket); got != tt.want {
			t.Errorf("IsIssueSandbox(%q, %d) = %v, want %v", tt.name, tt.ticket, got, tt.want)
		}
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"TASK-7":          "task-7",
		"feat/login page": "feat-login-page",
		"--x--":           "x",
		"../escape":       "escape",
		"":                "",
	}
	for in, want := range tests {
		if got := world.Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyOverride(t *testing.T) {
	temp := 0.9
	cfg := world.DefaultConfig(world.Beta, "t", 1, "/s", "")
	got := cfg.Apply(world.Override{Model: "custom", Temperature: &temp})
	if got.Model != "custom" || got.Temperature != 0.9 {
		t.Errorf("override not applied: %+v", got)
	}
	if got.SandboxPath != cfg.SandboxPath {
		t.Error("override must not change the sandbox path")
	}
	kept := cfg.Apply(world.Override{})
	if kept != cfg {
		t.Errorf("empty override changed config: %+v", kept)
	}
}

func TestLoadTask(t *testing.T) {
	path := filepath.Join(t.TempDir(), "task.yaml")
	os.WriteFile(path, []byte("id: T-1\ntitle: Add login\ndescription: do it\ntype: feature\npriority: high\n"), 0o644)
	task, err := world.LoadTask(path)
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if task.ID != "T-1" || task.Title != "Add login" || task.Priority != "high" {
		t.Errorf("unexpected task: %+v", task)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("title: no id\n"), 0o644)
	if _, err := world.LoadTask(bad); err == nil {
		t.Error("expected error for task without id")
	}
}
