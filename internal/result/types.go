package result

import (
	"time"

	"github.com/signalnine/fiveworlds/internal/runner"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

// RunRecord is the persisted summary of one five-worlds run.
type RunRecord struct {
	RunID      string      `json:"run_id"`
	TaskID     string      `json:"task_id"`
	Title      string      `json:"title,omitempty"`
	Ticket     int         `json:"ticket"`
	Mode       string      `json:"mode"`
	Limit      int         `json:"limit"`
	Winner     string      `json:"winner,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Worlds     []WorldMeta `json:"worlds"`
}

// WorldMeta is one world's entry in a run record and its meta.json.
type WorldMeta struct {
	World       string             `json:"world"`
	Model       string             `json:"model"`
	Temperature float64            `json:"temperature"`
	Status      string             `json:"status"`
	Success     bool               `json:"success"`
	Score       float64            `json:"score"`
	Signals     validation.Signals `json:"signals"`
	DurationMS  int64              `json:"duration_ms"`
	TotalTokens int                `json:"total_tokens"`
	CostUSD     float64            `json:"total_cost_usd"`
	Reason      string             `json:"reason,omitempty"`
	Branch      string             `json:"branch"`
	SandboxPath string             `json:"sandbox_path"`
	Kept        bool               `json:"kept"`
}

// FromRun converts an executor result into its persisted form.
func FromRun(task world.Task, r *runner.FiveWorldsResult) *RunRecord {
	rec := &RunRecord{
		RunID:      r.RunID,
		TaskID:     r.TaskID,
		Title:      task.Title,
		Ticket:     r.Ticket,
		Mode:       string(r.Mode),
		Limit:      r.Limit,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Winner != nil {
		rec.Winner = r.Winner.String()
	}
	for _, w := range r.Ordered() {
		rec.Worlds = append(rec.Worlds, WorldMeta{
			World:       w.World.String(),
			Model:       w.Model,
			Temperature: w.Temperature,
			Status:      string(w.Status),
			Success:     w.Success,
			Score:       w.Score.Total,
			Signals:     w.Score.Signals,
			DurationMS:  w.Duration.Milliseconds(),
			TotalTokens: w.Tokens,
			CostUSD:     w.CostUSD,
			Reason:      w.Reason,
			Branch:      w.Branch,
			SandboxPath: w.SandboxPath,
			Kept:        r.Winner != nil && *r.Winner == w.World,
		})
	}
	return rec
}

// TotalCost sums every world's cost.
func (r *RunRecord) TotalCost() float64 {
	var c float64
	for _, w := range r.Worlds {
		c += w.CostUSD
	}
	return c
}

// WinnerMeta returns the winning world's entry, or nil.
func (r *RunRecord) WinnerMeta() *WorldMeta {
	for i := range r.Worlds {
		if r.Worlds[i].World == r.Winner {
			return &r.Worlds[i]
		}
	}
	return nil
}
