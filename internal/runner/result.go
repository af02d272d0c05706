package runner

import (
	"time"

	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

// ReasonCircuitOpen is the failure reason of a world skipped by its breaker.
const ReasonCircuitOpen = "circuit open"

// WorldExecutionResult is the outcome of one world's attempt.
type WorldExecutionResult struct {
	World       world.ID                   `json:"world"`
	Model       string                     `json:"model"`
	Temperature float64                    `json:"temperature"`
	Status      Status                     `json:"status"`
	Success     bool                       `json:"success"`
	Score       validation.EvaluationScore `json:"score"`
	SandboxPath string                     `json:"sandbox_path"`
	Branch      string                     `json:"branch"`
	Duration    time.Duration              `json:"duration_ns"`
	CostUSD     float64                    `json:"cost_usd"`
	Tokens      int                        `json:"tokens"`
	Reason      string                     `json:"reason,omitempty"`
	Patch       []byte                     `json:"-"`
}

// FiveWorldsResult holds exactly one result per world and the winner, if any.
type FiveWorldsResult struct {
	RunID     string                             `json:"run_id"`
	TaskID    string                             `json:"task_id"`
	Ticket    int                                `json:"ticket"`
	Mode      Mode                               `json:"mode"`
	Limit     int                                `json:"limit"`
	Results   map[world.ID]*WorldExecutionResult `json:"results"`
	Winner    *world.ID                          `json:"winner,omitempty"`
	StartedAt time.Time                          `json:"started_at"`
	Duration  time.Duration                      `json:"duration_ns"`
}

// WinnerResult returns the winning world's result, or nil.
func (r *FiveWorldsResult) WinnerResult() *WorldExecutionResult {
	if r.Winner == nil {
		return nil
	}
	return r.Results[*r.Winner]
}

// Ordered returns the results in canonical world order.
func (r *FiveWorldsResult) Ordered() []*WorldExecutionResult {
	out := make([]*WorldExecutionResult, 0, world.Count)
	for _, id := range world.All() {
		if res, ok := r.Results[id]; ok {
			out = append(out, res)
		}
	}
	return out
}

// SelectWinner picks the successful result with the highest total. Results
// are scanned in canonical order and only a strictly higher total replaces
// the current best, so ties go to the smaller world.
func SelectWinner(results map[world.ID]*WorldExecutionResult) *world.ID {
	var best *WorldExecutionResult
	for _, id := range world.All() {
		r := results[id]
		if r == nil || !r.Success {
			continue
		}
		if best == nil || r.Score.Total > best.Score.Total {
			best = r
		}
	}
	if best == nil {
		return nil
	}
	id := best.World
	return &id
}
