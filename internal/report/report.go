// Package report summarises stored runs per world.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/fiveworlds/internal/result"
	"github.com/signalnine/fiveworlds/internal/world"
)

type WorldSummary struct {
	World       string  `json:"world"`
	Attempts    int     `json:"attempts"`
	Wins        int     `json:"wins"`
	SuccessRate float64 `json:"success_rate"`
	Skipped     int     `json:"skipped"`
	TimedOut    int     `json:"timed_out"`
	MeanScore   float64 `json:"mean_score"`
	MeanTokens  float64 `json:"mean_tokens"`
	MeanCostUSD float64 `json:"mean_cost_usd"`
}

type RunSummary struct {
	RunID   string  `json:"run_id"`
	TaskID  string  `json:"task_id"`
	Ticket  int     `json:"ticket"`
	Winner  string  `json:"winner"`
	Score   float64 `json:"score"`
	CostUSD float64 `json:"cost_usd"`
}

type Report struct {
	Runs   []RunSummary   `json:"runs"`
	Worlds []WorldSummary `json:"worlds"`
}

// Generate reads every run.json under dir (a single run directory or a
// results tree) and writes the summary in format: table, markdown or json.
func Generate(dir, format string, w io.Writer) error {
	runs, err := collectRuns(dir)
	if err != nil {
		return err
	}
	rep := Build(runs)

	switch format {
	case "markdown":
		return writeMarkdown(rep, w)
	case "json":
		return writeJSON(rep, w)
	case "table", "":
		return writeTable(rep, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func collectRuns(dir string) ([]*result.RunRecord, error) {
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	var runs []*result.RunRecord
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() == result.RunFile && !d.IsDir() {
			rec, err := result.ReadRun(path)
			if err != nil {
				return nil
			}
			runs = append(runs, rec)
		}
		return nil
	})
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, err
}

// Build aggregates runs. Worlds appear in canonical order; mean score is
// taken over successful attempts only.
func Build(runs []*result.RunRecord) *Report {
	type accum struct {
		attempts, wins, succeeded, skipped, timedOut int
		score, tokens, cost                          float64
	}
	var acc [world.Count]accum

	rep := &Report{}
	for _, r := range runs {
		line := RunSummary{RunID: r.RunID, TaskID: r.TaskID, Ticket: r.Ticket, Winner: r.Winner, CostUSD: r.TotalCost()}
		if w := r.WinnerMeta(); w != nil {
			line.Score = w.Score
		}
		rep.Runs = append(rep.Runs, line)

		for _, m := range r.Worlds {
			id, err := world.Parse(m.World)
			if err != nil {
				continue
			}
			a := &acc[id.Index()]
			a.attempts++
			a.tokens += float64(m.TotalTokens)
			a.cost += m.CostUSD
			switch m.Status {
			case "skipped":
				a.skipped++
			case "terminated":
				a.timedOut++
			}
			if m.Success {
				a.succeeded++
				a.score += m.Score
			}
			if m.World == r.Winner {
				a.wins++
			}
		}
	}

	for _, id := range world.All() {
		a := acc[id.Index()]
		s := WorldSummary{World: id.String(), Attempts: a.attempts, Wins: a.wins, Skipped: a.skipped, TimedOut: a.timedOut}
		if a.attempts > 0 {
			s.SuccessRate = float64(a.succeeded) / float64(a.attempts)
			s.MeanTokens = a.tokens / float64(a.attempts)
			s.MeanCostUSD = a.cost / float64(a.attempts)
		}
		if a.succeeded > 0 {
			s.MeanScore = a.score / float64(a.succeeded)
		}
		rep.Worlds = append(rep.Worlds, s)
	}
	return rep
}

func winnerLabel(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func writeTable(rep *Report, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tTASK\tTICKET\tWINNER\tSCORE\tCOST")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, r := range rep.Runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1f\t$%.2f\n",
			shortID(r.RunID), r.TaskID, r.Ticket, winnerLabel(r.Winner), r.Score, r.CostUSD)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "WORLD\tATTEMPTS\tWINS\tSUCCESS\tSKIPPED\tTIMEOUTS\tMEAN SCORE\tMEAN TOKENS\tMEAN COST")
	fmt.Fprintln(tw, strings.Repeat("-", 80))
	for _, s := range rep.Worlds {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\t%d\t%d\t%.1f\t%.0f\t$%.2f\n",
			s.World, s.Attempts, s.Wins, s.SuccessRate*100, s.Skipped, s.TimedOut, s.MeanScore, s.MeanTokens, s.MeanCostUSD)
	}
	return tw.Flush()
}

func writeMarkdown(rep *Report, w io.Writer) error {
	fmt.Fprintln(w, "| Run | Task | Ticket | Winner | Score | Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|")
	for _, r := range rep.Runs {
		fmt.Fprintf(w, "| %s | %s | %d | %s | %.1f | $%.2f |\n",
			shortID(r.RunID), r.TaskID, r.Ticket, winnerLabel(r.Winner), r.Score, r.CostUSD)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| World | Attempts | Wins | Success | Skipped | Timeouts | Mean Score | Mean Tokens | Mean Cost |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|---|---|")
	for _, s := range rep.Worlds {
		fmt.Fprintf(w, "| %s | %d | %d | %.0f%% | %d | %d | %.1f | %.0f | $%.2f |\n",
			s.World, s.Attempts, s.Wins, s.SuccessRate*100, s.Skipped, s.TimedOut, s.MeanScore, s.MeanTokens, s.MeanCostUSD)
	}
	return nil
}

func writeJSON(rep *Report, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
