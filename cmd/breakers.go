package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/result"
	"github.com/signalnine/fiveworlds/internal/world"
)

func newBreakersCmd() *cobra.Command {
	var reset bool
	var only string
	cmd := &cobra.Command{
		Use:   "breakers",
		Short: "Show or reset the per-world circuit breakers",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := breaker.NewRegistry(cfg.Breaker)
			store := result.NewBreakerStore(cfg.Results.Dir)
			if err := store.Load(reg); err != nil {
				return err
			}

			if reset {
				all := world.All()
				targets := all[:]
				if only != "" {
					id, err := world.Parse(only)
					if err != nil {
						return err
					}
					targets = []world.ID{id}
				}
				for _, id := range targets {
					reg.For(id).Reset()
				}
				if err := store.Save(reg); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WORLD\tSTATE\tFAILURES\tLAST FAILURE")
			snap := reg.Snapshot()
			for _, id := range world.All() {
				c := snap[id]
				last := "-"
				if !c.LastFailure.IsZero() {
					last = c.LastFailure.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", id, c.State, c.ConsecutiveFailures, last)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "close the breakers and clear their failure counts")
	cmd.Flags().StringVar(&only, "world", "", "limit --reset to one world")
	return cmd
}
