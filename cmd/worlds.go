package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/result"
	"github.com/signalnine/fiveworlds/internal/world"
)

func newWorldsCmd() *cobra.Command {
	var ticket int
	cmd := &cobra.Command{
		Use:   "worlds",
		Short: "List world configurations, or a ticket's sandboxes with --ticket",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("ticket") {
				mgr, err := newManager(cmd.Context())
				if err != nil {
					return err
				}
				names, err := mgr.List(ticket)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintf(out, "No sandboxes for issue %d\n", ticket)
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
				return nil
			}

			reg := breaker.NewRegistry(cfg.Breaker)
			if err := result.NewBreakerStore(cfg.Results.Dir).Load(reg); err != nil {
				return err
			}
			states := reg.States()
			overrides := cfg.Overrides()

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "WORLD\tMODEL\tTEMPERATURE\tBREAKER")
			for _, id := range world.All() {
				c := world.DefaultConfig(id, "", 0, cfg.SandboxRoot, "").Apply(overrides[id])
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", id, c.Model, c.Temperature, states[id])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&ticket, "ticket", 0, "list sandboxes belonging to this issue")
	return cmd
}
