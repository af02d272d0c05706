package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

)

func newCleanupCmd() *cobra.Command {
	var ticket int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove every sandbox and branch belonging to an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager(cmd.Context())
			if err != nil {
				return err
			}
			before, err := mgr.List(ticket)
			if err != nil {
				return err
			}
			if err := mgr.CleanupAllWorldsForIssue(cmd.Context(), ticket); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sandboxes for issue %d\n", len(before), ticket)
			return nil
		},
	}
	cmd.Flags().IntVar(&ticket, "ticket", 0, "issue number to clean up")
	_ = cmd.MarkFlagRequired("ticket")
	return cmd
}
