package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/fiveworlds/internal/report"
)

var (
	flagFormat string
	flagLatest bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Summarize stored run results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.Results.Dir
			switch {
			case len(args) > 0:
				dir = args[0]
			case flagLatest:
				dir = filepath.Join(dir, "latest")
			}
			return report.Generate(dir, flagFormat, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().BoolVar(&flagLatest, "latest", false, "only the most recent run")
	return cmd
}
