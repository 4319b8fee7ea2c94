package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ridgeline-roofing/conversions-cli/internal/model"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded reconciliation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tRANGE\tSTATUS\tCALLS\tMATCHED\tRATE\tUPLOADED\tFAILED")
	for _, run := range runs {
		uploaded, failed := 0, 0
		for _, u := range run.Uploads {
			uploaded += u.Succeeded
			failed += u.Failed
		}
		fmt.Fprintf(tw, "%s\t%s to %s\t%s\t%d\t%d\t%.1f%%\t%d\t%d\n",
			run.CreatedAt.Format(time.RFC3339),
			run.Range.Start.Format("2006-01-02"),
			run.Range.End.Format("2006-01-02"),
			run.Status,
			run.Calls,
			run.Matched,
			run.MatchRate,
			uploaded,
			failed,
		)
	}
	_ = tw.Flush()
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to list")
	rootCmd.AddCommand(runsCmd)
}
