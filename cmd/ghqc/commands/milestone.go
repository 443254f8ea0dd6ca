package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/blocking"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/qcstatus"
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone <milestone-number>",
	Short: "Show the derived QC status of every issue in a milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid milestone number %q", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		issues, err := a.client.IssuesByMilestone(ctx, a.owner, a.repo, n, "all")
		if err != nil {
			return err
		}

		var total model.ChecklistSummary
		for _, issue := range issues {
			t, status, err := a.resolveThread(ctx, issue)
			if err != nil {
				fmt.Printf("#%-6d error: %v\n", issue.Number, err)
				continue
			}
			summary := sumChecklistSections(qcstatus.AnalyzeChecklists(issue.Body))
			total = total.Sum(summary)

			blockingSummary := "n/a"
			if len(t.BlockingQCs) > 0 {
				bs := blocking.Resolve(ctx, a.owner, a.repo, t.BlockingQCs, a.client, a.reconstructor(), nil)
				blockingSummary = bs.Summary()
			}
			printStatusLine(issue.Number, t.File, status, summary, blockingSummary)
		}

		fmt.Printf("\ntotal checklist progress: %d/%d (%.0f%%)\n", total.Completed, total.Total, total.CompletionPercentage())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(milestoneCmd)
}
