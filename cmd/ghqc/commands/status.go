package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/blocking"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/qcstatus"
)

// sumChecklistSections reduces AnalyzeChecklists' per-section map to one
// file-level total.
func sumChecklistSections(sections map[string]model.ChecklistSummary) model.ChecklistSummary {
	summaries := make([]model.ChecklistSummary, 0, len(sections))
	for _, s := range sections {
		summaries = append(summaries, s)
	}
	return model.SumAll(summaries)
}

var statusCmd = &cobra.Command{
	Use:   "status <issue-number>",
	Short: "Show the derived QC status of one issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number %q", args[0])
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		issue, err := fetchIssue(ctx, a, n)
		if err != nil {
			return err
		}
		thread, status, err := a.resolveThread(ctx, issue)
		if err != nil {
			return err
		}

		summary := sumChecklistSections(qcstatus.AnalyzeChecklists(issue.Body))

		blockingSummary := "n/a"
		if len(thread.BlockingQCs) > 0 {
			blockingStatus := blocking.Resolve(ctx, a.owner, a.repo, thread.BlockingQCs, a.client, a.reconstructor(), nil)
			blockingSummary = blockingStatus.Summary()
		}
		printStatusLine(n, thread.File, status, summary, blockingSummary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
