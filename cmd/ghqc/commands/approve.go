package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/protocol"
)

var (
	approveNote    string
	approvePartial bool
)

var approveCmd = &cobra.Command{
	Use:   "approve <issue-number>",
	Short: "Approve an issue, closing it once every blocking QC is satisfied",
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
		t, _, err := a.resolveThread(ctx, issue)
		if err != nil {
			return err
		}
		_, branch, head, err := a.cacheKeyFor(issue)
		if err != nil {
			return err
		}

		result, err := a.orch.Approve(ctx, a.owner, a.repo, n, branch, head,
			t.BlockingQCs, a.client, a.reconstructor(),
			protocol.ApprovalComment{
				Note:                approveNote,
				ApprovedCommit:      head,
				FileContentShortURL: fileAtCommitURL(a.owner, a.repo, branch, shortSHA(head), t.File),
			},
			approvePartial,
		)
		if err != nil {
			return err
		}
		fmt.Println(result.CommentURL)
		if len(result.Skipped) > 0 {
			fmt.Printf("approved with %d blocking QC(s) not yet satisfied\n", len(result.Skipped))
		}
		return nil
	},
}

func shortSHA(hash string) string {
	if len(hash) < 7 {
		return hash
	}
	return hash[:7]
}

func init() {
	approveCmd.Flags().StringVar(&approveNote, "note", "", "free-text note to include in the approval")
	approveCmd.Flags().BoolVar(&approvePartial, "allow-partial", false, "approve even if blocking QCs are not yet satisfied")
	rootCmd.AddCommand(approveCmd)
}
