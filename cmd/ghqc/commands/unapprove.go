package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/protocol"
)

var unapproveReason string

var unapproveCmd = &cobra.Command{
	Use:   "unapprove <issue-number>",
	Short: "Reopen a previously approved issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number %q", args[0])
		}
		if unapproveReason == "" {
			return fmt.Errorf("--reason is required")
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
		_, branch, head, err := a.cacheKeyFor(issue)
		if err != nil {
			return err
		}

		url, err := a.orch.Unapprove(ctx, a.owner, a.repo, n, branch, head, protocol.UnapprovalComment{
			Reason:      unapproveReason,
			IssueNumber: n,
		})
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

func init() {
	unapproveCmd.Flags().StringVar(&unapproveReason, "reason", "", "reason the approval is being revoked (required)")
	rootCmd.AddCommand(unapproveCmd)
}
