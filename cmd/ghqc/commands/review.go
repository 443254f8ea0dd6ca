package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/protocol"
)

var reviewNote string

var reviewCmd = &cobra.Command{
	Use:   "review <issue-number>",
	Short: "Post a QC review comment requesting changes",
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

		var diffBlock string
		if initial := t.InitialCommit(); initial != nil && initial.Hash != head {
			diffBlock, err = diffAgainst(a, t.File, initial.Hash, head)
			if err != nil {
				return err
			}
		}

		url, err := a.orch.Review(ctx, a.owner, a.repo, n, branch, head, protocol.ReviewComment{
			IssueAuthor:     issue.CreatedBy,
			Note:            reviewNote,
			ComparingCommit: head,
			FileAtCommitURL: fileAtCommitURL(a.owner, a.repo, branch, head, t.File),
			DiffBlock:       diffBlock,
		})
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

func fileAtCommitURL(owner, repo, branch, commit, file string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, commit, file)
}

func init() {
	reviewCmd.Flags().StringVar(&reviewNote, "note", "", "free-text note describing the requested changes")
	rootCmd.AddCommand(reviewCmd)
}
