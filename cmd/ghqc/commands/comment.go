package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/diffutil"
	"github.com/a2-ai/ghqc/internal/protocol"
)

var commentNote string

var commentCmd = &cobra.Command{
	Use:   "comment <issue-number>",
	Short: "Post a QC notification comment for the current commit",
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

		var previous string
		var diffBlock string
		if latest := t.LatestCommit(); latest != nil && latest.Hash != head {
			previous = latest.Hash
			diffBlock, err = diffAgainst(a, t.File, previous, head)
			if err != nil {
				return err
			}
		}

		url, err := a.orch.PostComment(ctx, a.owner, a.repo, n, branch, head, protocol.NotificationComment{
			Assignees:      issue.Assignees,
			Note:           commentNote,
			CurrentCommit:  head,
			PreviousCommit: previous,
			CompareURL:     compareURL(a.owner, a.repo, previous, head),
			DiffBlock:      diffBlock,
		})
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

// diffAgainst reads file at the from and to commits and renders the §4.10
// diff block, tolerating a missing file at either side (new/removed file).
func diffAgainst(a *app, file, from, to string) (string, error) {
	fromBytes, err := a.localRepo.FileBytesAtCommit(file, from)
	if err != nil {
		fromBytes = nil
	}
	toBytes, err := a.localRepo.FileBytesAtCommit(file, to)
	if err != nil {
		toBytes = nil
	}
	return diffutil.Diff(fromBytes, toBytes, file)
}

func compareURL(owner, repo, from, to string) string {
	if from == "" {
		return ""
	}
	return fmt.Sprintf("https://github.com/%s/%s/compare/%s...%s", owner, repo, from, to)
}

func init() {
	commentCmd.Flags().StringVar(&commentNote, "note", "", "free-text note to include in the notification")
	rootCmd.AddCommand(commentCmd)
}
