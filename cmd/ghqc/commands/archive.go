package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/archive"
	"github.com/a2-ai/ghqc/internal/blocking"
	"github.com/a2-ai/ghqc/internal/qcstatus"
)

var archiveOutDir string

var archiveCmd = &cobra.Command{
	Use:   "archive <milestone-number>",
	Short: "Bundle every issue in a milestone into a dated archive",
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

		var records []archive.FileRecord
		for _, issue := range issues {
			t, status, err := a.resolveThread(ctx, issue)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping #%d: %v\n", issue.Number, err)
				continue
			}
			summary := sumChecklistSections(qcstatus.AnalyzeChecklists(issue.Body))
			blockingSummary := "n/a"
			if len(t.BlockingQCs) > 0 {
				bs := blocking.Resolve(ctx, a.owner, a.repo, t.BlockingQCs, a.client, a.reconstructor(), nil)
				blockingSummary = bs.Summary()
			}
			records = append(records, archive.FileRecord{
				File:             t.File,
				Status:           status,
				ChecklistSummary: summary,
				BlockingSummary:  blockingSummary,
			})
		}

		bundle := archive.Build(n, records, nil)
		dir, tarPath, err := archive.Write(archiveOutDir, bundle)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n%s\n", dir, tarPath)
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVar(&archiveOutDir, "out", ".", "directory the archive bundle is written under")
	rootCmd.AddCommand(archiveCmd)
}
