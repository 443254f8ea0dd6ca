package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/a2-ai/ghqc/internal/config"
	"github.com/a2-ai/ghqc/internal/orchestrator"
)

var (
	createChecklist     string
	createAuthor        string
	createAuthorEmail   string
	createAssignees     []string
	createCollaborators []string
	createMilestone     string
)

var createCmd = &cobra.Command{
	Use:   "create <file>",
	Short: "Create a new QC issue for a file at the current commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file := args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		checklists, err := config.LoadChecklists(checklistDir())
		if err != nil {
			return err
		}
		cl, ok := checklists[createChecklist]
		if !ok {
			return fmt.Errorf("unknown checklist %q (available: %s)", createChecklist, availableChecklists(checklists))
		}

		branch, err := a.localRepo.CurrentBranch()
		if err != nil {
			return err
		}
		head, err := a.localRepo.HeadCommit()
		if err != nil {
			return err
		}

		spec := orchestrator.CreateIssueSpec{
			File:           file,
			Branch:         branch,
			BranchURL:      fmt.Sprintf("https://github.com/%s/%s/tree/%s", a.owner, a.repo, branch),
			InitialCommit:  head,
			Author:         createAuthor,
			AuthorEmail:    createAuthorEmail,
			Collaborators:  createCollaborators,
			FileContentURL: fileAtCommitURL(a.owner, a.repo, branch, head, file),
			ChecklistName:  cl.Name,
			ChecklistBody:  cl.Body,
			Assignees:      createAssignees,
			MilestoneTitle: createMilestone,
		}

		issue, errs := a.orch.CreateIssue(ctx, a.owner, a.repo, spec)
		for _, e := range errs {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning:", e)
		}
		if issue == nil {
			return fmt.Errorf("issue creation failed")
		}
		fmt.Printf("#%d %s\n", issue.Number, issueURLFor(a, issue.Number))
		return nil
	},
}

func issueURLFor(a *app, number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", a.owner, a.repo, number)
}

func checklistDir() string {
	return configDir + "/checklists"
}

func availableChecklists(m map[string]config.Checklist) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

func init() {
	createCmd.Flags().StringVar(&createChecklist, "checklist", "", "checklist name to attach (required)")
	createCmd.Flags().StringVar(&createAuthor, "author", "", "issue author display name")
	createCmd.Flags().StringVar(&createAuthorEmail, "author-email", "", "issue author email")
	createCmd.Flags().StringSliceVar(&createAssignees, "assignee", nil, "GitHub login to assign (repeatable)")
	createCmd.Flags().StringSliceVar(&createCollaborators, "collaborator", nil, "collaborator name to list in the issue metadata (repeatable)")
	createCmd.Flags().StringVar(&createMilestone, "milestone", "", "milestone title to attach the issue to")
	_ = createCmd.MarkFlagRequired("checklist")
	rootCmd.AddCommand(createCmd)
}
