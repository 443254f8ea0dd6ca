package commands

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/a2-ai/ghqc/internal/archive"
	"github.com/a2-ai/ghqc/internal/blocking"
	"github.com/a2-ai/ghqc/internal/httpapi"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/orchestrator"
	"github.com/a2-ai/ghqc/internal/protocol"
	"github.com/a2-ai/ghqc/internal/qcstatus"
)

// milestoneFetchConcurrency bounds how many issues the milestone batch
// views resolve at once; each resolution does its own platform/disk reads
// so unbounded fan-out would hammer the API on large milestones.
const milestoneFetchConcurrency = 8

var (
	serveAddr    string
	serveArchive string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API backing the interactive front-end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		deps := &httpapi.Deps{
			Owner:    a.owner,
			Repo:     a.repo,
			RepoRoot: a.localRepo.Path(),
			Log:      a.log,

			GetIssueStatus:     func(ctx context.Context, n int) (httpapi.IssueStatusView, error) { return issueStatusView(ctx, a, n) },
			GetMilestoneStatus: func(ctx context.Context, n int) ([]httpapi.IssueStatusView, error) { return milestoneStatusViews(ctx, a, n) },
			PreviewIssueBody: func(ctx context.Context, spec orchestrator.CreateIssueSpec) (string, error) {
				return previewIssueBody(spec), nil
			},

			PostComment: func(ctx context.Context, n int, note string) (string, error) {
				issue, err := fetchIssue(ctx, a, n)
				if err != nil {
					return "", err
				}
				t, _, err := a.resolveThread(ctx, issue)
				if err != nil {
					return "", err
				}
				_, branch, head, err := a.cacheKeyFor(issue)
				if err != nil {
					return "", err
				}
				var previous, diffBlock string
				if latest := t.LatestCommit(); latest != nil && latest.Hash != head {
					previous = latest.Hash
					diffBlock, _ = diffAgainst(a, t.File, previous, head)
				}
				return a.orch.PostComment(ctx, a.owner, a.repo, n, branch, head, protocol.NotificationComment{
					Assignees:      issue.Assignees,
					Note:           note,
					CurrentCommit:  head,
					PreviousCommit: previous,
					CompareURL:     compareURL(a.owner, a.repo, previous, head),
					DiffBlock:      diffBlock,
				})
			},
			Review: func(ctx context.Context, n int, note string) (string, error) {
				issue, err := fetchIssue(ctx, a, n)
				if err != nil {
					return "", err
				}
				t, _, err := a.resolveThread(ctx, issue)
				if err != nil {
					return "", err
				}
				_, branch, head, err := a.cacheKeyFor(issue)
				if err != nil {
					return "", err
				}
				var diffBlock string
				if initial := t.InitialCommit(); initial != nil && initial.Hash != head {
					diffBlock, _ = diffAgainst(a, t.File, initial.Hash, head)
				}
				return a.orch.Review(ctx, a.owner, a.repo, n, branch, head, protocol.ReviewComment{
					IssueAuthor:     issue.CreatedBy,
					Note:            note,
					ComparingCommit: head,
					FileAtCommitURL: fileAtCommitURL(a.owner, a.repo, branch, head, t.File),
					DiffBlock:       diffBlock,
				})
			},
			Approve: func(ctx context.Context, n int, note string, allowPartial bool) (orchestrator.ApproveResult, error) {
				issue, err := fetchIssue(ctx, a, n)
				if err != nil {
					return orchestrator.ApproveResult{}, err
				}
				t, _, err := a.resolveThread(ctx, issue)
				if err != nil {
					return orchestrator.ApproveResult{}, err
				}
				_, branch, head, err := a.cacheKeyFor(issue)
				if err != nil {
					return orchestrator.ApproveResult{}, err
				}
				return a.orch.Approve(ctx, a.owner, a.repo, n, branch, head, t.BlockingQCs, a.client, a.reconstructor(),
					protocol.ApprovalComment{
						Note:                note,
						ApprovedCommit:      head,
						FileContentShortURL: fileAtCommitURL(a.owner, a.repo, branch, shortSHA(head), t.File),
					}, allowPartial)
			},
			Unapprove: func(ctx context.Context, n int, reason string) (string, error) {
				issue, err := fetchIssue(ctx, a, n)
				if err != nil {
					return "", err
				}
				_, branch, head, err := a.cacheKeyFor(issue)
				if err != nil {
					return "", err
				}
				return a.orch.Unapprove(ctx, a.owner, a.repo, n, branch, head, protocol.UnapprovalComment{Reason: reason, IssueNumber: n})
			},

			ArchiveMilestone: func(ctx context.Context, n int) (string, string, error) {
				issues, err := a.client.IssuesByMilestone(ctx, a.owner, a.repo, n, "all")
				if err != nil {
					return "", "", err
				}
				var records []archive.FileRecord
				for _, issue := range issues {
					t, status, err := a.resolveThread(ctx, issue)
					if err != nil {
						continue
					}
					summary := sumChecklistSections(qcstatus.AnalyzeChecklists(issue.Body))
					blockingSummary := "n/a"
					if len(t.BlockingQCs) > 0 {
						bs := blocking.Resolve(ctx, a.owner, a.repo, t.BlockingQCs, a.client, a.reconstructor(), nil)
						blockingSummary = bs.Summary()
					}
					records = append(records, archive.FileRecord{File: t.File, Status: status, ChecklistSummary: summary, BlockingSummary: blockingSummary})
				}
				bundle := archive.Build(n, records, nil)
				return archive.Write(serveArchive, bundle)
			},
		}

		router := httpapi.NewRouter(deps)
		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		a.log.WithField("addr", serveAddr).Info("ghqc: serving http api")
		return srv.ListenAndServe()
	},
}

func issueStatusView(ctx context.Context, a *app, n int) (httpapi.IssueStatusView, error) {
	issue, err := fetchIssue(ctx, a, n)
	if err != nil {
		return httpapi.IssueStatusView{}, err
	}
	t, status, err := a.resolveThread(ctx, issue)
	if err != nil {
		return httpapi.IssueStatusView{}, err
	}
	summary := sumChecklistSections(qcstatus.AnalyzeChecklists(issue.Body))
	blockingSummary := "n/a"
	if len(t.BlockingQCs) > 0 {
		bs := blocking.Resolve(ctx, a.owner, a.repo, t.BlockingQCs, a.client, a.reconstructor(), nil)
		blockingSummary = bs.Summary()
	}
	return httpapi.IssueStatusView{
		IssueNumber:      n,
		File:             t.File,
		Open:             t.Open,
		Status:           status.String(),
		StatusCommit:     status.Commit,
		ChecklistSummary: summary,
		BlockingSummary:  blockingSummary,
		Commits:          t.Commits,
	}, nil
}

// milestoneStatusViews resolves every issue in a milestone concurrently
// (bounded by milestoneFetchConcurrency), since each resolution is an
// independent set of platform/disk reads with no shared mutable state.
// An issue whose resolution errors is dropped rather than failing the
// whole batch, matching the single-issue behavior it replaces.
func milestoneStatusViews(ctx context.Context, a *app, n int) ([]httpapi.IssueStatusView, error) {
	issues, err := a.client.IssuesByMilestone(ctx, a.owner, a.repo, n, "all")
	if err != nil {
		return nil, err
	}

	views := make([]*httpapi.IssueStatusView, len(issues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(milestoneFetchConcurrency)
	for i, issue := range issues {
		i, issue := i, issue
		g.Go(func() error {
			v, err := issueStatusView(gctx, a, issue.Number)
			if err != nil {
				return nil
			}
			views[i] = &v
			return nil
		})
	}
	_ = g.Wait()

	out := make([]httpapi.IssueStatusView, 0, len(issues))
	for _, v := range views {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

// previewIssueBody renders the composed issue body for a create-issue
// preview without posting anything, reusing the same §4.4 encoder the
// orchestrator's CreateIssue uses internally.
func previewIssueBody(spec orchestrator.CreateIssueSpec) string {
	section := protocol.RelevantFilesSection{}
	for _, rf := range spec.RelevantFiles {
		entry := protocol.RelevantFileEntry{
			IssueNumber:   rf.IssueNumber,
			FileName:      rf.FileName,
			Description:   rf.Description,
			Justification: rf.Justification,
		}
		switch rf.Kind {
		case model.RelevantFileGatingQC:
			section.GatingQC = append(section.GatingQC, entry)
		case model.RelevantFilePreviousQC:
			section.PreviousQC = append(section.PreviousQC, entry)
		case model.RelevantFileRelevantQC:
			section.RelevantQC = append(section.RelevantQC, entry)
		default:
			section.Files = append(section.Files, entry)
		}
	}
	return protocol.EncodeIssueBody(protocol.IssueBody{
		InitialCommit:  spec.InitialCommit,
		Branch:         spec.Branch,
		BranchURL:      spec.BranchURL,
		Author:         spec.Author,
		AuthorEmail:    spec.AuthorEmail,
		Collaborators:  spec.Collaborators,
		FileContentURL: spec.FileContentURL,
		RelevantFiles:  section,
		ChecklistName:  spec.ChecklistName,
		ChecklistBody:  spec.ChecklistBody,
	})
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().StringVar(&serveArchive, "archive-dir", ".", "directory milestone archive bundles are written under")
	rootCmd.AddCommand(serveCmd)
}
