// Package thread reconstructs an IssueThread from an external issue
// record, its comments, and the local repository's commit history.
package thread

import (
	"context"

	"github.com/pkg/errors"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
	"github.com/a2-ai/ghqc/internal/localgit"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/platform"
	"github.com/a2-ai/ghqc/internal/protocol"
)

// CommentSource fetches and caches an issue's comments, matching the
// capability diskcache.Cache and platform.Reader together provide.
type CommentSource interface {
	Comments(ctx context.Context, owner, repo string, issueNumber int) ([]*platform.Comment, error)
}

// FileCommitsSource is the local repository capability the reconstructor
// needs: robust, file-scoped commit enumeration.
type FileCommitsSource interface {
	RobustFileCommits(file, branch, initialCommit string) ([]localgit.Commit, error)
}

// Reconstruct builds an IssueThread from issue, following §4.5's 8 steps.
func Reconstruct(ctx context.Context, issue *platform.Issue, owner, repo string, comments CommentSource, repoAdapter FileCommitsSource) (model.IssueThread, error) {
	file := issue.Title

	branch, ok := protocol.ParsedBranch(issue.Body)
	if !ok {
		return model.IssueThread{}, &ghqcerrors.ProtocolParseError{Kind: ghqcerrors.BranchNotFound, Detail: file}
	}

	initialRaw, ok := protocol.ParsedInitialCommit(issue.Body)
	if !ok {
		return model.IssueThread{}, &ghqcerrors.ProtocolParseError{Kind: ghqcerrors.InitialCommitNotFound, Detail: file}
	}

	fileCommits, err := repoAdapter.RobustFileCommits(file, branch, initialRaw)
	if err != nil {
		return model.IssueThread{}, errors.Wrap(err, "resolving file commit history")
	}

	canon := func(input string) (string, bool) {
		for _, c := range fileCommits {
			if len(input) >= 7 && len(c.Hash) >= len(input) && c.Hash[:len(input)] == input {
				return c.Hash, true
			}
		}
		return "", false
	}

	initialCommit, err := protocol.CanonicalizeHash(initialRaw, canon)
	if err != nil {
		return model.IssueThread{}, errors.Wrap(err, "canonicalizing initial commit")
	}

	commentList, err := comments.Comments(ctx, owner, repo, issue.Number)
	if err != nil {
		return model.IssueThread{}, errors.Wrap(err, "fetching comments")
	}

	marks, err := collectMarks(commentList, canon)
	if err != nil {
		return model.IssueThread{}, err
	}

	out := model.IssueThread{
		File:   file,
		Branch: branch,
		Open:   issue.Open(),
	}
	if issue.Milestone != nil {
		out.Milestone = issue.Milestone.Number
	}

	changed := make(map[string]bool, len(fileCommits))
	for _, c := range fileCommits {
		changed[c.Hash] = true
	}

	out.Commits = make([]model.IssueCommit, 0, len(fileCommits))
	for _, c := range fileCommits {
		ic := model.IssueCommit{
			Hash:        c.Hash,
			Message:     c.Message,
			Statuses:    map[model.CommitStatus]bool{},
			FileChanged: changed[c.Hash],
		}
		if c.Hash == initialCommit {
			ic.Statuses[model.StatusInitial] = true
		}
		for mark, statuses := range marks {
			if mark == c.Hash {
				for s := range statuses {
					ic.Statuses[s] = true
				}
			}
		}
		out.Commits = append(out.Commits, ic)
	}

	out.BlockingQCs = blockingQCsFromBody(issue.Body)

	return out, nil
}

// collectMarks walks comments in chronological order, applying §4.5 step 5
// and the approval_comment_index supplement: an Unapproval only invalidates
// an Approval recorded at or before the index of the most recent live
// Approval seen so far; an Unapproval with no prior live Approval has no
// effect.
func collectMarks(comments []*platform.Comment, canon protocol.HashCanonicalizer) (map[string]map[model.CommitStatus]bool, error) {
	marks := make(map[string]map[model.CommitStatus]bool)

	var lastApprovedHash string
	haveLiveApproval := false

	addMark := func(hash string, status model.CommitStatus) {
		if marks[hash] == nil {
			marks[hash] = map[model.CommitStatus]bool{}
		}
		marks[hash][status] = true
	}

	for _, c := range comments {
		m, ok := protocol.ParseComment(c.Body)
		if !ok {
			continue
		}
		switch m.Kind {
		case protocol.MarkNotification:
			full, err := protocol.CanonicalizeHash(m.Hash, canon)
			if err != nil {
				return nil, errors.Wrap(err, "canonicalizing notification commit")
			}
			addMark(full, model.StatusNotification)
		case protocol.MarkReviewed:
			full, err := protocol.CanonicalizeHash(m.Hash, canon)
			if err != nil {
				return nil, errors.Wrap(err, "canonicalizing review commit")
			}
			addMark(full, model.StatusReviewed)
		case protocol.MarkApproved:
			full, err := protocol.CanonicalizeHash(m.Hash, canon)
			if err != nil {
				return nil, errors.Wrap(err, "canonicalizing approval commit")
			}
			addMark(full, model.StatusApproved)
			lastApprovedHash = full
			haveLiveApproval = true
		case protocol.MarkUnapproval:
			if haveLiveApproval {
				delete(marks[lastApprovedHash], model.StatusApproved)
				addMark(lastApprovedHash, model.StatusNotification)
				haveLiveApproval = false
				lastApprovedHash = ""
			}
			// An Unapproval preceding any Approval has nothing to invalidate.
		}
	}

	return marks, nil
}

// blockingQCsFromBody parses the Gating/Previous QC entries of an issue
// body into blocking RelevantFile records.
func blockingQCsFromBody(body string) []model.RelevantFile {
	section := protocol.ParseRelevantFiles(body)
	out := make([]model.RelevantFile, 0, len(section.GatingQC)+len(section.PreviousQC))
	for _, e := range section.GatingQC {
		out = append(out, model.RelevantFile{
			Kind:        model.RelevantFileGatingQC,
			IssueNumber: e.IssueNumber,
			FileName:    e.FileName,
			Description: e.Description,
		})
	}
	for _, e := range section.PreviousQC {
		out = append(out, model.RelevantFile{
			Kind:        model.RelevantFilePreviousQC,
			IssueNumber: e.IssueNumber,
			FileName:    e.FileName,
			Description: e.Description,
		})
	}
	return out
}
