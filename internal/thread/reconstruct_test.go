package thread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2-ai/ghqc/internal/localgit"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/platform"
	"github.com/a2-ai/ghqc/internal/protocol"
)

type fakeComments struct {
	comments []*platform.Comment
}

func (f fakeComments) Comments(ctx context.Context, owner, repo string, issueNumber int) ([]*platform.Comment, error) {
	return f.comments, nil
}

type fakeFileCommits struct {
	commits []localgit.Commit
}

func (f fakeFileCommits) RobustFileCommits(file, branch, initialCommit string) ([]localgit.Commit, error) {
	return f.commits, nil
}

const initialFull = "1111111111111111111111111111111111111a"
const secondFull = "2222222222222222222222222222222222222b"

func baseIssue() *platform.Issue {
	body := protocol.EncodeIssueBody(protocol.IssueBody{
		InitialCommit:  initialFull,
		Branch:         "main",
		Author:         "jane",
		FileContentURL: "https://example.com/blob/" + initialFull,
	})
	return &platform.Issue{
		Number:    1,
		Title:     "analysis.R",
		Body:      body,
		State:     "open",
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconstruct_NoComments(t *testing.T) {
	issue := baseIssue()
	fc := fakeFileCommits{commits: []localgit.Commit{
		{Hash: initialFull, Message: "initial"},
	}}
	got, err := Reconstruct(context.Background(), issue, "owner", "repo", fakeComments{}, fc)
	require.NoError(t, err)
	assert.Equal(t, "analysis.R", got.File)
	assert.Equal(t, "main", got.Branch)
	assert.True(t, got.Open)
	require.Len(t, got.Commits, 1)
	assert.True(t, got.Commits[0].HasStatus(model.StatusInitial))
}

func TestReconstruct_NotificationMarksLatestCommit(t *testing.T) {
	issue := baseIssue()
	fc := fakeFileCommits{commits: []localgit.Commit{
		{Hash: secondFull, Message: "second"},
		{Hash: initialFull, Message: "initial"},
	}}
	notif := protocol.EncodeNotificationComment(protocol.NotificationComment{
		Assignees:     []string{"reviewer"},
		CurrentCommit: secondFull[:7],
	})
	comments := fakeComments{comments: []*platform.Comment{{Body: notif}}}

	got, err := Reconstruct(context.Background(), issue, "owner", "repo", comments, fc)
	require.NoError(t, err)
	require.Len(t, got.Commits, 2)
	assert.True(t, got.Commits[0].HasStatus(model.StatusNotification))
	assert.False(t, got.Commits[1].HasStatus(model.StatusNotification))
}

func TestReconstruct_UnapprovalBeforeAnyApprovalHasNoEffect(t *testing.T) {
	issue := baseIssue()
	fc := fakeFileCommits{commits: []localgit.Commit{
		{Hash: secondFull, Message: "second"},
		{Hash: initialFull, Message: "initial"},
	}}
	unapproval := protocol.EncodeUnapprovalComment(protocol.UnapprovalComment{Reason: "too early", IssueNumber: 1})
	approval := protocol.EncodeApprovalComment(protocol.ApprovalComment{ApprovedCommit: secondFull, FileContentShortURL: "https://x"})
	comments := fakeComments{comments: []*platform.Comment{{Body: unapproval}, {Body: approval}}}

	got, err := Reconstruct(context.Background(), issue, "owner", "repo", comments, fc)
	require.NoError(t, err)
	assert.NotNil(t, got.ApprovedCommit())
	assert.Equal(t, secondFull, got.ApprovedCommit().Hash)
}

func TestReconstruct_UnapprovalAfterApprovalRewritesToNotification(t *testing.T) {
	issue := baseIssue()
	fc := fakeFileCommits{commits: []localgit.Commit{
		{Hash: secondFull, Message: "second"},
		{Hash: initialFull, Message: "initial"},
	}}
	approval := protocol.EncodeApprovalComment(protocol.ApprovalComment{ApprovedCommit: secondFull, FileContentShortURL: "https://x"})
	unapproval := protocol.EncodeUnapprovalComment(protocol.UnapprovalComment{Reason: "regressed", IssueNumber: 1})
	comments := fakeComments{comments: []*platform.Comment{{Body: approval}, {Body: unapproval}}}

	got, err := Reconstruct(context.Background(), issue, "owner", "repo", comments, fc)
	require.NoError(t, err)
	assert.Nil(t, got.ApprovedCommit())
	assert.True(t, got.Commits[0].HasStatus(model.StatusNotification))
	assert.False(t, got.Commits[0].HasStatus(model.StatusApproved))
}

func TestReconstruct_BranchNotFoundError(t *testing.T) {
	issue := baseIssue()
	issue.Body = "## Metadata\n- initial qc commit: " + initialFull + "\n"
	fc := fakeFileCommits{}
	_, err := Reconstruct(context.Background(), issue, "owner", "repo", fakeComments{}, fc)
	assert.Error(t, err)
}

func TestReconstruct_BlockingQCsParsed(t *testing.T) {
	issue := baseIssue()
	issue.Body = protocol.EncodeIssueBody(protocol.IssueBody{
		InitialCommit:  initialFull,
		Branch:         "main",
		Author:         "jane",
		FileContentURL: "https://example.com/blob/" + initialFull,
		RelevantFiles: protocol.RelevantFilesSection{
			GatingQC: []protocol.RelevantFileEntry{{FileName: "gate.R", IssueURL: "https://example.com/owner/repo/issues/7", Description: "must pass first"}},
		},
	})
	fc := fakeFileCommits{commits: []localgit.Commit{{Hash: initialFull, Message: "initial"}}}
	got, err := Reconstruct(context.Background(), issue, "owner", "repo", fakeComments{}, fc)
	require.NoError(t, err)
	require.Len(t, got.BlockingQCs, 1)
	assert.Equal(t, 7, got.BlockingQCs[0].IssueNumber)
	assert.True(t, got.BlockingQCs[0].Blocking())
}
