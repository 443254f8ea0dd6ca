package qcstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/a2-ai/ghqc/internal/model"
)

func commit(hash string, changed bool, marks ...model.CommitStatus) model.IssueCommit {
	c := model.IssueCommit{Hash: hash, FileChanged: changed, Statuses: map[model.CommitStatus]bool{}}
	for _, m := range marks {
		c.Statuses[m] = true
	}
	return c
}

// TestE1_FreshOpenIssueNoComments covers scenario E1: a fresh open issue
// with only the initial commit.
func TestE1_FreshOpenIssueNoComments(t *testing.T) {
	thread := model.IssueThread{
		Open:    true,
		Commits: []model.IssueCommit{commit("abc123d", false, model.StatusInitial)},
	}
	got := Determine(thread)
	assert.Equal(t, model.InProgress, got.Kind)
}

// TestE2_NotificationOnLaterFileTouchingCommit covers E2.
func TestE2_NotificationOnLaterFileTouchingCommit(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("def456", true, model.StatusNotification),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.AwaitingReview, got.Kind)
}

// TestE3_ReviewOnLatestFileCommit covers E3: a QC Review lands on def456
// with no later Notification.
func TestE3_ReviewOnLatestFileCommit(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("def456", true, model.StatusNotification, model.StatusReviewed),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.ChangeRequested, got.Kind)
}

// TestE4_NewNotificationAfterReview covers E4: a later commit touches the
// file again with a fresh Notification; def456's Reviewed mark no longer
// matters because it isn't the latest file-changed commit.
func TestE4_NewNotificationAfterReview(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("789abc", true, model.StatusNotification),
			commit("def456", true, model.StatusNotification, model.StatusReviewed),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.AwaitingReview, got.Kind)
}

// TestE5_ApprovedAndClosed covers E5.
func TestE5_ApprovedAndClosed(t *testing.T) {
	thread := model.IssueThread{
		Open: false,
		Commits: []model.IssueCommit{
			commit("789abc", true, model.StatusNotification, model.StatusApproved),
			commit("def456", true, model.StatusNotification, model.StatusReviewed),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.Approved, got.Kind)
}

// TestE6_UnapprovalThenNewCommit covers E6: the Approved mark is cleared
// (rewritten to Notification by the reconstructor before Determine ever
// runs), the issue is reopened, and a new commit touches the file. With
// no Reviewed mark on the new latest commit, AwaitingReview.
func TestE6_UnapprovalThenNewCommit(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("newcommit", true, model.StatusNotification),
			commit("789abc", true, model.StatusNotification), // rewritten from Approved
			commit("def456", true, model.StatusNotification, model.StatusReviewed),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.AwaitingReview, got.Kind)
}

func TestChangesAfterApproval(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("newer", true, model.StatusNotification),
			commit("approved-commit", true, model.StatusApproved),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.ChangesAfterApproval, got.Kind)
	assert.Equal(t, "newer", got.Commit)
}

func TestChangesToComment_NotLatestCommit(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("latest-no-change", false),
			commit("unaddressed", true, model.StatusNotification),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	got := Determine(thread)
	assert.Equal(t, model.ChangesToComment, got.Kind)
	assert.Equal(t, "unaddressed", got.Commit)
}

func TestStatusDeterminism(t *testing.T) {
	thread := model.IssueThread{
		Open: true,
		Commits: []model.IssueCommit{
			commit("def456", true, model.StatusNotification),
			commit("abc123d", false, model.StatusInitial),
		},
	}
	a := Determine(thread)
	b := Determine(thread)
	assert.Equal(t, a, b)
}
