// Package qcstatus derives a QC review status from a reconstructed issue
// thread and analyzes checklist completion in issue bodies.
package qcstatus

import "github.com/a2-ai/ghqc/internal/model"

// Determine is the pure function from a reconstructed thread to a
// QCStatus. Rules are applied in this order:
//
//  1. A live Approved mark at commit A: scan commits newer than A for any
//     with FileChanged. If found at L, ChangesAfterApproval(L); else
//     Approved.
//  2. Else if the issue is closed: ApprovalRequired.
//  3. Else find the newest FileChanged commit L.
//     - None: InProgress.
//     - L is the thread's latest commit: ChangeRequested if L carries
//       Reviewed and no later Notification, else AwaitingReview.
//     - Otherwise: ChangesToComment(L).
func Determine(t model.IssueThread) model.QCStatus {
	if approved := t.ApprovedCommit(); approved != nil {
		approvedIdx := t.IndexOf(approved.Hash)
		if l := newestChangedBefore(t, approvedIdx); l != nil {
			return model.QCStatus{Kind: model.ChangesAfterApproval, Commit: l.Hash}
		}
		return model.QCStatus{Kind: model.Approved}
	}

	if !t.Open {
		return model.QCStatus{Kind: model.ApprovalRequired}
	}

	l := newestFileChanged(t)
	if l == nil {
		return model.QCStatus{Kind: model.InProgress}
	}

	latest := t.LatestCommit()
	if latest != nil && latest.Hash == l.Hash {
		if l.HasStatus(model.StatusReviewed) && !hasLaterNotification(t, l.Hash) {
			return model.QCStatus{Kind: model.ChangeRequested}
		}
		return model.QCStatus{Kind: model.AwaitingReview}
	}

	return model.QCStatus{Kind: model.ChangesToComment, Commit: l.Hash}
}

// newestChangedBefore scans commits with index < approvedIdx (i.e. newer
// than the approved commit, since Commits is newest-first) for the first
// one with FileChanged.
func newestChangedBefore(t model.IssueThread, approvedIdx int) *model.IssueCommit {
	for i := 0; i < approvedIdx; i++ {
		if t.Commits[i].FileChanged {
			return &t.Commits[i]
		}
	}
	return nil
}

// newestFileChanged returns the first (newest) commit with FileChanged
// set, or nil if none.
func newestFileChanged(t model.IssueThread) *model.IssueCommit {
	for i := range t.Commits {
		if t.Commits[i].FileChanged {
			return &t.Commits[i]
		}
	}
	return nil
}

// hasLaterNotification reports whether any commit newer than hash (i.e.
// at a smaller index, since Commits is newest-first) carries a
// Notification mark.
func hasLaterNotification(t model.IssueThread, hash string) bool {
	idx := t.IndexOf(hash)
	if idx < 0 {
		return false
	}
	for i := 0; i < idx; i++ {
		if t.Commits[i].HasStatus(model.StatusNotification) {
			return true
		}
	}
	return false
}
