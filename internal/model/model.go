// Package model holds the core QC data types shared by the reconstructor,
// the status function, the blocking-QC resolver, and the in-memory status
// cache, so none of those packages needs to import another solely for its
// types.
package model

import (
	"fmt"
	"time"

	"github.com/a2-ai/ghqc/internal/platform"
)

// CommitStatus is one of the marks a commit in a reconstructed thread may
// carry; a commit may carry more than one.
type CommitStatus int

const (
	StatusInitial CommitStatus = iota
	StatusNotification
	StatusReviewed
	StatusApproved
)

func (s CommitStatus) String() string {
	switch s {
	case StatusInitial:
		return "initial"
	case StatusNotification:
		return "notification"
	case StatusReviewed:
		return "reviewed"
	case StatusApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// IssueCommit is a per-commit record in a reconstructed thread.
type IssueCommit struct {
	Hash        string
	Message     string
	Statuses    map[CommitStatus]bool
	FileChanged bool
}

// HasStatus reports whether the commit carries the given mark.
func (c IssueCommit) HasStatus(s CommitStatus) bool { return c.Statuses[s] }

// WithStatus returns a copy of c with s added to its mark set.
func (c IssueCommit) WithStatus(s CommitStatus) IssueCommit {
	out := c
	out.Statuses = make(map[CommitStatus]bool, len(c.Statuses)+1)
	for k, v := range c.Statuses {
		out.Statuses[k] = v
	}
	out.Statuses[s] = true
	return out
}

// WithoutStatus returns a copy of c with s removed from its mark set.
func (c IssueCommit) WithoutStatus(s CommitStatus) IssueCommit {
	out := c
	out.Statuses = make(map[CommitStatus]bool, len(c.Statuses))
	for k, v := range c.Statuses {
		if k != s {
			out.Statuses[k] = v
		}
	}
	return out
}

// RelevantFileKind discriminates the four RelevantFile variants embedded
// in an issue body's "## Relevant Files" section.
type RelevantFileKind int

const (
	RelevantFileGatingQC RelevantFileKind = iota
	RelevantFilePreviousQC
	RelevantFileRelevantQC
	RelevantFilePlainFile
)

// RelevantFile is one entry of an issue body's "## Relevant Files"
// section. GatingQC and PreviousQC block approval; RelevantQC and
// PlainFile are informational.
type RelevantFile struct {
	Kind          RelevantFileKind
	IssueNumber   int    // set for GatingQC/PreviousQC/RelevantQC
	FileName      string // set for GatingQC/PreviousQC/PlainFile(.Path)
	Description   string
	Justification string // set for PlainFile
}

// Blocking reports whether this RelevantFile must be approved before the
// owning issue may be approved.
func (r RelevantFile) Blocking() bool {
	return r.Kind == RelevantFileGatingQC || r.Kind == RelevantFilePreviousQC
}

// IssueThread is the reconstruction for one QC issue.
type IssueThread struct {
	File        string
	Branch      string
	Open        bool
	Milestone   int
	Commits     []IssueCommit // newest first
	BlockingQCs []RelevantFile
}

// InitialCommit returns the commit marked Initial, or nil if none (a
// violation of the invariant that exactly one commit carries Initial;
// callers should treat a nil result as a reconstruction failure).
func (t IssueThread) InitialCommit() *IssueCommit {
	for i := range t.Commits {
		if t.Commits[i].HasStatus(StatusInitial) {
			return &t.Commits[i]
		}
	}
	return nil
}

// LatestCommit returns the first (newest) commit of the thread, or nil if
// the thread has no commits.
func (t IssueThread) LatestCommit() *IssueCommit {
	if len(t.Commits) == 0 {
		return nil
	}
	return &t.Commits[0]
}

// ApprovedCommit returns the commit carrying a live Approved mark, or nil
// if none (no commit is currently approved).
func (t IssueThread) ApprovedCommit() *IssueCommit {
	for i := range t.Commits {
		if t.Commits[i].HasStatus(StatusApproved) {
			return &t.Commits[i]
		}
	}
	return nil
}

// IndexOf returns the index of the commit with the given hash in
// t.Commits, or -1 if absent.
func (t IssueThread) IndexOf(hash string) int {
	for i, c := range t.Commits {
		if c.Hash == hash {
			return i
		}
	}
	return -1
}

// QCStatusKind discriminates the 7 QCStatus variants of §3/§4.6.
type QCStatusKind int

const (
	Approved QCStatusKind = iota
	ChangesAfterApproval
	AwaitingReview
	ChangeRequested
	InProgress
	ApprovalRequired
	ChangesToComment
)

// QCStatus is the pure derived status of a thread. Commit is populated for
// ChangesAfterApproval and ChangesToComment, which carry the offending
// commit hash.
type QCStatus struct {
	Kind   QCStatusKind
	Commit string // only meaningful for ChangesAfterApproval / ChangesToComment
}

func (s QCStatus) String() string {
	switch s.Kind {
	case Approved:
		return "Approved"
	case ChangesAfterApproval:
		return "ChangesAfterApproval(" + s.Commit + ")"
	case AwaitingReview:
		return "AwaitingReview"
	case ChangeRequested:
		return "ChangeRequested"
	case InProgress:
		return "InProgress"
	case ApprovalRequired:
		return "ApprovalRequired"
	case ChangesToComment:
		return "ChangesToComment(" + s.Commit + ")"
	default:
		return "Unknown"
	}
}

// IsApprovedLike reports whether s is Approved or ChangesAfterApproval,
// the two statuses that satisfy a downstream blocking-QC dependency.
func (s QCStatus) IsApprovedLike() bool {
	return s.Kind == Approved || s.Kind == ChangesAfterApproval
}

// ChecklistSummary is a {completed, total} pair for one checklist section,
// summable by componentwise addition.
type ChecklistSummary struct {
	Completed int
	Total     int
}

// CompletionPercentage returns 100.0 for an empty checklist (Total == 0).
func (s ChecklistSummary) CompletionPercentage() float64 {
	if s.Total == 0 {
		return 100.0
	}
	return 100.0 * float64(s.Completed) / float64(s.Total)
}

// IsComplete reports whether every item is checked.
func (s ChecklistSummary) IsComplete() bool { return s.Completed == s.Total }

// Sum returns the componentwise sum of s and other.
func (s ChecklistSummary) Sum(other ChecklistSummary) ChecklistSummary {
	return ChecklistSummary{Completed: s.Completed + other.Completed, Total: s.Total + other.Total}
}

// SumAll reduces a slice of summaries to their componentwise total; an
// empty slice yields (0, 0).
func SumAll(summaries []ChecklistSummary) ChecklistSummary {
	var total ChecklistSummary
	for _, s := range summaries {
		total = total.Sum(s)
	}
	return total
}

// BlockingQCStatus partitions the resolution of an issue's blocking QCs.
type BlockingQCStatus struct {
	Approved    map[int]string           // issue_number -> file
	NotApproved map[int]NotApprovedEntry // issue_number -> (file, status)
	Errors      map[int]string           // issue_number -> description
}

// NotApprovedEntry is the value type of BlockingQCStatus.NotApproved.
type NotApprovedEntry struct {
	File   string
	Status QCStatus
}

// NewBlockingQCStatus returns an empty, initialized BlockingQCStatus.
func NewBlockingQCStatus() BlockingQCStatus {
	return BlockingQCStatus{
		Approved:    map[int]string{},
		NotApproved: map[int]NotApprovedEntry{},
		Errors:      map[int]string{},
	}
}

// AllApproved reports whether every blocking QC resolved as approved-like
// with no errors.
func (b BlockingQCStatus) AllApproved() bool {
	return len(b.NotApproved) == 0 && len(b.Errors) == 0
}

// HasErrors reports whether resolution of any blocking QC failed outright.
func (b BlockingQCStatus) HasErrors() bool { return len(b.Errors) > 0 }

// Total returns the count of blocking QCs considered.
func (b BlockingQCStatus) Total() int {
	return len(b.Approved) + len(b.NotApproved) + len(b.Errors)
}

// ApprovedCount returns the count of approved-like blocking QCs.
func (b BlockingQCStatus) ApprovedCount() int { return len(b.Approved) }

// ErrorCount returns the count of blocking QCs whose resolution errored.
func (b BlockingQCStatus) ErrorCount() int { return len(b.Errors) }

// Summary renders the human-readable one-line form used by the HTTP API
// and CLI status views: "-" when empty, else "{approved}/{total}
// ({percent:.1f}%)" with an " (+{n} err)" suffix when errors are present.
func (b BlockingQCStatus) Summary() string {
	total := b.Total()
	if total == 0 {
		return "-"
	}
	percent := 100.0 * float64(b.ApprovedCount()) / float64(total)
	summary := formatSummary(b.ApprovedCount(), total, percent)
	if b.HasErrors() {
		summary += formatErrSuffix(b.ErrorCount())
	}
	return summary
}

// CacheKey is the in-memory status cache's strict-equality key (§3/§9).
type CacheKey struct {
	IssueUpdatedAt time.Time
	Branch         string
	HeadCommit     string
}

// Equal reports strict tuple equality; no fuzzy comparison is ever
// performed, per the design note in §9.
func (k CacheKey) Equal(other CacheKey) bool {
	return k.IssueUpdatedAt.Equal(other.IssueUpdatedAt) && k.Branch == other.Branch && k.HeadCommit == other.HeadCommit
}

// CacheEntryKind discriminates Complete from Partial cache entries.
type CacheEntryKind int

const (
	EntryComplete CacheEntryKind = iota
	EntryPartial
)

// CacheEntry is either a Complete entry (full reconstruction) or a
// Partial entry (materialized only as a blocking-QC dependency of another
// issue: holds status and file name but no commits).
type CacheEntry struct {
	Kind CacheEntryKind

	// Complete fields.
	Issue             *platform.Issue
	Status            QCStatus
	Commits           []IssueCommit
	ChecklistSummary  ChecklistSummary
	BlockingQCNumbers []int

	// Partial fields.
	FileName string
}

func formatSummary(approved, total int, percent float64) string {
	return fmt.Sprintf("%d/%d (%.1f%%)", approved, total, percent)
}

func formatErrSuffix(n int) string {
	return fmt.Sprintf(" (+%d err)", n)
}
