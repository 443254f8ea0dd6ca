// Package orchestrator implements the §4.9 write-path operations: create
// issue, post comment, review, approve, unapprove. Every mutation against
// the hosting platform is followed by a coherent update of the in-memory
// status cache via the §4.8 fast-path protocol, never a full
// reconstruction.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2-ai/ghqc/internal/blocking"
	"github.com/a2-ai/ghqc/internal/diskcache"
	"github.com/a2-ai/ghqc/internal/ghqcerrors"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/platform"
	"github.com/a2-ai/ghqc/internal/protocol"
	"github.com/a2-ai/ghqc/internal/statuscache"
)

const (
	ghqcLabelColor   = "FFCB05"
	branchLabelColor = "00274C"
	labelCacheTTL    = true // labels list follows the default disk-cache TTL
)

// Orchestrator bundles the platform client, disk cache, in-memory status
// cache, and a clock, so operations are deterministic under test.
type Orchestrator struct {
	Client      platform.Client
	Disk        *diskcache.Cache
	StatusCache *statuscache.Cache
	Log         *logrus.Logger
	Now         func() time.Time
}

// New constructs an Orchestrator, defaulting Now to time.Now and Log to
// the standard logger when unset.
func New(client platform.Client, disk *diskcache.Cache, statusCache *statuscache.Cache, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{Client: client, Disk: disk, StatusCache: statusCache, Log: log, Now: time.Now}
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// cloneIssueWithUpdatedAt returns a shallow copy of issue with UpdatedAt
// overridden, per §4.9's last paragraph: every mutation clones the newly
// returned issue with updated_at overridden to the CacheKey's timestamp,
// so the cache key stays consistent with the write and a racing read
// can't observe a stale server-side timestamp.
func cloneIssueWithUpdatedAt(issue *platform.Issue, t time.Time) *platform.Issue {
	if issue == nil {
		return nil
	}
	clone := *issue
	clone.UpdatedAt = t
	return &clone
}

// --- Create issue ---

// RelevantFileSpec describes one "## Relevant Files" entry to embed in a
// new issue's body. IssueClass "New" means NewIssue must be filled in and
// is created recursively before the entry is rendered; "Existing" means
// IssueNumber is already known.
type RelevantFileSpec struct {
	Kind          model.RelevantFileKind
	IssueClass    string // "Existing" | "New"
	IssueNumber   int    // set when IssueClass == "Existing", or filled in after recursive creation
	NewIssue      *CreateIssueSpec
	FileName      string
	Description   string
	Justification string // set for model.RelevantFilePlainFile
}

// CreateIssueSpec describes a new QC issue to post.
type CreateIssueSpec struct {
	File           string             `json:"file"`
	Branch         string             `json:"branch"`
	BranchURL      string             `json:"branch_url"`
	InitialCommit  string             `json:"initial_commit"`
	Author         string             `json:"author"`
	AuthorEmail    string             `json:"author_email"`
	Collaborators  []string           `json:"collaborators"`
	FileContentURL string             `json:"file_content_url"`
	RelevantFiles  []RelevantFileSpec `json:"relevant_files"`
	ChecklistName  string             `json:"checklist_name"`
	ChecklistBody  string             `json:"checklist_body"`
	Assignees      []string           `json:"assignees"`
	MilestoneTitle string             `json:"milestone_title"`
}

// CreateIssue implements §4.9 "Create issue": ensures the ghqc and branch
// labels and the milestone exist, recursively creates any embedded "New"
// relevant-file dependencies (aggregating their errors rather than failing
// the primary issue), composes the body per §4.4, and posts the issue.
func (o *Orchestrator) CreateIssue(ctx context.Context, owner, repo string, spec CreateIssueSpec) (*platform.Issue, []error) {
	var errs []error

	if err := o.ensureLabel(ctx, owner, repo, "ghqc", ghqcLabelColor); err != nil {
		errs = append(errs, errors.Wrap(err, "ensuring ghqc label"))
	}
	if spec.Branch != "" {
		if err := o.ensureLabel(ctx, owner, repo, spec.Branch, branchLabelColor); err != nil {
			errs = append(errs, errors.Wrap(err, "ensuring branch label"))
		}
	}

	milestoneNumber, err := o.ensureMilestone(ctx, owner, repo, spec.MilestoneTitle)
	if err != nil {
		errs = append(errs, errors.Wrap(err, "ensuring milestone"))
	}

	section := protocol.RelevantFilesSection{}
	for i := range spec.RelevantFiles {
		rf := &spec.RelevantFiles[i]
		if rf.IssueClass == "New" && rf.NewIssue != nil {
			created, childErrs := o.CreateIssue(ctx, owner, repo, *rf.NewIssue)
			for _, ce := range childErrs {
				errs = append(errs, errors.Wrapf(ce, "creating dependency %q", rf.FileName))
			}
			if created == nil {
				errs = append(errs, fmt.Errorf("dependency %q could not be created", rf.FileName))
				continue
			}
			rf.IssueNumber = created.Number
		}
		entry := protocol.RelevantFileEntry{
			IssueNumber:   rf.IssueNumber,
			IssueURL:      issueURL(owner, repo, rf.IssueNumber),
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
		case model.RelevantFilePlainFile:
			section.Files = append(section.Files, entry)
		}
	}

	body := protocol.EncodeIssueBody(protocol.IssueBody{
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

	issue, err := o.Client.CreateIssue(ctx, owner, repo, platform.CreateIssueRequest{
		Title:     spec.File,
		Body:      body,
		Labels:    append([]string{"ghqc"}, nonEmpty(spec.Branch)...),
		Assignees: spec.Assignees,
		Milestone: milestoneNumber,
	})
	if err != nil {
		return nil, append(errs, errors.Wrap(err, "posting issue"))
	}
	return issue, errs
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

func issueURL(owner, repo string, number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", owner, repo, number)
}

type cachedLabels struct {
	Labels []platform.Label `json:"labels"`
}

func (o *Orchestrator) ensureLabel(ctx context.Context, owner, repo, name, color string) error {
	var cached cachedLabels
	found, _ := o.Disk.Read([]string{"labels"}, "list", &cached)
	if !found {
		labels, err := o.Client.Labels(ctx, owner, repo)
		if err != nil {
			return err
		}
		for _, l := range labels {
			cached.Labels = append(cached.Labels, *l)
		}
		_ = o.Disk.Write([]string{"labels"}, "list", cached, labelCacheTTL)
	}
	for _, l := range cached.Labels {
		if l.Name == name {
			return nil
		}
	}
	if err := o.Client.CreateLabel(ctx, owner, repo, name, color); err != nil {
		return err
	}
	cached.Labels = append(cached.Labels, platform.Label{Name: name, Color: color})
	_ = o.Disk.Write([]string{"labels"}, "list", cached, labelCacheTTL)
	return nil
}

func (o *Orchestrator) ensureMilestone(ctx context.Context, owner, repo, title string) (int, error) {
	if title == "" {
		return 0, nil
	}
	milestones, err := o.Client.Milestones(ctx, owner, repo, "all")
	if err != nil {
		return 0, err
	}
	for _, m := range milestones {
		if m.Title == title {
			return m.Number, nil
		}
	}
	created, err := o.Client.CreateMilestone(ctx, owner, repo, title)
	if err != nil {
		return 0, err
	}
	return created.Number, nil
}

// --- comment bodies ---

type notificationBody struct{ c protocol.NotificationComment }

func (b notificationBody) GenerateBody() string { return protocol.EncodeNotificationComment(b.c) }

type reviewBody struct{ c protocol.ReviewComment }

func (b reviewBody) GenerateBody() string { return protocol.EncodeReviewComment(b.c) }

type approvalBody struct{ c protocol.ApprovalComment }

func (b approvalBody) GenerateBody() string { return protocol.EncodeApprovalComment(b.c) }

type unapprovalBody struct{ c protocol.UnapprovalComment }

func (b unapprovalBody) GenerateBody() string { return protocol.EncodeUnapprovalComment(b.c) }

// --- Post comment (notify) ---

// PostComment implements §4.9 "Post comment": composes and submits a
// notification comment, then updates the in-memory cache with
// ActionNotification.
func (o *Orchestrator) PostComment(ctx context.Context, owner, repo string, issueNumber int, branch, headCommit string, nc protocol.NotificationComment) (string, error) {
	url, err := o.Client.CreateComment(ctx, owner, repo, issueNumber, notificationBody{c: nc})
	if err != nil {
		return "", errors.Wrap(err, "posting notification comment")
	}
	o.applyCacheUpdate(ctx, owner, repo, issueNumber, branch, headCommit, statuscache.ActionNotification)
	return url, nil
}

// Review implements §4.9 "Review": composes and submits a review comment,
// then updates the cache with ActionReview.
func (o *Orchestrator) Review(ctx context.Context, owner, repo string, issueNumber int, branch, headCommit string, rc protocol.ReviewComment) (string, error) {
	url, err := o.Client.CreateComment(ctx, owner, repo, issueNumber, reviewBody{c: rc})
	if err != nil {
		return "", errors.Wrap(err, "posting review comment")
	}
	o.applyCacheUpdate(ctx, owner, repo, issueNumber, branch, headCommit, statuscache.ActionReview)
	return url, nil
}

// applyCacheUpdate fetches the issue to clone with an overridden
// UpdatedAt (§4.9's cache-consistency rule) and drives the fast-path
// update protocol. Fetch failures are logged but not fatal to the write
// that already succeeded: the cache simply stays stale until the next
// full read.
func (o *Orchestrator) applyCacheUpdate(ctx context.Context, owner, repo string, issueNumber int, branch, headCommit string, action statuscache.UpdateAction) {
	now := o.now()
	issue, err := o.Client.Issue(ctx, owner, repo, issueNumber)
	if err != nil {
		o.Log.WithFields(logrus.Fields{"issue": issueNumber, "err": err}).Warn("orchestrator: could not refetch issue for cache update")
		return
	}
	issue = cloneIssueWithUpdatedAt(issue, now)
	key := model.CacheKey{IssueUpdatedAt: issue.UpdatedAt, Branch: branch, HeadCommit: headCommit}
	o.StatusCache.Update(issueNumber, key, headCommit, action)
}

// --- Approve ---

// ApproveResult is the response shape for a successful or partial
// Approve operation.
type ApproveResult struct {
	CommentURL string
	Skipped    []ghqcerrors.BlockingIssueRef // non-empty only when allowPartial was used
	Closed     bool
}

// Approve implements §4.9 "Approve": resolves blocking QCs, refuses
// (BlockingQCNotSatisfiedError) unless allowPartial, then posts the
// approval comment and closes the issue — both must succeed for the
// cache to be updated; a close failure after a successful comment post
// returns WritePartialFailureError and leaves the cache untouched.
func (o *Orchestrator) Approve(
	ctx context.Context,
	owner, repo string,
	issueNumber int,
	branch, headCommit string,
	blockingQCs []model.RelevantFile,
	fetch blocking.IssueFetcher,
	reconstruct blocking.Reconstructor,
	ac protocol.ApprovalComment,
	allowPartial bool,
) (ApproveResult, error) {
	status := blocking.Resolve(ctx, owner, repo, blockingQCs, fetch, reconstruct, nil)

	if !status.AllApproved() && !allowPartial {
		return ApproveResult{}, &ghqcerrors.BlockingQCNotSatisfiedError{
			NotApproved: refsFromNotApproved(status),
			Errored:     refsFromErrors(status),
		}
	}

	url, err := o.Client.CreateComment(ctx, owner, repo, issueNumber, approvalBody{c: ac})
	if err != nil {
		return ApproveResult{}, errors.Wrap(err, "posting approval comment")
	}

	_, closeErr := o.Client.CloseIssue(ctx, owner, repo, issueNumber)
	if closeErr != nil {
		return ApproveResult{CommentURL: url}, &ghqcerrors.WritePartialFailureError{CommentURL: url, StateErr: closeErr}
	}

	o.applyCacheUpdate(ctx, owner, repo, issueNumber, branch, headCommit, statuscache.ActionApprove)

	result := ApproveResult{CommentURL: url, Closed: true}
	if allowPartial {
		result.Skipped = refsFromNotApproved(status)
	}
	return result, nil
}

func refsFromNotApproved(s model.BlockingQCStatus) []ghqcerrors.BlockingIssueRef {
	out := make([]ghqcerrors.BlockingIssueRef, 0, len(s.NotApproved))
	for n, e := range s.NotApproved {
		out = append(out, ghqcerrors.BlockingIssueRef{IssueNumber: n, File: e.File})
	}
	return out
}

func refsFromErrors(s model.BlockingQCStatus) []ghqcerrors.BlockingIssueRef {
	out := make([]ghqcerrors.BlockingIssueRef, 0, len(s.Errors))
	for n := range s.Errors {
		out = append(out, ghqcerrors.BlockingIssueRef{IssueNumber: n})
	}
	return out
}

// --- Unapprove ---

// Unapprove implements §4.9 "Unapprove": posts the unapproval comment,
// then re-opens the issue. A re-open failure after a successful comment
// post returns WritePartialFailureError and leaves the cache untouched,
// matching Approve's ordering guarantee.
func (o *Orchestrator) Unapprove(ctx context.Context, owner, repo string, issueNumber int, branch, headCommit string, uc protocol.UnapprovalComment) (string, error) {
	url, err := o.Client.CreateComment(ctx, owner, repo, issueNumber, unapprovalBody{c: uc})
	if err != nil {
		return "", errors.Wrap(err, "posting unapproval comment")
	}

	_, reopenErr := o.Client.OpenIssue(ctx, owner, repo, issueNumber)
	if reopenErr != nil {
		return url, &ghqcerrors.WritePartialFailureError{CommentURL: url, StateErr: reopenErr}
	}

	now := o.now()
	issue, err := o.Client.Issue(ctx, owner, repo, issueNumber)
	if err == nil {
		issue = cloneIssueWithUpdatedAt(issue, now)
		key := model.CacheKey{IssueUpdatedAt: issue.UpdatedAt, Branch: branch, HeadCommit: headCommit}
		o.StatusCache.Unapprove(issueNumber, key)
	} else {
		o.Log.WithFields(logrus.Fields{"issue": issueNumber, "err": err}).Warn("orchestrator: could not refetch issue after unapprove")
	}
	return url, nil
}
