// Package platform wraps the subset of the GitHub REST API that the QC
// engine needs, split into narrow Reader and Writer capability interfaces
// so the rest of the codebase can be tested against fakes without
// depending on a live token (the "trait-soup of read/write capabilities"
// design note, mapped onto Go interfaces).
package platform

import (
	"context"
	"time"

	"github.com/google/go-github/v68/github"
)

// Issue is the subset of a GitHub issue the QC engine reconstructs threads
// from.
type Issue struct {
	Number    int
	Title     string
	Body      string
	State     string // "open" or "closed"
	Labels    []string
	Assignees []string
	Milestone *Milestone
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
	CreatedBy string
}

// Open reports whether the issue's state is "open".
func (i Issue) Open() bool { return i.State == "open" }

// Milestone is the subset of a GitHub milestone used for batch views.
type Milestone struct {
	Number int
	Title  string
	State  string
}

// Comment is the subset of a GitHub issue comment the reconstructor reads,
// including the HTML body when requested (§4.1: embedded images need the
// platform's HTML media type to carry short-lived authenticated URLs).
type Comment struct {
	Body      string
	BodyHTML  string
	Author    string
	CreatedAt time.Time
}

// User is the subset of a GitHub user record cached permanently by login.
type User struct {
	Login string
	Name  string
}

// Label is a repository label.
type Label struct {
	Name  string
	Color string
}

// CreateIssueRequest describes a new issue to post.
type CreateIssueRequest struct {
	Title     string
	Body      string
	Labels    []string
	Assignees []string
	Milestone int // 0 means none
}

// CommentBody is implemented by every comment-protocol variant (§4.4); it
// knows how to render itself into the canonical markdown form.
type CommentBody interface {
	GenerateBody() string
}

// ghIssueToIssue adapts a go-github Issue into the platform-neutral Issue.
func ghIssueToIssue(gi *github.Issue) *Issue {
	if gi == nil {
		return nil
	}
	out := &Issue{
		Number:    gi.GetNumber(),
		Title:     gi.GetTitle(),
		Body:      gi.GetBody(),
		State:     gi.GetState(),
		CreatedAt: gi.GetCreatedAt().Time,
		UpdatedAt: gi.GetUpdatedAt().Time,
		CreatedBy: gi.GetUser().GetLogin(),
	}
	for _, l := range gi.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	for _, a := range gi.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	if gi.Milestone != nil {
		out.Milestone = &Milestone{
			Number: gi.Milestone.GetNumber(),
			Title:  gi.Milestone.GetTitle(),
			State:  gi.Milestone.GetState(),
		}
	}
	if gi.ClosedAt != nil {
		t := gi.GetClosedAt().Time
		out.ClosedAt = &t
	}
	return out
}

// Reader is the read-side capability set against the hosting platform.
type Reader interface {
	// Milestones lists milestones filtered by state ("open", "closed", "all").
	Milestones(ctx context.Context, owner, repo, state string) ([]*Milestone, error)
	// IssuesByMilestone lists issues under a milestone number, label-filtered
	// to "ghqc", state-filtered by "open"|"closed"|"all".
	IssuesByMilestone(ctx context.Context, owner, repo string, milestone int, state string) ([]*Issue, error)
	// Issue fetches a single issue by number.
	Issue(ctx context.Context, owner, repo string, number int) (*Issue, error)
	// Assignees lists a repository's assignable users, paged 100/page
	// capped at 100 pages.
	Assignees(ctx context.Context, owner, repo string) ([]*User, error)
	// User fetches a user's details by login.
	User(ctx context.Context, login string) (*User, error)
	// Labels lists a repository's labels.
	Labels(ctx context.Context, owner, repo string) ([]*Label, error)
	// Comments lists an issue's comments, including HTML bodies.
	Comments(ctx context.Context, owner, repo string, issueNumber int) ([]*Comment, error)
	// Events lists an issue's timeline events (used to detect cross-issue
	// block relationships maintained on the platform side).
	Events(ctx context.Context, owner, repo string, issueNumber int) ([]*github.IssueEvent, error)
}

// Writer is the write-side capability set against the hosting platform.
type Writer interface {
	CreateMilestone(ctx context.Context, owner, repo, title string) (*Milestone, error)
	CreateIssue(ctx context.Context, owner, repo string, req CreateIssueRequest) (*Issue, error)
	CreateComment(ctx context.Context, owner, repo string, issueNumber int, body CommentBody) (string, error)
	CloseIssue(ctx context.Context, owner, repo string, number int) (*Issue, error)
	OpenIssue(ctx context.Context, owner, repo string, number int) (*Issue, error)
	CreateLabel(ctx context.Context, owner, repo, name, colorHex string) error
	BlockIssue(ctx context.Context, owner, repo string, blocked, blockedBy int) error
}

// Client bundles Reader and Writer for injection at call sites that need
// both read and write access.
type Client interface {
	Reader
	Writer
}
