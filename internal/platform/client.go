package platform

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

// maxPages is the paging safety cap required by §4.1: exceeding it logs a
// warning and returns what was collected rather than looping forever
// against a misbehaving or enormous remote.
const maxPages = 100

const perPage = 100

// connectTimeout and readTimeout are the client-wide HTTP timeouts
// required by §4.1.
const (
	connectTimeout = 10 * time.Second
	readTimeout    = 25 * time.Second
)

type client struct {
	gh  *github.Client
	log *logrus.Logger
}

// New constructs a Client authenticated with token. An empty token yields
// an unauthenticated client limited to public reads (the AuthMissing
// downgrade of §7).
func New(token string, log *logrus.Logger) Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	httpClient := &http.Client{
		Timeout:   connectTimeout + readTimeout,
		Transport: &htmlAcceptTransport{base: http.DefaultTransport},
	}
	gh := github.NewClient(httpClient)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &client{gh: gh, log: log}
}

// NewWithGitHub builds a Client from an existing *github.Client, for tests
// that point at an httptest server.
func NewWithGitHub(gh *github.Client, log *logrus.Logger) Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	httpClient := gh.Client()
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = &htmlAcceptTransport{base: base}
	wrapped := github.NewClient(httpClient)
	wrapped.BaseURL = gh.BaseURL
	wrapped.UploadURL = gh.UploadURL
	return &client{gh: wrapped, log: log}
}

// htmlAcceptTransport sets the HTML media-type Accept header on every
// request so that comment bodies come back with BodyHTML populated.
type htmlAcceptTransport struct {
	base http.RoundTripper
}

func (t *htmlAcceptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	cloned.Header.Set("Accept", htmlMediaType)
	return t.base.RoundTrip(cloned)
}

func (c *client) wrapErr(verb, url string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(&ghqcerrors.PlatformAPIError{Verb: verb, URL: url, Err: err}, "platform request failed")
}

func (c *client) Milestones(ctx context.Context, owner, repo, state string) ([]*Milestone, error) {
	opts := &github.MilestoneListOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []*Milestone
	for page := 0; page < maxPages; page++ {
		ms, resp, err := c.gh.Issues.ListMilestones(ctx, owner, repo, opts)
		if err != nil {
			return nil, c.wrapErr("GET", "milestones", err)
		}
		for _, m := range ms {
			out = append(out, &Milestone{Number: m.GetNumber(), Title: m.GetTitle(), State: m.GetState()})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
	c.log.WithFields(logrus.Fields{"owner": owner, "repo": repo}).Warn("milestones: paging safety cap reached")
	return out, nil
}

func (c *client) IssuesByMilestone(ctx context.Context, owner, repo string, milestone int, state string) ([]*Issue, error) {
	opts := &github.IssueListByRepoOptions{
		Milestone:   itoa(milestone),
		State:       state,
		Labels:      []string{"ghqc"},
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []*Issue
	for page := 0; page < maxPages; page++ {
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, c.wrapErr("GET", "issues", err)
		}
		for _, gi := range issues {
			if gi.IsPullRequest() {
				continue
			}
			out = append(out, ghIssueToIssue(gi))
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
	c.log.WithFields(logrus.Fields{"owner": owner, "repo": repo, "milestone": milestone}).Warn("issues: paging safety cap reached")
	return out, nil
}

func (c *client) Issue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	gi, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, c.wrapErr("GET", "issue", err)
	}
	return ghIssueToIssue(gi), nil
}

func (c *client) Assignees(ctx context.Context, owner, repo string) ([]*User, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var out []*User
	for page := 0; page < maxPages; page++ {
		users, resp, err := c.gh.Issues.ListAssignees(ctx, owner, repo, opts)
		if err != nil {
			return nil, c.wrapErr("GET", "assignees", err)
		}
		for _, u := range users {
			out = append(out, &User{Login: u.GetLogin(), Name: u.GetName()})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
	c.log.WithFields(logrus.Fields{"owner": owner, "repo": repo}).Warn("assignees: paging safety cap reached")
	return out, nil
}

func (c *client) User(ctx context.Context, login string) (*User, error) {
	u, _, err := c.gh.Users.Get(ctx, login)
	if err != nil {
		return nil, c.wrapErr("GET", "user", err)
	}
	return &User{Login: u.GetLogin(), Name: u.GetName()}, nil
}

func (c *client) Labels(ctx context.Context, owner, repo string) ([]*Label, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var out []*Label
	for page := 0; page < maxPages; page++ {
		labels, resp, err := c.gh.Issues.ListLabels(ctx, owner, repo, opts)
		if err != nil {
			return nil, c.wrapErr("GET", "labels", err)
		}
		for _, l := range labels {
			out = append(out, &Label{Name: l.GetName(), Color: l.GetColor()})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
	c.log.WithFields(logrus.Fields{"owner": owner, "repo": repo}).Warn("labels: paging safety cap reached")
	return out, nil
}

// htmlMediaType is required on every comment list call so the response
// includes body_html, which carries short-lived authenticated image URLs
// (§4.1). It is set by the htmlAcceptTransport installed in New/NewWithGitHub
// on every request issued by the underlying http.Client, since go-github's
// per-call options do not expose an Accept header knob.
const htmlMediaType = "application/vnd.github.html+json"

func (c *client) Comments(ctx context.Context, owner, repo string, issueNumber int) ([]*Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []*Comment
	for page := 0; page < maxPages; page++ {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, issueNumber, opts)
		if err != nil {
			return nil, c.wrapErr("GET", "comments", err)
		}
		for _, gc := range comments {
			out = append(out, &Comment{
				Body:      gc.GetBody(),
				BodyHTML:  gc.GetBodyHTML(),
				Author:    gc.GetUser().GetLogin(),
				CreatedAt: gc.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
	c.log.WithFields(logrus.Fields{"owner": owner, "repo": repo, "issue": issueNumber}).Warn("comments: paging safety cap reached")
	return out, nil
}

func (c *client) Events(ctx context.Context, owner, repo string, issueNumber int) ([]*github.IssueEvent, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var out []*github.IssueEvent
	for page := 0; page < maxPages; page++ {
		events, resp, err := c.gh.Issues.ListIssueEvents(ctx, owner, repo, issueNumber, opts)
		if err != nil {
			return nil, c.wrapErr("GET", "events", err)
		}
		out = append(out, events...)
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
	c.log.WithFields(logrus.Fields{"owner": owner, "repo": repo, "issue": issueNumber}).Warn("events: paging safety cap reached")
	return out, nil
}

func (c *client) CreateMilestone(ctx context.Context, owner, repo, title string) (*Milestone, error) {
	m, _, err := c.gh.Issues.CreateMilestone(ctx, owner, repo, &github.Milestone{Title: github.Ptr(title)})
	if err != nil {
		return nil, c.wrapErr("POST", "milestones", err)
	}
	return &Milestone{Number: m.GetNumber(), Title: m.GetTitle(), State: m.GetState()}, nil
}

func (c *client) CreateIssue(ctx context.Context, owner, repo string, req CreateIssueRequest) (*Issue, error) {
	ir := &github.IssueRequest{
		Title:     github.Ptr(req.Title),
		Body:      github.Ptr(req.Body),
		Labels:    &req.Labels,
		Assignees: &req.Assignees,
	}
	if req.Milestone != 0 {
		ir.Milestone = github.Ptr(req.Milestone)
	}
	gi, _, err := c.gh.Issues.Create(ctx, owner, repo, ir)
	if err != nil {
		return nil, c.wrapErr("POST", "issues", err)
	}
	return ghIssueToIssue(gi), nil
}

func (c *client) CreateComment(ctx context.Context, owner, repo string, issueNumber int, body CommentBody) (string, error) {
	gc, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, issueNumber, &github.IssueComment{
		Body: github.Ptr(body.GenerateBody()),
	})
	if err != nil {
		return "", c.wrapErr("POST", "comment", err)
	}
	return gc.GetHTMLURL(), nil
}

func (c *client) CloseIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	gi, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{State: github.Ptr("closed")})
	if err != nil {
		return nil, c.wrapErr("PATCH", "issue-close", err)
	}
	return ghIssueToIssue(gi), nil
}

func (c *client) OpenIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	gi, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{State: github.Ptr("open")})
	if err != nil {
		return nil, c.wrapErr("PATCH", "issue-open", err)
	}
	return ghIssueToIssue(gi), nil
}

func (c *client) CreateLabel(ctx context.Context, owner, repo, name, colorHex string) error {
	_, _, err := c.gh.Issues.CreateLabel(ctx, owner, repo, &github.Label{
		Name:  github.Ptr(name),
		Color: github.Ptr(colorHex),
	})
	if err != nil {
		// GitHub returns 422 if the label already exists; that is not an
		// error for this call's purposes (§4.9: "ensure labels exist").
		if isAlreadyExists(err) {
			return nil
		}
		return c.wrapErr("POST", "label", err)
	}
	return nil
}

func (c *client) BlockIssue(ctx context.Context, owner, repo string, blocked, blockedBy int) error {
	// GitHub's REST API models this as a "dependency" via the sub-issues
	// API; fall back to a tracked-in-body convention is out of scope here.
	_, err := c.gh.Do(ctx, newBlockRequest(ctx, c.gh, owner, repo, blocked, blockedBy), nil)
	if err != nil {
		return c.wrapErr("POST", "block-issue", err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	if ge, ok := err.(*github.ErrorResponse); ok {
		return ge.Response != nil && ge.Response.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

func itoa(n int) string {
	if n == 0 {
		return "*"
	}
	return intToString(n)
}

func intToString(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func newBlockRequest(ctx context.Context, gh *github.Client, owner, repo string, blocked, blockedBy int) *http.Request {
	u := "repos/" + owner + "/" + repo + "/issues/" + itoa(blocked) + "/dependencies/blocked_by"
	req, _ := gh.NewRequest(http.MethodPost, u, map[string]int{"issue_id": blockedBy})
	return req.WithContext(ctx)
}
