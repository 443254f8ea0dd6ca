// Package httpapi implements the §6 HTTP API surface consumed by the
// interactive front-end: file tree/content browsing rooted at the local
// repository, a markdown preview of a composed issue body, per-issue and
// per-milestone status views, the four write-path actions, and the
// supplemented milestone archive route (§12). Routing follows the
// teacher's gorilla/mux subrouter + middleware-chain style
// (server/api.go).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/orchestrator"
)

// IssueStatusView is the resolved view of a single QC issue, the shape
// GET /api/issues/:n/status and the milestone batch view return.
type IssueStatusView struct {
	IssueNumber      int                    `json:"issue_number"`
	File             string                 `json:"file"`
	Open             bool                   `json:"open"`
	Status           string                 `json:"status"`
	StatusCommit     string                 `json:"status_commit,omitempty"`
	ChecklistSummary model.ChecklistSummary `json:"checklist_summary"`
	BlockingSummary  string                 `json:"blocking_summary"`
	Commits          []model.IssueCommit    `json:"commits,omitempty"`
}

// Deps bundles the capability closures the router needs, following the
// "inject everywhere" capability-interface design note (§9): httpapi
// itself never imports internal/thread or internal/blocking, so it can be
// tested with fake closures instead of a live platform/repository.
type Deps struct {
	Owner    string
	Repo     string
	RepoRoot string // local filesystem root files/tree and files/content are served from

	GetIssueStatus     func(ctx context.Context, issueNumber int) (IssueStatusView, error)
	GetMilestoneStatus func(ctx context.Context, milestoneNumber int) ([]IssueStatusView, error)
	PreviewIssueBody   func(ctx context.Context, spec orchestrator.CreateIssueSpec) (string, error)

	PostComment func(ctx context.Context, issueNumber int, note string) (string, error)
	Review      func(ctx context.Context, issueNumber int, note string) (string, error)
	Approve     func(ctx context.Context, issueNumber int, note string, allowPartial bool) (orchestrator.ApproveResult, error)
	Unapprove   func(ctx context.Context, issueNumber int, reason string) (string, error)

	ArchiveMilestone func(ctx context.Context, milestoneNumber int) (dir, tarPath string, err error)

	Log *logrus.Logger
}

// NewRouter builds the §6 HTTP API router.
func NewRouter(d *Deps) *mux.Router {
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	r := mux.NewRouter()
	r.Use(requestLogMiddleware(d.Log))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/files/tree", d.handleFilesTree).Methods(http.MethodGet)
	api.HandleFunc("/files/content", d.handleFilesContent).Methods(http.MethodGet)
	api.HandleFunc("/preview/issue", d.handlePreviewIssue).Methods(http.MethodPost)
	api.HandleFunc("/issues/{n}/status", d.handleIssueStatus).Methods(http.MethodGet)
	api.HandleFunc("/issues/{n}/comment", d.handlePostComment).Methods(http.MethodPost)
	api.HandleFunc("/issues/{n}/review", d.handleReview).Methods(http.MethodPost)
	api.HandleFunc("/issues/{n}/approve", d.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/issues/{n}/unapprove", d.handleUnapprove).Methods(http.MethodPost)
	api.HandleFunc("/milestone/{n}/status", d.handleMilestoneStatus).Methods(http.MethodGet)
	api.HandleFunc("/milestone/{n}/archive", d.handleMilestoneArchive).Methods(http.MethodPost)

	return r
}

func requestLogMiddleware(log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.WithFields(logrus.Fields{"method": req.Method, "path": req.URL.Path}).Debug("ghqc: http request")
			next.ServeHTTP(w, req)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := classifyError(err)
	http.Error(w, msg, status)
}

// classifyError maps the §7 taxonomy onto the §6 error responses: every
// route answers with 400/404/500 only, so BlockingQCNotSatisfiedError
// (a refused precondition, not a server fault) maps to 400 and everything
// else the core doesn't specifically recognize maps to 500.
func classifyError(err error) (int, string) {
	var notSatisfied *ghqcerrors.BlockingQCNotSatisfiedError
	if errors.As(err, &notSatisfied) {
		return http.StatusBadRequest, err.Error()
	}
	var partial *ghqcerrors.WritePartialFailureError
	if errors.As(err, &partial) {
		return http.StatusInternalServerError, err.Error()
	}
	var protocolErr *ghqcerrors.ProtocolParseError
	if errors.As(err, &protocolErr) {
		return http.StatusNotFound, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// --- files ---

// rejectDotSegments implements §6/§8 property 7: any "." or ".." path
// segment in the query param is rejected with 400, regardless of where it
// appears.
func rejectDotSegments(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

func (d *Deps) handleFilesTree(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rejectDotSegments(rel) {
		http.Error(w, "path must not contain . or .. segments", http.StatusBadRequest)
		return
	}
	full := filepath.Join(d.RepoRoot, rel)
	entries, err := os.ReadDir(full)
	if err != nil {
		writeError(w, err)
		return
	}
	type entryView struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{Name: e.Name(), IsDir: e.IsDir()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Deps) handleFilesContent(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rejectDotSegments(rel) {
		http.Error(w, "path must not contain . or .. segments", http.StatusBadRequest)
		return
	}
	full := filepath.Join(d.RepoRoot, rel)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// --- preview ---

func (d *Deps) handlePreviewIssue(w http.ResponseWriter, r *http.Request) {
	var spec orchestrator.CreateIssueSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	body, err := d.PreviewIssueBody(r.Context(), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	var sb strings.Builder
	if err := goldmark.Convert([]byte(body), &sb); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		HTML string `json:"html"`
	}{sb.String()})
}

// --- issues ---

func parseIssueNumber(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["n"])
}

func (d *Deps) handleIssueStatus(w http.ResponseWriter, r *http.Request) {
	n, err := parseIssueNumber(r)
	if err != nil {
		http.Error(w, "invalid issue number", http.StatusBadRequest)
		return
	}
	view, err := d.GetIssueStatus(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type actionRequest struct {
	Note         string `json:"note"`
	Reason       string `json:"reason"`
	AllowPartial bool   `json:"allow_partial"`
}

func (d *Deps) handlePostComment(w http.ResponseWriter, r *http.Request) {
	n, err := parseIssueNumber(r)
	if err != nil {
		http.Error(w, "invalid issue number", http.StatusBadRequest)
		return
	}
	var req actionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	url, err := d.PostComment(r.Context(), n, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CommentURL string `json:"comment_url"`
	}{url})
}

func (d *Deps) handleReview(w http.ResponseWriter, r *http.Request) {
	n, err := parseIssueNumber(r)
	if err != nil {
		http.Error(w, "invalid issue number", http.StatusBadRequest)
		return
	}
	var req actionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	url, err := d.Review(r.Context(), n, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CommentURL string `json:"comment_url"`
	}{url})
}

func (d *Deps) handleApprove(w http.ResponseWriter, r *http.Request) {
	n, err := parseIssueNumber(r)
	if err != nil {
		http.Error(w, "invalid issue number", http.StatusBadRequest)
		return
	}
	var req actionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	result, err := d.Approve(r.Context(), n, req.Note, req.AllowPartial)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (d *Deps) handleUnapprove(w http.ResponseWriter, r *http.Request) {
	n, err := parseIssueNumber(r)
	if err != nil {
		http.Error(w, "invalid issue number", http.StatusBadRequest)
		return
	}
	var req actionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	url, err := d.Unapprove(r.Context(), n, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CommentURL string `json:"comment_url"`
	}{url})
}

// --- milestone ---

func parseMilestoneNumber(r *http.Request) (int, error) {
	return strconv.Atoi(mux.Vars(r)["n"])
}

func (d *Deps) handleMilestoneStatus(w http.ResponseWriter, r *http.Request) {
	n, err := parseMilestoneNumber(r)
	if err != nil {
		http.Error(w, "invalid milestone number", http.StatusBadRequest)
		return
	}
	views, err := d.GetMilestoneStatus(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (d *Deps) handleMilestoneArchive(w http.ResponseWriter, r *http.Request) {
	n, err := parseMilestoneNumber(r)
	if err != nil {
		http.Error(w, "invalid milestone number", http.StatusBadRequest)
		return
	}
	dir, tarPath, err := d.ArchiveMilestone(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Dir string `json:"dir"`
		Tar string `json:"tar"`
	}{dir, tarPath})
}
