package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
	"github.com/a2-ai/ghqc/internal/orchestrator"
)

func testDeps(t *testing.T) (*Deps, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "analysis.R"), []byte("print('hi')\n"), 0o644))

	d := &Deps{
		Owner:    "o",
		Repo:     "r",
		RepoRoot: root,
		GetIssueStatus: func(ctx context.Context, n int) (IssueStatusView, error) {
			if n == 404 {
				return IssueStatusView{}, &ghqcerrors.ProtocolParseError{Kind: ghqcerrors.BranchNotFound}
			}
			return IssueStatusView{IssueNumber: n, File: "analysis.R", Status: "Approved"}, nil
		},
		GetMilestoneStatus: func(ctx context.Context, n int) ([]IssueStatusView, error) {
			return []IssueStatusView{{IssueNumber: 1, File: "a.R"}}, nil
		},
		PreviewIssueBody: func(ctx context.Context, spec orchestrator.CreateIssueSpec) (string, error) {
			return "# " + spec.ChecklistName, nil
		},
		PostComment: func(ctx context.Context, n int, note string) (string, error) { return "url-comment", nil },
		Review:      func(ctx context.Context, n int, note string) (string, error) { return "url-review", nil },
		Approve: func(ctx context.Context, n int, note string, allowPartial bool) (orchestrator.ApproveResult, error) {
			if !allowPartial {
				return orchestrator.ApproveResult{}, &ghqcerrors.BlockingQCNotSatisfiedError{}
			}
			return orchestrator.ApproveResult{CommentURL: "url-approve", Closed: true}, nil
		},
		Unapprove: func(ctx context.Context, n int, reason string) (string, error) { return "url-unapprove", nil },
		ArchiveMilestone: func(ctx context.Context, n int) (string, string, error) {
			return "/tmp/bundle", "/tmp/bundle.tar", nil
		},
	}
	return d, root
}

func TestHandleFilesTree_RejectsDotSegments(t *testing.T) {
	d, _ := testDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/api/files/tree?path=..%2Fetc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleFilesContent_ServesFileBytes(t *testing.T) {
	d, _ := testDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/api/files/content?path=analysis.R", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "print('hi')\n", rr.Body.String())
}

func TestHandlePreviewIssue_RendersMarkdownToHTML(t *testing.T) {
	d, _ := testDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/api/preview/issue", strings.NewReader(`{"checklist_name":"Review"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<h1>Review</h1>")
}

func TestHandleIssueStatus_OKAndNotFound(t *testing.T) {
	d, _ := testDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/api/issues/42/status", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Approved")

	req2 := httptest.NewRequest(http.MethodGet, "/api/issues/404/status", nil)
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusNotFound, rr2.Code)
}

func TestHandleApprove_RefusalMapsTo400AndPartialSucceeds(t *testing.T) {
	d, _ := testDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/api/issues/1/approve", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/issues/1/approve", strings.NewReader(`{"allow_partial":true}`))
	rr2 := httptest.NewRecorder()
	router.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusOK, rr2.Code)
	assert.Contains(t, rr2.Body.String(), "url-approve")
}

func TestHandleMilestoneArchive_ReturnsDirAndTar(t *testing.T) {
	d, _ := testDeps(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodPost, "/api/milestone/3/archive", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/tmp/bundle.tar")
}
