package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2-ai/ghqc/internal/ghqclog"
)

const baseURLPath = "/api-v3"

func setup(t *testing.T) (c Client, mux *http.ServeMux) {
	t.Helper()

	mux = http.NewServeMux()
	apiHandler := http.NewServeMux()
	apiHandler.Handle(baseURLPath+"/", http.StripPrefix(baseURLPath, mux))

	server := httptest.NewServer(apiHandler)
	t.Cleanup(server.Close)

	ghClient := github.NewClient(nil)
	u, _ := url.Parse(server.URL + baseURLPath + "/")
	ghClient.BaseURL = u

	return NewWithGitHub(ghClient, ghqclog.Discard()), mux
}

func TestComments_RequestsHTMLMediaType(t *testing.T) {
	c, mux := setup(t)

	var gotAccept string
	mux.HandleFunc("/repos/owner/repo/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `[{"body":"hi","body_html":"<p>hi</p>","user":{"login":"alice"},"created_at":"2024-01-01T00:00:00Z"}]`)
	})

	comments, err := c.Comments(context.Background(), "owner", "repo", 7)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "<p>hi</p>", comments[0].BodyHTML)
	assert.Equal(t, "alice", comments[0].Author)
	assert.Equal(t, htmlMediaType, gotAccept)
}

func TestIssuesByMilestone_SkipsPullRequests(t *testing.T) {
	c, mux := setup(t)

	mux.HandleFunc("/repos/owner/repo/issues", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number":1,"title":"a.R","state":"open"},
			{"number":2,"title":"pr","state":"open","pull_request":{"url":"x"}}
		]`)
	})

	issues, err := c.IssuesByMilestone(context.Background(), "owner", "repo", 3, "all")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Number)
}

func TestMilestones_PagingStopsAtNextPageZero(t *testing.T) {
	c, mux := setup(t)

	calls := 0
	mux.HandleFunc("/repos/owner/repo/milestones", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number":2,"title":"m2"}]`)
			return
		}
		w.Header().Set("Link", `<`+r.URL.Path+`?page=2>; rel="next"`)
		fmt.Fprint(w, `[{"number":1,"title":"m1"}]`)
	})

	ms, err := c.Milestones(context.Background(), "owner", "repo", "open")
	require.NoError(t, err)
	assert.Len(t, ms, 2)
	assert.Equal(t, 2, calls)
}

func TestCreateLabel_AlreadyExistsIsNotAnError(t *testing.T) {
	c, mux := setup(t)

	mux.HandleFunc("/repos/owner/repo/labels", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"already_exists"}`)
	})

	err := c.CreateLabel(context.Background(), "owner", "repo", "ghqc", "FFCB05")
	require.NoError(t, err)
}

func TestCloseIssue(t *testing.T) {
	c, mux := setup(t)

	mux.HandleFunc("/repos/owner/repo/issues/5", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		fmt.Fprint(w, `{"number":5,"state":"closed"}`)
	})

	issue, err := c.CloseIssue(context.Background(), "owner", "repo", 5)
	require.NoError(t, err)
	assert.Equal(t, "closed", issue.State)
	assert.False(t, issue.Open())
}
