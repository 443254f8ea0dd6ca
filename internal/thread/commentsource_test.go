package thread

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2-ai/ghqc/internal/diskcache"
	"github.com/a2-ai/ghqc/internal/platform"
)

// fakeReader implements platform.Reader, counting Comments calls so tests
// can assert the disk cache actually shortcuts the fetch.
type fakeReader struct {
	comments    []*platform.Comment
	calls       int
	commentsErr error
}

func (f *fakeReader) Milestones(ctx context.Context, owner, repo, state string) ([]*platform.Milestone, error) {
	return nil, nil
}
func (f *fakeReader) IssuesByMilestone(ctx context.Context, owner, repo string, milestone int, state string) ([]*platform.Issue, error) {
	return nil, nil
}
func (f *fakeReader) Issue(ctx context.Context, owner, repo string, number int) (*platform.Issue, error) {
	return nil, nil
}
func (f *fakeReader) Assignees(ctx context.Context, owner, repo string) ([]*platform.User, error) {
	return nil, nil
}
func (f *fakeReader) User(ctx context.Context, login string) (*platform.User, error) { return nil, nil }
func (f *fakeReader) Labels(ctx context.Context, owner, repo string) ([]*platform.Label, error) {
	return nil, nil
}
func (f *fakeReader) Comments(ctx context.Context, owner, repo string, issueNumber int) ([]*platform.Comment, error) {
	f.calls++
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return f.comments, nil
}
func (f *fakeReader) Events(ctx context.Context, owner, repo string, issueNumber int) ([]*github.IssueEvent, error) {
	return nil, nil
}

func TestCachedCommentSource_FetchesOnceThenServesFromDisk(t *testing.T) {
	reader := &fakeReader{comments: []*platform.Comment{{Body: "hello"}}}
	disk := diskcache.New(t.TempDir(), "o", "r")
	updatedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	src := NewCachedCommentSource(reader, disk, updatedAt)

	first, err := src.Comments(context.Background(), "o", "r", 9)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, reader.calls)

	second, err := src.Comments(context.Background(), "o", "r", 9)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "hello", second[0].Body)
	assert.Equal(t, 1, reader.calls, "second call should be served from disk cache without refetching")
}

func TestCachedCommentSource_DifferentIssueUpdatedAtBypassesCache(t *testing.T) {
	reader := &fakeReader{comments: []*platform.Comment{{Body: "v1"}}}
	disk := diskcache.New(t.TempDir(), "o", "r")

	srcV1 := NewCachedCommentSource(reader, disk, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := srcV1.Comments(context.Background(), "o", "r", 9)
	require.NoError(t, err)

	reader.comments = []*platform.Comment{{Body: "v2"}}
	srcV2 := NewCachedCommentSource(reader, disk, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	got, err := srcV2.Comments(context.Background(), "o", "r", 9)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Body)
	assert.Equal(t, 2, reader.calls)
}

func TestCachedCommentSource_FetchErrorIsWrapped(t *testing.T) {
	reader := &fakeReader{commentsErr: assertErr("boom")}
	disk := diskcache.New(t.TempDir(), "o", "r")

	src := NewCachedCommentSource(reader, disk, time.Now())
	_, err := src.Comments(context.Background(), "o", "r", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching comments")
}

func TestCachedCommentSource_NilDiskAlwaysFetches(t *testing.T) {
	reader := &fakeReader{comments: []*platform.Comment{{Body: "v1"}}}
	src := NewCachedCommentSource(reader, nil, time.Now())

	_, err := src.Comments(context.Background(), "o", "r", 1)
	require.NoError(t, err)
	_, err = src.Comments(context.Background(), "o", "r", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
