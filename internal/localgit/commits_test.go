package localgit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCommits_OnlyIncludesCommitsThatTouchTheFile(t *testing.T) {
	tr := newTestRepo(t)
	tr.writeFile("a.R", "1")
	tr.writeFile("unrelated.R", "x")
	c1 := tr.commit("add a.R and unrelated.R")

	tr.writeFile("unrelated.R", "y")
	tr.commit("touch only unrelated.R")

	tr.writeFile("a.R", "2")
	c3 := tr.commit("change a.R")

	r := openTestRepo(t, tr)
	commits, err := r.FileCommits("master", "a.R")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, c3, commits[0].Hash, "newest first")
	assert.Equal(t, c1, commits[1].Hash)
}

func TestFileCommits_DeleteCountsAsChanged(t *testing.T) {
	tr := newTestRepo(t)
	tr.writeFile("a.R", "1")
	tr.commit("add a.R")
	tr.removeFile("a.R")
	del := tr.commit("remove a.R")

	r := openTestRepo(t, tr)
	commits, err := r.FileCommits("master", "a.R")
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, del, commits[0].Hash)
}

func TestFileCommits_InitialCommitIncludedIffFileExists(t *testing.T) {
	tr := newTestRepo(t)
	tr.writeFile("other.R", "x")
	tr.commit("initial, no a.R")

	r := openTestRepo(t, tr)
	commits, err := r.FileCommits("master", "a.R")
	require.NoError(t, err)
	assert.Empty(t, commits)
}
