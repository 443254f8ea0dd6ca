package localgit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRobustFileCommits_MergedBranchAbsent exercises property 6: for a
// local graph where initial_commit is merged into main and the named
// branch ("feature") is absent, resolution falls back to a branch
// containing the merge commit and returns the same set FileCommits would
// against main directly.
func TestRobustFileCommits_MergedBranchAbsent(t *testing.T) {
	tr := newTestRepo(t)
	tr.writeFile("README", "x")
	tr.commit("repo init")

	tr.branch("feature", "")
	tr.checkout("feature")
	tr.writeFile("a.R", "1")
	initial := tr.commit("add a.R on feature")
	tr.writeFile("a.R", "2")
	tr.commit("change a.R on feature")

	featureTip, err := tr.repo.Reference(refName("feature"), true)
	require.NoError(t, err)

	tr.checkout("master")
	tr.merge(featureTip.Hash().String(), "merge feature into master")

	// Publish the merge-containing branch as origin/main, and delete the
	// local "feature" ref to simulate it being absent.
	tr.remoteTrack("main", "")
	require.NoError(t, tr.repo.Storer.RemoveReference(refName("feature")))

	r := openTestRepo(t, tr)

	direct, err := r.FileCommits("main", "a.R")
	require.NoError(t, err)
	require.NotEmpty(t, direct)

	robust, err := r.RobustFileCommits("a.R", "feature", initial)
	require.NoError(t, err)
	assert.Equal(t, direct, robust)
}

func TestRobustFileCommits_FallsBackToAllCommits(t *testing.T) {
	tr := newTestRepo(t)
	tr.writeFile("a.R", "1")
	initial := tr.commit("initial")

	r := openTestRepo(t, tr)
	commits, err := r.RobustFileCommits("a.R", "nonexistent-branch", initial)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, initial, commits[0].Hash)
}
