package localgit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// testRepo builds a throwaway repository on disk for exercising the
// adapter against real git plumbing.
type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
	sig  *object.Signature
	when time.Time
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://github.com/acme/widgets.git"},
	})
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{
		t:    t,
		dir:  dir,
		repo: repo,
		wt:   wt,
		sig:  &object.Signature{Name: "Test", Email: "test@example.com"},
		when: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (tr *testRepo) writeFile(path, content string) {
	full := filepath.Join(tr.dir, path)
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(tr.t, os.WriteFile(full, []byte(content), 0o644))
	_, err := tr.wt.Add(path)
	require.NoError(tr.t, err)
}

func (tr *testRepo) removeFile(path string) {
	full := filepath.Join(tr.dir, path)
	require.NoError(tr.t, os.Remove(full))
	_, err := tr.wt.Add(path)
	require.NoError(tr.t, err)
}

func (tr *testRepo) commit(msg string) string {
	tr.when = tr.when.Add(time.Hour)
	sig := *tr.sig
	sig.When = tr.when
	h, err := tr.wt.Commit(msg, &git.CommitOptions{Author: &sig, Committer: &sig})
	require.NoError(tr.t, err)
	return h.String()
}

// branch creates a branch ref pointing at the given commit (or HEAD when
// hash is empty) without checking it out.
func (tr *testRepo) branch(name, hash string) {
	var target plumbing.Hash
	if hash == "" {
		head, err := tr.repo.Head()
		require.NoError(tr.t, err)
		target = head.Hash()
	} else {
		target = plumbing.NewHash(hash)
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), target)
	require.NoError(tr.t, tr.repo.Storer.SetReference(ref))
}

// remoteTrack creates refs/remotes/origin/<name> pointing at hash (or HEAD
// when hash is empty), simulating a fetched tracking ref without a real
// network remote.
func (tr *testRepo) remoteTrack(name, hash string) {
	var target plumbing.Hash
	if hash == "" {
		head, err := tr.repo.Head()
		require.NoError(tr.t, err)
		target = head.Hash()
	} else {
		target = plumbing.NewHash(hash)
	}
	ref := plumbing.NewHashReference(plumbing.NewRemoteReferenceName("origin", name), target)
	require.NoError(tr.t, tr.repo.Storer.SetReference(ref))
}

func refName(branch string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(branch)
}

func (tr *testRepo) checkout(name string) {
	err := tr.wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(name)})
	require.NoError(tr.t, err)
}

func (tr *testRepo) merge(parent2Hash, msg string) string {
	head, err := tr.repo.Head()
	require.NoError(tr.t, err)
	tr.when = tr.when.Add(time.Hour)
	sig := *tr.sig
	sig.When = tr.when

	headCommit, err := tr.repo.CommitObject(head.Hash())
	require.NoError(tr.t, err)
	tree, err := headCommit.Tree()
	require.NoError(tr.t, err)

	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      msg,
		TreeHash:     tree.Hash,
		ParentHashes: []plumbing.Hash{head.Hash(), plumbing.NewHash(parent2Hash)},
	}
	obj := tr.repo.Storer.NewEncodedObject()
	require.NoError(tr.t, commit.Encode(obj))
	h, err := tr.repo.Storer.SetEncodedObject(obj)
	require.NoError(tr.t, err)

	ref := plumbing.NewHashReference(head.Name(), h)
	require.NoError(tr.t, tr.repo.Storer.SetReference(ref))
	return h.String()
}
