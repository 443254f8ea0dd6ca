package localgit

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

// FileCommits walks from the given branch tip (or HEAD when branch is
// empty) and yields, in chronological order (newest first), every commit
// whose tree entry for file differs from *every* parent (a file add or
// delete in a commit counts as differing). The initial commit (no
// parents) is included iff the file exists at that commit.
func (r *Repository) FileCommits(branch, file string) ([]Commit, error) {
	tip, err := r.resolveRef(branch)
	if err != nil {
		return nil, err
	}

	tipCommit, err := r.repo.CommitObject(tip)
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}

	var all []*object.Commit
	err = object.NewCommitPreorderIter(tipCommit, nil, nil).ForEach(func(c *object.Commit) error {
		all = append(all, c)
		return nil
	})
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Author.When.After(all[j].Author.When)
	})

	var out []Commit
	for _, c := range all {
		changed, err := r.fileChangedAt(c, file)
		if err != nil {
			return nil, err
		}
		if changed {
			out = append(out, toCommit(c))
		}
	}
	return out, nil
}

// resolveRef resolves branch (a local or remote-tracking branch name) to
// a commit hash, falling back to HEAD when branch is empty.
func (r *Repository) resolveRef(branch string) (plumbing.Hash, error) {
	if branch == "" {
		head, err := r.repo.Head()
		if err != nil {
			return plumbing.ZeroHash, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
		}
		return head.Hash(), nil
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewRemoteReferenceName("origin", branch),
	}
	for _, name := range candidates {
		ref, err := r.repo.Reference(name, true)
		if err == nil {
			return ref.Hash(), nil
		}
	}
	return plumbing.ZeroHash, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitBranchMissing, Err: errBranchNotFound(branch)}
}

func errBranchNotFound(branch string) error {
	return &branchNotFoundError{branch: branch}
}

type branchNotFoundError struct{ branch string }

func (e *branchNotFoundError) Error() string { return "branch not found: " + e.branch }

// fileChangedAt reports whether file's tree entry at c differs from every
// parent of c (an add/delete counts as differing). A commit with no
// parents (the repository's initial commit) "changes" the file iff the
// file exists at that commit.
func (r *Repository) fileChangedAt(c *object.Commit, file string) (bool, error) {
	tree, err := c.Tree()
	if err != nil {
		return false, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}
	curHash, curErr := fileBlobHash(tree, file)

	if c.NumParents() == 0 {
		return curErr == nil, nil
	}

	for _, ph := range c.ParentHashes {
		parent, err := r.repo.CommitObject(ph)
		if err != nil {
			return false, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
		}
		parentTree, err := parent.Tree()
		if err != nil {
			return false, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
		}
		parentHash, parentErr := fileBlobHash(parentTree, file)

		same := curErr == nil && parentErr == nil && curHash == parentHash
		bothMissing := curErr != nil && parentErr != nil
		if same || bothMissing {
			return false, nil
		}
	}
	return true, nil
}

func fileBlobHash(tree *object.Tree, file string) (plumbing.Hash, error) {
	entry, err := tree.File(file)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return entry.Hash, nil
}
