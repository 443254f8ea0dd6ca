package localgit

import (
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RobustFileCommits implements §4.2's robust file-commit resolution:
//
//  1. Try the named branch.
//  2. If the branch is absent locally, scan all merge commits; for each
//     with ≥2 parents, if initialCommit is an ancestor of the second
//     parent (the merged-in side), the candidate branch is any non-HEAD
//     branch containing that merge commit. Try the first candidate.
//  3. Otherwise enumerate all branches (local + remote) containing
//     initialCommit and try each, in a deterministic order, until one
//     yields a non-empty commit list.
//  4. Fall back to all commits (no branch restriction).
func (r *Repository) RobustFileCommits(file, branch, initialCommit string) ([]Commit, error) {
	if commits, err := r.FileCommits(branch, file); err == nil {
		return commits, nil
	}

	if candidate, ok := r.mergedBranchCandidate(initialCommit); ok {
		if commits, err := r.FileCommits(candidate, file); err == nil {
			return commits, nil
		}
	}

	branches, err := r.branchesContaining(initialCommit)
	if err == nil {
		sort.Strings(branches)
		for _, b := range branches {
			commits, err := r.FileCommits(b, file)
			if err == nil && len(commits) > 0 {
				return commits, nil
			}
		}
	}

	return r.FileCommits("", file)
}

// mergedBranchCandidate implements step 2: scan merge commits reachable
// from HEAD; for the first one whose second parent has initialCommit as
// an ancestor, return any non-HEAD branch containing that merge commit.
func (r *Repository) mergedBranchCandidate(initialCommit string) (string, bool) {
	head, err := r.repo.Head()
	if err != nil {
		return "", false
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", false
	}

	var mergeCommit *object.Commit
	_ = object.NewCommitPreorderIter(headCommit, nil, nil).ForEach(func(c *object.Commit) error {
		if mergeCommit != nil {
			return nil
		}
		if c.NumParents() < 2 {
			return nil
		}
		secondParent := c.ParentHashes[1]
		isAncestor, err := r.IsAncestor(initialCommit, secondParent.String())
		if err == nil && isAncestor {
			mergeCommit = c
		}
		return nil
	})
	if mergeCommit == nil {
		return "", false
	}

	refs, err := r.repo.References()
	if err != nil {
		return "", false
	}
	var found string
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		if found != "" {
			return nil
		}
		if ref.Name() == head.Name() {
			return nil
		}
		if !ref.Name().IsBranch() && !ref.Name().IsRemote() {
			return nil
		}
		c, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil
		}
		contains, err := commitContains(c, mergeCommit.Hash)
		if err == nil && contains {
			found = branchNameForRef(ref.Name())
		}
		return nil
	})
	if found == "" {
		return "", false
	}
	return found, true
}

// branchesContaining enumerates all local and remote branches whose
// history contains initialCommit, in arbitrary-but-deterministic
// (lexicographic) order.
func (r *Repository) branchesContaining(initialCommit string) ([]string, error) {
	target := plumbing.NewHash(initialCommit)
	refs, err := r.repo.References()
	if err != nil {
		return nil, err
	}
	var out []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsBranch() && !ref.Name().IsRemote() {
			return nil
		}
		c, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil
		}
		contains, err := commitContains(c, target)
		if err == nil && contains {
			out = append(out, branchNameForRef(ref.Name()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// commitContains reports whether target is reachable from c (c == target
// also counts).
func commitContains(c *object.Commit, target plumbing.Hash) (bool, error) {
	if c.Hash == target {
		return true, nil
	}
	found := false
	err := object.NewCommitPreorderIter(c, nil, nil).ForEach(func(cc *object.Commit) error {
		if cc.Hash == target {
			found = true
			return errStop
		}
		return nil
	})
	if err != nil && err != errStop {
		return false, err
	}
	return found, nil
}

func branchNameForRef(name plumbing.ReferenceName) string {
	short := name.Short()
	if name.IsRemote() && strings.HasPrefix(short, "origin/") {
		return strings.TrimPrefix(short, "origin/")
	}
	return short
}
