// Package localgit adapts a local git working copy to the narrow set of
// operations the QC engine needs: identity (owner/repo/remote), branch and
// HEAD resolution, ahead/behind status against the upstream tracking ref,
// per-file commit enumeration via tree comparison, and a robust
// branch-resolution fallback chain for files whose history crosses merges.
// It reads commits, trees, and branches directly via
// github.com/go-git/go-git/v5 and shells out to git only for fetch.
package localgit

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

// Commit is the local-git view of a commit: identity, message, and
// parents, independent of any QC annotation.
type Commit struct {
	Hash       string
	Message    string
	ParentHashes []string
	AuthorTime time.Time
}

// Repository wraps an opened local git repository.
type Repository struct {
	path  string
	repo  *git.Repository
	owner string
	name  string
	log   *logrus.Logger
}

var scpLikeRe = regexp.MustCompile(`^[\w.-]+@([\w.-]+):(.+)$`)

// Open opens the repository rooted at path and parses the owner/repo pair
// from its "origin" remote URL. Owner/repo parsing is case-preserving; a
// trailing ".git" suffix is stripped.
func Open(path string, log *logrus.Logger) (*Repository, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitRepositoryMissing, Err: err}
	}

	owner, name, err := remoteOwnerRepo(r)
	if err != nil {
		return nil, err
	}

	return &Repository{path: path, repo: r, owner: owner, name: name, log: log}, nil
}

func remoteOwnerRepo(r *git.Repository) (owner, name string, err error) {
	remote, err := r.Remote("origin")
	if err != nil {
		return "", "", &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitRepositoryMissing, Err: errors.Wrap(err, "no origin remote")}
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return "", "", &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitRepositoryMissing, Err: errors.New("origin remote has no URL")}
	}
	return ParseOwnerRepo(cfg.URLs[0])
}

// ParseOwnerRepo parses "owner/repo" out of either an https URL
// (https://host/owner/repo[.git]) or an scp-like SSH URL
// (git@host:owner/repo[.git]).
func ParseOwnerRepo(rawURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(rawURL, ".git")

	if m := scpLikeRe.FindStringSubmatch(rawURL); m != nil {
		path := strings.TrimSuffix(m[2], ".git")
		parts := strings.Split(path, "/")
		if len(parts) < 2 {
			return "", "", fmt.Errorf("cannot parse owner/repo from %q", rawURL)
		}
		return parts[len(parts)-2], parts[len(parts)-1], nil
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse owner/repo from %q", rawURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// Owner returns the parsed remote owner, case-preserving.
func (r *Repository) Owner() string { return r.owner }

// Repo returns the parsed remote repository name, case-preserving.
func (r *Repository) Repo() string { return r.name }

// Path returns the filesystem path the repository was opened from.
func (r *Repository) Path() string { return r.path }

// HeadCommit returns the full hash of the current HEAD commit.
func (r *Repository) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}
	return head.Hash().String(), nil
}

// CurrentBranch returns the current branch's short name, or "HEAD" when
// the repository is in a detached-HEAD state.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitBranchMissing, Err: err}
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "HEAD", nil
}

// Fetch invokes the external git binary (not a library, per §4.2) in the
// repository directory. Returns (changesFound, err); a non-fatal failure
// is logged and returns a nil error with changesFound=false so the status
// path can fall back to the last-fetched state.
func (r *Repository) Fetch(ctx context.Context) (changesFound bool, err error) {
	before, beforeErr := r.remoteRefHashes(ctx)

	cmd := exec.CommandContext(ctx, "git", "fetch", "--quiet", "origin")
	cmd.Dir = r.path
	if runErr := cmd.Run(); runErr != nil {
		r.log.WithError(runErr).Warn("git fetch failed; falling back to last-fetched state")
		return false, nil
	}

	if beforeErr != nil {
		return true, nil
	}
	after, afterErr := r.remoteRefHashes(ctx)
	if afterErr != nil {
		return true, nil
	}
	for ref, hash := range after {
		if before[ref] != hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *Repository) remoteRefHashes(ctx context.Context) (map[string]string, error) {
	refs, err := r.repo.References()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	_ = refs.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), "refs/remotes/origin/") {
			out[ref.Name().String()] = ref.Hash().String()
		}
		return nil
	})
	return out, nil
}

// Status is the result of comparing local HEAD to the upstream tracking
// ref. Exactly one of Clean, the Ahead list, the Behind list, or both
// Ahead and Behind (Diverged) is populated.
type Status struct {
	Clean   bool
	Ahead   []Commit // local-only commits, newest first
	Behind  []Commit // remote-only commits, newest first
}

// Diverged reports whether both Ahead and Behind are non-empty.
func (s Status) Diverged() bool { return len(s.Ahead) > 0 && len(s.Behind) > 0 }

// Status compares local HEAD to refs/remotes/origin/<branch>. Absence of
// an upstream ref collapses to Ahead(all local commits).
func (r *Repository) Status(branch string) (Status, error) {
	headRef, err := r.repo.Head()
	if err != nil {
		return Status{}, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}
	upstreamRef, err := r.repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		ahead, walkErr := r.commitsBetween(headRef.Hash(), plumbing.ZeroHash)
		if walkErr != nil {
			return Status{}, walkErr
		}
		return Status{Ahead: ahead}, nil
	}

	if headRef.Hash() == upstreamRef.Hash() {
		return Status{Clean: true}, nil
	}

	ahead, err := r.commitsReachableExcluding(headRef.Hash(), upstreamRef.Hash())
	if err != nil {
		return Status{}, err
	}
	behind, err := r.commitsReachableExcluding(upstreamRef.Hash(), headRef.Hash())
	if err != nil {
		return Status{}, err
	}
	return Status{Ahead: ahead, Behind: behind}, nil
}

// commitsReachableExcluding walks from `from` and collects commits not
// reachable from `exclude`, newest first.
func (r *Repository) commitsReachableExcluding(from, exclude plumbing.Hash) ([]Commit, error) {
	excludeSet := map[plumbing.Hash]bool{}
	if exclude != plumbing.ZeroHash {
		excludeCommit, err := r.repo.CommitObject(exclude)
		if err == nil {
			_ = object.NewCommitPreorderIter(excludeCommit, nil, nil).ForEach(func(c *object.Commit) error {
				excludeSet[c.Hash] = true
				return nil
			})
		}
	}

	fromCommit, err := r.repo.CommitObject(from)
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}

	var out []Commit
	err = object.NewCommitPreorderIter(fromCommit, nil, nil).ForEach(func(c *object.Commit) error {
		if excludeSet[c.Hash] {
			return nil
		}
		out = append(out, toCommit(c))
		return nil
	})
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}
	return out, nil
}

func (r *Repository) commitsBetween(from, exclude plumbing.Hash) ([]Commit, error) {
	return r.commitsReachableExcluding(from, exclude)
}

func toCommit(c *object.Commit) Commit {
	var parents []string
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return Commit{
		Hash:         c.Hash.String(),
		Message:      c.Message,
		ParentHashes: parents,
		AuthorTime:   c.Author.When,
	}
}

// DirtyFiles enumerates working-tree-vs-index changes as repo-relative
// paths, with no classification by change kind.
func (r *Repository) DirtyFiles() ([]string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitRepositoryMissing, Err: err}
	}
	st, err := wt.Status()
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitRepositoryMissing, Err: err}
	}
	var out []string
	for path, s := range st {
		if s.Worktree != git.Unmodified || s.Staging != git.Unmodified {
			out = append(out, path)
		}
	}
	return out, nil
}

// FileBytesAtCommit looks up file at commit's tree. Returns a typed
// LocalGitFileNotAtCommit error (not a bare error) so diff engines can
// degrade gracefully.
func (r *Repository) FileBytesAtCommit(file, commitHash string) ([]byte, error) {
	h := plumbing.NewHash(commitHash)
	c, err := r.repo.CommitObject(h)
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitCommitMissing, Err: err}
	}
	f, err := tree.File(file)
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitFileNotAtCommit, Err: err}
	}
	content, err := f.Contents()
	if err != nil {
		return nil, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitFileNotAtCommit, Err: err}
	}
	return []byte(content), nil
}

// IsAncestor walks from d and returns true iff a is visited.
func (r *Repository) IsAncestor(a, d string) (bool, error) {
	dCommit, err := r.repo.CommitObject(plumbing.NewHash(d))
	if err != nil {
		return false, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitAncestorQueryFailed, Err: err}
	}
	aHash := plumbing.NewHash(a)
	found := false
	err = object.NewCommitPreorderIter(dCommit, nil, nil).ForEach(func(c *object.Commit) error {
		if c.Hash == aHash {
			found = true
			return errStop
		}
		return nil
	})
	if err != nil && err != errStop {
		return false, &ghqcerrors.LocalGitError{Kind: ghqcerrors.LocalGitAncestorQueryFailed, Err: err}
	}
	return found, nil
}

var errStop = errors.New("localgit: stop iteration")
