package commands

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/a2-ai/ghqc/internal/blocking"
	"github.com/a2-ai/ghqc/internal/diskcache"
	"github.com/a2-ai/ghqc/internal/localgit"
	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/orchestrator"
	"github.com/a2-ai/ghqc/internal/platform"
	"github.com/a2-ai/ghqc/internal/qcstatus"
	"github.com/a2-ai/ghqc/internal/statuscache"
	"github.com/a2-ai/ghqc/internal/thread"
)

// globalStatusCache is the single process-wide in-memory status cache
// (§5: "the in-memory status cache is process-global"). A CLI invocation
// is a single process, so this mainly matters for the milestone batch
// view and the long-lived serve command.
var globalStatusCache = statuscache.New()

// app bundles the wiring every subcommand needs: an authenticated
// platform client, the local repository adapter, the disk cache, the
// shared in-memory status cache, and a write-path orchestrator built on
// top of them.
type app struct {
	owner, repo string
	localRepo   *localgit.Repository
	client      platform.Client
	disk        *diskcache.Cache
	statusCache *statuscache.Cache
	orch        *orchestrator.Orchestrator
	log         *logrus.Logger
}

func newApp() (*app, error) {
	log := logrus.StandardLogger()

	localRepo, err := localgit.Open(repoPath, log)
	if err != nil {
		return nil, errors.Wrap(err, "opening local repository")
	}

	token, err := platform.DiscoverToken()
	if err != nil {
		log.Warn("ghqc: no credentials found, falling back to an unauthenticated client (public reads only)")
		token = ""
	}
	client := platform.New(token, log)

	cacheRoot, err := diskcache.OSCacheRoot()
	if err != nil {
		return nil, errors.Wrap(err, "resolving disk cache root")
	}
	disk := diskcache.New(cacheRoot, localRepo.Owner(), localRepo.Repo())

	orch := orchestrator.New(client, disk, globalStatusCache, log)

	return &app{
		owner:       localRepo.Owner(),
		repo:        localRepo.Repo(),
		localRepo:   localRepo,
		client:      client,
		disk:        disk,
		statusCache: globalStatusCache,
		orch:        orch,
		log:         log,
	}, nil
}

// resolveThread implements the read path of §4.5/§4.6 for an issue the
// caller has already fetched: reconstruct its thread via the disk-cache-
// assisted comment source and the local repository's robust commit
// resolution, and derive its status.
func (a *app) resolveThread(ctx context.Context, issue *platform.Issue) (model.IssueThread, model.QCStatus, error) {
	comments := thread.NewCachedCommentSource(a.client, a.disk, issue.UpdatedAt)
	t, err := thread.Reconstruct(ctx, issue, a.owner, a.repo, comments, a.localRepo)
	if err != nil {
		return model.IssueThread{}, model.QCStatus{}, err
	}
	status := qcstatus.Determine(t)
	return t, status, nil
}

// reconstructor adapts resolveThread to blocking.Reconstructor.
func (a *app) reconstructor() blocking.Reconstructor {
	return func(ctx context.Context, issue *platform.Issue) (model.IssueThread, model.QCStatus, error) {
		return a.resolveThread(ctx, issue)
	}
}

// cacheKeyFor builds the strict CacheKey (§3/§9) for issue against the
// local repository's current HEAD and branch.
func (a *app) cacheKeyFor(issue *platform.Issue) (model.CacheKey, string, string, error) {
	branch, err := a.localRepo.CurrentBranch()
	if err != nil {
		return model.CacheKey{}, "", "", errors.Wrap(err, "resolving current branch")
	}
	head, err := a.localRepo.HeadCommit()
	if err != nil {
		return model.CacheKey{}, "", "", errors.Wrap(err, "resolving HEAD commit")
	}
	return model.CacheKey{IssueUpdatedAt: issue.UpdatedAt, Branch: branch, HeadCommit: head}, branch, head, nil
}

func fetchIssue(ctx context.Context, a *app, number int) (*platform.Issue, error) {
	issue, err := a.client.Issue(ctx, a.owner, a.repo, number)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching issue #%d", number)
	}
	return issue, nil
}

// printStatusLine renders a one-line human summary of an issue's QC
// status, used by the status and milestone commands.
func printStatusLine(number int, file string, status model.QCStatus, checklist model.ChecklistSummary, blockingSummary string) {
	fmt.Printf("#%-6d %-40s %-22s checklist %d/%d (%.0f%%) blocking %s\n",
		number, file, status.String(), checklist.Completed, checklist.Total, checklist.CompletionPercentage(), blockingSummary)
}
