// Package blocking resolves an issue thread's blocking QC dependencies
// (Gating/Previous QC entries) into an aggregate BlockingQCStatus,
// recursing into each dependency's own blocking QCs so an issue approved
// locally but blocked transitively is still reported as not approved.
package blocking

import (
	"context"
	"fmt"
	"sync"

	"github.com/a2-ai/ghqc/internal/model"
	"github.com/a2-ai/ghqc/internal/platform"
)

// IssueFetcher fetches a single issue by number.
type IssueFetcher interface {
	Issue(ctx context.Context, owner, repo string, number int) (*platform.Issue, error)
}

// Reconstructor reconstructs a thread and derives its status, abstracting
// over internal/thread.Reconstruct + internal/qcstatus.Determine so this
// package doesn't need to import either directly.
type Reconstructor func(ctx context.Context, issue *platform.Issue) (model.IssueThread, model.QCStatus, error)

type resolved struct {
	number int
	file   string
	status model.QCStatus
	errMsg string
}

// Resolve fans out over blockingQCs in parallel, one goroutine per entry,
// joined with a plain WaitGroup: this is the "collect-all" combinator,
// since a single failing dependency must not cancel the others. visited
// bounds recursive cycles, keyed on issue number: a revisited issue number
// resolves to an errors entry instead of recursing further.
func Resolve(ctx context.Context, owner, repo string, blockingQCs []model.RelevantFile, fetch IssueFetcher, reconstruct Reconstructor, visited map[int]bool) model.BlockingQCStatus {
	out := model.NewBlockingQCStatus()
	if len(blockingQCs) == 0 {
		return out
	}
	if visited == nil {
		visited = map[int]bool{}
	}

	results := make([]resolved, len(blockingQCs))
	var wg sync.WaitGroup

	for i, rf := range blockingQCs {
		i, rf := i, rf
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = resolveOne(ctx, owner, repo, rf, fetch, reconstruct, visited)
		}()
	}
	wg.Wait()

	for _, r := range results {
		switch {
		case r.errMsg != "":
			out.Errors[r.number] = r.errMsg
		case r.status.IsApprovedLike():
			out.Approved[r.number] = r.file
		default:
			out.NotApproved[r.number] = model.NotApprovedEntry{File: r.file, Status: r.status}
		}
	}
	return out
}

func resolveOne(ctx context.Context, owner, repo string, rf model.RelevantFile, fetch IssueFetcher, reconstruct Reconstructor, visited map[int]bool) resolved {
	if visited[rf.IssueNumber] {
		return resolved{number: rf.IssueNumber, file: rf.FileName, errMsg: fmt.Sprintf("cycle detected at issue #%d", rf.IssueNumber)}
	}
	childVisited := make(map[int]bool, len(visited)+1)
	for k, v := range visited {
		childVisited[k] = v
	}
	childVisited[rf.IssueNumber] = true

	issue, err := fetch.Issue(ctx, owner, repo, rf.IssueNumber)
	if err != nil {
		return resolved{number: rf.IssueNumber, file: rf.FileName, errMsg: err.Error()}
	}

	thread, status, err := reconstruct(ctx, issue)
	if err != nil {
		return resolved{number: rf.IssueNumber, file: rf.FileName, errMsg: err.Error()}
	}

	if len(thread.BlockingQCs) > 0 {
		transitive := Resolve(ctx, owner, repo, thread.BlockingQCs, fetch, reconstruct, childVisited)
		if transitive.HasErrors() {
			return resolved{number: rf.IssueNumber, file: rf.FileName, errMsg: fmt.Sprintf("issue #%d has unresolved blocking QCs", rf.IssueNumber)}
		}
		if !transitive.AllApproved() {
			return resolved{number: rf.IssueNumber, file: rf.FileName, status: model.QCStatus{Kind: model.ApprovalRequired}}
		}
	}

	return resolved{number: rf.IssueNumber, file: rf.FileName, status: status}
}
