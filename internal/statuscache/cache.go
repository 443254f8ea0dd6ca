// Package statuscache is the process-wide in-memory QC status cache,
// keyed by issue number, with a fast-path update protocol applied after a
// known mutation instead of a full reconstruction.
package statuscache

import (
	"sync"

	"github.com/a2-ai/ghqc/internal/model"
)

// Cache is a single process-wide cache guarded by a RWMutex, mirroring the
// teacher's configurationLock pattern: reads take the read lock, writes
// (including the update protocol) take the write lock.
type Cache struct {
	mu      sync.RWMutex
	entries map[int]cacheRecord
}

type cacheRecord struct {
	key   model.CacheKey
	entry model.CacheEntry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[int]cacheRecord)}
}

// Get returns the entry for issueNumber iff the stored CacheKey matches
// key exactly.
func (c *Cache) Get(issueNumber int, key model.CacheKey) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.entries[issueNumber]
	if !ok || !rec.key.Equal(key) {
		return model.CacheEntry{}, false
	}
	return rec.entry, true
}

// Set stores entry under key for issueNumber, replacing any prior record.
// A full read path is the only caller allowed to promote an entry from
// Partial to Complete.
func (c *Cache) Set(issueNumber int, key model.CacheKey, entry model.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[issueNumber] = cacheRecord{key: key, entry: entry}
}

// Invalidate drops the cached entry for issueNumber, if any.
func (c *Cache) Invalidate(issueNumber int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, issueNumber)
}

// UpdateAction discriminates the three write-path mutations the fast-path
// update protocol understands.
type UpdateAction int

const (
	ActionNotification UpdateAction = iota
	ActionReview
	ActionApprove
)

// Update applies the fast-path update protocol: merges the action's
// commit-status mark into the current-HEAD commit (prepending a synthetic
// commit if HEAD isn't already present), then transitions qc_status per
// the action/previous-status table. It returns the updated entry, stores
// it under newKey, and leaves the cache's CacheEntryKind unchanged — this
// protocol never promotes Partial to Complete.
func (c *Cache) Update(issueNumber int, newKey model.CacheKey, currentHead string, action UpdateAction) model.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[issueNumber]
	if !ok {
		rec = cacheRecord{entry: model.CacheEntry{Kind: model.EntryPartial}}
	}
	entry := rec.entry

	switch entry.Kind {
	case model.EntryComplete:
		entry = updateComplete(entry, currentHead, action)
	default:
		entry = updatePartial(entry, currentHead, action)
	}

	c.entries[issueNumber] = cacheRecord{key: newKey, entry: entry}
	return entry
}

func updateComplete(entry model.CacheEntry, currentHead string, action UpdateAction) model.CacheEntry {
	idx := -1
	for i, ic := range entry.Commits {
		if ic.Hash == currentHead {
			idx = i
			break
		}
	}

	mark := markFor(action)
	isLatest := idx == 0

	if idx >= 0 {
		entry.Commits[idx] = entry.Commits[idx].WithStatus(mark)
	} else {
		newCommit := model.IssueCommit{
			Hash:        currentHead,
			Message:     "New commit",
			Statuses:    map[model.CommitStatus]bool{mark: true},
			FileChanged: true,
		}
		entry.Commits = append([]model.IssueCommit{newCommit}, entry.Commits...)
		isLatest = true
	}

	entry.Status = nextStatus(action, entry.Status, isLatest, currentHead)
	return entry
}

func updatePartial(entry model.CacheEntry, currentHead string, action UpdateAction) model.CacheEntry {
	// Partial entries have no commits list; "latest" is assumed to be
	// current.
	entry.Status = nextStatus(action, entry.Status, true, currentHead)
	return entry
}

func markFor(action UpdateAction) model.CommitStatus {
	switch action {
	case ActionNotification:
		return model.StatusNotification
	case ActionReview:
		return model.StatusReviewed
	case ActionApprove:
		return model.StatusApproved
	}
	return model.StatusNotification
}

// nextStatus implements the §4.8 transition table.
func nextStatus(action UpdateAction, prev model.QCStatus, isLatest bool, currentHead string) model.QCStatus {
	switch action {
	case ActionNotification:
		if !isLatest {
			return prev
		}
		if prev.Kind == model.Approved {
			return model.QCStatus{Kind: model.ChangesAfterApproval, Commit: currentHead}
		}
		return model.QCStatus{Kind: model.AwaitingReview}
	case ActionReview:
		if !isLatest {
			return prev
		}
		if prev.Kind == model.Approved {
			return model.QCStatus{Kind: model.ChangesAfterApproval, Commit: currentHead}
		}
		return model.QCStatus{Kind: model.ChangeRequested}
	case ActionApprove:
		if isLatest {
			return model.QCStatus{Kind: model.Approved}
		}
		return model.QCStatus{Kind: model.ChangesAfterApproval, Commit: currentHead}
	}
	return prev
}

// Unapprove applies the §4.8 unapproval rule: Approved -> ChangeRequested,
// ChangesAfterApproval -> ChangesToComment. For Complete entries, any
// commit carrying Approved has that mark rewritten to Notification
// (dropped instead if the commit already carries Notification, to avoid a
// duplicate mark).
func (c *Cache) Unapprove(issueNumber int, newKey model.CacheKey) model.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.entries[issueNumber]
	if !ok {
		return model.CacheEntry{}
	}
	entry := rec.entry

	switch entry.Status.Kind {
	case model.Approved:
		entry.Status = model.QCStatus{Kind: model.ChangeRequested}
	case model.ChangesAfterApproval:
		entry.Status = model.QCStatus{Kind: model.ChangesToComment, Commit: entry.Status.Commit}
	}

	if entry.Kind == model.EntryComplete {
		for i, ic := range entry.Commits {
			if !ic.HasStatus(model.StatusApproved) {
				continue
			}
			if ic.HasStatus(model.StatusNotification) {
				entry.Commits[i] = ic.WithoutStatus(model.StatusApproved)
			} else {
				entry.Commits[i] = ic.WithoutStatus(model.StatusApproved).WithStatus(model.StatusNotification)
			}
		}
	}

	c.entries[issueNumber] = cacheRecord{key: newKey, entry: entry}
	return entry
}
