package thread

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/a2-ai/ghqc/internal/diskcache"
	"github.com/a2-ai/ghqc/internal/platform"
)

// CachedCommentSource satisfies CommentSource by layering the §4.3/§4.5
// disk cache in front of a platform.Reader: a cache hit valid for
// IssueUpdatedAt (and not missing required HTML bodies, per §4.1/§9) is
// returned as-is; otherwise comments are refetched and the cache
// rewritten. IssueUpdatedAt is bound at construction time since the
// CommentSource interface's Comments method has no way to learn it.
type CachedCommentSource struct {
	Reader         platform.Reader
	Disk           *diskcache.Cache
	IssueUpdatedAt time.Time
}

// NewCachedCommentSource builds a CommentSource for one issue reconstruction.
func NewCachedCommentSource(reader platform.Reader, disk *diskcache.Cache, issueUpdatedAt time.Time) *CachedCommentSource {
	return &CachedCommentSource{Reader: reader, Disk: disk, IssueUpdatedAt: issueUpdatedAt}
}

func (c *CachedCommentSource) Comments(ctx context.Context, owner, repo string, issueNumber int) ([]*platform.Comment, error) {
	if c.Disk != nil {
		if cached, ok := c.Disk.Comments(issueNumber, c.IssueUpdatedAt); ok {
			out := make([]*platform.Comment, len(cached))
			for i := range cached {
				out[i] = &cached[i]
			}
			return out, nil
		}
	}

	fetched, err := c.Reader.Comments(ctx, owner, repo, issueNumber)
	if err != nil {
		return nil, errors.Wrap(err, "fetching comments")
	}

	if c.Disk != nil {
		flat := make([]platform.Comment, len(fetched))
		for i, cm := range fetched {
			flat[i] = *cm
		}
		if werr := c.Disk.WriteComments(issueNumber, c.IssueUpdatedAt, flat); werr != nil {
			// Cache writes are non-fatal (§7 CacheIOError): the read already
			// succeeded, so degrade to an uncached path next time rather than
			// fail this call.
			_ = werr
		}
	}

	return fetched, nil
}
