package diskcache

import (
	"strings"
	"time"

	"github.com/a2-ai/ghqc/internal/platform"
)

// CachedComments wraps a cached comment list with the parent issue's
// updated_at timestamp, so a reader can tell whether the cache is still
// valid for the current issue state (§4.5 step 4: "if cached and
// cached.issue_updated_at >= issue.updated_at, use cache; else refetch").
type CachedComments struct {
	Comments       []platform.Comment `json:"comments"`
	IssueUpdatedAt time.Time          `json:"issue_updated_at"`
}

// commentsPath namespaces comment caches under the issue's number. The
// list is stored permanently (no TTL) under the single key "body", with the
// issue's updated_at kept inside the record; Comments compares it, so an
// entry older than the issue's current updated_at is stale rather than
// expired.
func commentsPath(issueNumber int) []string {
	return []string{"issues", itoa(issueNumber), "comments"}
}

// Comments returns the cached comment list for issueNumber iff it is
// still valid for issueUpdatedAt and no cached comment lacks an HTML body
// while its markdown body contains an embedded image (§4.1/§9: such a hit
// must be invalidated and refetched).
func (c *Cache) Comments(issueNumber int, issueUpdatedAt time.Time) ([]platform.Comment, bool) {
	var cached CachedComments
	found, err := c.Read(commentsPath(issueNumber), "body", &cached)
	if err != nil || !found {
		return nil, false
	}
	if cached.IssueUpdatedAt.Before(issueUpdatedAt) {
		return nil, false
	}
	for _, cm := range cached.Comments {
		if cm.BodyHTML == "" && containsEmbeddedImage(cm.Body) {
			return nil, false
		}
	}
	return cached.Comments, true
}

// WriteComments stores comments permanently, keyed by the issue's current
// updated_at.
func (c *Cache) WriteComments(issueNumber int, issueUpdatedAt time.Time, comments []platform.Comment) error {
	return c.Write(commentsPath(issueNumber), "body", CachedComments{
		Comments:       comments,
		IssueUpdatedAt: issueUpdatedAt,
	}, false)
}

func containsEmbeddedImage(body string) bool {
	return strings.Contains(body, "![") || strings.Contains(body, "<img")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
