// Package diskcache implements a namespaced, per-(owner,repo) on-disk
// key/value store: a JSON file per key, nested under directory segments,
// with an optional TTL wrapper for entries that should expire.
package diskcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/a2-ai/ghqc/internal/ghqcerrors"
)

const defaultTTLSeconds = 3600

const cacheTimeoutEnvVar = "GHQC_CACHE_TIMEOUT"

// entry is the on-disk wrapper around cached data: {data, created_at,
// ttl_seconds?}. A nil TTL (encoded as the JSON field being absent) means
// the entry never expires.
type entry struct {
	Data       json.RawMessage `json:"data"`
	CreatedAt  int64           `json:"created_at_epoch_seconds"`
	TTLSeconds *int64          `json:"ttl_seconds,omitempty"`
}

func (e entry) isExpired(now time.Time) bool {
	if e.TTLSeconds == nil {
		return false
	}
	return now.Unix() > e.CreatedAt+*e.TTLSeconds
}

// Cache is a disk-backed, namespaced key/value store rooted at
// <root>/<owner>/<repo>.
type Cache struct {
	root  string
	owner string
	repo  string
	ttl   time.Duration
	now   func() time.Time
}

// New constructs a Cache rooted at root for the given owner/repo, using
// DefaultTTL() unless overridden by WithTTL.
func New(root, owner, repo string) *Cache {
	return &Cache{root: root, owner: owner, repo: repo, ttl: DefaultTTL(), now: time.Now}
}

// WithTTL overrides the cache's TTL (used for permanent entries' "use_ttl"
// argument at call sites, not for constructing the Cache itself).
func (c *Cache) WithTTL(ttl time.Duration) *Cache {
	clone := *c
	clone.ttl = ttl
	return &clone
}

// DefaultTTL reads GHQC_CACHE_TIMEOUT from the environment, defaulting to
// one hour.
func DefaultTTL() time.Duration {
	if v := os.Getenv(cacheTimeoutEnvVar); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultTTLSeconds * time.Second
}

// OSCacheRoot returns <user cache dir>/ghqc, the disk cache layout's root
// (§6: <os-cache>/ghqc/<owner>/<repo>/<path…>/<key>.json).
func OSCacheRoot() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve OS cache directory")
	}
	return filepath.Join(dir, "ghqc"), nil
}

// Path returns the filesystem path for a given directory-path/key pair,
// without touching the filesystem.
func (c *Cache) Path(path []string, key string) string {
	parts := append([]string{c.root, c.owner, c.repo}, path...)
	return filepath.Join(filepath.Join(parts...), key+".json")
}

// Read deserializes cached data into dst if a non-expired entry exists at
// path/key. Returns (found, err); a missing key is (false, nil), not an
// error. An expired entry is deleted and reported as not found.
func (c *Cache) Read(path []string, key string, dst any) (bool, error) {
	filePath := c.Path(path, key)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &ghqcerrors.CacheIOError{Err: err}
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false, &ghqcerrors.CacheIOError{Err: err}
	}

	if e.isExpired(c.nowFn()) {
		_ = os.Remove(filePath)
		return false, nil
	}

	if err := json.Unmarshal(e.Data, dst); err != nil {
		return false, &ghqcerrors.CacheIOError{Err: err}
	}
	return true, nil
}

// Write serializes data to path/key, wrapped with the cache's TTL when
// useTTL is true, or stored permanently otherwise.
func (c *Cache) Write(path []string, key string, data any, useTTL bool) error {
	filePath := c.Path(path, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return &ghqcerrors.CacheIOError{Err: err}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return &ghqcerrors.CacheIOError{Err: err}
	}

	e := entry{Data: raw, CreatedAt: c.nowFn().Unix()}
	if useTTL {
		secs := int64(c.ttl / time.Second)
		e.TTLSeconds = &secs
	}

	out, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return &ghqcerrors.CacheIOError{Err: err}
	}
	// Last-writer-wins is an accepted race per §5; a plain write (not
	// write-then-rename) is sufficient.
	if err := os.WriteFile(filePath, out, 0o644); err != nil {
		return &ghqcerrors.CacheIOError{Err: err}
	}
	return nil
}

// Invalidate removes a cached entry if present.
func (c *Cache) Invalidate(path []string, key string) error {
	err := os.Remove(c.Path(path, key))
	if err != nil && !os.IsNotExist(err) {
		return &ghqcerrors.CacheIOError{Err: err}
	}
	return nil
}

func (c *Cache) nowFn() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
