package timeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
)

// decodeCachedWire accepts either a cachedWire value or the generic
// map[string]interface{} produced by decoding an arbitrary JSON payload
// (as transport responses are), and normalizes it to a cachedWire.
func decodeCachedWire(v interface{}) (cachedWire, error) {
	if w, ok := v.(cachedWire); ok {
		return w, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return cachedWire{}, fmt.Errorf("re-encode timeline payload: %w", err)
	}
	var w cachedWire
	if err := json.Unmarshal(data, &w); err != nil {
		return cachedWire{}, fmt.Errorf("decode timeline payload: %w", err)
	}
	return w, nil
}

// CachedTimeline is an immutable snapshot of another user's timeline,
// fetched via the get pipeline and stored with a validity window.
type CachedTimeline struct {
	Owner       identity.User
	Posts       []Post
	TotalPosts  int
	LastUpdated time.Time
	ValidUntil  *time.Time
}

// cachedWire always carries total_posts/last_updated/valid_until, which
// is what discriminates it on the wire from an own timeline's ownWire.
type cachedWire struct {
	UserID      string     `json:"userid"`
	Posts       []Post     `json:"posts"`
	TotalPosts  int        `json:"total_posts"`
	LastUpdated time.Time  `json:"last_updated"`
	ValidUntil  *time.Time `json:"valid_until"`
}

// IsValid reports whether the cache is still usable: valid_until is
// unset, or now is before it.
func (c *CachedTimeline) IsValid() bool {
	return c.ValidUntil == nil || time.Now().Before(*c.ValidUntil)
}

// Cache re-truncates the snapshot to maxPosts without refreshing its
// timestamps, per spec.md §4.2.
func (c *CachedTimeline) Cache(maxPosts *int) *CachedTimeline {
	sorted := sortedDescending(c.Posts)
	return &CachedTimeline{
		Owner:       c.Owner,
		Posts:       truncate(sorted, maxPosts),
		TotalPosts:  c.TotalPosts,
		LastUpdated: c.LastUpdated,
		ValidUntil:  c.ValidUntil,
	}
}

func (c *CachedTimeline) toWire() cachedWire {
	posts := c.Posts
	if posts == nil {
		posts = []Post{}
	}
	return cachedWire{
		UserID:      c.Owner.String(),
		Posts:       posts,
		TotalPosts:  c.TotalPosts,
		LastUpdated: c.LastUpdated,
		ValidUntil:  c.ValidUntil,
	}
}

func fromWire(w cachedWire) (*CachedTimeline, error) {
	owner, err := identity.Parse(w.UserID)
	if err != nil {
		return nil, err
	}
	return &CachedTimeline{
		Owner:       owner,
		Posts:       w.Posts,
		TotalPosts:  w.TotalPosts,
		LastUpdated: w.LastUpdated,
		ValidUntil:  w.ValidUntil,
	}, nil
}

// MarshalForWire serializes the cached timeline the way it is sent in a
// get-timeline response and stored on disk.
func (c *CachedTimeline) MarshalForWire() interface{} {
	return c.toWire()
}

// CachedTimelineFromWire parses a get-timeline response payload (or an
// on-disk cache blob) back into a CachedTimeline.
func CachedTimelineFromWire(v interface{}) (*CachedTimeline, error) {
	w, err := decodeCachedWire(v)
	if err != nil {
		return nil, err
	}
	return fromWire(w)
}

func cacheFile(owner identity.User) []string {
	return file(owner)
}

// StoreCache persists a cached timeline for subscriber.
func StoreCache(store *storage.BlobStore, subscriber identity.User, c *CachedTimeline) error {
	return store.Write(c.toWire(), cacheFile(subscriber)...)
}

// LoadCache reads the cached timeline stored for subscriber, if any.
// If the on-disk cache has expired, it is deleted and (nil, nil) is
// returned, per spec.md §8 property 3.
func LoadCache(store *storage.BlobStore, subscriber identity.User) (*CachedTimeline, error) {
	if !store.Exists(cacheFile(subscriber)...) {
		return nil, nil
	}
	var w cachedWire
	if err := store.Read(&w, cacheFile(subscriber)...); err != nil {
		return nil, fmt.Errorf("load cache for %s: %w", subscriber, err)
	}
	c, err := fromWire(w)
	if err != nil {
		return nil, err
	}
	if !c.IsValid() {
		_ = DeleteCache(store, subscriber)
		return nil, nil
	}
	return c, nil
}

// DeleteCache removes the cached timeline file for subscriber.
func DeleteCache(store *storage.BlobStore, subscriber identity.User) error {
	return store.Delete(cacheFile(subscriber)...)
}
