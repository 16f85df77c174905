// Package timeline implements the own/cached timeline data model (C3):
// an authoritative, mutable timeline per owning user, snapshotted into
// immutable, TTL-bounded caches, and merged across many owners for the
// "view" command.
package timeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
)

const postsDir = "timelines"

// Timeline is the authoritative, always-valid sequence of posts owned
// by a single user.
type Timeline struct {
	Owner identity.User
	Posts []Post
}

// New returns an empty timeline for the given owner.
func New(owner identity.User) *Timeline {
	return &Timeline{Owner: owner}
}

// ownWire is the on-disk / wire shape of an own timeline: it carries no
// "valid_until" key at all, which is what discriminates it from a
// CachedTimeline's wire shape on read, per spec.md §4.2.
type ownWire struct {
	UserID string `json:"userid"`
	Posts  []Post `json:"posts"`
}

// cacheDiscriminator is a minimal probe that tells an own-timeline blob
// from a cached one by its valid_until key without a full unmarshal.
// Load and LoadCache do not use it: each reads its own file directly.
type cacheDiscriminator struct {
	ValidUntil *json.RawMessage `json:"valid_until"`
}

func file(owner identity.User) []string {
	return []string{postsDir, owner.Filename() + ".json"}
}

// AddPost appends a new post with the given id and now() as its
// timestamp, returning the stored post.
func (t *Timeline) AddPost(id int64, content string) Post {
	p := Post{ID: id, Timestamp: time.Now(), Content: content}
	t.Posts = append(t.Posts, p)
	return p
}

// RemovePostByID removes the first post with the given id, reporting
// whether one was found.
func (t *Timeline) RemovePostByID(id int64) bool {
	for i, p := range t.Posts {
		if p.ID == id {
			t.Posts = append(t.Posts[:i], t.Posts[i+1:]...)
			return true
		}
	}
	return false
}

// Cache takes a snapshot of the timeline: posts sorted by timestamp
// descending, truncated to maxPosts (nil = all), stamped with now() as
// last_updated and, if ttl is non-nil, a valid_until.
func (t *Timeline) Cache(maxPosts *int, ttl *time.Duration) *CachedTimeline {
	sorted := sortedDescending(t.Posts)
	total := len(t.Posts)
	now := time.Now()

	var validUntil *time.Time
	if ttl != nil {
		vu := now.Add(*ttl)
		validUntil = &vu
	}

	return &CachedTimeline{
		Owner:       t.Owner,
		Posts:       truncate(sorted, maxPosts),
		TotalPosts:  total,
		LastUpdated: now,
		ValidUntil:  validUntil,
	}
}

func sortedDescending(posts []Post) []Post {
	out := make([]Post, len(posts))
	copy(out, posts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func truncate(posts []Post, max *int) []Post {
	if max == nil || *max >= len(posts) {
		return posts
	}
	if *max < 0 {
		return []Post{}
	}
	return posts[:*max]
}

// Clone returns a deep copy, used for the snapshot-and-restore pattern
// around post/delete mutations (spec.md §5).
func (t *Timeline) Clone() *Timeline {
	posts := make([]Post, len(t.Posts))
	copy(posts, t.Posts)
	return &Timeline{Owner: t.Owner, Posts: posts}
}

// Restore replaces the timeline's posts with snapshot's, in place.
func (t *Timeline) Restore(snapshot *Timeline) {
	t.Posts = snapshot.Posts
}

// Store persists the own timeline.
func (t *Timeline) Store(store *storage.BlobStore) error {
	w := ownWire{UserID: t.Owner.String(), Posts: t.Posts}
	if w.Posts == nil {
		w.Posts = []Post{}
	}
	return store.Write(w, file(t.Owner)...)
}

// Load reads the own timeline for owner, returning an empty one if no
// file exists yet.
func Load(store *storage.BlobStore, owner identity.User) (*Timeline, error) {
	if !store.Exists(file(owner)...) {
		return New(owner), nil
	}
	var w ownWire
	if err := store.Read(&w, file(owner)...); err != nil {
		return nil, fmt.Errorf("load timeline for %s: %w", owner, err)
	}
	return &Timeline{Owner: owner, Posts: w.Posts}, nil
}

// Delete removes the persisted timeline file for owner, if any.
func Delete(store *storage.BlobStore, owner identity.User) error {
	return store.Delete(file(owner)...)
}

// Exists reports whether a timeline file is present for owner.
func Exists(store *storage.BlobStore, owner identity.User) bool {
	return store.Exists(file(owner)...)
}
