// Package nextpostid is the durable monotonic counter that assigns each
// new post its id (C3's NextPostId).
package nextpostid

import (
	"fmt"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
)

const file = "next_post_id.json"
const startID = int64(0)

// Counter is the next id to assign.
type Counter struct {
	ID int64 `json:"id"`
}

// New returns a counter starting at 0.
func New() *Counter {
	return &Counter{ID: startID}
}

// GetAndAdvance returns the current id and advances the counter.
func (c *Counter) GetAndAdvance() int64 {
	id := c.ID
	c.ID++
	return id
}

// Rollback undoes the last GetAndAdvance, used when a post fails to
// persist.
func (c *Counter) Rollback() {
	c.ID--
}

// Clone returns a copy, for the snapshot-and-restore pattern.
func (c *Counter) Clone() *Counter {
	return &Counter{ID: c.ID}
}

// Restore replaces the counter's value with snapshot's, in place.
func (c *Counter) Restore(snapshot *Counter) {
	c.ID = snapshot.ID
}

// Store persists the counter.
func (c *Counter) Store(store *storage.BlobStore) error {
	return store.Write(c, file)
}

// Load reads the counter, returning a fresh one starting at 0 if no
// file exists yet.
func Load(store *storage.BlobStore) (*Counter, error) {
	if !store.Exists(file) {
		return New(), nil
	}
	var c Counter
	if err := store.Read(&c, file); err != nil {
		return nil, fmt.Errorf("load next post id: %w", err)
	}
	return &c, nil
}
