// Package subscriptions is the durable set of users this node follows
// (C4). Insertion order is preserved on disk; the node's own identity
// is never a member.
package subscriptions

import (
	"fmt"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
)

const file = "subscriptions.json"

// Set is the node's local list of followed identities.
type Set struct {
	users []identity.User
}

// New returns an empty subscription set.
func New() *Set {
	return &Set{}
}

// Add inserts user if not already present, returning true if it was
// added.
func (s *Set) Add(user identity.User) bool {
	if s.Contains(user) {
		return false
	}
	s.users = append(s.users, user)
	return true
}

// Remove deletes user if present, returning true if it was removed.
func (s *Set) Remove(user identity.User) bool {
	for i, u := range s.users {
		if u.Equal(user) {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether user is in the set.
func (s *Set) Contains(user identity.User) bool {
	for _, u := range s.users {
		if u.Equal(user) {
			return true
		}
	}
	return false
}

// List returns the subscriptions in insertion order. The slice is a
// copy; mutating it does not affect the set.
func (s *Set) List() []identity.User {
	out := make([]identity.User, len(s.users))
	copy(out, s.users)
	return out
}

// Clone returns a deep copy, used for the snapshot-and-restore pattern
// around sub/unsub mutations (spec.md §5).
func (s *Set) Clone() *Set {
	return &Set{users: s.List()}
}

// Restore replaces the set's contents with snapshot's, in place.
func (s *Set) Restore(snapshot *Set) {
	s.users = snapshot.List()
}

func toStrings(users []identity.User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.String()
	}
	return out
}

// Store persists the subscription set.
func (s *Set) Store(store *storage.BlobStore) error {
	strs := toStrings(s.users)
	if strs == nil {
		strs = []string{}
	}
	return store.Write(strs, file)
}

// Load reads the subscription set, returning an empty one if no file
// exists yet.
func Load(store *storage.BlobStore) (*Set, error) {
	if !store.Exists(file) {
		return New(), nil
	}
	var strs []string
	if err := store.Read(&strs, file); err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	users := make([]identity.User, 0, len(strs))
	for _, s := range strs {
		u, err := identity.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("load subscriptions: %w", err)
		}
		users = append(users, u)
	}
	return &Set{users: users}, nil
}
