package subscriptions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
)

func mustUser(t *testing.T, s string) identity.User {
	t.Helper()
	u, err := identity.Parse(s)
	require.NoError(t, err)
	return u
}

func TestAddRemoveContains(t *testing.T) {
	set := New()
	a := mustUser(t, "127.0.0.1:8001")

	assert.True(t, set.Add(a))
	assert.False(t, set.Add(a)) // already present
	assert.True(t, set.Contains(a))

	assert.True(t, set.Remove(a))
	assert.False(t, set.Contains(a))
	assert.False(t, set.Remove(a)) // already absent
}

func TestSnapshotRestore(t *testing.T) {
	set := New()
	a := mustUser(t, "127.0.0.1:8001")
	set.Add(a)

	snap := set.Clone()
	b := mustUser(t, "127.0.0.1:8002")
	set.Add(b)
	assert.True(t, set.Contains(b))

	set.Restore(snap)
	assert.False(t, set.Contains(b))
	assert.True(t, set.Contains(a))
}

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	owner := mustUser(t, "127.0.0.1:8000")
	bs, err := storage.Open(dir, owner)
	require.NoError(t, err)

	set := New()
	set.Add(mustUser(t, "127.0.0.1:8001"))
	set.Add(mustUser(t, "127.0.0.1:8002"))
	require.NoError(t, set.Store(bs))

	loaded, err := Load(bs)
	require.NoError(t, err)
	assert.ElementsMatch(t, set.List(), loaded.List())
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	owner := mustUser(t, "127.0.0.1:8000")
	bs, err := storage.Open(dir, owner)
	require.NoError(t, err)

	loaded, err := Load(bs)
	require.NoError(t, err)
	assert.Empty(t, loaded.List())
}
