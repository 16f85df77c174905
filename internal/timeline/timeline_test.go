package timeline

import (
	"testing"
	"time"

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

func TestAddAndRemovePost(t *testing.T) {
	owner := mustUser(t, "127.0.0.1:8000")
	tl := New(owner)

	p0 := tl.AddPost(0, "hello")
	assert.Equal(t, int64(0), p0.ID)
	assert.Equal(t, "hello", p0.Content)
	require.Len(t, tl.Posts, 1)

	p1 := tl.AddPost(1, "world")
	assert.Equal(t, int64(1), p1.ID)
	require.Len(t, tl.Posts, 2)

	assert.True(t, tl.RemovePostByID(0))
	require.Len(t, tl.Posts, 1)
	assert.Equal(t, int64(1), tl.Posts[0].ID)

	assert.False(t, tl.RemovePostByID(0))
}

func TestCacheOrderingAndTruncation(t *testing.T) {
	owner := mustUser(t, "127.0.0.1:8000")
	tl := New(owner)
	now := time.Now()
	tl.Posts = []Post{
		{ID: 0, Timestamp: now.Add(-2 * time.Hour), Content: "old"},
		{ID: 1, Timestamp: now, Content: "new"},
		{ID: 2, Timestamp: now.Add(-1 * time.Hour), Content: "mid"},
	}

	max := 2
	c := tl.Cache(&max, nil)
	require.Len(t, c.Posts, 2)
	assert.Equal(t, "new", c.Posts[0].Content)
	assert.Equal(t, "mid", c.Posts[1].Content)
	assert.Equal(t, 3, c.TotalPosts)
	assert.Nil(t, c.ValidUntil)
	assert.True(t, c.IsValid())
}

func TestCacheTTL(t *testing.T) {
	owner := mustUser(t, "127.0.0.1:8000")
	tl := New(owner)
	tl.AddPost(0, "x")

	ttl := time.Millisecond
	c := tl.Cache(nil, &ttl)
	require.NotNil(t, c.ValidUntil)
	time.Sleep(5 * time.Millisecond)
	assert.False(t, c.IsValid())
}

func TestCachedTimelineRecache(t *testing.T) {
	owner := mustUser(t, "127.0.0.1:8000")
	tl := New(owner)
	now := time.Now()
	tl.Posts = []Post{
		{ID: 0, Timestamp: now.Add(-1 * time.Hour), Content: "a"},
		{ID: 1, Timestamp: now, Content: "b"},
	}
	ttl := time.Hour
	c := tl.Cache(nil, &ttl)
	require.Len(t, c.Posts, 2)

	max := 1
	re := c.Cache(&max)
	require.Len(t, re.Posts, 1)
	assert.Equal(t, "b", re.Posts[0].Content)
	// timestamps are not refreshed on re-cache
	assert.Equal(t, c.LastUpdated, re.LastUpdated)
	assert.Equal(t, c.ValidUntil, re.ValidUntil)
}

func TestStoreLoadRoundTripOwn(t *testing.T) {
	dir := t.TempDir()
	owner := mustUser(t, "127.0.0.1:8000")
	store, err := storage.Open(dir, owner)
	require.NoError(t, err)

	tl := New(owner)
	tl.AddPost(0, "hi")
	require.NoError(t, tl.Store(store))

	loaded, err := Load(store, owner)
	require.NoError(t, err)
	require.Len(t, loaded.Posts, 1)
	assert.Equal(t, "hi", loaded.Posts[0].Content)
}

func TestStoreLoadRoundTripCache(t *testing.T) {
	dir := t.TempDir()
	self := mustUser(t, "127.0.0.1:8001")
	store, err := storage.Open(dir, self)
	require.NoError(t, err)

	owner := mustUser(t, "127.0.0.1:8000")
	tl := New(owner)
	tl.AddPost(0, "hi")
	ttl := time.Hour
	c := tl.Cache(nil, &ttl)

	require.NoError(t, StoreCache(store, owner, c))

	loaded, err := LoadCache(store, owner)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.TotalPosts)
	assert.True(t, loaded.Owner.Equal(owner))
}

func TestLoadCacheDeletesExpired(t *testing.T) {
	dir := t.TempDir()
	self := mustUser(t, "127.0.0.1:8001")
	store, err := storage.Open(dir, self)
	require.NoError(t, err)

	owner := mustUser(t, "127.0.0.1:8000")
	tl := New(owner)
	tl.AddPost(0, "hi")
	ttl := time.Millisecond
	c := tl.Cache(nil, &ttl)
	require.NoError(t, StoreCache(store, owner, c))
	time.Sleep(5 * time.Millisecond)

	loaded, err := LoadCache(store, owner)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.False(t, store.Exists("timelines", owner.Filename()+".json"))
}

func TestMergeTimelines(t *testing.T) {
	now := time.Now()
	sources := []Source{
		{Owner: "a", Posts: []Post{{ID: 0, Timestamp: now.Add(-time.Hour), Content: "a-old"}}},
		{Owner: "b", Posts: []Post{{ID: 0, Timestamp: now, Content: "b-new"}}},
	}
	merged := MergeTimelines(sources, nil)
	require.Len(t, merged.Posts, 2)
	assert.Equal(t, "b-new", merged.Posts[0].Content)
	assert.Equal(t, "a", merged.Posts[1].Owner)

	max := 1
	truncated := MergeTimelines(sources, &max)
	require.Len(t, truncated.Posts, 1)
	assert.Equal(t, "b-new", truncated.Posts[0].Content)
}
