package node

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/config"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/dht"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/transport"
)

func testConfig() *config.Config {
	return &config.Config{
		CacheFrequencySeconds:      120,
		MaxCachedPosts:             50,
		CacheTTLSeconds:            0,
		HeuristicInitialP:          0.75,
		HeuristicDecay:             0.5,
		ReconcileMaxBackoffSeconds: 1,
		ReconcileJitterMinSeconds:  0.01,
		ReconcileJitterMaxSeconds:  0.02,
	}
}

func testReconcilerConfig() dht.ReconcileConfig {
	return dht.ReconcileConfig{
		MaxBackoff: time.Millisecond,
		JitterMin:  time.Millisecond,
		JitterMax:  2 * time.Millisecond,
	}
}

// harness is a node plus a listening public server, so peers can reach
// it via the real transport package over loopback.
type harness struct {
	node *Node
	srv  *transport.Server
}

func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func newHarness(t *testing.T, kv dht.KVStore) *harness {
	t.Helper()
	self, err := identity.Parse(freeLoopbackAddr(t))
	require.NoError(t, err)

	dir := t.TempDir()
	store, err := storage.Open(dir, self)
	require.NoError(t, err)

	reconciler := dht.NewReconciler(kv, zerolog.Nop(), testReconcilerConfig(), rate.NewLimiter(rate.Inf, 1))
	n, err := New(self, testConfig(), store, reconciler, zerolog.Nop(), nil)
	require.NoError(t, err)

	srv := transport.NewServer(self.String(), func(ctx context.Context, msg map[string]interface{}) transport.Response {
		cmd, _ := msg["command"].(string)
		if cmd != "get-timeline" {
			return transport.ErrorResponse("Unknown command.")
		}
		userid, _ := msg["userid"].(string)
		target, err := identity.Parse(userid)
		if err != nil {
			return transport.ErrorResponse("Invalid userid: " + userid)
		}
		c, err := n.PublicGetTimeline(ctx, target, nil)
		if err != nil {
			return transport.ErrorResponse(err.Error())
		}
		return transport.OkResponse(map[string]interface{}{"timeline": c.MarshalForWire()})
	}, zerolog.Nop())
	require.NoError(t, srv.Start())

	return &harness{node: n, srv: srv}
}

func (h *harness) addr() identity.User { return h.node.self }

func TestPostAndSelfGet(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()

	_, err := a.node.Post("hello")
	require.NoError(t, err)

	c, err := a.node.Get(context.Background(), a.addr(), nil)
	require.NoError(t, err)
	require.Len(t, c.Posts, 1)
	assert.Equal(t, "hello", c.Posts[0].Content)
	assert.Equal(t, 1, c.TotalPosts)
}

func TestDeletePost(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()

	p, err := a.node.Post("x")
	require.NoError(t, err)
	require.NoError(t, a.node.Delete(p.ID))
	assert.ErrorIs(t, a.node.Delete(p.ID), ErrPostNotFound)
}

func TestSubToSelfFails(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()

	assert.ErrorIs(t, a.node.Sub(context.Background(), a.addr()), ErrCannotSubscribeSelf)
}

func TestSubAlreadySubscribed(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()
	b := newHarness(t, kv)
	defer b.srv.Shutdown()

	require.NoError(t, a.node.Sub(context.Background(), b.addr()))
	assert.ErrorIs(t, a.node.Sub(context.Background(), b.addr()), ErrAlreadySubscribed)
}

func TestFollowAndFetchFromOwner(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()
	b := newHarness(t, kv)
	defer b.srv.Shutdown()

	_, err := a.node.Post("hi")
	require.NoError(t, err)
	require.NoError(t, b.node.Sub(context.Background(), a.addr()))

	c, err := b.node.Get(context.Background(), a.addr(), nil)
	require.NoError(t, err)
	require.Len(t, c.Posts, 1)
	assert.Equal(t, "hi", c.Posts[0].Content)

	subscribers, err := b.node.dht.GetSubscribers(context.Background(), a.addr())
	require.NoError(t, err)
	assert.ElementsMatch(t, []identity.User{b.addr()}, subscribers)
}

func TestUnsubRemovesCacheAndMembership(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()
	b := newHarness(t, kv)
	defer b.srv.Shutdown()

	require.NoError(t, b.node.Sub(context.Background(), a.addr()))
	b.node.refreshOne(context.Background(), a.addr())
	require.True(t, timeline.Exists(b.node.store, a.addr()))

	require.NoError(t, b.node.Unsub(context.Background(), a.addr()))
	assert.False(t, timeline.Exists(b.node.store, a.addr()))

	subscribers, err := b.node.dht.GetSubscribers(context.Background(), a.addr())
	require.NoError(t, err)
	assert.Empty(t, subscribers)
}

func TestSubscriberFallbackWhenOwnerOffline(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	b := newHarness(t, kv)
	defer b.srv.Shutdown()

	_, err := a.node.Post("p")
	require.NoError(t, err)
	require.NoError(t, b.node.Sub(context.Background(), a.addr()))
	b.node.refreshOne(context.Background(), a.addr())

	c := newHarness(t, kv)
	defer c.srv.Shutdown()
	require.NoError(t, c.node.Sub(context.Background(), a.addr()))

	a.srv.Shutdown() // owner goes offline

	got, err := c.node.Get(context.Background(), a.addr(), nil)
	require.NoError(t, err)
	require.Len(t, got.Posts, 1)
	assert.Equal(t, "p", got.Posts[0].Content)
}

func TestViewMergesOwnAndSubscriptions(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()
	b := newHarness(t, kv)
	defer b.srv.Shutdown()

	_, err := a.node.Post("from-a")
	require.NoError(t, err)
	_, err = b.node.Post("from-b")
	require.NoError(t, err)
	require.NoError(t, b.node.Sub(context.Background(), a.addr()))

	merged, warnings := b.node.View(context.Background(), nil)
	assert.Empty(t, warnings)
	require.Len(t, merged.Posts, 2)
}

func TestPeopleIMayKnow(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()
	b := newHarness(t, kv)
	defer b.srv.Shutdown()
	c := newHarness(t, kv)
	defer c.srv.Shutdown()

	require.NoError(t, a.node.Sub(context.Background(), b.addr()))
	require.NoError(t, b.node.Sub(context.Background(), c.addr()))

	suggestions, err := a.node.PeopleIMayKnow(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, c.addr().String(), suggestions[0].UserID)
	assert.Equal(t, []string{b.addr().String()}, suggestions[0].SubscribedBy)
}

func TestPublicGetTimelineDeniesUnknownSubscriber(t *testing.T) {
	kv := dht.NewMemoryKV()
	a := newHarness(t, kv)
	defer a.srv.Shutdown()
	b := newHarness(t, kv)
	defer b.srv.Shutdown()

	_, err := a.node.PublicGetTimeline(context.Background(), b.addr(), nil)
	assert.ErrorIs(t, err, ErrNotLocallyAvailable)
}
