package node

import (
	"context"
	"math/rand"
	"time"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
)

// Get runs the full get pipeline for (target, maxPosts): local
// self-read, then the locally cached copy, then the owner, then a
// subscriber fallback with the freshness heuristic (spec.md §4.6).
func (n *Node) Get(ctx context.Context, target identity.User, maxPosts *int) (*timeline.CachedTimeline, error) {
	if target.Equal(n.self) {
		n.metrics.ObserveGetOutcome("local")
		return n.ownTimelineSnapshot(maxPosts), nil
	}

	if cached, err := n.loadValidCache(target, maxPosts); err != nil {
		return nil, err
	} else if cached != nil {
		n.metrics.ObserveGetOutcome("cache")
		return cached, nil
	}

	return n.getViaOwnerThenSubscribers(ctx, target, maxPosts, nil)
}

// loadValidCache returns the locally stored cache for target,
// re-truncated to maxPosts, or nil if none is valid.
func (n *Node) loadValidCache(target identity.User, maxPosts *int) (*timeline.CachedTimeline, error) {
	cached, err := timeline.LoadCache(n.store, target)
	if err != nil {
		n.metrics.ObserveCacheResult(false)
		return nil, err
	}
	if cached == nil {
		n.metrics.ObserveCacheResult(false)
		return nil, nil
	}
	n.metrics.ObserveCacheResult(true)
	return cached.Cache(maxPosts), nil
}

// getViaOwnerThenSubscribers implements spec.md §4.6 steps 3-4: try
// the owner directly, then fall back to a randomized sweep of
// subscribers with the freshness heuristic, comparing against
// baseline (the existing cache's last_updated, when refreshing one).
func (n *Node) getViaOwnerThenSubscribers(ctx context.Context, target identity.User, maxPosts *int, baseline *time.Time) (*timeline.CachedTimeline, error) {
	if resp, err := n.sendGetTimeline(ctx, target, maxPosts); err == nil && resp.IsOk() {
		if c, parseErr := timeline.CachedTimelineFromWire(resp.Data["timeline"]); parseErr == nil {
			n.metrics.ObserveGetOutcome("owner")
			return c, nil
		}
	}

	subscribers, err := n.dht.GetSubscribers(ctx, target)
	n.metrics.ObserveDHTCall("get_subscribers", err)
	if err != nil {
		return nil, err
	}
	if len(subscribers) == 0 {
		n.metrics.ObserveGetOutcome("not_found")
		return nil, ErrNoAvailableSource
	}

	rand.Shuffle(len(subscribers), func(i, j int) {
		subscribers[i], subscribers[j] = subscribers[j], subscribers[i]
	})

	var bestLA time.Time
	if baseline != nil {
		bestLA = *baseline
	}
	var best *timeline.CachedTimeline
	p := n.cfg.HeuristicInitialP

	for _, sub := range subscribers {
		if sub.Equal(n.self) {
			continue
		}

		resp, err := n.sendGetTimeline(ctx, sub, maxPosts)
		if err != nil || !resp.IsOk() {
			continue
		}
		c, err := timeline.CachedTimelineFromWire(resp.Data["timeline"])
		if err != nil {
			continue
		}

		if c.LastUpdated.After(bestLA) {
			best = c
			bestLA = c.LastUpdated
			continue
		}

		if rand.Float64() >= p {
			break
		}
		p *= n.cfg.HeuristicDecay
	}

	if best == nil {
		n.metrics.ObserveGetOutcome("not_found")
		return nil, ErrNoAvailableSource
	}
	n.metrics.ObserveGetOutcome("subscriber")
	return best, nil
}
