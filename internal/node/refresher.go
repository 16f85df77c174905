package node

import (
	"context"
	"time"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
)

// RunRefresher periodically re-fetches each subscription's timeline
// and persists it to the local cache, every CacheFrequencySeconds,
// until ctx is canceled. Each subscription's update is fire-and-
// forget: failures are logged, never propagated, per spec.md §5.
func (n *Node) RunRefresher(ctx context.Context) {
	interval := time.Duration(n.cfg.CacheFrequencySeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.refreshAll(ctx)
		}
	}
}

func (n *Node) refreshAll(ctx context.Context) {
	n.mu.Lock()
	subs := n.subs.List()
	n.mu.Unlock()

	for _, target := range subs {
		go n.refreshOne(ctx, target)
	}
}

// refreshOne implements update_cached_timeline(U): ensures this node's
// DHT subscription to U is registered (subscribing if missing,
// republishing otherwise), then re-runs the owner/subscriber lookup
// with the existing cache's last_updated as a freshness baseline, and
// persists the result.
func (n *Node) refreshOne(ctx context.Context, target identity.User) {
	subscribers, err := n.dht.GetSubscribers(ctx, target)
	n.metrics.ObserveDHTCall("get_subscribers", err)
	if err != nil {
		n.logger.Debug().Err(err).Str("target", target.String()).Msg("refresh: get_subscribers failed")
		return
	}

	if !containsSelf(subscribers, n.self) {
		n.mu.Lock()
		localSubs := n.subs.List()
		n.mu.Unlock()
		if err := n.dht.Subscribe(ctx, n.self, target, localSubs); err != nil {
			n.metrics.ObserveDHTCall("subscribe", err)
			n.logger.Debug().Err(err).Str("target", target.String()).Msg("refresh: re-subscribe failed")
			return
		}
	} else {
		n.dht.Republish(ctx, n.self)
	}

	var baseline *time.Time
	if existing, err := timeline.LoadCache(n.store, target); err == nil && existing != nil {
		baseline = &existing.LastUpdated
	}

	fresh, err := n.getViaOwnerThenSubscribers(ctx, target, nil, baseline)
	if err != nil {
		n.logger.Debug().Err(err).Str("target", target.String()).Msg("refresh: fetch failed")
		return
	}

	capped := fresh.Cache(&n.cfg.MaxCachedPosts)
	if err := timeline.StoreCache(n.store, target, capped); err != nil {
		n.logger.Warn().Err(err).Str("target", target.String()).Msg("refresh: failed to persist cache")
	}
}

func containsSelf(users []identity.User, self identity.User) bool {
	for _, u := range users {
		if u.Equal(self) {
			return true
		}
	}
	return false
}
