package node

import (
	"context"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
)

// Sub follows target: adds it to Subscriptions, persists, tells the
// DHT, and schedules an immediate cache refresh. Any failure restores
// the pre-call snapshot, per spec.md §4.6/§5.
func (n *Node) Sub(ctx context.Context, target identity.User) error {
	if target.Equal(n.self) {
		return ErrCannotSubscribeSelf
	}

	n.mu.Lock()
	if n.subs.Contains(target) {
		n.mu.Unlock()
		return ErrAlreadySubscribed
	}
	snapshot := n.subs.Clone()
	n.subs.Add(target)
	localSubs := n.subs.List()

	if err := n.subs.Store(n.store); err != nil {
		n.subs.Restore(snapshot)
		n.mu.Unlock()
		n.logger.Error().Err(err).Str("target", target.String()).Msg("failed to persist subscriptions on sub")
		return ErrCouldNotSubscribe
	}
	n.mu.Unlock()

	if err := n.dht.Subscribe(ctx, n.self, target, localSubs); err != nil {
		n.metrics.ObserveDHTCall("subscribe", err)
		n.mu.Lock()
		n.subs.Restore(snapshot)
		_ = n.subs.Store(n.store)
		n.mu.Unlock()
		n.logger.Error().Err(err).Str("target", target.String()).Msg("dht subscribe failed")
		return ErrCouldNotSubscribe
	}
	n.metrics.ObserveDHTCall("subscribe", nil)
	n.metrics.ObserveSubscription(1)

	go n.refreshOne(context.Background(), target)
	return nil
}

// Unsub mirrors Sub: removes target from Subscriptions, persists,
// deletes the stale cache file, and tells the DHT.
func (n *Node) Unsub(ctx context.Context, target identity.User) error {
	if target.Equal(n.self) {
		return ErrCannotUnsubscribeSelf
	}

	n.mu.Lock()
	if !n.subs.Contains(target) {
		n.mu.Unlock()
		return ErrNotSubscribed
	}
	snapshot := n.subs.Clone()
	n.subs.Remove(target)
	localSubs := n.subs.List()

	if err := n.subs.Store(n.store); err != nil {
		n.subs.Restore(snapshot)
		n.mu.Unlock()
		n.logger.Error().Err(err).Str("target", target.String()).Msg("failed to persist subscriptions on unsub")
		return ErrCouldNotUnsubscribe
	}
	n.mu.Unlock()

	if err := n.dht.Unsubscribe(ctx, n.self, target, localSubs); err != nil {
		n.metrics.ObserveDHTCall("unsubscribe", err)
		n.mu.Lock()
		n.subs.Restore(snapshot)
		_ = n.subs.Store(n.store)
		n.mu.Unlock()
		n.logger.Error().Err(err).Str("target", target.String()).Msg("dht unsubscribe failed")
		return ErrCouldNotUnsubscribe
	}
	n.metrics.ObserveDHTCall("unsubscribe", nil)
	n.metrics.ObserveSubscription(-1)

	if err := timeline.DeleteCache(n.store, target); err != nil {
		n.logger.Warn().Err(err).Str("target", target.String()).Msg("failed to delete cache file on unsub")
	}
	return nil
}

// selfHealUnsubscribe runs in the background whenever the public server
// is asked for a user U this node does not follow. It calls the DHT
// Unsubscribe, which rewrites this node's -subscribed key and removes
// this node from U's subscribers list only if that list still includes
// it — membership the reconciliation loop's last-writer-wins semantics
// can leave stale after churn.
func (n *Node) selfHealUnsubscribe(ctx context.Context, target identity.User) {
	n.mu.Lock()
	localSubs := n.subs.List()
	n.mu.Unlock()

	if err := n.dht.Unsubscribe(ctx, n.self, target, localSubs); err != nil {
		n.logger.Debug().Err(err).Str("target", target.String()).Msg("self-heal unsubscribe failed")
		return
	}
	n.logger.Debug().Str("target", target.String()).Msg("self-healed stale DHT subscription")
}
