package node

import (
	"context"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
)

// PublicGetTimeline answers a peer's get-timeline request: ok only
// when target is this node's own identity or a current subscription,
// reading C3 only (spec.md §4.6 public-side constraint). Any other
// target triggers a background DHT self-heal check.
func (n *Node) PublicGetTimeline(ctx context.Context, target identity.User, maxPosts *int) (*timeline.CachedTimeline, error) {
	if target.Equal(n.self) {
		return n.ownTimelineSnapshot(maxPosts), nil
	}

	n.mu.Lock()
	subscribed := n.subs.Contains(target)
	n.mu.Unlock()

	if subscribed {
		cached, err := n.loadValidCache(target, maxPosts)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
		return nil, ErrNotLocallyAvailable
	}

	go n.selfHealUnsubscribe(context.Background(), target)
	return nil, ErrNotLocallyAvailable
}
