package node

import (
	"context"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
)

// View merges the own timeline with every subscription's timeline,
// sorted by timestamp descending and truncated to maxPosts. Per-
// subscription failures are absorbed into warnings rather than failing
// the whole request (spec.md §7 propagation policy).
func (n *Node) View(ctx context.Context, maxPosts *int) (*timeline.MergedTimeline, []Warning) {
	n.mu.Lock()
	ownPosts := append([]timeline.Post(nil), n.timeline.Posts...)
	subs := n.subs.List()
	n.mu.Unlock()

	sources := []timeline.Source{{Owner: n.self.String(), Posts: ownPosts}}
	var warnings []Warning

	for _, sub := range subs {
		c, err := n.Get(ctx, sub, nil)
		if err != nil {
			warnings = append(warnings, Warning{Message: err.Error(), Subscription: sub.String()})
			continue
		}
		sources = append(sources, timeline.Source{Owner: sub.String(), Posts: c.Posts})
	}

	return timeline.MergeTimelines(sources, maxPosts), warnings
}
