package node

import (
	"context"
	"sort"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
)

// PeopleIMayKnow runs the 2-hop suggestion algorithm: for every user V
// this node follows, fetch who V follows; any such W that isn't self
// and isn't already followed becomes a suggestion, annotated with
// every V that led to it. Sorted by the number of such V descending,
// truncated to maxUsers.
func (n *Node) PeopleIMayKnow(ctx context.Context, maxUsers *int) ([]Suggestion, error) {
	n.mu.Lock()
	mySubs := n.subs.List()
	n.mu.Unlock()

	subBy := make(map[identity.User][]identity.User)
	var order []identity.User

	for _, v := range mySubs {
		subscribedByV, err := n.dht.GetSubscribed(ctx, v)
		n.metrics.ObserveDHTCall("get_subscribed", err)
		if err != nil {
			n.logger.Debug().Err(err).Str("via", v.String()).Msg("people-i-may-know: get_subscribed failed")
			continue
		}
		for _, w := range subscribedByV {
			if w.Equal(n.self) {
				continue
			}
			n.mu.Lock()
			alreadyFollowed := n.subs.Contains(w)
			n.mu.Unlock()
			if alreadyFollowed {
				continue
			}
			if _, seen := subBy[w]; !seen {
				order = append(order, w)
			}
			subBy[w] = append(subBy[w], v)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return len(subBy[order[i]]) > len(subBy[order[j]])
	})

	if maxUsers != nil && *maxUsers < len(order) {
		if *maxUsers < 0 {
			order = nil
		} else {
			order = order[:*maxUsers]
		}
	}

	suggestions := make([]Suggestion, 0, len(order))
	for _, w := range order {
		by := make([]string, len(subBy[w]))
		for i, v := range subBy[w] {
			by[i] = v.String()
		}
		suggestions = append(suggestions, Suggestion{UserID: w.String(), SubscribedBy: by})
	}
	return suggestions, nil
}
