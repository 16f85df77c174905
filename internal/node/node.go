// Package node wires the persistent data model (C2-C4), the DHT
// wrapper (C5), and the request transport (C6) into the orchestrator
// the local and public servers dispatch into (C9): the get pipeline,
// post/delete, sub/unsub, view, suggestions, and the background cache
// refresher.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/config"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/dht"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/nextpostid"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/storage"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/subscriptions"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/transport"
)

// Metrics is the set of observability hooks the node calls into; the
// default is a no-op so tests and callers that don't care about
// metrics don't have to provide one. internal/metrics implements it
// for real with Prometheus collectors.
type Metrics interface {
	ObservePostCreated()
	ObserveSubscription(delta int)
	ObserveDHTCall(op string, err error)
	ObserveCacheResult(hit bool)
	ObserveGetOutcome(source string)
	ObserveReconcileRetry()
}

type noopMetrics struct{}

func (noopMetrics) ObservePostCreated()          {}
func (noopMetrics) ObserveSubscription(int)      {}
func (noopMetrics) ObserveDHTCall(string, error) {}
func (noopMetrics) ObserveCacheResult(bool)       {}
func (noopMetrics) ObserveGetOutcome(string)      {}
func (noopMetrics) ObserveReconcileRetry()        {}

// Warning decorates a non-fatal per-subscription failure surfaced by
// View, matching spec.md §6's `{message, subscription}` shape.
type Warning struct {
	Message      string `json:"message"`
	Subscription string `json:"subscription"`
}

// Suggestion is one entry of the people-i-may-know result.
type Suggestion struct {
	UserID        string   `json:"userid"`
	SubscribedBy  []string `json:"subscribed-by"`
}

// Node is a single identity's full in-memory and on-disk state plus
// its collaborators. Mutations to Subscriptions, the own Timeline, and
// NextPostId are serialized by mu and follow the snapshot-and-restore
// pattern spec.md §5 describes.
type Node struct {
	self   identity.User
	cfg    *config.Config
	logger zerolog.Logger

	store   *storage.BlobStore
	dht     *dht.Reconciler
	metrics Metrics

	mu       sync.Mutex
	timeline *timeline.Timeline
	subs     *subscriptions.Set
	nextID   *nextpostid.Counter
}

// New loads a node's persisted state (own timeline, subscriptions,
// next post id) from store and wires it to the given DHT reconciler.
// A load failure of any of the three is fatal, per spec.md §3's
// lifecycle rule.
func New(self identity.User, cfg *config.Config, store *storage.BlobStore, reconciler *dht.Reconciler, logger zerolog.Logger, metrics Metrics) (*Node, error) {
	tl, err := timeline.Load(store, self)
	if err != nil {
		return nil, fmt.Errorf("load own timeline: %w", err)
	}
	subs, err := subscriptions.Load(store)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	nextID, err := nextpostid.Load(store)
	if err != nil {
		return nil, fmt.Errorf("load next post id: %w", err)
	}

	if metrics == nil {
		metrics = noopMetrics{}
	}
	reconciler.OnRetry(metrics.ObserveReconcileRetry)

	return &Node{
		self:     self,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		dht:      reconciler,
		metrics:  metrics,
		timeline: tl,
		subs:     subs,
		nextID:   nextID,
	}, nil
}

// Self returns the node's own identity.
func (n *Node) Self() identity.User { return n.self }

// Post appends content to the own timeline, advancing NextPostId; on
// any persistence failure both are rolled back, per spec.md §8
// property 2.
func (n *Node) Post(content string) (timeline.Post, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID.GetAndAdvance()
	post := n.timeline.AddPost(id, content)

	if err := n.timeline.Store(n.store); err != nil {
		n.timeline.RemovePostByID(id)
		n.nextID.Rollback()
		n.logger.Error().Err(err).Msg("failed to persist timeline after post")
		return timeline.Post{}, ErrCouldNotPostMessage
	}
	if err := n.nextID.Store(n.store); err != nil {
		n.timeline.RemovePostByID(id)
		n.nextID.Rollback()
		_ = n.timeline.Store(n.store)
		n.logger.Error().Err(err).Msg("failed to persist next post id after post")
		return timeline.Post{}, ErrCouldNotPostMessage
	}

	n.metrics.ObservePostCreated()
	return post, nil
}

// Delete removes the own post with the given id.
func (n *Node) Delete(postID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	snapshot := n.timeline.Clone()
	if !n.timeline.RemovePostByID(postID) {
		return ErrPostNotFound
	}
	if err := n.timeline.Store(n.store); err != nil {
		n.timeline.Restore(snapshot)
		n.logger.Error().Err(err).Msg("failed to persist timeline after delete")
		return ErrCouldNotPostMessage
	}
	return nil
}

// ownTimelineSnapshot returns the own timeline as a CachedTimeline, the
// wire shape every "get" response (including self-reads and answers to
// peer get-timeline requests) is carried in. Its valid_until reflects
// this node's configured cache TTL, so a downstream cache of it knows
// how long to trust it; the own in-memory timeline itself is always
// treated as authoritative regardless.
func (n *Node) ownTimelineSnapshot(maxPosts *int) *timeline.CachedTimeline {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeline.Cache(maxPosts, n.cfg.CacheTTL())
}

func (n *Node) requestTimeout() time.Duration {
	return 10 * time.Second
}

func (n *Node) sendGetTimeline(ctx context.Context, target identity.User, maxPosts *int) (transport.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, n.requestTimeout())
	defer cancel()
	req := map[string]interface{}{
		"command": "get-timeline",
		"userid":  target.String(),
	}
	if maxPosts != nil {
		req["max-posts"] = *maxPosts
	} else {
		req["max-posts"] = nil
	}
	return transport.Send(ctx, n.logger, target.String(), req)
}
