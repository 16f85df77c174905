package dht

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
)

// ReconcileConfig tunes the subscription reconciliation loop's backoff.
type ReconcileConfig struct {
	MaxBackoff time.Duration
	JitterMin  time.Duration
	JitterMax  time.Duration
}

// Reconciler wraps a KVStore with the domain operations the node needs
// on top of it: subscribe/unsubscribe (with the set-modify-CAS retry
// loop for the multi-writer `-subscribers` key) and the two read-only
// lookups. It paces its own retries with a rate limiter in addition to
// the spec's randomized backoff, so a node with many concurrent
// sub/unsub calls in flight can't hammer the DHT transport.
type Reconciler struct {
	store   KVStore
	logger  zerolog.Logger
	cfg     ReconcileConfig
	limiter *rate.Limiter
	onRetry func()
}

// NewReconciler builds a Reconciler over store. limiter paces PUT calls
// issued by the reconciliation loop; pass rate.NewLimiter(rate.Inf, 1)
// for no extra pacing beyond the spec's backoff.
func NewReconciler(store KVStore, logger zerolog.Logger, cfg ReconcileConfig, limiter *rate.Limiter) *Reconciler {
	return &Reconciler{store: store, logger: logger, cfg: cfg, limiter: limiter}
}

// OnRetry registers a callback invoked once per backoff-and-retry
// iteration of reconcileMembership, so a caller can feed it into a
// metrics counter (node.Metrics.ObserveReconcileRetry) without this
// package depending on node.
func (r *Reconciler) OnRetry(fn func()) {
	r.onRetry = fn
}

const (
	subscribedSuffix  = "-subscribed"
	subscribersSuffix = "-subscribers"
)

func subscribedKey(u identity.User) string  { return u.String() + subscribedSuffix }
func subscribersKey(u identity.User) string { return u.String() + subscribersSuffix }

// Subscribe records that self now follows target: it overwrites self's
// own `-subscribed` key with selfSubscriptions (the caller's full,
// already-updated local set) and reconciles target's `-subscribers`
// key to include self.
func (r *Reconciler) Subscribe(ctx context.Context, self identity.User, target identity.User, selfSubscriptions []identity.User) error {
	if err := r.putUserList(ctx, subscribedKey(self), selfSubscriptions); err != nil {
		return fmt.Errorf("overwrite subscribed list: %w", err)
	}
	return r.reconcileMembership(ctx, subscribersKey(target), self, true)
}

// Unsubscribe mirrors Subscribe: overwrites self's `-subscribed` key
// (now without target) and reconciles target's `-subscribers` key to
// exclude self.
func (r *Reconciler) Unsubscribe(ctx context.Context, self identity.User, target identity.User, selfSubscriptions []identity.User) error {
	if err := r.putUserList(ctx, subscribedKey(self), selfSubscriptions); err != nil {
		return fmt.Errorf("overwrite subscribed list: %w", err)
	}
	return r.reconcileMembership(ctx, subscribersKey(target), self, false)
}

// Republish is a no-op when the backing transport already republishes
// keys on its own schedule; MemoryKV never expires entries, so this
// only logs. A network-backed KVStore that ages out unrefreshed keys
// would re-put self's existing -subscribed value here instead.
func (r *Reconciler) Republish(ctx context.Context, self identity.User) {
	r.logger.Debug().Str("key", subscribedKey(self)).Msg("republish (no-op)")
}

// GetSubscribers returns the users following target, empty if absent.
func (r *Reconciler) GetSubscribers(ctx context.Context, target identity.User) ([]identity.User, error) {
	return r.getUserList(ctx, subscribersKey(target))
}

// GetSubscribed returns the users target follows, empty if absent.
func (r *Reconciler) GetSubscribed(ctx context.Context, target identity.User) ([]identity.User, error) {
	return r.getUserList(ctx, subscribedKey(target))
}

func (r *Reconciler) getUserList(ctx context.Context, key string) ([]identity.User, error) {
	raw, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("dht get %s: %w", key, err)
	}
	r.logger.Debug().Str("key", key).Bool("found", ok).Str("value", raw).Msg("dht get")
	if !ok || raw == "" {
		return nil, nil
	}
	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	out := make([]identity.User, 0, len(strs))
	for _, s := range strs {
		u, err := identity.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *Reconciler) putUserList(ctx context.Context, key string, users []identity.User) error {
	strs := make([]string, len(users))
	for i, u := range users {
		strs[i] = u.String()
	}
	if strs == nil {
		strs = []string{}
	}
	data, err := json.Marshal(strs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	r.logger.Debug().Str("key", key).Str("value", string(data)).Msg("dht put")
	return r.store.Put(ctx, key, string(data))
}

func containsUser(users []identity.User, target identity.User) bool {
	for _, u := range users {
		if u.Equal(target) {
			return true
		}
	}
	return false
}

func mutateMembership(users []identity.User, target identity.User, wanted bool) []identity.User {
	has := containsUser(users, target)
	if wanted == has {
		return users
	}
	if wanted {
		return append(append([]identity.User{}, users...), target)
	}
	out := make([]identity.User, 0, len(users))
	for _, u := range users {
		if !u.Equal(target) {
			out = append(out, u)
		}
	}
	return out
}

// reconcileMembership runs the subscription reconciliation algorithm
// against key: repeatedly mutate-and-put, with randomized exponential
// backoff between attempts, until a re-read confirms desired's
// membership matches wanted.
func (r *Reconciler) reconcileMembership(ctx context.Context, key string, desired identity.User, wanted bool) error {
	state, err := r.getUserList(ctx, key)
	if err != nil {
		return err
	}

	for n := 0; ; n++ {
		if containsUser(state, desired) == wanted {
			return nil
		}

		next := mutateMembership(state, desired, wanted)
		if err := r.putUserList(ctx, key, next); err != nil {
			return fmt.Errorf("reconcile %s: %w", key, err)
		}

		if r.onRetry != nil {
			r.onRetry()
		}
		delay := r.backoff(n)
		r.logger.Debug().Str("key", key).Int("attempt", n).Dur("delay", delay).Msg("reconciliation backoff")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		reread, err := r.getUserList(ctx, key)
		if err != nil {
			return err
		}
		if containsUser(reread, desired) == wanted {
			return nil
		}
		state = reread
	}
}

// backoff computes min(1.5^n, maxBackoff) + uniform(jitterMin, jitterMax),
// the exact schedule spec.md's reconciliation algorithm names.
func (r *Reconciler) backoff(n int) time.Duration {
	base := time.Duration(math.Min(math.Pow(1.5, float64(n)), r.cfg.MaxBackoff.Seconds()) * float64(time.Second))
	span := r.cfg.JitterMax - r.cfg.JitterMin
	jitter := r.cfg.JitterMin
	if span > 0 {
		jitter += time.Duration(rand.Int63n(int64(span)))
	}
	return base + jitter
}
