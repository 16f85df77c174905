package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserversUpdateExposedMetrics(t *testing.T) {
	c := New()
	c.ObservePostCreated()
	c.ObserveSubscription(1)
	c.ObserveSubscription(1)
	c.ObserveSubscription(-1)
	c.ObserveDHTCall("subscribe", nil)
	c.ObserveDHTCall("subscribe", errors.New("boom"))
	c.ObserveCacheResult(true)
	c.ObserveCacheResult(false)
	c.ObserveGetOutcome("owner")
	c.ObserveReconcileRetry()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "tl_posts_total 1")
	assert.Contains(t, out, "tl_subscriptions_current 1")
	assert.Contains(t, out, `tl_dht_calls_total{op="subscribe",outcome="error"} 1`)
	assert.Contains(t, out, `tl_dht_calls_total{op="subscribe",outcome="ok"} 1`)
	assert.Contains(t, out, `tl_dht_errors_total{op="subscribe"} 1`)
	assert.Contains(t, out, "tl_cache_hits_total 1")
	assert.Contains(t, out, "tl_cache_misses_total 1")
	assert.Contains(t, out, `tl_get_outcomes_total{source="owner"} 1`)
	assert.Contains(t, out, "tl_reconcile_retries_total 1")
}

func TestShutdownWithoutServeIsNoop(t *testing.T) {
	c := New()
	assert.NoError(t, c.Shutdown(context.Background()))
}
