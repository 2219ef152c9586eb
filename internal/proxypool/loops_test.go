package proxypool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uzzalhcse/proxynest/internal/config"
	"github.com/uzzalhcse/proxynest/internal/geo"
	"github.com/uzzalhcse/proxynest/internal/prober"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// expireOne drops leases older than the cutoff and keeps fresher ones.
func TestExpireOne_PrunesStaleLeasesKeepsFresh(t *testing.T) {
	store := newFakeStore()
	p := upProxy("1.2.3.4", "US")
	now := time.Now().UTC()
	p.InstanceIDs["stale"] = now.Add(-time.Hour)
	p.InstanceIDs["fresh"] = now
	p.LastUsed = &now
	store.seed(p)

	loops := &Loops{repo: store}
	cutoff := now.Add(-10 * time.Minute)

	loops.expireOne(context.Background(), p, cutoff)

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.InstanceIDs, "stale")
	assert.Contains(t, got.InstanceIDs, "fresh")
}

// S5: once the last lease expires, last_used is cleared too.
func TestExpireOne_ClearsLastUsedWhenLeasesEmpty(t *testing.T) {
	store := newFakeStore()
	p := upProxy("1.2.3.4", "US")
	now := time.Now().UTC()
	p.InstanceIDs["stale"] = now.Add(-time.Hour)
	p.LastUsed = &now
	store.seed(p)

	loops := &Loops{repo: store}
	cutoff := now.Add(-10 * time.Minute)

	loops.expireOne(context.Background(), p, cutoff)

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.InstanceIDs)
	assert.Nil(t, got.LastUsed)
}

func TestExpireOne_NoChangeWhenNothingStale(t *testing.T) {
	store := newFakeStore()
	p := upProxy("1.2.3.4", "US")
	now := time.Now().UTC()
	p.InstanceIDs["fresh"] = now
	store.seed(p)

	loops := &Loops{repo: store}
	cutoff := now.Add(-10 * time.Minute)

	loops.expireOne(context.Background(), p, cutoff)

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Contains(t, got.InstanceIDs, "fresh")
}

// healthSweep's per-proxy probe fan-out, exercised directly via probeAll
// rather than the infinite sweep loop.
func TestProbeAll_WritesBackStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	store := newFakeStore()
	p := &models.Proxy{
		ID: "p1", IP: u.Hostname(), Port: port, Protocol: models.ProtocolHTTP,
		Status: models.StatusUnknown, InstanceIDs: models.LeaseMap{},
	}
	store.seed(p)

	pr := prober.New(config.ProberConfig{TimeoutMs: 2000, CheckURLs: []string{srv.URL}})
	loops := &Loops{repo: store, prober: pr, maxConcurrentProbes: 4}

	loops.probeAll(context.Background(), []*models.Proxy{p})

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, got.Status)
	require.NotNil(t, got.ResponseTime)
}

func TestProbeAll_UnreachableWritesDown(t *testing.T) {
	store := newFakeStore()
	p := &models.Proxy{
		ID: "p1", IP: "127.0.0.1", Port: 1, Protocol: models.ProtocolHTTP,
		Status: models.StatusUnknown, InstanceIDs: models.LeaseMap{},
	}
	store.seed(p)

	pr := prober.New(config.ProberConfig{TimeoutMs: 100, CheckURLs: []string{"http://127.0.0.1:1"}})
	loops := &Loops{repo: store, prober: pr, maxConcurrentProbes: 4}

	loops.probeAll(context.Background(), []*models.Proxy{p})

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, got.Status)
}

// countryEnrichment's lookup-unavailable path: a Loops with no mmdb loaded
// must skip enrichment cleanly rather than erroring the sweep.
func TestEnrichOne_SkipsWhenLookupUnavailable(t *testing.T) {
	store := newFakeStore()
	p := upProxy("1.2.3.4", "")
	p.CountryCode = nil
	store.seed(p)

	lookup := geo.New("/nonexistent/GeoLite2-Country.mmdb")
	loops := &Loops{repo: store, geo: lookup}

	loops.enrichOne(context.Background(), p)

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CountryCode)
}

func TestEnrichOne_SkipsProxiesThatAlreadyHaveACountry(t *testing.T) {
	store := newFakeStore()
	p := upProxy("1.2.3.4", "US")
	store.seed(p)

	lookup := geo.New("/nonexistent/GeoLite2-Country.mmdb")
	loops := &Loops{repo: store, geo: lookup}

	loops.enrichOne(context.Background(), p)

	got, err := store.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CountryCode)
	assert.Equal(t, "US", *got.CountryCode)
}
