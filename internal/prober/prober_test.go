package prober

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uzzalhcse/proxynest/internal/config"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

func httpProxyServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestProbe_HTTPSuccess(t *testing.T) {
	srv := httpProxyServer(t)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	p := New(config.ProberConfig{TimeoutMs: 2000, CheckURLs: []string{srv.URL}})

	result, err := p.Probe(context.Background(), Target{IP: u.Hostname(), Port: port, Protocol: models.ProtocolHTTP})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUp, result.Status)
	require.NotNil(t, result.AvgLatency)
	assert.GreaterOrEqual(t, *result.AvgLatency, float64(0))
}

func TestProbe_AllURLsUnreachable(t *testing.T) {
	p := New(config.ProberConfig{TimeoutMs: 100, CheckURLs: []string{"http://127.0.0.1:1"}})

	result, err := p.Probe(context.Background(), Target{IP: "127.0.0.1", Port: 1, Protocol: models.ProtocolHTTP})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDown, result.Status)
	assert.Nil(t, result.AvgLatency)
}

func TestProbe_UnsupportedProtocol(t *testing.T) {
	p := New(config.ProberConfig{TimeoutMs: 100})
	_, err := p.Probe(context.Background(), Target{IP: "1.2.3.4", Port: 80, Protocol: "BOGUS"})
	assert.Error(t, err)
}
