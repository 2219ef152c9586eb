// Package prober implements ProxyProber: health-checks a proxy by issuing
// GET requests through it against a configured set of probe URLs.
package prober

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/uzzalhcse/proxynest/internal/config"
	"github.com/uzzalhcse/proxynest/pkg/models"
	"golang.org/x/net/proxy"
)

// Target describes the dialable proxy under test; it is the subset of
// models.Proxy the prober needs, kept separate so the package has no
// dependency on storage.
type Target struct {
	IP       string
	Port     int
	Protocol models.Protocol
	Username *string
	Password *string
}

// Result is the outcome of probing one proxy across the full URL set.
type Result struct {
	Status     models.Status
	AvgLatency *float64 // milliseconds; nil if no sample succeeded
}

// Prober issues health-check requests through candidate proxies.
type Prober struct {
	urls    []string
	timeout time.Duration
}

func New(cfg config.ProberConfig) *Prober {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	urls := cfg.CheckURLs
	if len(urls) == 0 {
		urls = []string{"https://google.com", "https://bing.com", "https://yahoo.com"}
	}
	return &Prober{urls: urls, timeout: timeout}
}

// Probe dials t and issues a GET to every configured URL, returning UP if
// at least one succeeds. Latency is true milliseconds via
// time.Duration.Milliseconds — never the seconds*100 shortcut.
func (p *Prober) Probe(ctx context.Context, t Target) (Result, error) {
	client, err := p.clientFor(t)
	if err != nil {
		return Result{Status: models.StatusDown}, fmt.Errorf("build client: %w", err)
	}

	var samples []float64
	for _, u := range p.urls {
		reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
		start := time.Now()
		ok := probeOne(reqCtx, client, u)
		elapsed := time.Since(start)
		cancel()
		if ok {
			samples = append(samples, float64(elapsed.Milliseconds()))
		}
	}

	if len(samples) == 0 {
		return Result{Status: models.StatusDown}, nil
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	avg := sum / float64(len(samples))
	return Result{Status: models.StatusUp, AvgLatency: &avg}, nil
}

func probeOne(ctx context.Context, client *http.Client, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (p *Prober) clientFor(t Target) (*http.Client, error) {
	addr := fmt.Sprintf("%s:%d", t.IP, t.Port)

	switch t.Protocol {
	case models.ProtocolHTTP:
		proxyURL := &url.URL{Scheme: "http", Host: addr}
		if t.Username != nil {
			pw := ""
			if t.Password != nil {
				pw = *t.Password
			}
			proxyURL.User = url.UserPassword(*t.Username, pw)
		}
		return &http.Client{
			Timeout:   p.timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}, nil

	case models.ProtocolSOCKS4, models.ProtocolSOCKS5:
		var auth *proxy.Auth
		if t.Username != nil {
			pw := ""
			if t.Password != nil {
				pw = *t.Password
			}
			auth = &proxy.Auth{User: *t.Username, Password: pw}
		}
		dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("build socks dialer: %w", err)
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("socks dialer does not support context dialing")
		}
		return &http.Client{
			Timeout: p.timeout,
			Transport: &http.Transport{
				DialContext: contextDialer.DialContext,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported protocol %q", t.Protocol)
	}
}
