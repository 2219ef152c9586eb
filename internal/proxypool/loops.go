package proxypool

import (
	"context"
	"time"

	"github.com/uzzalhcse/proxynest/internal/geo"
	"github.com/uzzalhcse/proxynest/internal/logger"
	"github.com/uzzalhcse/proxynest/internal/prober"
	"github.com/uzzalhcse/proxynest/internal/settings"
	"github.com/uzzalhcse/proxynest/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const countryEnrichmentInterval = 20 * time.Second

// Loops is BackgroundLoops (spec §4.7): three independent, cooperative
// loops, each re-reading settings at the start of every iteration and
// observing ctx cancellation between iterations rather than mid-batch.
type Loops struct {
	repo                Store
	prober              *prober.Prober
	geo                 *geo.Lookup
	settings            *settings.Registry
	maxConcurrentProbes int
}

func NewLoops(repo Store, pr *prober.Prober, lookup *geo.Lookup, settingsRegistry *settings.Registry, maxConcurrentProbes int) *Loops {
	if maxConcurrentProbes <= 0 {
		maxConcurrentProbes = 20
	}
	return &Loops{repo: repo, prober: pr, geo: lookup, settings: settingsRegistry, maxConcurrentProbes: maxConcurrentProbes}
}

// Run starts all three loops and blocks until ctx is cancelled.
func (l *Loops) Run(ctx context.Context) {
	done := make(chan struct{}, 3)
	go func() { l.healthSweep(ctx); done <- struct{}{} }()
	go func() { l.expirySweep(ctx); done <- struct{}{} }()
	go func() { l.countryEnrichment(ctx); done <- struct{}{} }()

	<-ctx.Done()
	<-done
	<-done
	<-done
	logger.Info("background loops stopped")
}

func (l *Loops) sweepInterval() time.Duration {
	s := l.settings.Snapshot()
	if s.BackgroundCheckProxiesInterval <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.BackgroundCheckProxiesInterval) * time.Second
}

// healthSweep probes every proxy concurrently, bounded by
// max_concurrent_probes, writing back status and response_time.
func (l *Loops) healthSweep(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		proxies, err := l.repo.List(ctx, models.ProxyFilter{})
		if err != nil {
			logger.Error("health sweep: list proxies failed", zap.Error(err))
		} else {
			l.probeAll(ctx, proxies)
		}

		if !sleepOrDone(ctx, l.sweepInterval()) {
			return
		}
	}
}

func (l *Loops) probeAll(ctx context.Context, proxies []*models.Proxy) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrentProbes)

	for _, p := range proxies {
		p := p
		g.Go(func() error {
			result, err := l.prober.Probe(gctx, prober.Target{
				IP: p.IP, Port: p.Port, Protocol: p.Protocol, Username: p.Username, Password: p.Password,
			})
			if err != nil {
				logger.Warn("health sweep: probe failed", zap.String("proxy_id", p.ID), zap.Error(err))
				return nil // isolate per-item failure, never abort the sweep
			}
			if err := l.repo.SetStatus(ctx, p.ID, result.Status, result.AvgLatency); err != nil {
				logger.Warn("health sweep: write back failed", zap.String("proxy_id", p.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// expirySweep removes stale lease entries; if that empties a proxy's
// instance_ids, also clears last_used. Malformed entries are impossible
// in this Go representation (LeaseMap is strongly typed), so the
// "log and skip" contract manifests as a per-proxy error boundary instead.
func (l *Loops) expirySweep(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s := l.settings.Snapshot()
		cutoff := time.Now().UTC().Add(-time.Duration(s.ThresholdTimeMinutes) * time.Minute)

		proxies, err := l.repo.List(ctx, models.ProxyFilter{})
		if err != nil {
			logger.Error("expiry sweep: list proxies failed", zap.Error(err))
		} else {
			for _, p := range proxies {
				l.expireOne(ctx, p, cutoff)
			}
		}

		if !sleepOrDone(ctx, l.sweepInterval()) {
			return
		}
	}
}

func (l *Loops) expireOne(ctx context.Context, p *models.Proxy, cutoff time.Time) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("expiry sweep: malformed instance_ids, skipped", zap.String("proxy_id", p.ID), zap.Any("panic", r))
		}
	}()

	next := models.LeaseMap{}
	changed := false
	for id, seen := range p.InstanceIDs {
		if seen.Before(cutoff) {
			changed = true
			continue
		}
		next[id] = seen
	}
	if !changed {
		return
	}

	if err := l.repo.ReplaceLeases(ctx, p.ID, next, len(next) == 0); err != nil {
		logger.Error("expiry sweep: write back failed", zap.String("proxy_id", p.ID), zap.Error(err))
	}
}

// countryEnrichment resolves country_code for proxies that lack one.
func (l *Loops) countryEnrichment(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		proxies, err := l.repo.List(ctx, models.ProxyFilter{})
		if err != nil {
			logger.Error("country enrichment: list proxies failed", zap.Error(err))
		} else {
			l.enrichAll(ctx, proxies)
		}

		if !sleepOrDone(ctx, countryEnrichmentInterval) {
			return
		}
	}
}

func (l *Loops) enrichAll(ctx context.Context, proxies []*models.Proxy) {
	for _, p := range proxies {
		l.enrichOne(ctx, p)
	}
}

func (l *Loops) enrichOne(ctx context.Context, p *models.Proxy) {
	if p.CountryCode != nil {
		return
	}
	code, err := l.geo.Lookup(p.IP)
	if err != nil {
		logger.Debug("country enrichment: lookup unavailable", zap.String("proxy_id", p.ID), zap.Error(err))
		return
	}
	if code == nil {
		return
	}
	if err := l.repo.SetCountryCode(ctx, p.ID, *code); err != nil {
		logger.Warn("country enrichment: write back failed", zap.String("proxy_id", p.ID), zap.Error(err))
	}
}

// sleepOrDone sleeps for d, or returns false immediately if ctx is
// cancelled first — loops must observe shutdown before each sleep.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
