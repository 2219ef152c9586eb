// Package geo implements CountryLookup over a local MaxMind GeoLite2
// Country database.
package geo

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/uzzalhcse/proxynest/internal/logger"
	"go.uber.org/zap"
)

// ErrLookupUnavailable is returned when the backing mmdb file could not be
// opened; callers treat this as "none" and retry on the next enrichment pass.
var ErrLookupUnavailable = errors.New("country lookup unavailable")

// Lookup resolves an IP to an ISO 3166-1 alpha-2 country code.
type Lookup struct {
	mu sync.RWMutex
	db *geoip2.Reader
}

// New opens the mmdb at path. A missing or unreadable file is not fatal —
// the lookup starts in a degraded state and every call reports
// ErrLookupUnavailable until Reload succeeds.
func New(path string) *Lookup {
	l := &Lookup{}
	if err := l.Reload(path); err != nil {
		logger.Warn("geoip database unavailable at startup", zap.String("path", path), zap.Error(err))
	}
	return l
}

// Reload (re)opens the database file, replacing any previously open reader.
func (l *Lookup) Reload(path string) error {
	db, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("open geoip database: %w", err)
	}
	l.mu.Lock()
	old := l.db
	l.db = db
	l.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Close releases the underlying database handle.
func (l *Lookup) Close() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Lookup resolves ip to an ISO2 country code, or ErrLookupUnavailable if
// the database isn't loaded, or nil (no error, nil string) if the IP has
// no resolvable country.
func (l *Lookup) Lookup(ip string) (*string, error) {
	l.mu.RLock()
	db := l.db
	l.mu.RUnlock()

	if db == nil {
		return nil, ErrLookupUnavailable
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("invalid ip address %q", ip)
	}

	record, err := db.Country(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLookupUnavailable, err)
	}
	if record.Country.IsoCode == "" {
		return nil, nil
	}
	code := record.Country.IsoCode
	return &code, nil
}
