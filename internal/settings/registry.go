// Package settings implements the SettingsRegistry: the single piece of
// process-wide mutable state the system allows (spec §5), held as a
// read-mostly, copy-on-write snapshot.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/uzzalhcse/proxynest/internal/storage"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// ErrEmpty is returned by Update when the patch has no effective fields.
var ErrEmpty = errors.New("settings patch has no fields")

// Store is the persistence boundary SettingsRegistry needs.
type Store interface {
	Get(ctx context.Context) (models.Settings, error)
	Seed(ctx context.Context, defaults models.Settings) (models.Settings, error)
	Upsert(ctx context.Context, s models.Settings) error
}

// Registry caches the settings document and serves reads without
// round-tripping to the store; writes replace the snapshot atomically.
type Registry struct {
	store Store
	cache atomic.Pointer[models.Settings]
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// Load reads the singleton settings document, seeding defaults on first
// use, and refreshes the cached snapshot.
func (r *Registry) Load(ctx context.Context) (models.Settings, error) {
	s, err := r.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return models.Settings{}, fmt.Errorf("load settings: %w", err)
		}
		s, err = r.store.Seed(ctx, models.DefaultSettings())
		if err != nil {
			return models.Settings{}, fmt.Errorf("seed settings: %w", err)
		}
	}
	r.cache.Store(&s)
	return s, nil
}

// Snapshot returns the cached settings without touching the store. Before
// the first successful Load it returns DefaultSettings().
func (r *Registry) Snapshot() models.Settings {
	s := r.cache.Load()
	if s == nil {
		return models.DefaultSettings()
	}
	return *s
}

// Update applies patch, persists it, and re-Loads so the cache reflects
// exactly what landed — mirroring load_settings()'s atomic refresh.
func (r *Registry) Update(ctx context.Context, patch models.SettingsPatch) (models.Settings, error) {
	if patch.IsEmpty() {
		return models.Settings{}, ErrEmpty
	}

	current := r.Snapshot()
	next := patch.Apply(current)

	if err := r.store.Upsert(ctx, next); err != nil {
		return models.Settings{}, fmt.Errorf("upsert settings: %w", err)
	}
	return r.Load(ctx)
}
