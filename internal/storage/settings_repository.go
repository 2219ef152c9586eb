package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// SettingsRepository persists the singleton tunable-parameter document
// (spec §4.4 SettingsRegistry's backing store). The row is keyed by a
// fixed id so Get/Upsert never need to discover an id first.
type SettingsRepository struct {
	db *PostgresDB
}

const settingsRowID = 1

func NewSettingsRepository(db *PostgresDB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row, or ErrNotFound if it has never been seeded.
func (r *SettingsRepository) Get(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	query := `
		SELECT inactive_proxy_timeout, threshold_time_minutes, background_check_proxies_interval,
		       max_instances_per_proxy, max_proxies_per_instance
		FROM proxy_manager_settings WHERE id = $1
	`
	err := r.db.Pool.QueryRow(ctx, query, settingsRowID).Scan(
		&s.InactiveProxyTimeout, &s.ThresholdTimeMinutes, &s.BackgroundCheckProxiesInterval,
		&s.MaxInstancesPerProxy, &s.MaxProxiesPerInstance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Settings{}, ErrNotFound
		}
		return models.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// Seed inserts the default row if and only if none exists yet, mirroring
// load_settings()'s lazy-create-on-first-read behavior.
func (r *SettingsRepository) Seed(ctx context.Context, defaults models.Settings) (models.Settings, error) {
	query := `
		INSERT INTO proxy_manager_settings
			(id, inactive_proxy_timeout, threshold_time_minutes, background_check_proxies_interval,
			 max_instances_per_proxy, max_proxies_per_instance)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query, settingsRowID,
		defaults.InactiveProxyTimeout, defaults.ThresholdTimeMinutes, defaults.BackgroundCheckProxiesInterval,
		defaults.MaxInstancesPerProxy, defaults.MaxProxiesPerInstance,
	)
	if err != nil {
		return models.Settings{}, fmt.Errorf("seed settings: %w", err)
	}
	return r.Get(ctx)
}

// Upsert replaces the settings row with s, creating it if absent.
func (r *SettingsRepository) Upsert(ctx context.Context, s models.Settings) error {
	query := `
		INSERT INTO proxy_manager_settings
			(id, inactive_proxy_timeout, threshold_time_minutes, background_check_proxies_interval,
			 max_instances_per_proxy, max_proxies_per_instance)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			inactive_proxy_timeout = EXCLUDED.inactive_proxy_timeout,
			threshold_time_minutes = EXCLUDED.threshold_time_minutes,
			background_check_proxies_interval = EXCLUDED.background_check_proxies_interval,
			max_instances_per_proxy = EXCLUDED.max_instances_per_proxy,
			max_proxies_per_instance = EXCLUDED.max_proxies_per_instance
	`
	_, err := r.db.Pool.Exec(ctx, query, settingsRowID,
		s.InactiveProxyTimeout, s.ThresholdTimeMinutes, s.BackgroundCheckProxiesInterval,
		s.MaxInstancesPerProxy, s.MaxProxiesPerInstance,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}
