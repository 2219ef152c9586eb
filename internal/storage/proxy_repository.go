package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// ErrConflict is returned by Insert when the (ip, port, protocol) uniqueness
// invariant would be violated.
var ErrConflict = errors.New("proxy already exists for ip/port/protocol")

// ErrNotFound is returned when a proxy id has no matching row.
var ErrNotFound = errors.New("proxy not found")

// ProxyRepository is the Store (spec §4.1): a thin, conditional-update
// aware persistence layer over the proxies table. It holds no business
// rules of its own beyond the uniqueness and conditional-write contracts.
type ProxyRepository struct {
	db *PostgresDB
}

func NewProxyRepository(db *PostgresDB) *ProxyRepository {
	return &ProxyRepository{db: db}
}

const proxyColumns = `
	id, ip, port, username, password, protocol, response_time, status,
	country_code, instance_ids, last_used, tags, lease_count, created_at, updated_at
`

// scanProxy is used by the conditional-write paths, which stay on the pgx
// pool directly rather than sqlx's database/sql handle.
func scanProxy(row pgx.Row) (*models.Proxy, error) {
	p := &models.Proxy{}
	err := row.Scan(
		&p.ID, &p.IP, &p.Port, &p.Username, &p.Password, &p.Protocol, &p.ResponseTime, &p.Status,
		&p.CountryCode, &p.InstanceIDs, &p.LastUsed, &p.Tags, &p.LeaseCount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a single proxy, or ErrNotFound.
func (r *ProxyRepository) Get(ctx context.Context, id string) (*models.Proxy, error) {
	query := `SELECT ` + proxyColumns + ` FROM proxies WHERE id = $1`
	var p models.Proxy
	if err := r.db.SQLX.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get proxy: %w", err)
	}
	return &p, nil
}

// List returns proxies matching filter. A zero-value filter returns all proxies.
func (r *ProxyRepository) List(ctx context.Context, filter models.ProxyFilter) ([]*models.Proxy, error) {
	query := `SELECT ` + proxyColumns + ` FROM proxies WHERE 1=1`
	args := []interface{}{}
	argN := 0

	next := func() int {
		argN++
		return argN
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", next())
		args = append(args, *filter.Status)
	}
	if filter.Country != nil {
		query += fmt.Sprintf(" AND country_code = $%d", next())
		args = append(args, strings.ToUpper(*filter.Country))
	}
	if len(filter.Tags) > 0 {
		switch filter.TagMode {
		case models.TagMatchAll:
			query += fmt.Sprintf(" AND tags @> $%d", next())
		default:
			query += fmt.Sprintf(" AND tags ?| $%d", next())
		}
		args = append(args, filter.Tags)
	}
	if filter.MaxLeaseBelow != nil {
		query += fmt.Sprintf(" AND lease_count < $%d", next())
		args = append(args, *filter.MaxLeaseBelow)
	}
	query += " ORDER BY created_at ASC"

	var out []*models.Proxy
	if err := r.db.SQLX.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list proxies: %w", err)
	}
	return out, nil
}

// ListHoldingInstance returns every proxy whose instance_ids currently
// contains instanceID, used by clear_lease and the per-instance cap check.
func (r *ProxyRepository) ListHoldingInstance(ctx context.Context, instanceID string) ([]*models.Proxy, error) {
	query := `SELECT ` + proxyColumns + ` FROM proxies WHERE instance_ids ? $1`
	var out []*models.Proxy
	if err := r.db.SQLX.SelectContext(ctx, &out, query, instanceID); err != nil {
		return nil, fmt.Errorf("list proxies holding instance: %w", err)
	}
	return out, nil
}

// Insert assigns a fresh id if absent and inserts the proxy, enforcing the
// (ip, port, protocol) uniqueness invariant. Returns ErrConflict on violation.
func (r *ProxyRepository) Insert(ctx context.Context, p *models.Proxy) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.InstanceIDs == nil {
		p.InstanceIDs = models.LeaseMap{}
	}
	if p.Tags == nil {
		p.Tags = models.TagList{}
	}
	if p.Status == "" {
		p.Status = models.StatusUnknown
	}

	query := `
		INSERT INTO proxies (id, ip, port, username, password, protocol, status, country_code, instance_ids, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.IP, p.Port, p.Username, p.Password, p.Protocol, p.Status, p.CountryCode, p.InstanceIDs, p.Tags,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert proxy: %w", err)
	}
	return nil
}

// ExistsByIdentity reports whether a proxy with the same (ip, port, protocol) exists.
func (r *ProxyRepository) ExistsByIdentity(ctx context.Context, ip string, port int, protocol models.Protocol) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM proxies WHERE ip = $1 AND port = $2 AND protocol = $3)`
	if err := r.db.Pool.QueryRow(ctx, query, ip, port, protocol).Scan(&exists); err != nil {
		return false, fmt.Errorf("check proxy identity: %w", err)
	}
	return exists, nil
}

// UpdateFields applies a set-style partial update restricted to the columns
// present in patch. Keys are used as column names as given; ProxyRegistry
// enforces the edit whitelist before calling this.
func (r *ProxyRepository) UpdateFields(ctx context.Context, id string, patch map[string]interface{}) (*models.Proxy, error) {
	if len(patch) == 0 {
		return r.Get(ctx, id)
	}

	setClauses := make([]string, 0, len(patch))
	args := []interface{}{}
	argN := 0
	for col, val := range patch {
		argN++
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, argN))
		args = append(args, val)
	}
	argN++
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE proxies SET %s, updated_at = NOW() WHERE id = $%d RETURNING `+proxyColumns,
		strings.Join(setClauses, ", "), argN)

	p, err := scanProxy(r.db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update proxy fields: %w", err)
	}
	return p, nil
}

// AtomicAssign performs the conditional replace at the heart of the
// assignment engine: the write only lands if the proxy's current
// instance_ids still equals expected. Returns (landed, error).
func (r *ProxyRepository) AtomicAssign(ctx context.Context, id string, expected, next models.LeaseMap) (bool, error) {
	query := `
		UPDATE proxies
		SET instance_ids = $1, lease_count = $2, updated_at = NOW()
		WHERE id = $3 AND instance_ids = $4
	`
	tag, err := r.db.Pool.Exec(ctx, query, next, len(next), id, expected)
	if err != nil {
		return false, fmt.Errorf("atomic assign: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetStatus writes back a health-probe result (status, response_time).
func (r *ProxyRepository) SetStatus(ctx context.Context, id string, status models.Status, responseMs *float64) error {
	query := `UPDATE proxies SET status = $1, response_time = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.Pool.Exec(ctx, query, status, responseMs, id)
	if err != nil {
		return fmt.Errorf("set proxy status: %w", err)
	}
	return nil
}

// SetCountryCode writes back a geo-enrichment result.
func (r *ProxyRepository) SetCountryCode(ctx context.Context, id string, countryCode string) error {
	query := `UPDATE proxies SET country_code = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Pool.Exec(ctx, query, countryCode, id)
	if err != nil {
		return fmt.Errorf("set proxy country code: %w", err)
	}
	return nil
}

// ReplaceLeases writes instance_ids/lease_count unconditionally — used by
// the expiry sweep, which owns the lease-pruning decision itself and does
// not need optimistic concurrency (it is the only writer of expired leases).
func (r *ProxyRepository) ReplaceLeases(ctx context.Context, id string, leases models.LeaseMap, clearLastUsed bool) error {
	query := `UPDATE proxies SET instance_ids = $1, lease_count = $2, updated_at = NOW()`
	args := []interface{}{leases, len(leases)}
	if clearLastUsed {
		query += `, last_used = NULL`
	}
	query += ` WHERE id = $3`
	args = append(args, id)
	_, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("replace leases: %w", err)
	}
	return nil
}

// RefreshLease sets a single instance's last_seen timestamp to now.
func (r *ProxyRepository) RefreshLease(ctx context.Context, id, instanceID string) error {
	query := `
		UPDATE proxies
		SET instance_ids = jsonb_set(instance_ids, $1, to_jsonb(NOW()), true), updated_at = NOW()
		WHERE id = $2
	`
	path := []string{instanceID}
	_, err := r.db.Pool.Exec(ctx, query, path, id)
	if err != nil {
		return fmt.Errorf("refresh lease: %w", err)
	}
	return nil
}

// RefreshLastUsed sets last_used to now, independent of any specific lease.
func (r *ProxyRepository) RefreshLastUsed(ctx context.Context, id string) error {
	query := `UPDATE proxies SET last_used = NOW(), updated_at = NOW() WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("refresh last_used: %w", err)
	}
	return nil
}

// ClearLeaseField removes a single (proxy, instance) lease entry. Reports
// whether the entry existed prior to removal.
func (r *ProxyRepository) ClearLeaseField(ctx context.Context, id, instanceID string) (bool, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if _, ok := p.InstanceIDs[instanceID]; !ok {
		return false, nil
	}
	delete(p.InstanceIDs, instanceID)
	clearLastUsed := len(p.InstanceIDs) == 0
	if err := r.ReplaceLeases(ctx, id, p.InstanceIDs, clearLastUsed); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a proxy document. Fails with ErrNotFound.
func (r *ProxyRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM proxies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete proxy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetAllLeases clears instance_ids and last_used on every proxy; returns
// the number of rows actually modified.
func (r *ProxyRepository) ResetAllLeases(ctx context.Context) (int, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE proxies
		SET instance_ids = '{}'::jsonb, lease_count = 0, last_used = NULL, updated_at = NOW()
		WHERE instance_ids <> '{}'::jsonb OR last_used IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("reset all leases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "duplicate key")
}
