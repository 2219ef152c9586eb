package proxypool

import (
	"context"
	"errors"
	"fmt"

	"github.com/uzzalhcse/proxynest/internal/logger"
	"github.com/uzzalhcse/proxynest/internal/prober"
	"github.com/uzzalhcse/proxynest/internal/storage"
	"github.com/uzzalhcse/proxynest/pkg/models"
	"go.uber.org/zap"
)

var editWhitelist = map[string]bool{
	"ip": true, "port": true, "username": true, "password": true,
	"protocol": true, "country_code": true, "tags": true,
}

// Registry is ProxyRegistry (spec §4.5): add/edit/delete/list, plus
// reset_all_leases. It schedules an immediate async probe after add/edit
// so a freshly-added proxy's status is not left UNKNOWN until the next
// health sweep.
type Registry struct {
	repo   Store
	prober *prober.Prober
}

func NewRegistry(repo Store, pr *prober.Prober) *Registry {
	return &Registry{repo: repo, prober: pr}
}

// Add assigns a fresh id, checks uniqueness, inserts, and schedules an
// async probe of the new proxy.
func (r *Registry) Add(ctx context.Context, p *models.Proxy) (*models.Proxy, error) {
	exists, err := r.repo.ExistsByIdentity(ctx, p.IP, p.Port, p.Protocol)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if exists {
		return nil, ErrDuplicate
	}

	if err := r.repo.Insert(ctx, p); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	r.scheduleProbe(p.ID)
	return p, nil
}

// Edit applies patch, restricted to the whitelisted fields, and schedules
// an async reprobe on success.
func (r *Registry) Edit(ctx context.Context, id string, patch map[string]interface{}) (*models.Proxy, error) {
	normalized := make(map[string]interface{}, len(patch))
	for key, val := range patch {
		if !editWhitelist[key] {
			return nil, fmt.Errorf("%w: %q", ErrFieldForbidden, key)
		}
		if val == nil {
			return nil, fmt.Errorf("%w: %q must not be null", ErrFieldForbidden, key)
		}
		switch key {
		case "tags":
			tags, err := toTagList(val)
			if err != nil {
				return nil, err
			}
			normalized[key] = tags
		case "port":
			port, ok := val.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: port must be a number", ErrInvalidType)
			}
			normalized[key] = int(port)
		default:
			normalized[key] = val
		}
	}

	p, err := r.repo.UpdateFields(ctx, id, normalized)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	r.scheduleProbe(p.ID)
	return p, nil
}

// toTagList coerces a JSON-decoded patch value into models.TagList,
// rejecting anything that isn't a list of strings.
func toTagList(val interface{}) (models.TagList, error) {
	switch v := val.(type) {
	case models.TagList:
		return v, nil
	case []string:
		return models.TagList(v), nil
	case []interface{}:
		out := make(models.TagList, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: tags must be a list of strings", ErrInvalidType)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: tags must be a list", ErrInvalidType)
	}
}

// Delete removes a proxy document.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// List returns proxies, optionally filtered by any-of tag match.
func (r *Registry) List(ctx context.Context, tags []string) ([]*models.Proxy, error) {
	filter := models.ProxyFilter{Tags: tags, TagMode: models.TagMatchAny}
	proxies, err := r.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return proxies, nil
}

// ResetAllLeases clears instance_ids and last_used on every proxy.
func (r *Registry) ResetAllLeases(ctx context.Context) (int, error) {
	n, err := r.repo.ResetAllLeases(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return n, nil
}

// scheduleProbe fires a single probe in the background; failures are
// logged and never surfaced — the next health sweep will reconcile status
// either way.
func (r *Registry) scheduleProbe(proxyID string) {
	go func() {
		ctx := context.Background()
		p, err := r.repo.Get(ctx, proxyID)
		if err != nil {
			logger.Warn("scheduled probe: proxy vanished before probing", zap.String("proxy_id", proxyID), zap.Error(err))
			return
		}

		result, err := r.prober.Probe(ctx, prober.Target{
			IP: p.IP, Port: p.Port, Protocol: p.Protocol, Username: p.Username, Password: p.Password,
		})
		if err != nil {
			logger.Warn("scheduled probe failed", zap.String("proxy_id", proxyID), zap.Error(err))
			return
		}

		if err := r.repo.SetStatus(ctx, proxyID, result.Status, result.AvgLatency); err != nil {
			logger.Warn("scheduled probe: failed to write back status", zap.String("proxy_id", proxyID), zap.Error(err))
		}
	}()
}
