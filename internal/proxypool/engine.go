package proxypool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/uzzalhcse/proxynest/internal/settings"
	"github.com/uzzalhcse/proxynest/internal/storage"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// maxAssignRetries bounds how many candidates Assign will try before
// giving up with ErrNoProxyAvailable — the Store only promises
// per-document conditional writes, not a reservation across the table, so
// contention is resolved by bounded retry rather than a global lock.
const maxAssignRetries = 5

// AssignmentResult is returned to the caller on a successful assign.
type AssignmentResult struct {
	ProxyID  string
	IP       string
	Port     int
	Username *string
	Password *string
	Protocol string
}

// Engine is the AssignmentEngine (spec §4.6), the hot path of the system.
type Engine struct {
	repo     Store
	settings *settings.Registry
}

func NewEngine(repo Store, settingsRegistry *settings.Registry) *Engine {
	return &Engine{repo: repo, settings: settingsRegistry}
}

// Assign implements the 6-step candidate-acquire-and-conditionally-write
// algorithm.
func (e *Engine) Assign(ctx context.Context, instanceID string, country *string, tags []string) (*AssignmentResult, error) {
	s := e.settings.Snapshot()

	// Step 1: per-instance cap.
	held, err := e.repo.ListHoldingInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(held) >= s.MaxProxiesPerInstance {
		return nil, ErrInstanceSaturated
	}

	excluded := map[string]bool{}
	up := models.StatusUp

	for attempt := 0; attempt < maxAssignRetries; attempt++ {
		// Step 2: candidate selection.
		filter := models.ProxyFilter{Status: &up, Country: country, Tags: tags, TagMode: models.TagMatchAll}
		candidates, err := e.repo.List(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}

		wanted := mapset.NewThreadUnsafeSet(tags...)

		// Leases older than cutoff are pruned in step 3, so they do not
		// count against capacity here.
		now := time.Now().UTC()
		cutoff := now.Add(-time.Duration(s.InactiveProxyTimeout) * time.Minute)

		var candidate *models.Proxy
		for _, c := range candidates {
			if excluded[c.ID] {
				continue
			}
			if country != nil && !matchesCountry(c.CountryCode, *country) {
				continue
			}
			live := 0
			for _, seen := range c.InstanceIDs {
				if seen.After(cutoff) {
					live++
				}
			}
			if live >= s.MaxInstancesPerProxy {
				continue
			}
			if wanted.Cardinality() > 0 && !wanted.IsSubset(mapset.NewThreadUnsafeSet(c.Tags...)) {
				continue // belt-and-suspenders: Store filters too, but a non-Postgres fake may not
			}
			candidate = c
			break
		}
		if candidate == nil {
			return nil, ErrNoProxyAvailable
		}

		// Step 3: pre-prune stale leases on the candidate.
		pruned := models.LeaseMap{}
		for id, seen := range candidate.InstanceIDs {
			if seen.After(cutoff) {
				pruned[id] = seen
			}
		}

		// Step 4: insert this instance; re-check capacity post-prune.
		pruned[instanceID] = now
		if len(pruned) > s.MaxInstancesPerProxy {
			excluded[candidate.ID] = true
			continue
		}

		// Step 5: conditional write.
		landed, err := e.repo.AtomicAssign(ctx, candidate.ID, candidate.InstanceIDs, pruned)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		if !landed {
			continue // racing writer won; retry from step 2 without excluding the candidate
		}

		// Step 6: refresh usage and return.
		if err := e.repo.RefreshLastUsed(ctx, candidate.ID); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}

		return &AssignmentResult{
			ProxyID:  candidate.ID,
			IP:       candidate.IP,
			Port:     candidate.Port,
			Username: candidate.Username,
			Password: candidate.Password,
			Protocol: string(candidate.Protocol),
		}, nil
	}

	return nil, ErrNoProxyAvailable
}

func matchesCountry(proxyCountry *string, wanted string) bool {
	if proxyCountry == nil {
		return false
	}
	return strings.EqualFold(*proxyCountry, wanted)
}

// RefreshUsage sets instance_ids[instanceID] = now if instanceID is
// given, else sets last_used = now.
func (e *Engine) RefreshUsage(ctx context.Context, proxyID string, instanceID *string) error {
	var err error
	if instanceID != nil {
		err = e.repo.RefreshLease(ctx, proxyID, *instanceID)
	} else {
		err = e.repo.RefreshLastUsed(ctx, proxyID)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// ClearLease removes instanceID's lease from every proxy holding it,
// reporting the ids cleared. Fails with ErrNotHeld if none held it.
func (e *Engine) ClearLease(ctx context.Context, instanceID string) ([]string, error) {
	held, err := e.repo.ListHoldingInstance(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if len(held) == 0 {
		return nil, ErrNotHeld
	}

	var cleared []string
	for _, p := range held {
		ok, err := e.repo.ClearLeaseField(ctx, p.ID, instanceID)
		if err != nil {
			return cleared, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		}
		if ok {
			cleared = append(cleared, p.ID)
		}
	}
	return cleared, nil
}

// ClearLeaseOn removes a single (proxy, instance) lease entry.
func (e *Engine) ClearLeaseOn(ctx context.Context, proxyID, instanceID string) error {
	ok, err := e.repo.ClearLeaseField(ctx, proxyID, instanceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
