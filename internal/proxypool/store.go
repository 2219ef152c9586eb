package proxypool

import (
	"context"

	"github.com/uzzalhcse/proxynest/pkg/models"
)

// Store is the persistence boundary ProxyRegistry, Engine, and Loops need.
// *storage.ProxyRepository satisfies it against Postgres; tests satisfy it
// with an in-memory fake that serializes conditional writes per document,
// simulating the linearizability contract a real Store must provide.
type Store interface {
	Get(ctx context.Context, id string) (*models.Proxy, error)
	List(ctx context.Context, filter models.ProxyFilter) ([]*models.Proxy, error)
	ListHoldingInstance(ctx context.Context, instanceID string) ([]*models.Proxy, error)
	Insert(ctx context.Context, p *models.Proxy) error
	ExistsByIdentity(ctx context.Context, ip string, port int, protocol models.Protocol) (bool, error)
	UpdateFields(ctx context.Context, id string, patch map[string]interface{}) (*models.Proxy, error)
	AtomicAssign(ctx context.Context, id string, expected, next models.LeaseMap) (bool, error)
	SetStatus(ctx context.Context, id string, status models.Status, responseMs *float64) error
	SetCountryCode(ctx context.Context, id string, countryCode string) error
	ReplaceLeases(ctx context.Context, id string, leases models.LeaseMap, clearLastUsed bool) error
	RefreshLease(ctx context.Context, id, instanceID string) error
	RefreshLastUsed(ctx context.Context, id string) error
	ClearLeaseField(ctx context.Context, id, instanceID string) (bool, error)
	Delete(ctx context.Context, id string) error
	ResetAllLeases(ctx context.Context) (int, error)
}
