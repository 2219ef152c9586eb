package proxypool

import (
	"context"
	"fmt"
	"sync"

	"github.com/uzzalhcse/proxynest/internal/storage"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// fakeStore is an in-memory Store used to exercise the assignment engine's
// concurrency properties without a live Postgres. Each document gets its
// own mutex so AtomicAssign can simulate the single-document
// linearizability contract spec.md §5 requires of any real Store.
type fakeStore struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	data  map[string]*models.Proxy
}

func newFakeStore() *fakeStore {
	return &fakeStore{locks: map[string]*sync.Mutex{}, data: map[string]*models.Proxy{}}
}

func (f *fakeStore) lockFor(id string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[id]
	if !ok {
		l = &sync.Mutex{}
		f.locks[id] = l
	}
	return l
}

func clone(p *models.Proxy) *models.Proxy {
	cp := *p
	cp.InstanceIDs = models.LeaseMap{}
	for k, v := range p.InstanceIDs {
		cp.InstanceIDs[k] = v
	}
	cp.Tags = append(models.TagList{}, p.Tags...)
	return &cp
}

func (f *fakeStore) seed(p *models.Proxy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[p.ID] = clone(p)
}

func (f *fakeStore) Get(ctx context.Context, id string) (*models.Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return clone(p), nil
}

func (f *fakeStore) List(ctx context.Context, filter models.ProxyFilter) ([]*models.Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Proxy
	for _, p := range f.data {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.Country != nil && (p.CountryCode == nil || *p.CountryCode != *filter.Country) {
			continue
		}
		out = append(out, clone(p))
	}
	return out, nil
}

func (f *fakeStore) ListHoldingInstance(ctx context.Context, instanceID string) ([]*models.Proxy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Proxy
	for _, p := range f.data {
		if _, ok := p.InstanceIDs[instanceID]; ok {
			out = append(out, clone(p))
		}
	}
	return out, nil
}

func (f *fakeStore) Insert(ctx context.Context, p *models.Proxy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.data {
		if existing.IP == p.IP && existing.Port == p.Port && existing.Protocol == p.Protocol {
			return storage.ErrConflict
		}
	}
	f.data[p.ID] = clone(p)
	return nil
}

func (f *fakeStore) ExistsByIdentity(ctx context.Context, ip string, port int, protocol models.Protocol) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.data {
		if p.IP == ip && p.Port == port && p.Protocol == protocol {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateFields(ctx context.Context, id string, patch map[string]interface{}) (*models.Proxy, error) {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	p, ok := f.data[id]
	f.mu.Unlock()
	if !ok {
		return nil, storage.ErrNotFound
	}

	updated := clone(p)
	for k, v := range patch {
		switch k {
		case "ip":
			updated.IP = v.(string)
		case "port":
			updated.Port = v.(int)
		case "username":
			s := fmt.Sprint(v)
			updated.Username = &s
		case "password":
			s := fmt.Sprint(v)
			updated.Password = &s
		case "protocol":
			updated.Protocol = models.Protocol(fmt.Sprint(v))
		case "country_code":
			s := fmt.Sprint(v)
			updated.CountryCode = &s
		case "tags":
			updated.Tags = v.(models.TagList)
		}
	}

	f.mu.Lock()
	f.data[id] = updated
	f.mu.Unlock()
	return clone(updated), nil
}

func (f *fakeStore) AtomicAssign(ctx context.Context, id string, expected, next models.LeaseMap) (bool, error) {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	p, ok := f.data[id]
	f.mu.Unlock()
	if !ok {
		return false, storage.ErrNotFound
	}
	if !p.InstanceIDs.Equal(expected) {
		return false, nil
	}

	updated := clone(p)
	updated.InstanceIDs = models.LeaseMap{}
	for k, v := range next {
		updated.InstanceIDs[k] = v
	}
	updated.LeaseCount = len(next)

	f.mu.Lock()
	f.data[id] = updated
	f.mu.Unlock()
	return true, nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id string, status models.Status, responseMs *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	updated := clone(p)
	updated.Status = status
	updated.ResponseTime = responseMs
	f.data[id] = updated
	return nil
}

func (f *fakeStore) SetCountryCode(ctx context.Context, id string, countryCode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	updated := clone(p)
	updated.CountryCode = &countryCode
	f.data[id] = updated
	return nil
}

func (f *fakeStore) ReplaceLeases(ctx context.Context, id string, leases models.LeaseMap, clearLastUsed bool) error {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	p, ok := f.data[id]
	f.mu.Unlock()
	if !ok {
		return storage.ErrNotFound
	}
	updated := clone(p)
	updated.InstanceIDs = models.LeaseMap{}
	for k, v := range leases {
		updated.InstanceIDs[k] = v
	}
	if clearLastUsed {
		updated.LastUsed = nil
	}
	f.mu.Lock()
	f.data[id] = updated
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) RefreshLease(ctx context.Context, id, instanceID string) error {
	return fmt.Errorf("not used by these tests")
}

func (f *fakeStore) RefreshLastUsed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	_ = p
	return nil
}

func (f *fakeStore) ClearLeaseField(ctx context.Context, id, instanceID string) (bool, error) {
	l := f.lockFor(id)
	l.Lock()
	defer l.Unlock()

	f.mu.Lock()
	p, ok := f.data[id]
	f.mu.Unlock()
	if !ok {
		return false, storage.ErrNotFound
	}
	if _, held := p.InstanceIDs[instanceID]; !held {
		return false, nil
	}
	updated := clone(p)
	delete(updated.InstanceIDs, instanceID)
	if len(updated.InstanceIDs) == 0 {
		updated.LastUsed = nil
	}
	f.mu.Lock()
	f.data[id] = updated
	f.mu.Unlock()
	return true, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.data, id)
	return nil
}

func (f *fakeStore) ResetAllLeases(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, p := range f.data {
		if len(p.InstanceIDs) == 0 && p.LastUsed == nil {
			continue
		}
		updated := clone(p)
		updated.InstanceIDs = models.LeaseMap{}
		updated.LastUsed = nil
		f.data[id] = updated
		n++
	}
	return n, nil
}
