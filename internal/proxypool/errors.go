package proxypool

import "errors"

// Error taxonomy for the proxy pool domain (spec §7). AdminFacade maps
// these to HTTP status codes; background loops log and isolate them
// per-item instead of surfacing them.
var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("proxy already exists for ip/port/protocol")
	ErrInstanceSaturated = errors.New("instance has reached max_proxies_per_instance")
	ErrNoProxyAvailable  = errors.New("no candidate proxy available")
	ErrFieldForbidden    = errors.New("field not editable")
	ErrInvalidType       = errors.New("invalid field type")
	ErrNotHeld           = errors.New("instance does not hold a lease on any proxy")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
