package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Protocol is the upstream tunnel protocol a Proxy speaks.
type Protocol string

const (
	ProtocolHTTP   Protocol = "HTTP"
	ProtocolSOCKS4 Protocol = "SOCKS4"
	ProtocolSOCKS5 Protocol = "SOCKS5"
)

// ParseProtocol canonicalizes user input (case-insensitive) to a known Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(ProtocolHTTP):
		return ProtocolHTTP, nil
	case string(ProtocolSOCKS4):
		return ProtocolSOCKS4, nil
	case string(ProtocolSOCKS5):
		return ProtocolSOCKS5, nil
	default:
		return "", fmt.Errorf("unknown protocol %q", s)
	}
}

// Status is the last known health of a Proxy.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
)

// LeaseMap is the instance_ids field: instance ID -> last_seen timestamp (UTC).
// It implements sql.Scanner/driver.Valuer so pgx/sqlx can round-trip it as JSONB.
type LeaseMap map[string]time.Time

// Scan implements sql.Scanner for LeaseMap.
func (m *LeaseMap) Scan(value interface{}) error {
	if value == nil {
		*m = LeaseMap{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for LeaseMap", value)
	}
	if len(raw) == 0 {
		*m = LeaseMap{}
		return nil
	}
	out := LeaseMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("malformed instance_ids: %w", err)
	}
	*m = out
	return nil
}

// Value implements driver.Valuer for LeaseMap.
func (m LeaseMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(map[string]time.Time{})
	}
	return json.Marshal(map[string]time.Time(m))
}

// Equal reports whether two LeaseMaps serialize identically, used as the
// "expected" comparison for the Store's conditional update.
func (m LeaseMap) Equal(other LeaseMap) bool {
	a, errA := m.Value()
	b, errB := other.Value()
	if errA != nil || errB != nil {
		return false
	}
	return string(a.([]byte)) == string(b.([]byte))
}

// TagList is the ordered (set-semantics) tag list, stored as a JSONB array.
type TagList []string

// Scan implements sql.Scanner for TagList.
func (t *TagList) Scan(value interface{}) error {
	if value == nil {
		*t = TagList{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for TagList", value)
	}
	if len(raw) == 0 {
		*t = TagList{}
		return nil
	}
	out := TagList{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*t = out
	return nil
}

// Value implements driver.Valuer for TagList.
func (t TagList) Value() (driver.Value, error) {
	if t == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(t))
}

// Proxy is a single upstream relay and its live lease/health state.
type Proxy struct {
	ID            string    `json:"id" db:"id"`
	IP            string    `json:"ip" db:"ip"`
	Port          int       `json:"port" db:"port"`
	Username      *string   `json:"username,omitempty" db:"username"`
	Password      *string   `json:"password,omitempty" db:"password"`
	Protocol      Protocol  `json:"protocol" db:"protocol"`
	ResponseTime  *float64  `json:"response_time,omitempty" db:"response_time"`
	Status        Status    `json:"status" db:"status"`
	CountryCode   *string   `json:"country_code,omitempty" db:"country_code"`
	InstanceIDs   LeaseMap  `json:"instance_ids" db:"instance_ids"`
	LastUsed      *time.Time `json:"last_used,omitempty" db:"last_used"`
	Tags          TagList   `json:"tags" db:"tags"`
	LeaseCount    int       `json:"-" db:"lease_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// HasTag reports whether the proxy carries the given tag.
func (p *Proxy) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Settings is the singleton tunable-parameter document.
type Settings struct {
	InactiveProxyTimeout           int `json:"inactive_proxy_timeout" db:"inactive_proxy_timeout"`
	ThresholdTimeMinutes           int `json:"threshold_time_minutes" db:"threshold_time_minutes"`
	BackgroundCheckProxiesInterval int `json:"background_check_proxies_interval" db:"background_check_proxies_interval"`
	MaxInstancesPerProxy           int `json:"max_instances_per_proxy" db:"max_instances_per_proxy"`
	MaxProxiesPerInstance          int `json:"max_proxies_per_instance" db:"max_proxies_per_instance"`
}

// SettingsPatch is a partial update to Settings; nil fields are left untouched.
type SettingsPatch struct {
	InactiveProxyTimeout           *int `json:"inactive_proxy_timeout,omitempty"`
	ThresholdTimeMinutes           *int `json:"threshold_time_minutes,omitempty"`
	BackgroundCheckProxiesInterval *int `json:"background_check_proxies_interval,omitempty"`
	MaxInstancesPerProxy           *int `json:"max_instances_per_proxy,omitempty"`
	MaxProxiesPerInstance          *int `json:"max_proxies_per_instance,omitempty"`
}

// IsEmpty reports whether the patch has no effective fields.
func (p *SettingsPatch) IsEmpty() bool {
	return p.InactiveProxyTimeout == nil &&
		p.ThresholdTimeMinutes == nil &&
		p.BackgroundCheckProxiesInterval == nil &&
		p.MaxInstancesPerProxy == nil &&
		p.MaxProxiesPerInstance == nil
}

// Apply returns a copy of s with the patch's non-nil fields overlaid.
func (p *SettingsPatch) Apply(s Settings) Settings {
	if p.InactiveProxyTimeout != nil {
		s.InactiveProxyTimeout = *p.InactiveProxyTimeout
	}
	if p.ThresholdTimeMinutes != nil {
		s.ThresholdTimeMinutes = *p.ThresholdTimeMinutes
	}
	if p.BackgroundCheckProxiesInterval != nil {
		s.BackgroundCheckProxiesInterval = *p.BackgroundCheckProxiesInterval
	}
	if p.MaxInstancesPerProxy != nil {
		s.MaxInstancesPerProxy = *p.MaxInstancesPerProxy
	}
	if p.MaxProxiesPerInstance != nil {
		s.MaxProxiesPerInstance = *p.MaxProxiesPerInstance
	}
	return s
}

// DefaultSettings mirrors the defaults load_settings() seeds on first boot.
func DefaultSettings() Settings {
	return Settings{
		InactiveProxyTimeout:           10,
		ThresholdTimeMinutes:           10,
		BackgroundCheckProxiesInterval: 60,
		MaxInstancesPerProxy:           2,
		MaxProxiesPerInstance:          1,
	}
}

// ProxyFilter narrows List/candidate queries.
type ProxyFilter struct {
	Tags       []string
	TagMode    TagMatchMode
	Country    *string
	Status     *Status
	MaxLeaseBelow *int // lease_count < N
}

// TagMatchMode selects between any-of and all-of tag matching.
type TagMatchMode int

const (
	TagMatchAny TagMatchMode = iota
	TagMatchAll
)
