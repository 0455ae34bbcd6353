package viewstate

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/observability"
)

const anonymous = "anonymous"

// storable are the non-filter parameters that are remembered.
var storable = map[string]bool{"sortBy": true, "fields": true}

// Mirror keeps the remembered view of each list in step with the list
// page URL. A Mirror without a store does nothing.
type Mirror struct {
	store   Store
	driver  string
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewMirror creates a mirror over store. driver labels metrics.
func NewMirror(store Store, driver string, ttl time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{store: store, driver: driver, ttl: ttl, metrics: metrics, logger: logger}
}

// Enabled reports whether views are remembered.
func (m *Mirror) Enabled() bool {
	return m != nil && m.store != nil
}

// Storable returns the parameters of params that are remembered: every
// filter plus sortBy and fields.
func Storable(params url.Values) url.Values {
	out := url.Values{}
	for k, vs := range params {
		if strings.HasPrefix(k, "!") || storable[k] {
			out[k] = append([]string(nil), vs...)
		}
	}
	return out
}

// HasListParams reports whether params already describe a view.
func HasListParams(params url.Values) bool {
	for k := range params {
		if strings.HasPrefix(k, "!") || storable[k] {
			return true
		}
	}
	return false
}

// Restore merges the remembered view into params when params carry no view
// of their own. Stored values win over other parameters of the same name.
// Store failures are logged and leave params unchanged.
func (m *Mirror) Restore(ctx context.Context, subject, listKey string, params url.Values) url.Values {
	if !m.Enabled() || HasListParams(params) {
		return params
	}
	stored, err := m.store.Get(ctx, subjectOf(subject), listKey)
	m.metrics.RecordViewStateOperation(m.driver, "get", err)
	if err != nil {
		m.logger.Warn("view state read failed", zap.String("list", listKey), zap.Error(err))
		return params
	}
	if len(stored) == 0 {
		return params
	}
	merged := clone(params)
	for k, vs := range stored {
		merged[k] = vs
	}
	m.logger.Debug("restored list view", zap.String("list", listKey), zap.Int("params", len(stored)))
	return merged
}

// Save remembers the storable parameters of params, or forgets the view
// when there are none.
func (m *Mirror) Save(ctx context.Context, subject, listKey string, params url.Values) error {
	if !m.Enabled() {
		return nil
	}
	keep := Storable(params)
	if len(keep) == 0 {
		return m.Reset(ctx, subject, listKey)
	}
	err := m.store.Set(ctx, subjectOf(subject), listKey, keep, m.ttl)
	m.metrics.RecordViewStateOperation(m.driver, "set", err)
	return err
}

// Reset forgets the remembered view.
func (m *Mirror) Reset(ctx context.Context, subject, listKey string) error {
	if !m.Enabled() {
		return nil
	}
	err := m.store.Delete(ctx, subjectOf(subject), listKey)
	m.metrics.RecordViewStateOperation(m.driver, "delete", err)
	return err
}

// HealthCheck pings the store for readiness probes.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	return m.store.Ping(ctx)
}

func subjectOf(s string) string {
	if s == "" {
		return anonymous
	}
	return s
}
