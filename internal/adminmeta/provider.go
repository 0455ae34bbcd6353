package adminmeta

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/internal/views"
)

// Provider builds the metadata document on first use and serves it until
// Reinit replaces it. Reads are lock free; concurrent builds share a single
// fetch.
type Provider struct {
	source   Source
	registry *views.Registry
	metrics  *observability.Metrics
	logger   *zap.Logger

	current atomic.Pointer[Meta]
	group   singleflight.Group
}

// NewProvider returns a Provider reading from source.
func NewProvider(source Source, registry *views.Registry, metrics *observability.Metrics, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{source: source, registry: registry, metrics: metrics, logger: logger}
}

// Get returns the current document, building it if none exists yet.
func (p *Provider) Get(ctx context.Context) (*Meta, error) {
	if m := p.current.Load(); m != nil {
		return m, nil
	}
	return p.build(ctx, "init")
}

// Reinit rebuilds the document from the source and swaps it in. On failure
// the previous document stays in place.
func (p *Provider) Reinit(ctx context.Context) (*Meta, error) {
	return p.build(ctx, "reinit")
}

// Built reports whether a document is available.
func (p *Provider) Built() bool {
	return p.current.Load() != nil
}

// Current returns the document without building it.
func (p *Provider) Current() *Meta {
	return p.current.Load()
}

func (p *Provider) build(ctx context.Context, reason string) (*Meta, error) {
	ch := p.group.DoChan(reason, func() (any, error) {
		// The fetch outlives any single caller sharing it.
		ctx := context.WithoutCancel(ctx)
		start := time.Now()

		result, err := p.source.Fetch(ctx)
		if err != nil {
			p.metrics.RecordMetaBuild("fetch_error", 0)
			return nil, err
		}
		m, err := Build(result, p.registry)
		if err != nil {
			status := "error"
			var ce *ContractError
			if errors.As(err, &ce) {
				status = "contract_error"
			}
			p.metrics.RecordMetaBuild(status, 0)
			return nil, err
		}

		prev := p.current.Swap(m)
		p.metrics.RecordMetaBuild("success", len(m.Order))
		fields := []zap.Field{
			zap.String("reason", reason),
			zap.Int("lists", len(m.Order)),
			zap.String("checksum", m.Checksum),
			zap.Duration("duration", time.Since(start)),
		}
		if prev != nil {
			fields = append(fields, zap.Bool("changed", prev.Checksum != m.Checksum))
		}
		p.logger.Info("admin metadata built", fields...)
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			p.logger.Error("admin metadata build failed", zap.String("reason", reason), zap.Error(res.Err))
			return nil, res.Err
		}
		return res.Val.(*Meta), nil
	}
}
