package relationship

import (
	"context"
	"sync"

	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/observability"
)

// Snapshot is the loaded state of a Pager.
type Snapshot struct {
	Search  string      `json:"search"`
	Items   []field.Ref `json:"items"`
	Count   int         `json:"count"`
	HasMore bool        `json:"has_more"`
}

// Pager accumulates the options of one picker. A new search replaces the
// accumulated options; responses for a superseded search are dropped.
type Pager struct {
	exec    graphql.Executor
	src     Source
	metrics *observability.Metrics

	slot graphql.Slot

	mu      sync.Mutex
	search  string
	items   []field.Ref
	count   int
	pending map[int]bool
}

// NewPager creates a pager reading from src.
func NewPager(exec graphql.Executor, src Source, metrics *observability.Metrics) *Pager {
	return &Pager{exec: exec, src: src, metrics: metrics, pending: map[int]bool{}}
}

// Search loads the first window of options matching term.
func (p *Pager) Search(ctx context.Context, term string) (Snapshot, error) {
	ticket := p.slot.Begin(map[string]any{"search": term})
	p.mu.Lock()
	if p.search != term {
		p.search = term
		p.items = nil
		p.count = 0
		p.pending = map[int]bool{}
	}
	p.mu.Unlock()

	page, err := Fetch(ctx, p.exec, p.src, term, 0, InitialTake(p.src.List.PageSize))
	if !p.slot.Current(ticket) {
		p.metrics.RecordSupersededResult("relationship_options")
		return p.Snapshot(), nil
	}
	if err != nil {
		return p.Snapshot(), err
	}

	p.mu.Lock()
	p.items = MergeAt(p.items, 0, page.Items)
	p.count = page.Count
	p.mu.Unlock()
	return p.Snapshot(), nil
}

// LoadMore loads the window after the contiguous loaded prefix. It does
// nothing while the same window is already loading or when every option is
// loaded.
func (p *Pager) LoadMore(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	term := p.search
	skip := loaded(p.items)
	if skip == 0 || skip >= p.count || p.pending[skip] {
		p.mu.Unlock()
		return p.Snapshot(), nil
	}
	p.pending[skip] = true
	p.mu.Unlock()

	ticket := p.slot.Begin(map[string]any{"search": term})
	page, err := Fetch(ctx, p.exec, p.src, term, skip, SubsequentTake(p.src.List.PageSize))

	p.mu.Lock()
	delete(p.pending, skip)
	p.mu.Unlock()

	if !p.slot.Current(ticket) {
		p.metrics.RecordSupersededResult("relationship_options")
		return p.Snapshot(), nil
	}
	if err != nil {
		return p.Snapshot(), err
	}

	p.mu.Lock()
	p.items = MergeAt(p.items, skip, page.Items)
	p.mu.Unlock()
	return p.Snapshot(), nil
}

// Reset drops the accumulated options and invalidates in-flight requests.
func (p *Pager) Reset() {
	p.slot.Invalidate()
	p.mu.Lock()
	p.search = ""
	p.items = nil
	p.count = 0
	p.pending = map[int]bool{}
	p.mu.Unlock()
}

// Snapshot returns the loaded options, skipping windows that have not
// arrived yet.
func (p *Pager) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]field.Ref, 0, len(p.items))
	for _, it := range p.items {
		if it.ID != "" {
			items = append(items, it)
		}
	}
	return Snapshot{
		Search:  p.search,
		Items:   items,
		Count:   p.count,
		HasMore: loaded(p.items) < p.count,
	}
}

// loaded is the length of the gap-free prefix of items.
func loaded(items []field.Ref) int {
	for i, it := range items {
		if it.ID == "" {
			return i
		}
	}
	return len(items)
}
