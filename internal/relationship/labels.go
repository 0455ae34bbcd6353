package relationship

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/field"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/observability"
	"github.com/pitabwire/adminmeta/model"
)

type labelEntry struct {
	label   string
	expires time.Time
}

// Labels resolves the display labels of referenced ids, caching results
// for ttl. Cached labels are shared between users; they are display values
// only.
type Labels struct {
	exec       graphql.Executor
	ttl        time.Duration
	maxEntries int
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.RWMutex
	cache map[string]labelEntry
}

// NewLabels creates a label resolver. A maxEntries of zero disables the
// size bound.
func NewLabels(exec graphql.Executor, ttl time.Duration, maxEntries int, metrics *observability.Metrics, logger *zap.Logger) *Labels {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Labels{
		exec:       exec,
		ttl:        ttl,
		maxEntries: maxEntries,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		cache:      make(map[string]labelEntry),
	}
}

func labelKey(src Source, id string) string {
	return src.List.Key + "\x00" + src.LabelField + "\x00" + id
}

// LabelsQuery returns the document reading the labels of ids.
func LabelsQuery(src Source) string {
	names := src.List.Names
	return fmt.Sprintf(`query RelationshipLabels($where: %s!) {
  items: %s(where: $where) {
    %s: id
    %s: %s
  }
}`, names.WhereInputName, names.ListQueryName, idAlias, labelAlias, src.LabelField)
}

// Lookup returns the label of each id. Ids the API does not return are
// labelled with the id itself and are not cached.
func (l *Labels) Lookup(ctx context.Context, src Source, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	var missing []string
	now := l.now()

	l.mu.RLock()
	for _, id := range ids {
		if e, ok := l.cache[labelKey(src, id)]; ok && now.Before(e.expires) {
			out[id] = e.label
			l.metrics.RecordRelationshipCacheHit(src.List.Key)
			continue
		}
		missing = append(missing, id)
	}
	l.mu.RUnlock()

	observability.AnnotateSpan(ctx, observability.AttrCacheHit.Bool(len(missing) == 0))
	if len(missing) == 0 {
		return out, nil
	}
	sort.Strings(missing)
	missing = dedupe(missing)
	for range missing {
		l.metrics.RecordRelationshipCacheMiss(src.List.Key)
	}

	resp, err := l.exec.Execute(ctx, graphql.Request{
		Query:     LabelsQuery(src),
		Variables: map[string]any{"where": map[string]any{"id": map[string]any{"in": missing}}},
	})
	if err != nil {
		return nil, err
	}
	if errs := resp.TopLevelErrors(); len(errs) > 0 {
		return nil, model.NewQueryFailedError(graphql.Messages(errs)...)
	}
	var data struct {
		Items []map[string]any `json:"items"`
	}
	if err := resp.Decode(&data); err != nil {
		return nil, err
	}

	found := make(map[string]string, len(data.Items))
	for _, it := range data.Items {
		id := field.Stringify(it[idAlias])
		label := field.Stringify(it[labelAlias])
		if label == "" {
			label = id
		}
		found[id] = label
	}

	l.mu.Lock()
	l.makeRoom(len(found), now)
	for id, label := range found {
		l.cache[labelKey(src, id)] = labelEntry{label: label, expires: now.Add(l.ttl)}
	}
	l.mu.Unlock()

	for _, id := range missing {
		if label, ok := found[id]; ok {
			out[id] = label
		} else {
			out[id] = id
		}
	}
	l.logger.Debug("resolved relationship labels",
		zap.String("list", src.List.Key),
		zap.Int("requested", len(missing)),
		zap.Int("found", len(found)),
	)
	return out, nil
}

// LookupList is Lookup against the list ref points at.
func (l *Labels) LookupList(ctx context.Context, meta *adminmeta.Meta, ref *field.Reference, ids []string) (map[string]string, error) {
	src, err := SourceFor(meta, ref)
	if err != nil {
		return nil, err
	}
	return l.Lookup(ctx, src, ids)
}

// makeRoom drops expired entries, then everything, when adding n entries
// would exceed the size bound. Callers hold the write lock.
func (l *Labels) makeRoom(n int, now time.Time) {
	if l.maxEntries <= 0 || len(l.cache)+n <= l.maxEntries {
		return
	}
	for k, e := range l.cache {
		if !now.Before(e.expires) {
			delete(l.cache, k)
		}
	}
	if len(l.cache)+n > l.maxEntries {
		l.cache = make(map[string]labelEntry)
	}
}

// Len returns the number of cached labels.
func (l *Labels) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
