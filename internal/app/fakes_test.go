package app_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"app_insights/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	mu        sync.Mutex
	apps      map[string]domain.App
	snapshots []domain.KeywordSnapshot
	misses    []string
	getCalls  int
	listCalls int
	upsertErr error
}

func newFakeRepo(apps ...domain.App) *fakeRepo {
	r := &fakeRepo{apps: map[string]domain.App{}}
	for _, a := range apps {
		r.apps[a.ID] = a
	}
	return r
}

func (f *fakeRepo) UpsertApp(ctx context.Context, a domain.App) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.apps[a.ID] = a
	return nil
}

func (f *fakeRepo) SaveKeywords(ctx context.Context, s domain.KeywordSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, s)
	return nil
}

func (f *fakeRepo) LogMiss(ctx context.Context, appID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses = append(f.misses, appID+"|"+reason)
	return nil
}

func (f *fakeRepo) GetApp(ctx context.Context, id string) (domain.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	a, ok := f.apps[id]
	if !ok {
		return domain.App{}, domain.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) ListApps(ctx context.Context, q domain.AppsQuery) ([]domain.App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.App{}
	for _, a := range f.apps {
		if q.Category != nil && a.Category != *q.Category {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	f.listCalls++
	if q.Offset >= len(out) {
		return []domain.App{}, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRepo) LatestKeywords(ctx context.Context, appID string) (domain.KeywordSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.snapshots) - 1; i >= 0; i-- {
		if f.snapshots[i].AppID == appID {
			return f.snapshots[i], nil
		}
	}
	return domain.KeywordSnapshot{}, domain.ErrNotFound
}

type fakeDiscovery struct {
	keywords    map[string][]domain.KeywordEntry
	timeline    []domain.SentimentPoint
	reviews     []domain.Review
	turnarounds int
	average     float64
	err         error // returned by every call when set
	calls       int
}

func (d *fakeDiscovery) AppNames(ctx context.Context) ([]string, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for k := range d.keywords {
		out = append(out, k)
	}
	return out, nil
}

func (d *fakeDiscovery) KeywordSentiments(ctx context.Context, appName string) ([]domain.KeywordEntry, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.keywords[appName], nil
}

func (d *fakeDiscovery) SentimentTimeline(ctx context.Context, appName string) ([]domain.SentimentPoint, error) {
	d.calls++
	return d.timeline, d.err
}

func (d *fakeDiscovery) TurnaroundReviews(ctx context.Context, appName string) ([]domain.Review, error) {
	d.calls++
	return d.reviews, d.err
}

func (d *fakeDiscovery) TurnaroundCount(ctx context.Context, appName string) (int, error) {
	d.calls++
	return d.turnarounds, d.err
}

func (d *fakeDiscovery) AverageSentiment(ctx context.Context, appName string) (float64, error) {
	d.calls++
	return d.average, d.err
}

type fakeCatalog struct {
	docs []map[string]any
	puts map[string]map[string]any
	err  error
}

func (c *fakeCatalog) AllDocs(ctx context.Context) ([]map[string]any, error) {
	return c.docs, c.err
}

func (c *fakeCatalog) PutDoc(ctx context.Context, id string, doc map[string]any) error {
	if c.err != nil {
		return c.err
	}
	if c.puts == nil {
		c.puts = map[string]map[string]any{}
	}
	c.puts[id] = doc
	return nil
}

// fakeCache round-trips through JSON like the Redis adapter does.
type fakeCache struct {
	mu      sync.Mutex
	store   map[string][]byte
	deleted []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}
