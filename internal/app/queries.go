package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"app_insights/internal/adapters/observability"
	"app_insights/internal/domain"
	"app_insights/internal/keywords"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// InsightsService serves the read side: catalog snapshots from MySQL and live
// review analytics from Discovery, both behind the cache.
type InsightsService struct {
	repo      domain.InsightsRepository
	disc      domain.Discovery
	cache     domain.Cache
	cacheTTL  time.Duration
	stopwords []string
	clock     clockwork.Clock
}

// NewInsightsService wires the read side. A nil clock means the real one.
func NewInsightsService(r domain.InsightsRepository, d domain.Discovery, c domain.Cache, ttl time.Duration, stopwords []string, clock clockwork.Clock) *InsightsService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InsightsService{repo: r, disc: d, cache: c, cacheTTL: ttl, stopwords: stopwords, clock: clock}
}

func (s *InsightsService) ttl() int { return int(s.cacheTTL.Seconds()) }

func (s *InsightsService) ListApps(ctx context.Context, q domain.AppsQuery) ([]domain.AppView, error) {
	q.Limit = clampLimit(q.Limit)
	q.Offset = max(q.Offset, 0)
	key := appsKey(listGeneration(ctx, s.cache), q)

	var out []domain.AppView
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	apps, err := s.repo.ListApps(ctx, q)
	if err != nil {
		return nil, err
	}
	out = make([]domain.AppView, 0, len(apps))
	for _, a := range apps {
		out = append(out, view(a))
	}
	_ = s.cache.Set(ctx, key, out, s.ttl())
	return out, nil
}

func (s *InsightsService) GetApp(ctx context.Context, id string) (domain.AppView, error) {
	key := appKey(id)
	var v domain.AppView
	if ok, _ := s.cache.Get(ctx, key, &v); ok {
		return v, nil
	}
	a, err := s.repo.GetApp(ctx, id)
	if err != nil {
		return domain.AppView{}, err
	}
	v = view(a)
	_ = s.cache.Set(ctx, key, v, s.ttl())
	return v, nil
}

// Keywords returns the consolidated keyword sentiments for an app. When the
// live query fails the last stored snapshot is served, marked stale.
func (s *InsightsService) Keywords(ctx context.Context, id string) (domain.KeywordSnapshot, error) {
	key := keywordsKey(id)
	var snap domain.KeywordSnapshot
	if ok, _ := s.cache.Get(ctx, key, &snap); ok {
		return snap, nil
	}
	a, err := s.repo.GetApp(ctx, id)
	if err != nil {
		return domain.KeywordSnapshot{}, err
	}

	raw, err := s.disc.KeywordSentiments(ctx, a.Name)
	if err != nil {
		stored, serr := s.repo.LatestKeywords(ctx, id)
		if serr != nil {
			return domain.KeywordSnapshot{}, fmt.Errorf("%w: keywords for %s: %w", domain.ErrUpstream, id, err)
		}
		log.Warn().Err(err).Str("app", id).Str("run", stored.RunID).Msg("discovery failed; serving stored keywords")
		stored.Stale = true
		return stored, nil
	}

	kept := keywords.Consolidate(raw, a.Identity(s.stopwords))
	observability.ObserveConsolidation(len(raw), len(kept))

	snap = domain.KeywordSnapshot{AppID: id, Keywords: kept, CapturedAt: s.clock.Now().UTC()}
	_ = s.cache.Set(ctx, key, snap, s.ttl())
	return snap, nil
}

func (s *InsightsService) SentimentTimeline(ctx context.Context, id string) ([]domain.SentimentPoint, error) {
	key := sentimentKey(id)
	var out []domain.SentimentPoint
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	a, err := s.repo.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err = s.disc.SentimentTimeline(ctx, a.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: sentiment for %s: %w", domain.ErrUpstream, id, err)
	}
	_ = s.cache.Set(ctx, key, out, s.ttl())
	return out, nil
}

// Turnarounds lists positive reviews that still gave fewer than three stars.
func (s *InsightsService) Turnarounds(ctx context.Context, id string) ([]domain.Review, error) {
	key := turnaroundsKey(id)
	var out []domain.Review
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	a, err := s.repo.GetApp(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err = s.disc.TurnaroundReviews(ctx, a.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: turnarounds for %s: %w", domain.ErrUpstream, id, err)
	}
	_ = s.cache.Set(ctx, key, out, s.ttl())
	return out, nil
}

func view(a domain.App) domain.AppView {
	return domain.AppView{App: a, Grade: domain.GradeFor(a.Sentiment)}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultListLimit
	case n > MaxListLimit:
		return MaxListLimit
	}
	return n
}

/********** cache keys **********/

func appKey(id string) string         { return "app:" + id }
func keywordsKey(id string) string    { return "keywords:" + id }
func sentimentKey(id string) string   { return "sentiment:" + id }
func turnaroundsKey(id string) string { return "turnarounds:" + id }

// List keys embed a generation token. Replacing the token on refresh orphans
// every cached list at once; orphans age out with their TTL.
const appsGenKey = "apps:gen"

func listGeneration(ctx context.Context, c domain.Cache) string {
	var gen string
	if ok, _ := c.Get(ctx, appsGenKey, &gen); ok && gen != "" {
		return gen
	}
	return "0"
}

func appsKey(gen string, q domain.AppsQuery) string {
	c := "*"
	if q.Category != nil {
		c = *q.Category
	}
	return fmt.Sprintf("apps:%s:%s:%d:%d", gen, c, q.Limit, q.Offset)
}
