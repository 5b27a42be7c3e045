package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"app_insights/internal/adapters/observability"
	"app_insights/internal/domain"
	"app_insights/internal/keywords"
)

// RefreshService recomputes per-app analytics from Discovery and stores them.
type RefreshService struct {
	disc      domain.Discovery
	catalog   domain.AppCatalog
	repo      domain.InsightsRepository
	cache     domain.Cache
	stopwords []string
	writeback bool
	clock     clockwork.Clock
}

// NewRefreshService wires the write side. catalog may be nil, in which case
// SyncCatalog is a no-op and nothing is written back. A nil clock means the
// real one.
func NewRefreshService(d domain.Discovery, cat domain.AppCatalog, r domain.InsightsRepository, c domain.Cache, stopwords []string, writeback bool, clock clockwork.Clock) *RefreshService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RefreshService{
		disc:      d,
		catalog:   cat,
		repo:      r,
		cache:     c,
		stopwords: stopwords,
		writeback: writeback && cat != nil,
		clock:     clock,
	}
}

// SyncCatalog copies the curated catalog into the repository and returns the
// apps that were stored.
func (s *RefreshService) SyncCatalog(ctx context.Context) ([]domain.App, error) {
	if s.catalog == nil {
		return nil, nil
	}
	docs, err := s.catalog.AllDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog: %w", domain.ErrUpstream, err)
	}

	apps := make([]domain.App, 0, len(docs))
	for _, doc := range docs {
		a, ok := mapApp(doc)
		if !ok {
			id := lookupStr(doc, "_id")
			log.Warn().Str("doc", id).Msg("catalog document without id or name; skipped")
			if id != "" {
				_ = s.repo.LogMiss(ctx, id, "catalog: incomplete document")
			}
			continue
		}
		if err := s.repo.UpsertApp(ctx, a); err != nil {
			return apps, fmt.Errorf("upsert app %s: %w", a.ID, err)
		}
		s.invalidateApp(ctx, a)
		apps = append(apps, a)
	}
	return apps, nil
}

// RefreshApp recomputes top keyword, turnaround count and average sentiment
// for one app and stores a keyword snapshot under runID. Discovery answering
// not found, unauthorized or forbidden is recorded as a miss and is not an
// error.
func (s *RefreshService) RefreshApp(ctx context.Context, runID string, a domain.App) (err error) {
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		observability.ObserveRefresh(outcome)
	}()

	raw, err := s.disc.KeywordSentiments(ctx, a.Name)
	if err != nil {
		if s.miss(ctx, a, "keywords", err) {
			outcome = "miss"
			return nil
		}
		return err
	}
	id := a.Identity(s.stopwords)
	kept := keywords.Consolidate(raw, id)
	observability.ObserveConsolidation(len(raw), len(kept))

	words := make([]string, 0, len(raw))
	for _, e := range raw {
		words = append(words, e.Keyword)
	}
	a.TopKeyword = keywords.TopKeyword(words, id)

	turns, err := s.disc.TurnaroundCount(ctx, a.Name)
	if err != nil {
		if s.miss(ctx, a, "turnarounds", err) {
			outcome = "miss"
			return nil
		}
		return err
	}
	a.Turnarounds = turns

	avg, err := s.disc.AverageSentiment(ctx, a.Name)
	if err != nil {
		if s.miss(ctx, a, "sentiment", err) {
			outcome = "miss"
			return nil
		}
		return err
	}
	a.Sentiment = avg

	// Parent row first; snapshots reference it.
	if err := s.repo.UpsertApp(ctx, a); err != nil {
		return fmt.Errorf("upsert app %s: %w", a.ID, err)
	}
	snap := domain.KeywordSnapshot{AppID: a.ID, RunID: runID, Keywords: kept, CapturedAt: s.clock.Now().UTC()}
	if err := s.repo.SaveKeywords(ctx, snap); err != nil {
		return fmt.Errorf("save keywords %s: %w", a.ID, err)
	}

	if s.writeback {
		if err := s.catalog.PutDoc(ctx, a.ID, appDoc(a)); err != nil {
			return fmt.Errorf("catalog write-back %s: %w", a.ID, err)
		}
	}

	s.invalidateApp(ctx, a)
	log.Info().
		Str("app", a.ID).
		Str("run", runID).
		Str("top_keyword", a.TopKeyword).
		Int("turnarounds", a.Turnarounds).
		Float64("sentiment", a.Sentiment).
		Int("keywords", len(kept)).
		Msg("app refreshed")
	return nil
}

// miss records known upstream refusals. It reports whether err was one.
func (s *RefreshService) miss(ctx context.Context, a domain.App, stage string, err error) bool {
	var reason string
	switch {
	case errors.Is(err, domain.ErrNotFound):
		reason = "not found"
	case errors.Is(err, domain.ErrUnauthorized):
		reason = "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		reason = "forbidden"
	default:
		return false
	}
	_ = s.repo.LogMiss(ctx, a.ID, stage+": "+reason)
	// Drop whatever we were serving for this app so readers don't keep a
	// snapshot the upstream no longer vouches for.
	s.invalidateApp(ctx, a)
	log.Warn().Str("app", a.ID).Str("stage", stage).Err(err).Msg("refresh miss")
	return true
}

func (s *RefreshService) invalidateApp(ctx context.Context, a domain.App) {
	if s.cache == nil {
		return
	}
	for _, k := range []string{appKey(a.ID), keywordsKey(a.ID), sentimentKey(a.ID), turnaroundsKey(a.ID)} {
		_ = s.cache.Del(ctx, k)
	}
	s.invalidateLists(ctx)
}

// invalidateLists retires every cached app list, whatever its filter or page.
func (s *RefreshService) invalidateLists(ctx context.Context) {
	_ = s.cache.Set(ctx, appsGenKey, uuid.NewString(), 0)
}
