package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"app_insights/internal/domain"
)

// RunResult summarises one refresh pass.
type RunResult struct {
	RunID  string
	Apps   int
	Failed int64
}

// Runner drives RefreshService over every known app with bounded fan-out.
// Runs never overlap: a Run that starts while another is in flight returns
// immediately.
type Runner struct {
	svc     *RefreshService
	workers int

	mu sync.Mutex
}

func NewRunner(svc *RefreshService, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{svc: svc, workers: workers}
}

// Run refreshes every app once. ok is false when the run was skipped because
// the previous one still holds the lock.
func (r *Runner) Run(ctx context.Context) (res RunResult, ok bool, err error) {
	if !r.mu.TryLock() {
		log.Warn().Msg("previous refresh still running; skipped")
		return RunResult{}, false, nil
	}
	defer r.mu.Unlock()

	res.RunID = uuid.NewString()
	l := log.With().Str("run", res.RunID).Logger()

	apps, err := r.apps(ctx)
	if err != nil {
		l.Error().Err(err).Msg("listing apps failed")
		return res, true, err
	}
	res.Apps = len(apps)
	r.reportUncatalogued(ctx, apps)

	sem := semaphore.NewWeighted(int64(r.workers))
	var wg sync.WaitGroup
	var failed atomic.Int64

	for _, a := range apps {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			l.Warn().Err(err).Msg("refresh interrupted")
			break
		}

		wg.Add(1)
		go func(a domain.App) {
			defer wg.Done()
			defer sem.Release(1)

			if err := r.svc.RefreshApp(ctx, res.RunID, a); err != nil {
				failed.Add(1)
				l.Warn().Str("app", a.ID).Err(err).Msg("refresh failed")
			}
		}(a)
	}

	wg.Wait()
	res.Failed = failed.Load()
	l.Info().Int("apps", res.Apps).Int64("failed", res.Failed).Msg("refresh completed")
	return res, true, nil
}

// apps comes from the catalog when there is one, otherwise from every page
// of the repository.
func (r *Runner) apps(ctx context.Context) ([]domain.App, error) {
	if r.svc.catalog != nil {
		return r.svc.SyncCatalog(ctx)
	}
	var out []domain.App
	for offset := 0; ; offset += MaxListLimit {
		page, err := r.svc.repo.ListApps(ctx, domain.AppsQuery{Limit: MaxListLimit, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list apps at offset %d: %w", offset, err)
		}
		out = append(out, page...)
		if len(page) < MaxListLimit {
			return out, nil
		}
	}
}

// reportUncatalogued logs apps that have reviews but no catalog entry.
func (r *Runner) reportUncatalogued(ctx context.Context, apps []domain.App) {
	names, err := r.svc.disc.AppNames(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("discovery app names unavailable")
		return
	}
	known := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		known[a.Name] = struct{}{}
	}
	for _, n := range names {
		if _, ok := known[n]; !ok {
			log.Info().Str("app_name", n).Msg("reviews found for app missing from catalog")
		}
	}
}
