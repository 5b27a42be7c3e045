package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app_insights/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Repo struct{ db *sql.DB }

var _ domain.InsightsRepository = (*Repo)(nil)

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertApp(ctx context.Context, a domain.App) error {
	_, err := r.db.ExecContext(ctx, upsertAppSQL,
		a.ID,
		a.Name,
		valStr(a.Description),
		valStr(a.ImageURL),
		a.Category,
		a.Rating,
		a.TotalReviews,
		valStr(a.TopKeyword),
		a.Turnarounds,
		a.Sentiment,
	)
	return err
}

func (r *Repo) SaveKeywords(ctx context.Context, s domain.KeywordSnapshot) error {
	kws := s.Keywords
	if kws == nil {
		kws = []domain.KeywordEntry{}
	}
	b, err := json.Marshal(kws)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	at := s.CapturedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = r.db.ExecContext(ctx, insertSnapshotSQL, s.AppID, s.RunID, string(b), at.UTC())
	return err
}

func (r *Repo) LogMiss(ctx context.Context, appID string, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, appID, reason)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApp(s scanner) (domain.App, error) {
	var a domain.App
	var desc, img, top sql.NullString
	var rating, sentiment sql.NullFloat64
	var total, turns sql.NullInt64
	if err := s.Scan(
		&a.ID, &a.Name, &desc, &img, &a.Category, &rating,
		&total, &top, &turns, &sentiment,
	); err != nil {
		return domain.App{}, err
	}
	a.Description = desc.String
	a.ImageURL = img.String
	a.TopKeyword = top.String
	a.Rating = rating.Float64
	a.Sentiment = sentiment.Float64
	a.TotalReviews = int(total.Int64)
	a.Turnarounds = int(turns.Int64)
	return a, nil
}

func (r *Repo) GetApp(ctx context.Context, id string) (domain.App, error) {
	a, err := scanApp(r.db.QueryRowContext(ctx, getAppSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.App{}, domain.ErrNotFound
	}
	return a, err
}

func (r *Repo) ListApps(ctx context.Context, q domain.AppsQuery) ([]domain.App, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.Category != nil {
		rows, err = r.db.QueryContext(ctx, listAppsByCategorySQL, *q.Category, q.Limit, max(q.Offset, 0))
	} else {
		rows, err = r.db.QueryContext(ctx, listAppsSQL, q.Limit, max(q.Offset, 0))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.App{}
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) LatestKeywords(ctx context.Context, appID string) (domain.KeywordSnapshot, error) {
	s := domain.KeywordSnapshot{AppID: appID}
	var raw []byte
	err := r.db.QueryRowContext(ctx, latestSnapshotSQL, appID).Scan(&s.RunID, &raw, &s.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.KeywordSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.KeywordSnapshot{}, err
	}
	if err := json.Unmarshal(raw, &s.Keywords); err != nil {
		return domain.KeywordSnapshot{}, fmt.Errorf("decode keywords: %w", err)
	}
	return s, nil
}
