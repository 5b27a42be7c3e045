// Package discovery queries the review search service. Reviews are stored
// enriched with document sentiment and keyword sentiment; everything here is
// an aggregation or filter over that collection.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"app_insights/internal/adapters/rest"
	"app_insights/internal/domain"
)

const (
	DefaultVersion     = "2017-02-14"
	DefaultEnvironment = "byod"
	DefaultCollection  = "compiled_reviews_v4"
)

type Config struct {
	BaseURL     string
	Username    string
	Password    string
	Version     string
	Environment string
	Collection  string
	RPS         int
}

type Client struct {
	cfg  Config
	http *rest.Client

	mu            sync.Mutex
	environmentID string
	collectionID  string
}

var _ domain.Discovery = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("discovery base URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("discovery credentials are required")
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: rest.New("discovery", cfg.RPS, rest.WithBasicAuth(cfg.Username, cfg.Password)),
	}, nil
}

// Setup resolves the environment and collection IDs by name. Query methods
// call it on first use.
func (c *Client) Setup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setupLocked(ctx)
}

func (c *Client) setupLocked(ctx context.Context) error {
	if c.environmentID != "" && c.collectionID != "" {
		return nil
	}

	var envs environmentsResponse
	u := c.url("/v1/environments", url.Values{"name": {c.cfg.Environment}})
	if err := c.http.Get(ctx, "environments", u, &envs); err != nil {
		return fmt.Errorf("get environments: %w", err)
	}
	if len(envs.Environments) == 0 || envs.Environments[0].EnvironmentID == "" {
		return domain.ErrNoEnvironments
	}
	envID := envs.Environments[0].EnvironmentID

	var cols collectionsResponse
	u = c.url("/v1/environments/"+url.PathEscape(envID)+"/collections", url.Values{"name": {c.cfg.Collection}})
	if err := c.http.Get(ctx, "collections", u, &cols); err != nil {
		return fmt.Errorf("get collections: %w", err)
	}
	if len(cols.Collections) == 0 || cols.Collections[0].CollectionID == "" {
		return domain.ErrNoCollections
	}

	c.environmentID = envID
	c.collectionID = cols.Collections[0].CollectionID
	log.Info().
		Str("environment_id", c.environmentID).
		Str("collection_id", c.collectionID).
		Msg("discovery collection resolved")
	return nil
}

// AppNames lists every app with reviews in the collection.
func (c *Client) AppNames(ctx context.Context) ([]string, error) {
	var resp queryResponse
	if err := c.query(ctx, "app_names", url.Values{
		"aggregation": {"term(app_name)"},
		"return":      {"aggregations"},
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Aggregations) == 0 {
		return nil, fmt.Errorf("%w: no aggregations", domain.ErrUnexpectedJSON)
	}
	out := make([]string, 0, len(resp.Aggregations[0].Results))
	for _, r := range resp.Aggregations[0].Results {
		if r.Key != "" {
			out = append(out, string(r.Key))
		}
	}
	return out, nil
}

// KeywordSentiments returns the raw keyword/sentiment aggregation for an app.
// A malformed count anywhere rejects the whole result.
func (c *Client) KeywordSentiments(ctx context.Context, appName string) ([]domain.KeywordEntry, error) {
	var resp queryResponse
	if err := c.query(ctx, "keywords", url.Values{
		"aggregation": {appFilter(appName) + ".term(review_enriched.keywords.text).term(review_enriched.keywords.sentiment.type)"},
		"count":       {"1"},
		"return":      {"keywords"},
	}, &resp); err != nil {
		return nil, err
	}
	terms, err := nested(resp)
	if err != nil {
		return nil, err
	}
	out := make([]domain.KeywordEntry, 0, len(terms.Results))
	for _, r := range terms.Results {
		if r.Key == "" {
			continue
		}
		e := domain.NewKeywordEntry(string(r.Key), 0, 0, 0)
		if sub, ok := firstAgg(r.Aggregations); ok {
			for _, s := range sub.Results {
				if p, ok := domain.ParsePolarity(string(s.Key)); ok {
					e.Set(p, int(s.MatchingResults))
				}
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// SentimentTimeline buckets review sentiment per day.
func (c *Client) SentimentTimeline(ctx context.Context, appName string) ([]domain.SentimentPoint, error) {
	var resp queryResponse
	if err := c.query(ctx, "timeline", url.Values{
		"aggregation": {appFilter(appName) + ".timeslice(updated,1day).term(review_enriched.docSentiment.type)"},
		"return":      {"aggregations"},
	}, &resp); err != nil {
		return nil, err
	}
	slices, err := nested(resp)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SentimentPoint, 0, len(slices.Results))
	for _, r := range slices.Results {
		day, err := sliceTime(r)
		if err != nil {
			return nil, err
		}
		pt := domain.SentimentPoint{Date: day}
		if sub, ok := firstAgg(r.Aggregations); ok {
			for _, s := range sub.Results {
				switch domain.Polarity(s.Key) {
				case domain.Positive:
					pt.Positive = int(s.MatchingResults)
				case domain.Negative:
					pt.Negative = int(s.MatchingResults)
				}
			}
		}
		out = append(out, pt)
	}
	return out, nil
}

// TurnaroundReviews are reviews rated below 3 stars whose text is positive.
func (c *Client) TurnaroundReviews(ctx context.Context, appName string) ([]domain.Review, error) {
	var resp queryResponse
	if err := c.query(ctx, "turnarounds", url.Values{
		"filter": {turnaroundFilter(appName)},
		"return": {"rating,review,version,app_name,title,updated"},
	}, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.Review, 0, len(resp.Results))
	for _, d := range resp.Results {
		if !d.Rating.Valid {
			return nil, fmt.Errorf("%w: review without rating", domain.ErrUnexpectedJSON)
		}
		rv := domain.Review{
			AppName: d.AppName,
			Title:   d.Title,
			Rating:  d.Rating.V,
			Text:    d.Review,
			Version: string(d.Version),
		}
		if t, err := time.Parse(time.RFC3339, d.Updated); err == nil {
			rv.Updated = &t
		}
		out = append(out, rv)
	}
	return out, nil
}

// TurnaroundCount is the number of matching turnaround reviews.
func (c *Client) TurnaroundCount(ctx context.Context, appName string) (int, error) {
	var resp queryResponse
	if err := c.query(ctx, "turnaround_count", url.Values{
		"filter": {turnaroundFilter(appName)},
		"count":  {"0"},
	}, &resp); err != nil {
		return 0, err
	}
	return int(resp.MatchingResults), nil
}

// AverageSentiment is the mean document sentiment score in [-1, 1].
func (c *Client) AverageSentiment(ctx context.Context, appName string) (float64, error) {
	var resp queryResponse
	if err := c.query(ctx, "average_sentiment", url.Values{
		"aggregation": {appFilter(appName) + ".average(review_enriched.docSentiment.score)"},
		"return":      {"aggregations"},
	}, &resp); err != nil {
		return 0, err
	}
	avg, err := nested(resp)
	if err != nil {
		return 0, err
	}
	if avg.Value == nil {
		return 0, fmt.Errorf("%w: average without value", domain.ErrUnexpectedJSON)
	}
	return *avg.Value, nil
}

// ---- internals ----

func (c *Client) query(ctx context.Context, endpoint string, params url.Values, out *queryResponse) error {
	c.mu.Lock()
	err := c.setupLocked(ctx)
	envID, colID := c.environmentID, c.collectionID
	c.mu.Unlock()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/v1/environments/%s/collections/%s/query", url.PathEscape(envID), url.PathEscape(colID))
	if err := c.http.Get(ctx, endpoint, c.url(path, params), out); err != nil {
		return fmt.Errorf("discovery %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) url(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("version", c.cfg.Version)
	return c.cfg.BaseURL + path + "?" + params.Encode()
}

// nested returns aggregations[0].aggregations[0], where filter(...) queries
// put their payload.
func nested(resp queryResponse) (aggregation, error) {
	if len(resp.Aggregations) == 0 {
		return aggregation{}, fmt.Errorf("%w: no aggregations", domain.ErrUnexpectedJSON)
	}
	inner, ok := firstAgg(resp.Aggregations[0].Aggregations)
	if !ok {
		return aggregation{}, fmt.Errorf("%w: filter without nested aggregation", domain.ErrUnexpectedJSON)
	}
	return inner, nil
}

func firstAgg(aggs []aggregation) (aggregation, bool) {
	if len(aggs) == 0 {
		return aggregation{}, false
	}
	return aggs[0], true
}

func sliceTime(r aggResult) (time.Time, error) {
	if r.KeyAsString != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.KeyAsString); err == nil {
			return t.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(string(r.Key), 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: bad timeslice key %q", domain.ErrUnexpectedJSON, r.KeyAsString)
}

func appFilter(appName string) string {
	return "filter(app_name:" + quote(appName) + ")"
}

func turnaroundFilter(appName string) string {
	return "app_name:" + quote(appName) + ",review_enriched.docSentiment.type:positive,rating<3"
}

// quote wraps v as a query-language phrase.
func quote(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}
