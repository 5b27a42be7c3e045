package domain

import "context"

// Discovery is the review search service.
type Discovery interface {
	AppNames(ctx context.Context) ([]string, error)
	KeywordSentiments(ctx context.Context, appName string) ([]KeywordEntry, error)
	SentimentTimeline(ctx context.Context, appName string) ([]SentimentPoint, error)
	TurnaroundReviews(ctx context.Context, appName string) ([]Review, error)
	TurnaroundCount(ctx context.Context, appName string) (int, error)
	AverageSentiment(ctx context.Context, appName string) (float64, error)
}

// AppCatalog is the document store holding curated app metadata. Documents
// are raw JSON objects; mapping to App happens in the app layer.
type AppCatalog interface {
	AllDocs(ctx context.Context) ([]map[string]any, error)
	PutDoc(ctx context.Context, id string, doc map[string]any) error
}

type InsightsRepository interface {
	// Write paths
	UpsertApp(ctx context.Context, a App) error
	SaveKeywords(ctx context.Context, s KeywordSnapshot) error
	LogMiss(ctx context.Context, appID string, reason string) error

	// Read paths
	GetApp(ctx context.Context, id string) (App, error)
	ListApps(ctx context.Context, q AppsQuery) ([]App, error)
	LatestKeywords(ctx context.Context, appID string) (KeywordSnapshot, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
