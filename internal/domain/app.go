package domain

import "time"

// App is the curated metadata document kept for every analysed app.
type App struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	ImageURL     string  `json:"image_url"`
	Category     string  `json:"category"`
	Rating       float64 `json:"rating"`
	TotalReviews int     `json:"total_reviews"`
	TopKeyword   string  `json:"top_keyword"`
	Turnarounds  int     `json:"turnarounds"`
	Sentiment    float64 `json:"sentiment"`
}

// AppIdentity is what the keyword consolidator needs to know about an app.
type AppIdentity struct {
	Name      string
	Category  string
	Stopwords []string
}

func (a App) Identity(stopwords []string) AppIdentity {
	return AppIdentity{Name: a.Name, Category: a.Category, Stopwords: stopwords}
}

type Grade string

const (
	GradeA    Grade = "A"
	GradeB    Grade = "B"
	GradeC    Grade = "C"
	GradeD    Grade = "D"
	GradeF    Grade = "F"
	GradeNone Grade = ""
)

// GradeFor converts a document sentiment score in [-1, 1] to a letter grade.
// Scores outside that range have no grade.
func GradeFor(sentiment float64) Grade {
	switch {
	case sentiment > 0.6 && sentiment <= 1:
		return GradeA
	case sentiment > 0.2 && sentiment <= 0.6:
		return GradeB
	case sentiment > -0.2 && sentiment <= 0.2:
		return GradeC
	case sentiment > -0.6 && sentiment <= -0.2:
		return GradeD
	case sentiment >= -1 && sentiment <= -0.6:
		return GradeF
	}
	return GradeNone
}

// AppView is the read model served by the API.
type AppView struct {
	App
	Grade Grade `json:"grade"`
}

// AppsQuery selects apps ordered by name then id.
type AppsQuery struct {
	Category *string
	Limit    int
	Offset   int
}

type KeywordSnapshot struct {
	AppID      string         `json:"app_id"`
	RunID      string         `json:"run_id,omitempty"`
	Keywords   []KeywordEntry `json:"keywords"`
	CapturedAt time.Time      `json:"captured_at"`
	Stale      bool           `json:"stale,omitempty"` // served from storage after a live fetch failed
}
