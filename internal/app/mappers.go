package app

import (
	"strconv"
	"strings"

	"app_insights/internal/domain"
)

/********** alias registry **********/

// Catalog documents were curated by hand over several years; older ones use
// different field names.
var appAliases = map[string][]string{
	"id":            {"_id", "id", "app_id"},
	"name":          {"name", "app_name", "title"},
	"description":   {"description", "summary"},
	"image":         {"image", "image_url", "icon", "artwork.url"},
	"category":      {"category", "genre", "primary_genre"},
	"rating":        {"rating", "stars", "average_rating"},
	"total_reviews": {"total_reviews", "reviews", "review_count"},
	"keyword":       {"keyword", "top_keyword"},
	"turnarounds":   {"turnarounds", "turnaround_count"},
	"sentiment":     {"sentiment", "average_sentiment"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func lookupStr(m map[string]any, path string) string {
	if s, ok := lookupAny(m, path).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstStr(m map[string]any, key string) string {
	for _, p := range appAliases[key] {
		if s := lookupStr(m, p); s != "" {
			return s
		}
	}
	return ""
}

// firstFloat: number from the alias paths (float64/int/string like "4,5").
func firstFloat(m map[string]any, key string) (float64, bool) {
	for _, p := range appAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func firstInt(m map[string]any, key string) int {
	for _, p := range appAliases[key] {
		switch v := lookupAny(m, p).(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		case string:
			s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
			if s == "" {
				continue
			}
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
	}
	return 0
}

/********** catalog mapper **********/

// mapApp converts a catalog document. Documents without an id or a name are
// rejected.
func mapApp(doc map[string]any) (domain.App, bool) {
	a := domain.App{
		ID:           firstStr(doc, "id"),
		Name:         firstStr(doc, "name"),
		Description:  firstStr(doc, "description"),
		ImageURL:     firstStr(doc, "image"),
		Category:     firstStr(doc, "category"),
		TotalReviews: firstInt(doc, "total_reviews"),
		TopKeyword:   firstStr(doc, "keyword"),
		Turnarounds:  firstInt(doc, "turnarounds"),
	}
	if a.ID == "" || a.Name == "" {
		return domain.App{}, false
	}
	a.Rating, _ = firstFloat(doc, "rating")
	a.Sentiment, _ = firstFloat(doc, "sentiment")
	return a, true
}

// appDoc is the catalog document written back after a refresh. Field names
// follow the canonical (first) alias.
func appDoc(a domain.App) map[string]any {
	return map[string]any{
		"name":          a.Name,
		"description":   a.Description,
		"image":         a.ImageURL,
		"category":      a.Category,
		"rating":        a.Rating,
		"total_reviews": a.TotalReviews,
		"keyword":       a.TopKeyword,
		"turnarounds":   a.Turnarounds,
		"sentiment":     a.Sentiment,
	}
}
