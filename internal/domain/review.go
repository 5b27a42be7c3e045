package domain

import "time"

type Review struct {
	AppName string     `json:"app_name"`
	Title   string     `json:"title"`
	Rating  float64    `json:"rating"`
	Text    string     `json:"review"`
	Version string     `json:"version,omitempty"`
	Updated *time.Time `json:"updated,omitempty"`
}

// SentimentPoint is one timeslice bucket of review sentiment.
type SentimentPoint struct {
	Date     time.Time `json:"date"`
	Positive int       `json:"positive"`
	Negative int       `json:"negative"`
}
