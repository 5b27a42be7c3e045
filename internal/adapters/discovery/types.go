package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"app_insights/internal/domain"
)

type environmentsResponse struct {
	Environments []struct {
		EnvironmentID string `json:"environment_id"`
		Name          string `json:"name"`
	} `json:"environments"`
}

type collectionsResponse struct {
	Collections []struct {
		CollectionID string `json:"collection_id"`
		Name         string `json:"name"`
	} `json:"collections"`
}

type queryResponse struct {
	MatchingResults count         `json:"matching_results"`
	Results         []reviewDoc   `json:"results"`
	Aggregations    []aggregation `json:"aggregations"`
}

type aggregation struct {
	Type         string        `json:"type"`
	Field        string        `json:"field,omitempty"`
	Results      []aggResult   `json:"results"`
	Aggregations []aggregation `json:"aggregations"`
	Value        *float64      `json:"value"`
}

type aggResult struct {
	Key             flexString    `json:"key"`
	KeyAsString     string        `json:"key_as_string"`
	MatchingResults count         `json:"matching_results"`
	Aggregations    []aggregation `json:"aggregations"`
}

type reviewDoc struct {
	AppName string     `json:"app_name"`
	Title   string     `json:"title"`
	Rating  flexFloat  `json:"rating"`
	Review  string     `json:"review"`
	Version flexString `json:"version"`
	Updated string     `json:"updated"`
}

// count is a non-negative integer sent either as a JSON number or as a
// string-encoded integer.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("%w: null", domain.ErrMalformedCount)
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedCount, err)
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return fmt.Errorf("%w: negative %d", domain.ErrMalformedCount, n)
		}
		*c = count(n)
		return nil
	}
	// numbers like 3.0 are accepted, 3.5 is not
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return fmt.Errorf("%w: %q", domain.ErrMalformedCount, s)
	}
	*c = count(f)
	return nil
}

// flexString accepts strings and numbers (timeslice keys are epoch millis).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

// flexFloat accepts numbers and numeric strings ("4", "4.5").
type flexFloat struct {
	V     float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = flexFloat{}
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = flexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("rating %q: %w", s, err)
	}
	*f = flexFloat{V: v, Valid: true}
	return nil
}
