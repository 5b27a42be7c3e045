package domain

type Polarity string

const (
	Positive Polarity = "positive"
	Neutral  Polarity = "neutral"
	Negative Polarity = "negative"
)

// ParsePolarity reports false for anything outside the three known classes.
func ParsePolarity(s string) (Polarity, bool) {
	switch Polarity(s) {
	case Positive, Neutral, Negative:
		return Polarity(s), true
	}
	return "", false
}

type SentimentCount struct {
	Polarity Polarity `json:"polarity"`
	Count    int      `json:"count"`
}

// KeywordEntry is one row of a keyword/sentiment aggregation.
type KeywordEntry struct {
	Keyword  string         `json:"keyword"`
	Positive SentimentCount `json:"positive"`
	Neutral  SentimentCount `json:"neutral"`
	Negative SentimentCount `json:"negative"`
}

func NewKeywordEntry(keyword string, pos, neu, neg int) KeywordEntry {
	return KeywordEntry{
		Keyword:  keyword,
		Positive: SentimentCount{Polarity: Positive, Count: pos},
		Neutral:  SentimentCount{Polarity: Neutral, Count: neu},
		Negative: SentimentCount{Polarity: Negative, Count: neg},
	}
}

// Merge returns a copy of e with other's counts added per polarity.
func (e KeywordEntry) Merge(other KeywordEntry) KeywordEntry {
	out := e
	out.Positive.Count += other.Positive.Count
	out.Neutral.Count += other.Neutral.Count
	out.Negative.Count += other.Negative.Count
	return out
}

func (e KeywordEntry) Total() int {
	return e.Positive.Count + e.Neutral.Count + e.Negative.Count
}

// Set assigns n to the count for p. Unknown polarities are ignored.
func (e *KeywordEntry) Set(p Polarity, n int) {
	switch p {
	case Positive:
		e.Positive.Count = n
	case Neutral:
		e.Neutral.Count = n
	case Negative:
		e.Negative.Count = n
	}
}
