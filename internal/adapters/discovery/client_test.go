package discovery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app_insights/internal/adapters/discovery"
	"app_insights/internal/domain"
)

const keywordsBody = `{
  "matching_results": 120,
  "aggregations": [{
    "type": "filter",
    "match": "app_name:\"Foo\"",
    "matching_results": 120,
    "aggregations": [{
      "type": "term",
      "field": "review_enriched.keywords.text",
      "results": [
        {"key": "battery", "matching_results": 6, "aggregations": [{"type": "term", "results": [
          {"key": "positive", "matching_results": "3"},
          {"key": "neutral", "matching_results": 1},
          {"key": "negative", "matching_results": "2"}
        ]}]},
        {"key": "battery life", "matching_results": 2, "aggregations": [{"type": "term", "results": [
          {"key": "negative", "matching_results": 2},
          {"key": "mixed", "matching_results": 9}
        ]}]},
        {"key": "ads", "matching_results": 0}
      ]
    }]
  }]
}`

type fakeDiscovery struct {
	setups   int32
	lastQ    atomic.Value
	response func(q string) (int, string)
}

func (f *fakeDiscovery) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if u, p, ok := r.BasicAuth(); !ok || u != "user" || p != "pass" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.URL.Query().Get("version") != discovery.DefaultVersion {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/environments":
		atomic.AddInt32(&f.setups, 1)
		_, _ = w.Write([]byte(`{"environments":[{"environment_id":"env1","name":"byod"}]}`))
	case "/v1/environments/env1/collections":
		_, _ = w.Write([]byte(`{"collections":[{"collection_id":"col1","name":"compiled_reviews_v4"}]}`))
	case "/v1/environments/env1/collections/col1/query":
		q := r.URL.Query().Get("aggregation") + "|" + r.URL.Query().Get("filter")
		f.lastQ.Store(q)
		status, body := f.response(q)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T, respond func(q string) (int, string)) (*discovery.Client, *fakeDiscovery) {
	t.Helper()
	fake := &fakeDiscovery{response: respond}
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)

	cl, err := discovery.New(discovery.Config{BaseURL: ts.URL + "/", Username: "user", Password: "pass", RPS: 100})
	require.NoError(t, err)
	return cl, fake
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := discovery.New(discovery.Config{BaseURL: "http://x"})
	require.Error(t, err)
}

func TestKeywordSentiments(t *testing.T) {
	cl, fake := newClient(t, func(string) (int, string) { return 200, keywordsBody })

	got, err := cl.KeywordSentiments(ctx(t), "Foo")
	require.NoError(t, err)
	assert.Equal(t, []domain.KeywordEntry{
		domain.NewKeywordEntry("battery", 3, 1, 2),
		domain.NewKeywordEntry("battery life", 0, 0, 2),
		domain.NewKeywordEntry("ads", 0, 0, 0),
	}, got)

	q := fake.lastQ.Load().(string)
	assert.True(t, strings.HasPrefix(q, `filter(app_name:"Foo").term(review_enriched.keywords.text)`), q)

	// IDs are resolved once
	_, err = cl.KeywordSentiments(ctx(t), "Foo")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.setups))
}

func TestKeywordSentiments_MalformedCountRejectsResult(t *testing.T) {
	for _, bad := range []string{`"three"`, `-1`, `"2.5"`, `null`} {
		body := strings.Replace(keywordsBody, `"matching_results": "3"`, `"matching_results": `+bad, 1)
		cl, _ := newClient(t, func(string) (int, string) { return 200, body })

		got, err := cl.KeywordSentiments(ctx(t), "Foo")
		require.ErrorIs(t, err, domain.ErrMalformedCount, "count %s", bad)
		assert.Nil(t, got)
	}
}

func TestKeywordSentiments_UnexpectedShape(t *testing.T) {
	cl, _ := newClient(t, func(string) (int, string) { return 200, `{"aggregations":[{"type":"filter"}]}` })

	_, err := cl.KeywordSentiments(ctx(t), "Foo")
	require.ErrorIs(t, err, domain.ErrUnexpectedJSON)
}

func TestAppNames(t *testing.T) {
	cl, _ := newClient(t, func(string) (int, string) {
		return 200, `{"aggregations":[{"type":"term","results":[{"key":"Foo","matching_results":3},{"key":"Bar Baz","matching_results":1}]}]}`
	})

	got, err := cl.AppNames(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"Foo", "Bar Baz"}, got)
}

func TestSentimentTimeline(t *testing.T) {
	cl, fake := newClient(t, func(string) (int, string) {
		return 200, `{"aggregations":[{"type":"filter","aggregations":[{"type":"timeslice","results":[
			{"key_as_string":"2017-03-01T00:00:00.000Z","key":1488326400000,"matching_results":5,"aggregations":[{"type":"term","results":[
				{"key":"positive","matching_results":"4"},{"key":"negative","matching_results":1}]}]},
			{"key":1488412800000,"matching_results":0}
		]}]}]}`
	})

	got, err := cl.SentimentTimeline(ctx(t), "Foo")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC), got[0].Date)
	assert.Equal(t, 4, got[0].Positive)
	assert.Equal(t, 1, got[0].Negative)
	assert.Equal(t, time.Date(2017, 3, 2, 0, 0, 0, 0, time.UTC), got[1].Date)
	assert.Contains(t, fake.lastQ.Load().(string), "timeslice(updated,1day)")
}

func TestTurnaroundReviews(t *testing.T) {
	cl, fake := newClient(t, func(string) (int, string) {
		return 200, `{"matching_results":2,"results":[
			{"app_name":"Foo","title":"Meh","rating":"2","review":"Actually love it","version":"1.2","updated":"2017-03-03T10:00:00Z"},
			{"app_name":"Foo","title":"Hmm","rating":1,"review":"Nice idea","version":3,"updated":"garbage"}
		]}`
	})

	got, err := cl.TurnaroundReviews(ctx(t), "Foo")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Rating)
	assert.Equal(t, "1.2", got[0].Version)
	require.NotNil(t, got[0].Updated)
	assert.Nil(t, got[1].Updated)
	assert.Equal(t, "3", got[1].Version)
	assert.Equal(t, `|app_name:"Foo",review_enriched.docSentiment.type:positive,rating<3`, fake.lastQ.Load().(string))
}

func TestTurnaroundReviews_BadRating(t *testing.T) {
	cl, _ := newClient(t, func(string) (int, string) {
		return 200, `{"results":[{"app_name":"Foo","rating":"two stars"}]}`
	})

	_, err := cl.TurnaroundReviews(ctx(t), "Foo")
	require.ErrorIs(t, err, domain.ErrUnexpectedJSON)
}

func TestTurnaroundCountAndAverage(t *testing.T) {
	cl, _ := newClient(t, func(q string) (int, string) {
		if strings.Contains(q, "average(") {
			return 200, `{"aggregations":[{"type":"filter","aggregations":[{"type":"average","value":0.42}]}]}`
		}
		return 200, `{"matching_results":17,"results":[]}`
	})

	n, err := cl.TurnaroundCount(ctx(t), `Say "Hi"`)
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	avg, err := cl.AverageSentiment(ctx(t), "Foo")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, avg, 1e-9)
}

func TestQuery_AppNameIsQuoted(t *testing.T) {
	cl, fake := newClient(t, func(string) (int, string) { return 200, `{"matching_results":0}` })

	_, err := cl.TurnaroundCount(ctx(t), `Say "Hi"`)
	require.NoError(t, err)
	assert.Contains(t, fake.lastQ.Load().(string), `app_name:"Say \"Hi\""`)
}

func TestSetup_NoEnvironments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"environments":[]}`))
	}))
	defer ts.Close()

	cl, err := discovery.New(discovery.Config{BaseURL: ts.URL, Username: "u", Password: "p", RPS: 100})
	require.NoError(t, err)
	require.ErrorIs(t, cl.Setup(ctx(t)), domain.ErrNoEnvironments)

	_, err = cl.AppNames(ctx(t))
	require.ErrorIs(t, err, domain.ErrNoEnvironments)
}

func TestSetup_NoCollections(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/environments" {
			_, _ = w.Write([]byte(`{"environments":[{"environment_id":"env1"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"collections":[]}`))
	}))
	defer ts.Close()

	cl, err := discovery.New(discovery.Config{BaseURL: ts.URL, Username: "u", Password: "p", RPS: 100})
	require.NoError(t, err)
	require.ErrorIs(t, cl.Setup(ctx(t)), domain.ErrNoCollections)
}

func TestQuery_NotFoundIsSentinel(t *testing.T) {
	cl, _ := newClient(t, func(string) (int, string) { return 404, `{}` })

	_, err := cl.AverageSentiment(ctx(t), "Foo")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
