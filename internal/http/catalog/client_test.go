package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string, maxRetries int) *Client {
	return NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		MaxRetries: maxRetries,
		Timeout:    time.Second * 5,
	})
}

func TestSearch_SendsExpectedPayload(t *testing.T) {
	var capturedBody map[string]any
	var capturedKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/search", r.URL.Path)
		capturedKey = r.Header.Get("X-CATALOG-APIKEY")
		require.Nil(t, json.NewDecoder(r.Body).Decode(&capturedBody))

		_, _ = w.Write([]byte(`{"Items": [{"Id": "abc", "Title": "Some Item", "Site": "siteA"}], "Total": 1, "Page": 2}`))
	}))
	defer server.Close()

	response, err := newTestClient(server.URL, 3).Search(context.Background(), "some item", 2, 25, nil)
	require.Nil(t, err)

	assert.Equal(t, "test-key", capturedKey)
	assert.Equal(t, "some item", capturedBody["Searchword"])
	assert.EqualValues(t, 25, capturedBody["Take"])
	assert.EqualValues(t, 2, capturedBody["Page"])
	assert.NotContains(t, capturedBody, "Filters", "nil filters must not be serialised")

	require.Len(t, response.Items, 1)
	assert.Equal(t, "abc", response.Items[0].ID)
	assert.Equal(t, 2, response.Page)
}

func TestSearch_StripsUnsetFilterFields(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Nil(t, json.NewDecoder(r.Body).Decode(&capturedBody))
		_, _ = w.Write([]byte(`{"Items": [], "Total": 0, "Page": 1}`))
	}))
	defer server.Close()

	minQuality := "1080p"
	filters := &Filters{MinQuality: &minQuality, Categories: []string{"a", "b"}}
	_, err := newTestClient(server.URL, 3).Search(context.Background(), "x", 1, 10, filters)
	require.Nil(t, err)

	sent, ok := capturedBody["Filters"].(map[string]any)
	require.True(t, ok, "Filters object missing from payload")
	assert.Equal(t, "1080p", sent["MinQuality"])
	assert.Len(t, sent["Categories"], 2)
	assert.NotContains(t, sent, "MinDuration")
	assert.NotContains(t, sent, "MinRating")
	assert.NotContains(t, sent, "DateAfter")
}

func TestDetail_RetriesThrottledCalls(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		_, _ = w.Write([]byte(`{"Id": "abc", "Title": "Some Item", "VideoUrl": "https://cdn.invalid/abc.mp4"}`))
	}))
	defer server.Close()

	detail, err := newTestClient(server.URL, 3).Detail(context.Background(), "abc")
	require.Nil(t, err)

	assert.Equal(t, 2, attempts)
	assert.Equal(t, "https://cdn.invalid/abc.mp4", detail.VideoURL)
}

func TestDetail_HonoursRetryAfterWait(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		_, _ = w.Write([]byte(`{"Id": "abc"}`))
	}))
	defer server.Close()

	start := time.Now()
	_, err := newTestClient(server.URL, 3).Detail(context.Background(), "abc")
	require.Nil(t, err)

	assert.GreaterOrEqual(t, time.Since(start), time.Second, "client must wait out the Retry-After directive")
}

func TestMakeRequest_RetryBudgetExhausted(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 2).Detail(context.Background(), "abc")
	require.NotNil(t, err)

	var limitErr *RetryLimitError
	require.ErrorAs(t, err, &limitErr)

	var throttled *ThrottledError
	assert.ErrorAs(t, err, &throttled, "cause of the abandoned call must be retained")

	// Initial attempt plus the configured number of retries.
	assert.Equal(t, 3, attempts)
}

func TestMakeRequest_TimeoutsShareRetryBudget(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			time.Sleep(time.Millisecond * 500)
		}

		_, _ = w.Write([]byte(`{"Id": "abc"}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: 3,
		Timeout:    time.Millisecond * 100,
	})

	detail, err := client.Detail(context.Background(), "abc")
	require.Nil(t, err)
	assert.Equal(t, "abc", detail.ID)
	assert.Equal(t, 2, attempts, "timed-out attempt must be retried immediately")
}

func TestMakeRequest_ServerFailureIsTerminal(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 3).Detail(context.Background(), "abc")
	require.NotNil(t, err)

	var failure *FailedRequestError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, http.StatusInternalServerError, failure.StatusCode())
	assert.Equal(t, 1, attempts, "non-throttle failures must not be retried")
}

func TestSites_ListsSources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/site/getbyfilter", r.URL.Path)
		_, _ = w.Write([]byte(`{"Sites": [{"Id": "1", "Name": "siteA", "Url": "https://sitea.invalid"}], "Total": 1}`))
	}))
	defer server.Close()

	response, err := newTestClient(server.URL, 3).Sites(context.Background(), 1, 100)
	require.Nil(t, err)

	require.Len(t, response.Sites, 1)
	assert.Equal(t, "siteA", response.Sites[0].Name)
}

func TestDetail_UsesCacheBeforeRemote(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		_, _ = w.Write([]byte(`{"Id": "abc", "Title": "From Remote"}`))
	}))
	defer server.Close()

	cache := &mapDetailCache{entries: make(map[string]*ItemDetail)}
	client := newTestClient(server.URL, 3).WithDetailCache(cache)

	first, err := client.Detail(context.Background(), "abc")
	require.Nil(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "From Remote", first.Title)

	second, err := client.Detail(context.Background(), "abc")
	require.Nil(t, err)
	assert.Equal(t, 1, attempts, "second lookup must be served from the cache")
	assert.Equal(t, "From Remote", second.Title)
}

func TestRankResults_OrdersByTitleSimilarity(t *testing.T) {
	items := []SearchResultItem{
		{ID: "1", Title: "zzzzzzz"},
		{ID: "2", Title: "beach sunset"},
		{ID: "3", Title: "beach sunsat"},
	}

	RankResults(items, "beach sunset")

	assert.Equal(t, "2", items[0].ID, "exact title match must rank first")
	assert.Equal(t, "3", items[1].ID)
	assert.Equal(t, "1", items[2].ID)
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{"5", time.Second * 5},
		{"0", 0},
		{"", defaultRetryAfter},
		{"soon", defaultRetryAfter},
		{"-3", defaultRetryAfter},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, parseRetryAfter(test.header), "header %q", test.header)
	}
}

type mapDetailCache struct {
	entries map[string]*ItemDetail
}

func (cache *mapDetailCache) Get(_ context.Context, itemID string) (*ItemDetail, error) {
	return cache.entries[itemID], nil
}

func (cache *mapDetailCache) Set(_ context.Context, detail *ItemDetail) error {
	cache.entries[detail.ID] = detail
	return nil
}
