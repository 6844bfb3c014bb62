package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"mediasift/pkg/logger"
)

var log = logger.Get("Catalog")

const (
	apiKeyHeader = "X-CATALOG-APIKEY"

	searchEndpoint = "item/search"
	detailEndpoint = "item/getbyid"
	sitesEndpoint  = "site/getbyfilter"

	// defaultRetryAfter is used when a throttling response carries no
	// Retry-After header.
	defaultRetryAfter = time.Second * 60
)

type (
	Config struct {
		APIKey     string        `yaml:"api_key" env:"CATALOG_API_KEY" env-required:"true"`
		BaseURL    string        `yaml:"base_url" env:"CATALOG_BASE_URL" env-default:"https://catalog.invalid/api"`
		MaxRetries int           `yaml:"max_retries" env:"CATALOG_MAX_RETRIES" env-default:"3"`
		Timeout    time.Duration `yaml:"timeout" env:"CATALOG_TIMEOUT" env-default:"30s"`
	}

	// Filters mirrors the remote APIs filter contract. All fields are
	// optional; unset fields are stripped from the payload entirely so
	// the remote only ever sees filters the caller actually specified.
	Filters struct {
		MinDuration       *int     `json:"MinDuration,omitempty"`
		MaxDuration       *int     `json:"MaxDuration,omitempty"`
		MinQuality        *string  `json:"MinQuality,omitempty"`
		Categories        []string `json:"Categories,omitempty"`
		ExcludeCategories []string `json:"ExcludeCategories,omitempty"`
		MinRating         *float64 `json:"MinRating,omitempty"`
		DateAfter         *string  `json:"DateAfter,omitempty"`
		DateBefore        *string  `json:"DateBefore,omitempty"`
	}

	searchRequest struct {
		Searchword string   `json:"Searchword"`
		Take       int      `json:"Take"`
		Page       int      `json:"Page"`
		Filters    *Filters `json:"Filters,omitempty"`
	}

	detailRequest struct {
		ID string `json:"Id"`
	}

	pageRequest struct {
		Take int `json:"Take"`
		Page int `json:"Page"`
	}

	SearchResultItem struct {
		ID       string   `json:"Id"`
		Title    string   `json:"Title"`
		Site     string   `json:"Site"`
		Duration int      `json:"Duration"`
		Quality  string   `json:"Quality"`
		Rating   float64  `json:"Rating"`
		Images   []string `json:"Images"`
	}

	SearchResponse struct {
		Items []SearchResultItem `json:"Items"`
		Total int                `json:"Total"`
		Page  int                `json:"Page"`
	}

	ItemDetail struct {
		ID       string         `json:"Id"`
		Title    string         `json:"Title"`
		Site     string         `json:"Site"`
		VideoURL string         `json:"VideoUrl"`
		Images   []string       `json:"Images"`
		Duration int            `json:"Duration"`
		Quality  string         `json:"Quality"`
		Rating   float64        `json:"Rating"`
		Attrs    map[string]any `json:"Attributes"`
	}

	Site struct {
		ID   string `json:"Id"`
		Name string `json:"Name"`
		URL  string `json:"Url"`
	}

	SitesResponse struct {
		Sites []Site `json:"Sites"`
		Total int    `json:"Total"`
	}

	// Client issues structured search/detail requests against the remote
	// content catalog. Throttling (429) responses are retried after
	// honouring the servers Retry-After directive; request timeouts are
	// retried against the same bounded budget. Retries are sequential
	// and scoped to a single logical call.
	Client struct {
		config Config
		http   *http.Client
		cache  DetailCache
	}
)

func NewClient(config Config) *Client {
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
	}
}

// WithDetailCache attaches a cache which is consulted before (and
// populated after) each Detail call. A nil cache is a no-op.
func (client *Client) WithDetailCache(cache DetailCache) *Client {
	client.cache = cache
	return client
}

// Search queries the catalog for items matching the searchword. The
// filters argument may be nil, in which case no Filters object is sent.
func (client *Client) Search(ctx context.Context, searchword string, page int, take int, filters *Filters) (*SearchResponse, error) {
	payload := searchRequest{Searchword: searchword, Take: take, Page: page, Filters: filters}

	var response SearchResponse
	if err := client.makeRequest(ctx, searchEndpoint, payload, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// Detail fetches the full record for a single catalog item.
func (client *Client) Detail(ctx context.Context, itemID string) (*ItemDetail, error) {
	if client.cache != nil {
		if cached, err := client.cache.Get(ctx, itemID); err != nil {
			log.Emit(logger.WARNING, "Detail cache lookup for %s failed: %s\n", itemID, err.Error())
		} else if cached != nil {
			return cached, nil
		}
	}

	var detail ItemDetail
	if err := client.makeRequest(ctx, detailEndpoint, detailRequest{ID: itemID}, &detail); err != nil {
		return nil, err
	}

	if client.cache != nil {
		if err := client.cache.Set(ctx, &detail); err != nil {
			log.Emit(logger.WARNING, "Detail cache store for %s failed: %s\n", itemID, err.Error())
		}
	}

	return &detail, nil
}

// Sites lists the source sites known to the catalog.
func (client *Client) Sites(ctx context.Context, page int, take int) (*SitesResponse, error) {
	var response SitesResponse
	if err := client.makeRequest(ctx, sitesEndpoint, pageRequest{Take: take, Page: page}, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// makeRequest performs a single logical POST call against the catalog,
// transparently retrying throttled and timed-out attempts up to the
// configured maximum.
func (client *Client) makeRequest(ctx context.Context, endpoint string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to encode request payload: %s", err.Error())}
	}

	for attempt := 0; ; attempt++ {
		retryAfter, err := client.attemptRequest(ctx, endpoint, body, target)
		if err == nil {
			return nil
		}

		if retryAfter == nil {
			return err
		}

		if attempt >= client.config.MaxRetries {
			return &RetryLimitError{endpoint: endpoint, attempts: attempt + 1, cause: err}
		}

		if *retryAfter > 0 {
			log.Emit(logger.WARNING, "Catalog throttled call to %s... waiting %s before retry\n", endpoint, *retryAfter)
			select {
			case <-time.After(*retryAfter):
			case <-ctx.Done():
				return &UnknownRequestError{ctx.Err().Error()}
			}
		}
	}
}

// attemptRequest performs one HTTP attempt. A non-nil duration in the
// first return value signals a retryable failure and carries the wait
// the server requested (zero for timeouts, which retry immediately).
func (client *Client) attemptRequest(ctx context.Context, endpoint string, body []byte, target any) (*time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/%s", client.config.BaseURL, endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("failed to construct request: %s", err.Error())}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, client.config.APIKey)

	resp, err := client.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			zero := time.Duration(0)
			return &zero, &TimeoutError{endpoint: endpoint}
		}

		return nil, &UnknownRequestError{fmt.Sprintf("failed to perform POST(%s): %s", endpoint, err.Error())}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("failed to read response body: %s", err.Error())}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.Unmarshal(respBody, target); err != nil {
			return nil, &UnknownRequestError{fmt.Sprintf("response JSON could not be unmarshalled: %s", err.Error())}
		}

		return nil, nil
	case http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		return &wait, &ThrottledError{endpoint: endpoint, wait: wait}
	default:
		return nil, &FailedRequestError{httpCode: resp.StatusCode, body: string(respBody)}
	}
}

// RankResults orders the provided search items by title similarity to
// the searchword (best match first). Items which the catalog returned
// with equal similarity retain their original relative order.
func RankResults(items []SearchResultItem, searchword string) {
	metric := &metrics.Hamming{CaseSensitive: false}
	similarity := make(map[string]float64, len(items))
	for _, item := range items {
		similarity[item.ID] = strutil.Similarity(item.Title, searchword, metric)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return similarity[items[i].ID] > similarity[items[j].ID]
	})
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}

	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}

	return time.Duration(seconds) * time.Second
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }

	for err != nil {
		if t, ok := err.(timeout); ok && t.Timeout() {
			return true
		}

		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}

	return false
}
