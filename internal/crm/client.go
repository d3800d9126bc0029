// Package crm talks to the external task-tracking API and derives the
// overdue-tasks-per-manager aggregate from its responses.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/okklab/reportboard/internal/metrics"
	"github.com/okklab/reportboard/internal/types"
)

// ErrRemoteFetch is returned when a page request keeps failing after all
// retries. The whole fetch aborts: a partial dataset must never masquerade
// as a complete one.
var ErrRemoteFetch = errors.New("crm: fetch failed after retries")

const fetchAttempts = 5

// Client is a paginated client for the CRM task API.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int

	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger

	// retryInterval is the first backoff step; each retry doubles it.
	// Shortened in tests.
	retryInterval time.Duration
}

// NewClient creates a new Client. The CRM throttles aggressive callers, so
// every request passes through a shared rate limiter.
func NewClient(baseURL, apiKey string, pageSize int, timeout time.Duration, rps float64, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:       baseURL,
		apiKey:        apiKey,
		pageSize:      pageSize,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		logger:        logger,
		retryInterval: 2 * time.Second,
	}
}

// tasksPage is one page of the CRM task listing.
type tasksPage struct {
	Tasks      []types.RemoteTask `json:"tasks"`
	Page       int                `json:"page"`
	TotalPages int                `json:"totalPages"`
}

// FetchTasks pages through all tasks due inside [from, to]. The page count
// reported by the first response caps the number of page requests, so a
// server that keeps raising its total can never trap the loop.
func (c *Client) FetchTasks(ctx context.Context, from, to time.Time) ([]types.RemoteTask, error) {
	first, err := c.fetchPage(ctx, from, to, 1)
	if err != nil {
		metrics.CRMFetchFailures.Inc()
		return nil, err
	}

	tasks := first.Tasks
	totalPages := first.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}

	for page := 2; page <= totalPages; page++ {
		p, err := c.fetchPage(ctx, from, to, page)
		if err != nil {
			metrics.CRMFetchFailures.Inc()
			return nil, err
		}
		if len(p.Tasks) == 0 {
			break
		}
		tasks = append(tasks, p.Tasks...)
	}

	c.logger.Info().
		Int("tasks", len(tasks)).
		Int("pages", totalPages).
		Str("from", from.Format(types.DateFormat)).
		Str("to", to.Format(types.DateFormat)).
		Msg("crm tasks fetched")
	return tasks, nil
}

// fetchPage requests one page, retrying up to fetchAttempts times with
// exponential backoff on network or HTTP failure.
func (c *Client) fetchPage(ctx context.Context, from, to time.Time, page int) (*tasksPage, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("from", from.Format(types.DateFormat))
	q.Set("to", to.Format(types.DateFormat))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	endpoint := c.baseURL + "/tasks?" + q.Encode()

	var result *tasksPage
	op := func() error {
		p, err := c.getPage(ctx, endpoint)
		if err != nil {
			return err
		}
		result = p
		return nil
	}
	notify := func(err error, next time.Duration) {
		metrics.CRMRetries.Inc()
		c.logger.Warn().Err(err).Int("page", page).Dur("retry_in", next).Msg("crm page request failed, retrying")
	}

	if err := backoff.RetryNotify(op, c.newBackOff(ctx), notify); err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRemoteFetch, page, err)
	}
	metrics.CRMPagesFetched.Inc()
	return result, nil
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, fetchAttempts-1), ctx)
}

func (c *Client) getPage(ctx context.Context, endpoint string) (*tasksPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var p tasksPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}

// IdentityCache maps CRM user IDs to display names for the lifetime of one
// pipeline run. It is deliberately not shared across runs.
type IdentityCache struct {
	names map[int64]string
}

// NewIdentityCache creates an empty per-run cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{names: make(map[int64]string)}
}

type userResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ResolveManagerName resolves a CRM user ID to a display name, caching the
// result in the run's cache. A failed lookup degrades to "Manager #<id>"
// instead of failing the run: one unidentifiable performer must not block
// classification of everyone else.
func (c *Client) ResolveManagerName(ctx context.Context, cache *IdentityCache, id int64) string {
	if name, ok := cache.names[id]; ok {
		return name
	}

	name := c.lookupUser(ctx, id)
	cache.names[id] = name
	return name
}

func (c *Client) lookupUser(ctx context.Context, id int64) string {
	placeholder := fmt.Sprintf("Manager #%d", id)

	endpoint := fmt.Sprintf("%s/users/%d?apiKey=%s", c.baseURL, id, url.QueryEscape(c.apiKey))
	if err := c.limiter.Wait(ctx); err != nil {
		return placeholder
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return placeholder
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Int64("user_id", id).Msg("crm user lookup failed, using placeholder")
		return placeholder
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.logger.Warn().Int("status", resp.StatusCode).Int64("user_id", id).Msg("crm user lookup failed, using placeholder")
		return placeholder
	}

	var u userResponse
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil || u.Name == "" {
		c.logger.Warn().Err(err).Int64("user_id", id).Msg("crm user response unusable, using placeholder")
		return placeholder
	}
	return u.Name
}
