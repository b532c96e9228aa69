package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"moviesearch/internal/domain"
	"moviesearch/internal/metrics"
)

const (
	defaultBaseURL = "https://api.themoviedb.org/3"
	redisCacheKey  = "moviesearch:tmdb:"

	endpointMulti = "search/multi"
	endpointMovie = "search/movie"

	maxErrorBody    = 1024
	maxResponseBody = 512 * 1024
)

var (
	// ErrTransport covers everything that kept a reply from being read:
	// connection failures, timeouts, malformed bodies, missing credentials.
	ErrTransport = errors.New("tmdb transport failure")
	// ErrUpstreamStatus marks a non-2xx reply.
	ErrUpstreamStatus = errors.New("tmdb upstream status")

	errNoAPIKey = errors.New("api key not configured")
)

type Client struct {
	apiKey   string
	baseURL  string
	language string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	limiter  *rate.Limiter
	group    singleflight.Group
	images   Images
}

type Config struct {
	APIKey       string
	BaseURL      string
	ImageBaseURL string
	Language     string
	Client       *http.Client
	Redis        *redis.Client
	CacheTTL     time.Duration
	// RateLimit is the outbound request budget per second. Zero disables pacing.
	RateLimit float64
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: strings.TrimSpace(cfg.Language),
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		limiter:  limiter,
		images:   NewImages(cfg.ImageBaseURL),
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) Images() Images {
	return c.images
}

func (c *Client) ImageURL(width string, fragment *string) string {
	return c.images.ImageURL(width, fragment)
}

// SearchMulti runs a mixed movie/person/tv search. Pages start at 1.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) (domain.SearchPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{
		"query":         {strings.TrimSpace(query)},
		"page":          {strconv.Itoa(page)},
		"include_adult": {"false"},
	}
	body, err := c.get(ctx, endpointMulti, params)
	if err != nil {
		return domain.SearchPage{}, err
	}
	var response multiSearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return domain.SearchPage{}, fmt.Errorf("%w: decode %s: %v", ErrTransport, endpointMulti, err)
	}
	return response.page(), nil
}

// SearchMovie queries the movie-only endpoint and returns its first page.
func (c *Client) SearchMovie(ctx context.Context, query string) ([]domain.Movie, error) {
	params := url.Values{
		"query":         {strings.TrimSpace(query)},
		"include_adult": {"false"},
	}
	body, err := c.get(ctx, endpointMovie, params)
	if err != nil {
		return nil, err
	}
	var response movieSearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTransport, endpointMovie, err)
	}
	movies := make([]domain.Movie, 0, len(response.Results))
	for _, item := range response.Results {
		movies = append(movies, item.movie())
	}
	return movies, nil
}

// get returns the raw body for endpoint. Cached bodies are served from Redis
// and identical concurrent lookups share one upstream request.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: %w", ErrTransport, errNoAPIKey)
	}
	if c.language != "" {
		params.Set("language", c.language)
	}
	cacheKey := redisCacheKey + endpoint + ":" + strings.ToLower(params.Encode())

	if c.redis != nil {
		data, err := c.redis.Get(ctx, cacheKey).Bytes()
		if err == nil {
			metrics.CacheHitsTotal.Inc()
			return data, nil
		}
		metrics.CacheMissesTotal.Inc()
	}

	// The shared fetch must outlive any single caller giving up.
	ch := c.group.DoChan(cacheKey, func() (any, error) {
		detached := context.WithoutCancel(ctx)
		body, err := c.fetch(detached, endpoint, params)
		if err != nil {
			return nil, err
		}
		if c.redis != nil {
			_ = c.redis.Set(detached, cacheKey, body, c.cacheTTL).Err()
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (c *Client) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrTransport, err)
	}

	query := url.Values{}
	for key, values := range params {
		query[key] = values
	}
	query.Set("api_key", c.apiKey)

	reqURL := c.baseURL + "/" + endpoint + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.TMDBRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TMDBRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, redactKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.TMDBRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: tmdb HTTP %d: %s", ErrUpstreamStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.TMDBRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%w: read %s: %v", ErrTransport, endpoint, err)
	}
	metrics.TMDBRequestsTotal.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

// redactKey keeps the API key out of url.Error messages that end up in logs.
func redactKey(err error, key string) string {
	msg := err.Error()
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, key, "REDACTED")
}
