// Package backend is the client for the quiz backend's REST API. It owns the
// wire envelope, transport-level retry and outbound rate limiting; callers
// decide whether a failed call is fatal or worth polling for.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"triviaa-companion/internal/cache"
	"triviaa-companion/internal/models"
)

const (
	profileCacheTTL    = 1 * time.Minute
	categoriesCacheTTL = 5 * time.Minute
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	limiter    *rate.Limiter
	cache      *cache.Client // nil disables response caching
	retry      RetryConfig
}

func NewClient(log *slog.Logger, baseURL string, cacheClient *cache.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: NewHTTPClient(),
		log:        log,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		cache:      cacheClient,
		retry:      DefaultRetryConfig(),
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used by tests.
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// SetRetryConfig replaces the transport retry settings.
func (c *Client) SetRetryConfig(cfg RetryConfig) { c.retry = cfg }

type existsResponse struct {
	Exists bool `json:"exists"`
}

// LoginRequest is the body for the phone-auth endpoint. Login sends only the
// identity pair; registration sends the full set.
type LoginRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	UserKey     string `json:"userKey"`
}

type RegisterRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber"`
	ProfilePicture string `json:"profilePicture"`
	Username       string `json:"username"`
	DeviceToken    string `json:"deviceToken"`
	UserKey        string `json:"userKey"`
	Age            int    `json:"age"`
}

type UpdateUserRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber"`
	ProfilePicture string `json:"profilePicture"`
	Username       string `json:"username"`
	DeviceToken    string `json:"deviceToken"`
	UserKey        string `json:"userKey"`
}

// Login authenticates an existing identity by phone number.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*models.UserProfile, error) {
	return sendJSON[*models.UserProfile](ctx, c, http.MethodPost, "/api/users/auth/phone", req)
}

// Register creates a new backend profile. The backend answers 201 on create.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*models.UserProfile, error) {
	return sendJSON[*models.UserProfile](ctx, c, http.MethodPost, "/api/users/auth/phone", req)
}

// UpdateUser replaces the remote profile's mutable fields.
func (c *Client) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) (*models.UserProfile, error) {
	return sendJSON[*models.UserProfile](ctx, c, http.MethodPut, "/api/users/"+url.PathEscape(userID), req)
}

// CheckPhone reports whether a profile exists for the phone number.
func (c *Client) CheckPhone(ctx context.Context, phoneNumber string) (bool, error) {
	resp, err := sendJSON[existsResponse](ctx, c, http.MethodPost, "/api/users/check-phone",
		map[string]string{"phoneNumber": phoneNumber})
	if err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// CheckUsername reports whether the username is still available.
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	resp, err := getJSON[existsResponse](ctx, c, "/api/users/check-username/"+url.PathEscape(username), "", 0)
	if err != nil {
		return false, err
	}
	return !resp.Exists, nil
}

// Profile fetches the aggregated profile view (stats included).
func (c *Client) Profile(ctx context.Context, userID string) (*models.ProfileData, error) {
	return getJSON[*models.ProfileData](ctx, c, "/api/users/profile/"+url.PathEscape(userID),
		"profile:"+userID, profileCacheTTL)
}

func (c *Client) CoinBalance(ctx context.Context, userID string) (*models.CoinBalance, error) {
	return getJSON[*models.CoinBalance](ctx, c, "/api/coins/balance/"+url.PathEscape(userID), "", 0)
}

func (c *Client) CoinTransactions(ctx context.Context, userID string) ([]models.CoinTransaction, error) {
	return getJSON[[]models.CoinTransaction](ctx, c, "/api/coins/transactions/"+url.PathEscape(userID), "", 0)
}

func (c *Client) PointsBalance(ctx context.Context, userID string) (*models.PointsBalance, error) {
	return getJSON[*models.PointsBalance](ctx, c, "/api/points/balance/"+url.PathEscape(userID), "", 0)
}

func (c *Client) PointsTransactions(ctx context.Context, userID string) ([]models.PointsTransaction, error) {
	return getJSON[[]models.PointsTransaction](ctx, c, "/api/points/transactions/"+url.PathEscape(userID), "", 0)
}

// Leaderboard fetches the top players above a points threshold, sorted by
// ascending rank regardless of wire order.
func (c *Client) Leaderboard(ctx context.Context, threshold, limit int) ([]models.LeaderboardPlayer, error) {
	path := fmt.Sprintf("/api/points/leaderboard?threshold=%d&limit=%d", threshold, limit)
	players, err := getJSON[[]models.LeaderboardPlayer](ctx, c, path, "", 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Rank < players[j].Rank })
	return players, nil
}

func (c *Client) PopularCategories(ctx context.Context) ([]models.PopularCategory, error) {
	return getJSON[[]models.PopularCategory](ctx, c, "/api/categories/count/popular",
		"categories:popular", categoriesCacheTTL)
}

func (c *Client) RecentGames(ctx context.Context, userID string) ([]models.GameSession, error) {
	return getJSON[[]models.GameSession](ctx, c, "/api/quiz/recent-games/"+url.PathEscape(userID), "", 0)
}

// getJSON performs a GET, optionally consulting the response cache first.
// Cached entries hold the raw envelope so a hit and a miss decode the same
// way.
func getJSON[T any](ctx context.Context, c *Client, path, cacheKey string, ttl time.Duration) (T, error) {
	if cacheKey != "" {
		if cached := c.cache.Get(ctx, cacheKey); cached != "" {
			out, err := decodeEnvelope[T](bytes.NewReader([]byte(cached)))
			if err == nil {
				c.log.Debug("backend_cache_hit", "path", path)
				return out, nil
			}
			c.cache.Del(ctx, cacheKey)
		}
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		var zero T
		return zero, err
	}

	out, err := decodeEnvelope[T](bytes.NewReader(body))
	if err != nil {
		var zero T
		return zero, err
	}

	if cacheKey != "" {
		c.cache.Set(ctx, cacheKey, string(body), ttl)
	}
	return out, nil
}

func sendJSON[T any](ctx context.Context, c *Client, method, path string, payload any) (T, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("marshal request body: %w", err)
	}

	body, err := c.do(ctx, method, path, raw)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeEnvelope[T](bytes.NewReader(body))
}

// do issues one logical request, retrying on network failure and 429 (with
// Retry-After honoured). Any other HTTP status is returned to the caller as
// an *APIError; the envelope decode happens upstream.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	var lastErr error

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.log.Warn("backend_request_failed", "method", method, "path", path, "attempt", attempt+1, "error", err)
			if err := sleepCtx(ctx, CalculateBackoff(c.retry, attempt, 0)); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			lastErr = &APIError{Code: http.StatusTooManyRequests, Message: "rate limited"}
			c.log.Warn("backend_rate_limited", "path", path, "attempt", attempt+1, "retry_after", retryAfter)
			if err := sleepCtx(ctx, CalculateBackoff(c.retry, attempt, retryAfter)); err != nil {
				return nil, err
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg := string(data)
			if len(msg) > 200 {
				msg = msg[:200]
			}
			return nil, &APIError{Code: resp.StatusCode, Message: msg}
		}

		c.log.Debug("backend_request_ok", "method", method, "path", path, "status", resp.StatusCode)
		return data, nil
	}

	return nil, lastErr
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
