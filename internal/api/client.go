package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/onemirror/onemirror/internal/errors"
	"github.com/onemirror/onemirror/internal/logging"
	"github.com/onemirror/onemirror/internal/types"
	"github.com/onemirror/onemirror/internal/utils"
)

// Client wraps the Microsoft Graph API with rate limiting and retry logic.
// Every metadata request passes through the shared rate limiter; content
// requests pass through it too but leave retries to the transfer layer.
type Client struct {
	httpClient    *http.Client
	contentClient *http.Client
	baseURL       string
	tokens        oauth2.TokenSource
	limiter       *RateLimiter
	maxRetries    int
	retryDelay    time.Duration
	logger        logging.Logger
}

// ClientConfig configures a Graph client.
type ClientConfig struct {
	TokenSource          oauth2.TokenSource
	BaseURL              string
	MaxRequestsPerMinute int
	MaxRetries           int
	RetryDelayMs         int
	Logger               logging.Logger
}

// NewClient creates a new Graph API client
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = logging.NewNoOpLogger()
	}
	if config.BaseURL == "" {
		config.BaseURL = utils.GraphAPIBase
	}
	if config.MaxRequestsPerMinute <= 0 {
		config.MaxRequestsPerMinute = utils.DefaultMaxRequests
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = utils.DefaultMaxRetries
	}
	if config.RetryDelayMs <= 0 {
		config.RetryDelayMs = utils.DefaultRetryDelayMs
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(utils.DefaultRequestTimeoutSeconds) * time.Second,
		},
		contentClient: &http.Client{
			Timeout: time.Duration(utils.DefaultContentTimeoutSeconds) * time.Second,
		},
		baseURL:    config.BaseURL,
		tokens:     config.TokenSource,
		limiter:    NewRateLimiter(config.MaxRequestsPerMinute, time.Duration(utils.DefaultRateWindowSeconds)*time.Second),
		maxRetries: config.MaxRetries,
		retryDelay: time.Duration(config.RetryDelayMs) * time.Millisecond,
		logger:     config.Logger,
	}
}

// NewRequestContext creates a new request context with trace ID
func NewRequestContext(profile string, requestType types.RequestType) *types.RequestContext {
	return &types.RequestContext{
		Profile:         profile,
		InvolvedItemIDs: []string{},
		RequestType:     requestType,
		TraceID:         uuid.New().String(),
	}
}

// WithItemIDs adds item IDs to the request context
func (c *Client) WithItemIDs(ctx *types.RequestContext, itemIDs ...string) *types.RequestContext {
	ctx.InvolvedItemIDs = append(ctx.InvolvedItemIDs, itemIDs...)
	return ctx
}

// Limiter returns the shared rate limiter.
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// BaseURL returns the Graph endpoint root in use.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ExecuteWithRetry executes an API call with retry logic
func ExecuteWithRetry[T any](ctx context.Context, client *Client, reqCtx *types.RequestContext, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	logger := client.logger.WithTraceID(reqCtx.TraceID)
	logger.Debug("API operation starting",
		logging.F("requestType", reqCtx.RequestType),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("profile", reqCtx.Profile),
	)

	start := time.Now()
	delay := time.Duration(0)

	for attempt := 0; attempt <= client.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying API operation",
				logging.F("attempt", attempt),
				logging.F("maxRetries", client.maxRetries),
			)
		}

		result, lastErr = fn()
		if lastErr == nil {
			duration := time.Since(start)
			logger.Debug("API operation completed",
				logging.F("duration_ms", duration.Milliseconds()),
				logging.F("attempts", attempt+1),
			)
			return result, nil
		}

		if !errors.IsRetryable(lastErr) {
			duration := time.Since(start)
			logger.Error("API operation failed (non-retryable)",
				logging.F("duration_ms", duration.Milliseconds()),
				logging.F("error", lastErr.Error()),
				logging.F("attempts", attempt+1),
			)
			return result, errors.ClassifyGraphError("graph", lastErr, reqCtx, client.logger)
		}

		if attempt < client.maxRetries {
			delay = Backoff(client.retryDelay, delay, lastErr)
			logger.Warn("API operation failed (retryable)",
				logging.F("attempt", attempt+1),
				logging.F("delay_ms", delay.Milliseconds()),
				logging.F("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	duration := time.Since(start)
	logger.Error("API operation failed after max retries",
		logging.F("duration_ms", duration.Milliseconds()),
		logging.F("attempts", client.maxRetries+1),
		logging.F("error", lastErr.Error()),
	)

	classified := errors.ClassifyGraphError("graph", lastErr, reqCtx, client.logger)
	if appErr, ok := classified.(*utils.AppError); ok && appErr.CLIError.Retryable {
		return result, utils.NewAppError(utils.NewCLIError(utils.ErrCodeExhaustedRetries, lastErr.Error()).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("attempts", client.maxRetries+1).
			Build())
	}
	return result, classified
}

// GetJSON issues a rate-limited GET against the Graph API and decodes the
// response into out. path may be a relative Graph path or an absolute URL
// (paging links come back absolute).
func (c *Client) GetJSON(ctx context.Context, reqCtx *types.RequestContext, path string, out interface{}) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	url := path
	if len(path) == 0 || path[0] == '/' {
		url = c.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.GraphError{Status: 503, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeGraphError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Content opens a rate-limited download stream for an item's content.
// Retries are the caller's responsibility.
func (c *Client) Content(ctx context.Context, reqCtx *types.RequestContext, itemID string) (io.ReadCloser, int64, error) {
	return c.content(ctx, itemID, "")
}

// ContentRange opens a download stream for the half-open byte range
// [start, end) of an item's content.
func (c *Client) ContentRange(ctx context.Context, reqCtx *types.RequestContext, itemID string, start, end int64) (io.ReadCloser, int64, error) {
	return c.content(ctx, itemID, fmt.Sprintf("bytes=%d-%d", start, end-1))
}

func (c *Client) content(ctx context.Context, itemID, rangeHeader string) (io.ReadCloser, int64, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, 0, err
	}

	url := fmt.Sprintf("%s/me/drive/items/%s/content", c.baseURL, itemID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, 0, err
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.contentClient.Do(req)
	if err != nil {
		return nil, 0, &errors.GraphError{Status: 503, Message: err.Error()}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		defer resp.Body.Close()
		return nil, 0, decodeGraphError(resp)
	}

	return resp.Body, resp.ContentLength, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired, "no credentials configured").Build())
	}
	token, err := c.tokens.Token()
	if err != nil {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired, err.Error()).Build())
	}
	token.SetAuthHeader(req)
	return nil
}

// decodeGraphError parses the Graph error envelope and Retry-After header.
func decodeGraphError(resp *http.Response) error {
	graphErr := &errors.GraphError{Status: resp.StatusCode}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil && json.Unmarshal(body, &envelope) == nil {
		graphErr.Code = envelope.Error.Code
		graphErr.Message = envelope.Error.Message
	}
	if graphErr.Message == "" {
		graphErr.Message = http.StatusText(resp.StatusCode)
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			graphErr.RetryAfter = time.Duration(seconds) * time.Second
		}
	}

	return graphErr
}
