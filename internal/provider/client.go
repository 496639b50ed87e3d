package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/metrics"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 30 * time.Second

	idempotencyHeader = "Idempotency-Key"
	maxErrorBody      = 4 << 10
)

// Ensure Client implements Generator.
var _ Generator = (*Client)(nil)

// Options configures the generation client.
type Options struct {
	BaseURL     string
	APIKey      string
	APIVersion  string
	Model       string
	HTTPClient  *http.Client
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *zap.Logger
}

// Client talks to the video generation provider. It holds no per-job state.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	apiVersion  string
	model       string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger
}

// NewClient constructs a client, filling defaults for unset options.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = SupportedModel
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(opts.APIKey),
		apiVersion:  opts.APIVersion,
		model:       model,
		maxAttempts: attempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      logger,
	}
}

// Submit validates and submits a generation request. An empty idempotency
// key is replaced by a fresh one, and every retry of this call reuses it.
func (c *Client) Submit(ctx context.Context, req *GenerationRequest, idempotencyKey string) (*RemoteJob, error) {
	r := *req
	if err := r.Validate(c.model); err != nil {
		return nil, err
	}
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	body, err := json.Marshal(submitPayload{
		Model:          r.Model,
		Prompt:         r.Prompt,
		Seconds:        r.DurationSeconds,
		Width:          r.Width,
		Height:         r.Height,
		Variants:       r.Variants,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: marshal request: %w", err)
	}

	var job RemoteJob
	err = c.doJSON(ctx, "submit", http.MethodPost, "/video/generations/jobs", body,
		map[string]string{idempotencyHeader: idempotencyKey}, &job)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Submitted generation job",
		zap.String("external_id", job.ID),
		zap.String("idempotency_key", idempotencyKey),
	)
	return &job, nil
}

// GetStatus fetches the provider's view of a job.
func (c *Client) GetStatus(ctx context.Context, externalID string) (*RemoteJob, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, domain.Validationf("external job id is required")
	}
	var job RemoteJob
	path := "/video/generations/jobs/" + url.PathEscape(externalID)
	if err := c.doJSON(ctx, "status", http.MethodGet, path, nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Cancel asks the provider to stop a job.
func (c *Client) Cancel(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return domain.Validationf("external job id is required")
	}
	path := "/video/generations/jobs/" + url.PathEscape(externalID)
	resp, err := c.do(ctx, "cancel", http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// DownloadContent opens the video bytes of a generation. The caller closes the reader.
func (c *Client) DownloadContent(ctx context.Context, generationID string) (io.ReadCloser, string, error) {
	if strings.TrimSpace(generationID) == "" {
		return nil, "", domain.Validationf("generation id is required")
	}
	path := "/video/generations/" + url.PathEscape(generationID) + "/content/video"
	resp, err := c.do(ctx, "download", http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	return resp.Body, contentType, nil
}

// HealthCheck reports whether the provider answers an authenticated listing.
// It makes a single attempt.
func (c *Client) HealthCheck(ctx context.Context) bool {
	resp, err := c.send(ctx, "health", http.MethodGet, "/video/generations/jobs?limit=1", nil, nil)
	if err != nil {
		c.logger.Warn("Provider health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body []byte, headers map[string]string, out any) error {
	resp, err := c.do(ctx, op, method, path, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

// do sends a request, retrying network failures, 429 and 5xx with
// exponential backoff until maxAttempts or the context deadline. On success
// the caller owns the response body.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	var lastErr *APIError
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
				return nil, lastErr.timedOut(attempt)
			}
			c.logger.Warn("Retrying provider request",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.String("last_error", lastErr.Error()),
			)
			metrics.ProviderRetries.WithLabelValues(op).Inc()
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, lastErr.timedOut(attempt)
			case <-timer.C:
			}
		}

		resp, err := c.send(ctx, op, method, path, body, headers)
		if err != nil {
			lastErr = &APIError{Op: op, Message: err.Error()}
			if ctx.Err() != nil {
				return nil, lastErr.timedOut(attempt + 1)
			}
			metrics.ProviderRequests.WithLabelValues(op, "network_error").Inc()
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			metrics.ProviderRequests.WithLabelValues(op, "success").Inc()
			return resp, nil
		}

		apiErr := readAPIError(op, resp)
		if !apiErr.Retryable() {
			metrics.ProviderRequests.WithLabelValues(op, "rejected").Inc()
			return nil, apiErr
		}
		metrics.ProviderRequests.WithLabelValues(op, "retryable_error").Inc()
		lastErr = apiErr
	}
	lastErr.Attempts = c.maxAttempts
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, op, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	endpoint := c.baseURL + path
	if c.apiVersion != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "api-version=" + url.QueryEscape(c.apiVersion)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	return resp, err
}

// backoff returns base * 2^n capped at maxDelay.
func (c *Client) backoff(n int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(n))
	return time.Duration(math.Min(delay, float64(c.maxDelay)))
}

func readAPIError(op string, resp *http.Response) *APIError {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{Op: op, StatusCode: resp.StatusCode}
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error.Message != "" {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// APIError describes a failed provider call. It matches domain.ErrExternalService.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Attempts   int
	Timeout    bool
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("provider " + e.Op)
	if e.Timeout {
		b.WriteString(": deadline exceeded")
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" (" + e.Code + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

// Is makes every APIError match domain.ErrExternalService.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrExternalService
}

// Retryable reports whether the failure is a network error, 429 or 5xx.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *APIError) timedOut(attempts int) *APIError {
	out := &APIError{Op: "request", Timeout: true, Attempts: attempts}
	if e != nil {
		out.Op = e.Op
		out.StatusCode = e.StatusCode
		out.Code = e.Code
		out.Message = e.Message
	}
	return out
}

// IsTimeout reports whether err is a provider deadline failure.
func IsTimeout(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Timeout
}
