// Package transport dispatches provider requests with quota gating, client-side
// rate limiting, and exponential-backoff retry on transient upstream failures.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/finboard/finboard/internal/marketdata"
	"github.com/finboard/finboard/internal/observ"
	"github.com/finboard/finboard/internal/quota"
)

// Provider identifies one upstream REST API and how it is authenticated.
type Provider struct {
	Name         string
	BaseURL      string
	APIKey       string
	APIKeyParam  string // query parameter name, e.g. "apikey"
	APIKeyHeader string // header name, e.g. "x-cg-demo-api-key"
}

// Request is one logical call against a provider endpoint.
type Request struct {
	Path        string
	Params      url.Values
	SubCategory string // quota bucket, e.g. "quote", "search"
	Symbol      string // for error context only
}

// Config holds transport tuning knobs.
type Config struct {
	RateLimitPerMinute int
	MaxRetries         int // total wire attempts per logical call
	BackoffBase        time.Duration
	Timeout            time.Duration
}

// RetryingTransport wraps outbound HTTP calls for a single provider.
type RetryingTransport struct {
	provider Provider
	config   Config
	client   *http.Client
	limiter  *rate.Limiter
	quota    *quota.Tracker
	log      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error // overridable in tests
}

// New creates a RetryingTransport. Zero config fields get defaults.
func New(provider Provider, q *quota.Tracker, config Config, log zerolog.Logger) *RetryingTransport {
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 30
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &RetryingTransport{
		provider: provider,
		config:   config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   3 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(float64(config.RateLimitPerMinute)/60), 1),
		quota:   q,
		log:     log.With().Str("component", "transport").Str("provider", provider.Name).Logger(),
		sleep:   sleepCtx,
	}
}

// Quota exposes the provider's tracker for snapshot reporting.
func (t *RetryingTransport) Quota() *quota.Tracker { return t.quota }

// Send issues the request, retrying 429/5xx/network failures with exponential
// backoff (base, 2x per retry) up to MaxRetries total attempts. The quota gate
// runs once per logical call, before any network activity; every wire attempt
// is still counted.
func (t *RetryingTransport) Send(ctx context.Context, req Request) ([]byte, error) {
	if !t.quota.TryConsume(req.SubCategory) {
		observ.IncCounter("transport_quota_blocked_total", map[string]string{"provider": t.provider.Name})
		return nil, marketdata.NewQuotaExceededError(req.Symbol, "daily request ceiling reached")
	}

	requestURL, err := t.buildURL(req)
	if err != nil {
		return nil, marketdata.NewNetworkError(req.Symbol, "invalid request", err)
	}

	var (
		lastErr    *marketdata.LookupError
		lastStatus int
		netErrOnly = true
	)

	for attempt := 1; attempt <= t.config.MaxRetries; attempt++ {
		if attempt > 1 {
			t.quota.Record(req.SubCategory)
			backoff := t.config.BackoffBase << (attempt - 2)
			observ.IncCounter("transport_retry_total", map[string]string{
				"provider": t.provider.Name, "sub_category": req.SubCategory,
			})
			if err := t.sleep(ctx, backoff); err != nil {
				return nil, marketdata.NewNetworkError(req.Symbol, "backoff wait cancelled", err)
			}
		}
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, marketdata.NewNetworkError(req.Symbol, "rate limit wait cancelled", err)
		}

		body, status, err := t.doAttempt(ctx, requestURL, req, attempt)
		if err != nil {
			lastErr = marketdata.NewNetworkError(req.Symbol, "request failed", err)
			lastStatus = 0
			continue
		}
		netErrOnly = false
		lastStatus = status

		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusTooManyRequests:
			t.quota.MarkUpstreamRateLimited()
			lastErr = marketdata.NewRateLimitedError(req.Symbol, "upstream rate limit exceeded")
		case status >= 500:
			lastErr = marketdata.NewUpstreamUnavailableError(req.Symbol, status,
				fmt.Sprintf("upstream returned %d", status))
		default:
			// Non-retryable 4xx: fail immediately with the body for diagnosis.
			return nil, marketdata.NewRequestRejectedError(req.Symbol, status, string(body))
		}
	}

	if netErrOnly {
		return nil, lastErr // NetworkError carrying the last cause
	}
	if lastStatus == http.StatusTooManyRequests {
		return nil, lastErr // RateLimited
	}
	return nil, marketdata.NewUpstreamUnavailableError(req.Symbol, lastStatus,
		fmt.Sprintf("retries exhausted, last status %d", lastStatus))
}

func (t *RetryingTransport) doAttempt(ctx context.Context, requestURL string, req Request, attempt int) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, err
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("Accept", "application/json")
	if t.provider.APIKeyHeader != "" && t.provider.APIKey != "" {
		httpReq.Header.Set(t.provider.APIKeyHeader, t.provider.APIKey)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.log.Warn().Str("request_id", requestID).Int("attempt", attempt).Err(err).Msg("attempt failed")
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	observ.RecordDuration("transport_attempt_latency", time.Since(start), map[string]string{
		"provider": t.provider.Name, "status": fmt.Sprintf("%d", resp.StatusCode),
	})
	t.log.Debug().
		Str("request_id", requestID).
		Str("path", req.Path).
		Int("attempt", attempt).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("attempt completed")

	return body, resp.StatusCode, nil
}

func (t *RetryingTransport) buildURL(req Request) (string, error) {
	u, err := url.Parse(t.provider.BaseURL)
	if err != nil {
		return "", err
	}
	u = u.JoinPath(req.Path)
	params := url.Values{}
	for k, vs := range req.Params {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if t.provider.APIKeyParam != "" && t.provider.APIKey != "" {
		params.Set(t.provider.APIKeyParam, t.provider.APIKey)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
