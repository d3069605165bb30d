package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/soundprediction/linkpath/pkg/alert"
	"github.com/soundprediction/linkpath/pkg/config"
	"github.com/soundprediction/linkpath/pkg/types"
)

// HTTPClient is the subset of *http.Client used by the transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration
	// MaxDelay caps the delay between retries
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// withDefaults fills unset fields.
func (r RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = d.InitialDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = d.MaxDelay
	}
	if r.BackoffMultiplier <= 0 {
		r.BackoffMultiplier = d.BackoffMultiplier
	}
	return r
}

// delay calculates the delay for a given retry attempt using exponential backoff
func (r RetryConfig) delay(attempt int) time.Duration {
	d := float64(r.InitialDelay) * math.Pow(r.BackoffMultiplier, float64(attempt-1))
	if d > float64(r.MaxDelay) {
		d = float64(r.MaxDelay)
	}
	return time.Duration(d)
}

// APIError is an error object returned in a MediaWiki response body.
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %s: %s", e.Code, e.Info)
}

// envelope is embedded in every response to capture API errors.
type envelope struct {
	Err *APIError `json:"error"`
}

func (e *envelope) apiError() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

type apiResponse interface {
	apiError() error
}

// transport issues GET requests against one API endpoint with rate
// limiting, circuit breaking and retries.
type transport struct {
	service   string
	endpoint  string
	client    HTTPClient
	userAgent string
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	retry     RetryConfig
	logger    *slog.Logger
}

type transportSettings struct {
	service           string
	endpoint          string
	client            HTTPClient
	userAgent         string
	requestsPerSecond float64
	burst             int
	retry             RetryConfig
	circuitBreaker    config.CircuitBreakerConfig
	alerter           alert.Alerter
	logger            *slog.Logger
}

func newTransport(s transportSettings) *transport {
	limit := rate.Inf
	if s.requestsPerSecond > 0 {
		limit = rate.Limit(s.requestsPerSecond)
	}
	burst := s.burst
	if burst <= 0 {
		burst = 1
	}

	t := &transport{
		service:   s.service,
		endpoint:  s.endpoint,
		client:    s.client,
		userAgent: s.userAgent,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     s.retry.withDefaults(),
		logger:    s.logger,
	}
	if s.circuitBreaker.Enabled {
		t.breaker = newBreaker(s.service, s.circuitBreaker, s.alerter, s.logger)
	}
	return t
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, alerter alert.Alerter, logger *slog.Logger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.Interval) * time.Second,
		Timeout:     time.Duration(cfg.Timeout) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen && alerter != nil {
				msg := fmt.Sprintf("Circuit Breaker '%s' changed status from %s to %s. Too many failures detected.", name, from, to)
				if err := alerter.Alert(fmt.Sprintf("URGENT: Circuit Breaker Tripped - %s", name), msg); err != nil {
					logger.Error("failed to send circuit breaker alert", "breaker", name, "error", err)
				}
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return gobreaker.NewCircuitBreaker(st)
}

// get performs one logical request, retrying transient failures. Every
// attempt is bounded by timeout. Failures are *types.RemoteFetchError.
func (t *transport) get(ctx context.Context, op, key string, timeout time.Duration, params url.Values, out apiResponse) error {
	var lastErr error

	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retry.delay(attempt)
			t.logger.Debug("retrying request", "service", t.service, "op", op, "key", key, "attempt", attempt, "delay", delay, "error", lastErr)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return types.NewRemoteFetchError(t.service, op, key, 0, ctx.Err())
			}
		}

		err := t.attempt(ctx, op, key, timeout, params, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !t.retryable(ctx, err) {
			return err
		}
	}

	return lastErr
}

func (t *transport) attempt(ctx context.Context, op, key string, timeout time.Duration, params url.Values, out apiResponse) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return types.NewRemoteFetchError(t.service, op, key, 0, err)
	}
	if t.breaker == nil {
		return t.do(ctx, op, key, timeout, params, out)
	}

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.do(ctx, op, key, timeout, params, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewRemoteFetchError(t.service, op, key, 0, err)
	}
	return err
}

func (t *transport) do(ctx context.Context, op, key string, timeout time.Duration, params url.Values, out apiResponse) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return types.NewRemoteFetchError(t.service, op, key, 0, err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return types.NewRemoteFetchError(t.service, op, key, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewRemoteFetchError(t.service, op, key, resp.StatusCode,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewRemoteFetchError(t.service, op, key, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	if err := out.apiError(); err != nil {
		return types.NewRemoteFetchError(t.service, op, key, resp.StatusCode, err)
	}
	return nil
}

// retryable reports whether err is worth another attempt: rate limiting,
// server errors and connection failures, as long as ctx is still live.
func (t *transport) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var rf *types.RemoteFetchError
	if !errors.As(err, &rf) {
		return false
	}
	switch {
	case rf.StatusCode == http.StatusTooManyRequests, rf.StatusCode >= 500:
		return true
	case rf.StatusCode == 0:
		return !errors.Is(err, context.Canceled)
	default:
		return false
	}
}
