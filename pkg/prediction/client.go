// Package prediction implements the client of the remote maternal health risk
// prediction service. A submission posts the whole visit sequence in a single
// request, classifies every failure into a domain.SubmissionError and retries
// only rate-limited attempts, with exponential backoff.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/viacare/risk-assessor/internal/domain"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = time.Second
	maxResponseBytes   = 10 << 20
)

// SleepFunc blocks for d or until ctx is done, whichever comes first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Recorder receives per-attempt and per-submission measurements.
// An empty kind means success.
type Recorder interface {
	RecordAttempt(kind domain.ErrorKind)
	RecordBackoff(delay time.Duration)
	RecordSubmission(kind domain.ErrorKind, attempts int, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt(domain.ErrorKind)                        {}
func (noopRecorder) RecordBackoff(time.Duration)                           {}
func (noopRecorder) RecordSubmission(domain.ErrorKind, int, time.Duration) {}

// Client submits observation sequences to the prediction service.
// It is safe for concurrent use, although callers are expected to keep at most
// one submission in flight per patient.
type Client struct {
	endpoint    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	maxAttempts int
	backoffBase time.Duration
	sleep       SleepFunc
	recorder    Recorder
	logger      *logrus.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSleeper replaces the function used to wait between attempts.
func WithSleeper(sleep SleepFunc) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// NewClient creates a new prediction service client
func NewClient(config domain.PredictionConfig, logger *logrus.Logger, opts ...Option) (*Client, error) {
	endpoint, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid prediction base URL: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("prediction base URL must be http or https, got %q", config.BaseURL)
	}

	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaultBackoffBase
	}
	if logger == nil {
		logger = logrus.New()
	}

	c := &Client{
		endpoint: endpoint.String(),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		maxAttempts: config.MaxAttempts,
		backoffBase: config.BackoffBase,
		sleep:       sleepContext,
		recorder:    noopRecorder{},
		logger:      logger,
	}

	if config.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	if config.CircuitBreaker.Enabled {
		c.breaker = newCircuitBreaker(config.CircuitBreaker, logger)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Submit posts the sequence and returns one score and one contribution set per
// visit. Rate-limited attempts are retried after 2^attempt * backoff base; every
// other failure is returned at once. Cancelling ctx stops the loop without
// applying a further delay.
func (c *Client) Submit(ctx context.Context, sequence domain.ObservationSequence) (*domain.PredictionBatch, error) {
	start := time.Now()
	requestID := uuid.NewString()

	payload, err := json.Marshal(predictRequest{Visits: nonNil(sequence)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode prediction request: %w", err)
	}

	log := c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"visits":     len(sequence),
	})

	var lastErr *domain.SubmissionError
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, c.finish(log, start, attempt, cancelledError(ctx.Err()))
		}

		batch, subErr := c.attempt(ctx, payload, len(sequence), requestID)
		if subErr == nil {
			c.recorder.RecordAttempt("")
			c.recorder.RecordSubmission("", attempt+1, time.Since(start))
			log.WithFields(logrus.Fields{
				"attempts":        attempt + 1,
				"processing_time": time.Since(start),
			}).Debug("Prediction submission succeeded")
			return batch, nil
		}

		c.recorder.RecordAttempt(subErr.Kind)
		lastErr = subErr

		if !subErr.Kind.Retryable() {
			return nil, c.finish(log, start, attempt+1, subErr)
		}
		if attempt == c.maxAttempts-1 {
			break
		}

		delay := c.backoff(attempt)
		log.WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"status_code": subErr.StatusCode,
			"delay":       delay,
		}).Warn("Prediction service rate limited the request, backing off")
		c.recorder.RecordBackoff(delay)

		if err := c.sleep(ctx, delay); err != nil {
			return nil, c.finish(log, start, attempt+1, cancelledError(err))
		}
	}

	exhausted := domain.NewSubmissionError(
		domain.KindRetriesExhausted,
		lastErr.StatusCode,
		fmt.Sprintf("prediction service still rate limiting after %d attempts", c.maxAttempts),
		nil,
		lastErr,
	)
	return nil, c.finish(log, start, c.maxAttempts, exhausted)
}

// backoff returns the delay applied after the given zero-based attempt.
func (c *Client) backoff(attempt int) time.Duration {
	return c.backoffBase * time.Duration(1<<uint(attempt))
}

// finish stamps the attempt count, records and logs a failed submission.
func (c *Client) finish(log *logrus.Entry, start time.Time, attempts int, subErr *domain.SubmissionError) *domain.SubmissionError {
	subErr.Attempts = attempts
	c.recorder.RecordSubmission(subErr.Kind, attempts, time.Since(start))
	log.WithFields(logrus.Fields{
		"attempts":    attempts,
		"kind":        subErr.Kind,
		"status_code": subErr.StatusCode,
	}).Warn("Prediction submission failed")
	return subErr
}

// attempt performs a single request and classifies its outcome.
func (c *Client) attempt(ctx context.Context, payload []byte, expected int, requestID string) (*domain.PredictionBatch, *domain.SubmissionError) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, cancelledError(err)
		}
	}

	resp, err := c.roundTrip(ctx, payload, requestID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelledError(ctx.Err())
		}
		return nil, domain.NewSubmissionError(
			domain.KindTransportUnreachable, 0,
			fmt.Sprintf("prediction service unreachable: %v", err),
			nil, err,
		)
	}

	return classifyResponse(resp, expected)
}

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	statusCode  int
	contentType string
	body        []byte
}

// errUpstreamFailure marks 5xx responses as breaker failures while still
// handing the response on for classification.
var errUpstreamFailure = errors.New("prediction service returned a server error")

// roundTrip sends the request, through the circuit breaker when one is configured.
func (c *Client) roundTrip(ctx context.Context, payload []byte, requestID string) (*rawResponse, error) {
	if c.breaker == nil {
		return c.doRequest(ctx, payload, requestID)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.doRequest(ctx, payload, requestID)
		if err != nil {
			return nil, err
		}
		if resp.statusCode >= http.StatusInternalServerError {
			return resp, errUpstreamFailure
		}
		return resp, nil
	})
	if err != nil && !errors.Is(err, errUpstreamFailure) {
		return nil, err
	}
	return out.(*rawResponse), nil
}

func (c *Client) doRequest(ctx context.Context, payload []byte, requestID string) (*rawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute prediction request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read prediction response: %w", err)
	}

	return &rawResponse{
		statusCode:  resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func cancelledError(cause error) *domain.SubmissionError {
	return domain.NewSubmissionError(
		domain.KindCancelled, 0,
		fmt.Sprintf("prediction submission cancelled: %v", cause),
		nil, cause,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func nonNil(sequence domain.ObservationSequence) []domain.Observation {
	if sequence == nil {
		return []domain.Observation{}
	}
	return sequence
}
