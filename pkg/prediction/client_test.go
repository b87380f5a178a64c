package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viacare/risk-assessor/internal/domain"
)

type cannedResponse struct {
	status      int
	contentType string
	body        string
}

// newSequenceServer replies with the given responses in order, repeating the
// last one once the list is exhausted.
func newSequenceServer(t *testing.T, responses ...cannedResponse) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		resp := responses[n]
		if resp.contentType != "" {
			w.Header().Set("Content-Type", resp.contentType)
		}
		w.WriteHeader(resp.status)
		fmt.Fprint(w, resp.body)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

type countingRecorder struct {
	attempts    []domain.ErrorKind
	backoffs    []time.Duration
	submissions []domain.ErrorKind
}

func (r *countingRecorder) RecordAttempt(kind domain.ErrorKind) {
	r.attempts = append(r.attempts, kind)
}

func (r *countingRecorder) RecordBackoff(delay time.Duration) {
	r.backoffs = append(r.backoffs, delay)
}

func (r *countingRecorder) RecordSubmission(kind domain.ErrorKind, _ int, _ time.Duration) {
	r.submissions = append(r.submissions, kind)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSequence(n int) domain.ObservationSequence {
	seq := make(domain.ObservationSequence, n)
	for i := range seq {
		seq[i] = domain.DefaultObservation()
		seq[i].SystolicBP = 120 + float64(10*i)
	}
	return seq
}

func successBody(n int) string {
	predictions := make([]float64, n)
	explanations := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		predictions[i] = 1.0 + float64(i)*0.5
		explanations[i] = map[string]interface{}{
			"base_value": 1.6,
			"contributions": map[string]float64{
				"HeartRate":   0.02,
				"Age":         -0.05,
				"SystolicBP":  0.3,
				"DiastolicBP": 0.1,
				"BS":          0.25,
				"BodyTemp":    -0.01,
			},
		}
	}
	body, _ := json.Marshal(map[string]interface{}{
		"status":            "success",
		"predictions":       predictions,
		"shap_explanations": explanations,
	})
	return string(body)
}

func newTestClient(t *testing.T, baseURL string, cfg domain.PredictionConfig, opts ...Option) *Client {
	t.Helper()
	cfg.BaseURL = baseURL
	client, err := NewClient(cfg, testLogger(), opts...)
	require.NoError(t, err)
	return client
}

func TestClient_SubmitSuccess(t *testing.T) {
	var received predictRequest
	var requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		requestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successBody(2))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, domain.PredictionConfig{})
	batch, err := client.Submit(context.Background(), testSequence(2))
	require.NoError(t, err)

	assert.NotEmpty(t, requestID)
	require.Len(t, received.Visits, 2)
	assert.Equal(t, 130.0, received.Visits[1].SystolicBP)

	require.Equal(t, 2, batch.Len())
	assert.Equal(t, []float64{1.0, 1.5}, batch.Predictions)
	require.Len(t, batch.Contributions, 2)
	assert.Equal(t, 1.6, batch.Contributions[0].BaseValue)

	order := make([]domain.FeatureKey, 0, 6)
	for _, c := range batch.Contributions[0].Contributions {
		order = append(order, c.Feature)
	}
	assert.Equal(t, []domain.FeatureKey{
		domain.FeatureAge, domain.FeatureSystolicBP, domain.FeatureDiastolicBP,
		domain.FeatureBloodSugar, domain.FeatureBodyTemp, domain.FeatureHeartRate,
	}, order)
}

func TestClient_RequestUsesSchemaKeys(t *testing.T) {
	var raw map[string][]map[string]float64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successBody(1))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, domain.PredictionConfig{})
	_, err := client.Submit(context.Background(), testSequence(1))
	require.NoError(t, err)

	require.Len(t, raw["visits"], 1)
	visit := raw["visits"][0]
	assert.Len(t, visit, len(domain.ObservationSchema))
	for _, f := range domain.ObservationSchema {
		_, ok := visit[string(f.Key)]
		assert.True(t, ok, "missing key %s", f.Key)
	}
}

func TestClient_RetriesRateLimitedAttempts(t *testing.T) {
	rateLimited := cannedResponse{status: http.StatusTooManyRequests, contentType: "application/json", body: `{}`}
	server, hits := newSequenceServer(t,
		rateLimited,
		rateLimited,
		cannedResponse{status: http.StatusOK, contentType: "application/json", body: successBody(3)},
	)

	sleeper := &sleepRecorder{}
	recorder := &countingRecorder{}
	client := newTestClient(t, server.URL, domain.PredictionConfig{},
		WithSleeper(sleeper.sleep), WithRecorder(recorder))

	batch, err := client.Submit(context.Background(), testSequence(3))
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Len())

	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, []domain.ErrorKind{domain.KindRateLimited, domain.KindRateLimited, ""}, recorder.attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, recorder.backoffs)
	assert.Equal(t, []domain.ErrorKind{""}, recorder.submissions)
}

func TestClient_RateLimitIsTerminalWhenBodyExplainsIt(t *testing.T) {
	tests := []struct {
		name          string
		response      cannedResponse
		expectKind    domain.ErrorKind
		expectMessage string
		expectDetails []string
	}{
		{
			name: "error envelope",
			response: cannedResponse{status: http.StatusTooManyRequests, contentType: "application/json",
				body: `{"status":"error","message":"Quota exceeded for this clinic.","details":["Visit #1: retry tomorrow"]}`},
			expectKind:    domain.KindServiceValidationError,
			expectMessage: "Quota exceeded for this clinic.",
			expectDetails: []string{"Visit #1: retry tomorrow"},
		},
		{
			name:       "plain text body",
			response:   cannedResponse{status: http.StatusTooManyRequests, contentType: "text/plain", body: "slow down"},
			expectKind: domain.KindUnstructuredHTTPFailure,
		},
		{
			name:       "HTML body",
			response:   cannedResponse{status: http.StatusTooManyRequests, contentType: "text/html", body: "<h1>429</h1>"},
			expectKind: domain.KindUnstructuredHTTPFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, hits := newSequenceServer(t,
				tt.response,
				cannedResponse{status: http.StatusOK, contentType: "application/json", body: successBody(1)},
			)

			sleeper := &sleepRecorder{}
			client := newTestClient(t, server.URL, domain.PredictionConfig{}, WithSleeper(sleeper.sleep))

			batch, err := client.Submit(context.Background(), testSequence(1))
			require.Error(t, err)
			assert.Nil(t, batch)

			var subErr *domain.SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.expectKind, subErr.Kind)
			assert.Equal(t, http.StatusTooManyRequests, subErr.StatusCode)
			if tt.expectMessage != "" {
				assert.Equal(t, tt.expectMessage, subErr.Message)
			}
			assert.Equal(t, tt.expectDetails, subErr.Details)

			assert.Equal(t, int32(1), atomic.LoadInt32(hits))
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestClient_RetriesExhausted(t *testing.T) {
	server, hits := newSequenceServer(t,
		cannedResponse{status: http.StatusTooManyRequests, contentType: "application/json",
			body: `{"message":"Too many requests"}`},
	)

	sleeper := &sleepRecorder{}
	client := newTestClient(t, server.URL, domain.PredictionConfig{}, WithSleeper(sleeper.sleep))

	batch, err := client.Submit(context.Background(), testSequence(2))
	require.Error(t, err)
	assert.Nil(t, batch)

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, domain.KindRetriesExhausted, subErr.Kind)
	assert.Equal(t, http.StatusTooManyRequests, subErr.StatusCode)
	assert.Equal(t, 3, subErr.Attempts)
	assert.True(t, domain.IsKind(subErr.Unwrap(), domain.KindRateLimited))

	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestClient_BackoffFormula(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", domain.PredictionConfig{BackoffBase: 1000 * time.Millisecond})
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		assert.Equal(t, want, client.backoff(i))
	}
}

func TestClient_RealSleeperWaitsBetweenAttempts(t *testing.T) {
	rateLimited := cannedResponse{status: http.StatusTooManyRequests, contentType: "application/json", body: `{}`}
	server, _ := newSequenceServer(t,
		rateLimited,
		rateLimited,
		cannedResponse{status: http.StatusOK, contentType: "application/json", body: successBody(1)},
	)

	client := newTestClient(t, server.URL, domain.PredictionConfig{BackoffBase: 10 * time.Millisecond})

	start := time.Now()
	_, err := client.Submit(context.Background(), testSequence(1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestClient_TerminalFailures(t *testing.T) {
	tests := []struct {
		name          string
		response      cannedResponse
		visits        int
		expectKind    domain.ErrorKind
		expectStatus  int
		expectMessage string
		expectDetails []string
	}{
		{
			name:         "malformed JSON body",
			response:     cannedResponse{status: http.StatusInternalServerError, contentType: "application/json", body: "<html>oops</html>"},
			visits:       1,
			expectKind:   domain.KindMalformedResponse,
			expectStatus: http.StatusInternalServerError,
		},
		{
			name:         "malformed JSON on success status",
			response:     cannedResponse{status: http.StatusOK, contentType: "application/json; charset=utf-8", body: `{"predictions": [1.2,`},
			visits:       1,
			expectKind:   domain.KindMalformedResponse,
			expectStatus: http.StatusOK,
		},
		{
			name:         "HTML error page",
			response:     cannedResponse{status: http.StatusBadGateway, contentType: "text/html", body: "<h1>Bad Gateway</h1>"},
			visits:       1,
			expectKind:   domain.KindUnstructuredHTTPFailure,
			expectStatus: http.StatusBadGateway,
		},
		{
			name:         "no content type on failure",
			response:     cannedResponse{status: http.StatusNotFound, body: "not found"},
			visits:       1,
			expectKind:   domain.KindUnstructuredHTTPFailure,
			expectStatus: http.StatusNotFound,
		},
		{
			name: "service validation envelope",
			response: cannedResponse{status: http.StatusBadRequest, contentType: "application/json",
				body: `{"status":"error","message":"Invalid visit data.","details":["Visit #1, feature 'Age': out of range","Visit #2: missing HeartRate"]}`},
			visits:        2,
			expectKind:    domain.KindServiceValidationError,
			expectStatus:  http.StatusBadRequest,
			expectMessage: "Invalid visit data.",
			expectDetails: []string{"Visit #1, feature 'Age': out of range", "Visit #2: missing HeartRate"},
		},
		{
			name: "envelope on server error",
			response: cannedResponse{status: http.StatusInternalServerError, contentType: "application/problem+json",
				body: `{"status":"error","message":"Model failure"}`},
			visits:        1,
			expectKind:    domain.KindServiceValidationError,
			expectStatus:  http.StatusInternalServerError,
			expectMessage: "Model failure",
		},
		{
			name:         "JSON failure without envelope",
			response:     cannedResponse{status: http.StatusForbidden, contentType: "application/json", body: `{"detail":"forbidden"}`},
			visits:       1,
			expectKind:   domain.KindUnclassifiedHTTPError,
			expectStatus: http.StatusForbidden,
		},
		{
			name: "predictions shorter than explanations",
			response: cannedResponse{status: http.StatusOK, contentType: "application/json",
				body: `{"predictions":[1.2],"shap_explanations":[{"base_value":1,"contributions":{"Age":0.1}},{"base_value":1,"contributions":{"Age":0.2}}]}`},
			visits:       2,
			expectKind:   domain.KindContractViolation,
			expectStatus: http.StatusOK,
		},
		{
			name:         "missing explanations",
			response:     cannedResponse{status: http.StatusOK, contentType: "application/json", body: `{"predictions":[1.2]}`},
			visits:       1,
			expectKind:   domain.KindContractViolation,
			expectStatus: http.StatusOK,
		},
		{
			name:         "null predictions",
			response:     cannedResponse{status: http.StatusOK, contentType: "application/json", body: `{"predictions":null,"shap_explanations":[]}`},
			visits:       0,
			expectKind:   domain.KindContractViolation,
			expectStatus: http.StatusOK,
		},
		{
			name:         "fewer results than visits",
			response:     cannedResponse{status: http.StatusOK, contentType: "application/json", body: successBody(2)},
			visits:       3,
			expectKind:   domain.KindContractViolation,
			expectStatus: http.StatusOK,
		},
		{
			name: "contribution for unknown feature",
			response: cannedResponse{status: http.StatusOK, contentType: "application/json",
				body: `{"predictions":[1.2],"shap_explanations":[{"base_value":1,"contributions":{"Weight":0.1}}]}`},
			visits:       1,
			expectKind:   domain.KindContractViolation,
			expectStatus: http.StatusOK,
		},
		{
			name:         "success without JSON body",
			response:     cannedResponse{status: http.StatusOK, contentType: "text/plain", body: "ok"},
			visits:       1,
			expectKind:   domain.KindContractViolation,
			expectStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, hits := newSequenceServer(t, tt.response)
			sleeper := &sleepRecorder{}
			client := newTestClient(t, server.URL, domain.PredictionConfig{}, WithSleeper(sleeper.sleep))

			batch, err := client.Submit(context.Background(), testSequence(tt.visits))
			require.Error(t, err)
			assert.Nil(t, batch)

			var subErr *domain.SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.expectKind, subErr.Kind)
			assert.Equal(t, tt.expectStatus, subErr.StatusCode)
			assert.Equal(t, 1, subErr.Attempts)
			assert.NotEmpty(t, subErr.Message)
			if tt.expectMessage != "" {
				assert.Equal(t, tt.expectMessage, subErr.Message)
			}
			if tt.expectDetails != nil {
				assert.Equal(t, tt.expectDetails, subErr.Details)
			}
			if tt.expectKind == domain.KindMalformedResponse || tt.expectKind == domain.KindContractViolation {
				assert.NotEmpty(t, subErr.Details, "decode or contract detail should be carried")
			}

			assert.Equal(t, int32(1), atomic.LoadInt32(hits), "terminal failures must not be retried")
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestClient_TransportUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	sleeper := &sleepRecorder{}
	client := newTestClient(t, url, domain.PredictionConfig{Timeout: time.Second}, WithSleeper(sleeper.sleep))

	_, err := client.Submit(context.Background(), testSequence(1))
	require.Error(t, err)

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, domain.KindTransportUnreachable, subErr.Kind)
	assert.Zero(t, subErr.StatusCode)
	assert.Equal(t, 1, subErr.Attempts)
	assert.Empty(t, sleeper.delays)
}

func TestClient_CancelledDuringBackoff(t *testing.T) {
	server, hits := newSequenceServer(t,
		cannedResponse{status: http.StatusTooManyRequests, contentType: "application/json", body: `{}`},
	)

	ctx, cancel := context.WithCancel(context.Background())
	var slept []time.Duration
	cancelOnSleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		cancel()
		return ctx.Err()
	}

	client := newTestClient(t, server.URL, domain.PredictionConfig{}, WithSleeper(cancelOnSleep))
	_, err := client.Submit(ctx, testSequence(1))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindCancelled))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Len(t, slept, 1)
}

func TestClient_CancelledBeforeSubmit(t *testing.T) {
	server, hits := newSequenceServer(t,
		cannedResponse{status: http.StatusTooManyRequests, contentType: "application/json", body: `{}`},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sleeper := &sleepRecorder{}
	client := newTestClient(t, server.URL, domain.PredictionConfig{}, WithSleeper(sleeper.sleep))
	_, err := client.Submit(ctx, testSequence(1))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindCancelled))
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
	assert.Empty(t, sleeper.delays, "a cancelled submission must not wait")
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	server, hits := newSequenceServer(t,
		cannedResponse{status: http.StatusServiceUnavailable, contentType: "text/html", body: "down"},
	)

	client := newTestClient(t, server.URL, domain.PredictionConfig{
		CircuitBreaker: domain.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			Timeout:          time.Minute,
		},
	})

	for i := 0; i < 2; i++ {
		_, err := client.Submit(context.Background(), testSequence(1))
		assert.True(t, domain.IsKind(err, domain.KindUnstructuredHTTPFailure), "attempt %d: %v", i, err)
	}

	_, err := client.Submit(context.Background(), testSequence(1))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindTransportUnreachable))
	assert.True(t, strings.Contains(err.Error(), "open"))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestClient_CircuitBreakerIgnoresClientErrors(t *testing.T) {
	server, hits := newSequenceServer(t,
		cannedResponse{status: http.StatusBadRequest, contentType: "application/json",
			body: `{"status":"error","message":"bad visit"}`},
	)

	client := newTestClient(t, server.URL, domain.PredictionConfig{
		CircuitBreaker: domain.CircuitBreakerConfig{Enabled: true, FailureThreshold: 1},
	})

	for i := 0; i < 3; i++ {
		_, err := client.Submit(context.Background(), testSequence(1))
		assert.True(t, domain.IsKind(err, domain.KindServiceValidationError))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/predict", "://bad"} {
		_, err := NewClient(domain.PredictionConfig{BaseURL: raw}, testLogger())
		assert.Error(t, err, "base URL %q", raw)
	}
}

func TestIsStructured(t *testing.T) {
	tests := map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"application/problem+json":        true,
		"Application/JSON":                true,
		"text/html":                       false,
		"text/plain; charset=utf-8":       false,
		"":                                false,
	}
	for contentType, want := range tests {
		assert.Equal(t, want, isStructured(contentType), contentType)
	}
}
