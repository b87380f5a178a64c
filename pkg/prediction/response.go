package prediction

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/viacare/risk-assessor/internal/domain"
)

// classifyResponse turns one HTTP response into either a validated batch or a
// typed failure. Checks run in a fixed order: body decoding, success status,
// error envelope, rate limiting, then the generic fallback. A 429 is only
// retryable when it carries neither an error envelope nor a non-JSON body.
func classifyResponse(resp *rawResponse, expected int) (*domain.PredictionBatch, *domain.SubmissionError) {
	status := resp.statusCode

	var body predictResponse
	if isStructured(resp.contentType) {
		if err := json.Unmarshal(resp.body, &body); err != nil {
			return nil, domain.NewSubmissionError(
				domain.KindMalformedResponse, status,
				"prediction service declared a JSON response that could not be decoded",
				[]string{err.Error()}, err,
			)
		}
	} else if !isSuccess(status) {
		return nil, domain.NewSubmissionError(
			domain.KindUnstructuredHTTPFailure, status,
			fmt.Sprintf("HTTP %d without a JSON body; the prediction service may be down", status),
			nil, nil,
		)
	}

	if isSuccess(status) {
		batch, err := body.toBatch(expected)
		if err != nil {
			return nil, domain.NewSubmissionError(
				domain.KindContractViolation, status,
				"prediction response does not match the submitted visits",
				[]string{err.Error()}, err,
			)
		}
		return batch, nil
	}

	if body.isErrorEnvelope() {
		return nil, domain.NewSubmissionError(
			domain.KindServiceValidationError, status,
			body.Message,
			append([]string(nil), body.Details...),
			nil,
		)
	}

	if status == http.StatusTooManyRequests {
		return nil, domain.NewSubmissionError(
			domain.KindRateLimited, status,
			"prediction service is rate limiting requests",
			nil, nil,
		)
	}

	return nil, domain.NewSubmissionError(
		domain.KindUnclassifiedHTTPError, status,
		fmt.Sprintf("HTTP %d without error details", status),
		nil, nil,
	)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// isStructured reports whether the Content-Type declares a JSON body.
func isStructured(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
