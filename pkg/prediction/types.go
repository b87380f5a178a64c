package prediction

import (
	"fmt"

	"github.com/viacare/risk-assessor/internal/domain"
)

// predictRequest is the document posted to the prediction endpoint.
type predictRequest struct {
	Visits []domain.Observation `json:"visits"`
}

// predictResponse covers both the success document and the error envelope.
// Absent arrays decode to nil, which is how missing fields are detected.
type predictResponse struct {
	Status       string               `json:"status,omitempty"`
	Message      string               `json:"message,omitempty"`
	Details      []string             `json:"details,omitempty"`
	Predictions  []float64            `json:"predictions"`
	Explanations []explanationPayload `json:"shap_explanations"`
}

// explanationPayload is one observation's contribution set on the wire.
type explanationPayload struct {
	BaseValue     float64            `json:"base_value"`
	Contributions map[string]float64 `json:"contributions"`
}

// isErrorEnvelope reports whether the body carries an explicit service error.
func (r *predictResponse) isErrorEnvelope() bool {
	return r.Status == "error" && r.Message != ""
}

// toBatch checks the success document against the submitted sequence and
// converts it to domain types.
func (r *predictResponse) toBatch(expected int) (*domain.PredictionBatch, error) {
	if r.Predictions == nil {
		return nil, fmt.Errorf("response has no predictions array")
	}
	if r.Explanations == nil {
		return nil, fmt.Errorf("response has no shap_explanations array")
	}
	if len(r.Predictions) != len(r.Explanations) {
		return nil, fmt.Errorf("predictions (%d) and shap_explanations (%d) differ in length",
			len(r.Predictions), len(r.Explanations))
	}
	if len(r.Predictions) != expected {
		return nil, fmt.Errorf("expected %d predictions for %d submitted visits, got %d",
			expected, expected, len(r.Predictions))
	}

	batch := &domain.PredictionBatch{
		Predictions:   make([]float64, len(r.Predictions)),
		Contributions: make([]domain.ContributionSet, 0, len(r.Explanations)),
	}
	copy(batch.Predictions, r.Predictions)

	for i, explanation := range r.Explanations {
		if explanation.Contributions == nil {
			return nil, fmt.Errorf("explanation %d has no contributions", i)
		}
		set, err := domain.NewContributionSet(explanation.BaseValue, explanation.Contributions)
		if err != nil {
			return nil, fmt.Errorf("explanation %d: %w", i, err)
		}
		batch.Contributions = append(batch.Contributions, set)
	}

	return batch, nil
}
