package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/viacare/risk-assessor/internal/domain"
)

// AssessmentRecorder receives the outcome of every assessment.
type AssessmentRecorder interface {
	RecordAssessment(assessment *domain.Assessment)
	RecordAssessmentFailure(err error)
}

type noopAssessmentRecorder struct{}

func (noopAssessmentRecorder) RecordAssessment(*domain.Assessment) {}
func (noopAssessmentRecorder) RecordAssessmentFailure(error)       {}

// AssessmentService validates a visit sequence, submits it for prediction and
// derives tiers, explanations and the trend summary from the results.
type AssessmentService struct {
	logger    *logrus.Logger
	submitter domain.PredictionSubmitter
	validator domain.SequenceValidator
	explainer *ExplanationGenerator
	trends    *TrendAnalyzer
	recorder  AssessmentRecorder
}

// NewAssessmentService creates a new assessment service. recorder may be nil.
func NewAssessmentService(
	logger *logrus.Logger,
	submitter domain.PredictionSubmitter,
	validator domain.SequenceValidator,
	config domain.AssessmentConfig,
	recorder AssessmentRecorder,
) *AssessmentService {
	if recorder == nil {
		recorder = noopAssessmentRecorder{}
	}
	if validator == nil {
		validator = NewObservationValidator(config.EnforceClinicalRanges)
	}
	return &AssessmentService{
		logger:    logger,
		submitter: submitter,
		validator: validator,
		explainer: NewExplanationGenerator(config.TopFactors),
		trends:    NewTrendAnalyzer(config.TrendThreshold),
		recorder:  recorder,
	}
}

// Assess runs one complete assessment. Validation failures are returned as
// domain.ValidationErrors or domain.ErrEmptySequence, prediction failures as
// *domain.SubmissionError.
func (s *AssessmentService) Assess(ctx context.Context, sequence domain.ObservationSequence) (*domain.Assessment, error) {
	startTime := time.Now()
	visits := sequence.Clone()

	log := s.logger.WithField("visits", len(visits))
	log.Info("Starting risk assessment")

	if err := s.validator.ValidateSequence(visits); err != nil {
		s.recorder.RecordAssessmentFailure(err)
		log.WithError(err).Warn("Visit sequence rejected")
		return nil, fmt.Errorf("invalid visit sequence: %w", err)
	}

	batch, err := s.submitter.Submit(ctx, visits)
	if err != nil {
		s.recorder.RecordAssessmentFailure(err)
		log.WithError(err).Error("Prediction failed")
		return nil, fmt.Errorf("prediction failed: %w", err)
	}
	if batch.Len() != len(visits) || len(batch.Contributions) != len(visits) {
		err := domain.NewSubmissionError(domain.KindContractViolation, 0,
			fmt.Sprintf("expected %d results, got %d predictions and %d contribution sets",
				len(visits), len(batch.Predictions), len(batch.Contributions)),
			nil, nil)
		s.recorder.RecordAssessmentFailure(err)
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	assessment := &domain.Assessment{
		ID:     uuid.NewString(),
		Visits: make([]domain.VisitAssessment, len(visits)),
	}
	for i, obs := range visits {
		assessment.Visits[i] = s.assessVisit(i, obs, batch.Predictions[i], batch.Contributions[i])
	}

	if summary := s.trends.Summarize(batch.Predictions); summary != nil {
		assessment.Summary = *summary
	}
	assessment.AssessedAt = time.Now().UTC()
	assessment.ProcessingTime = time.Since(startTime)

	s.recorder.RecordAssessment(assessment)
	log.WithFields(logrus.Fields{
		"assessment_id":   assessment.ID,
		"average_score":   assessment.Summary.AverageScore,
		"average_tier":    assessment.Summary.AverageTier,
		"trend":           assessment.Summary.Direction,
		"processing_time": assessment.ProcessingTime,
	}).Info("Risk assessment completed")

	return assessment, nil
}

func (s *AssessmentService) assessVisit(index int, obs domain.Observation, score float64, set domain.ContributionSet) domain.VisitAssessment {
	tier := domain.ClassifyRisk(score)
	top := s.explainer.TopFactors(obs, set)

	return domain.VisitAssessment{
		Index:             index + 1,
		Observation:       obs,
		Score:             score,
		Tier:              tier,
		BaseValue:         set.BaseValue,
		ContributionTotal: set.Total(),
		TopFactors:        top,
		Explanation:       s.explainer.Compose(tier, score, top),
	}
}
