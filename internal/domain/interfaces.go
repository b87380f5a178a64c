package domain

import (
	"context"
)

// PredictionSubmitter submits a visit sequence to the remote prediction service.
// Implementations return either a batch whose lengths match the sequence or a
// *SubmissionError.
type PredictionSubmitter interface {
	Submit(ctx context.Context, sequence ObservationSequence) (*PredictionBatch, error)
}

// SequenceValidator checks a sequence before it is submitted.
type SequenceValidator interface {
	ValidateSequence(sequence ObservationSequence) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetPredictionConfig() *PredictionConfig
	GetAssessmentConfig() *AssessmentConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
