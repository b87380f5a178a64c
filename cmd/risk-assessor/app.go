package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/viacare/risk-assessor/internal/config"
	"github.com/viacare/risk-assessor/internal/logging"
	"github.com/viacare/risk-assessor/internal/metrics"
	"github.com/viacare/risk-assessor/internal/service"
	"github.com/viacare/risk-assessor/pkg/prediction"
)

// application bundles the components shared by serve and assess.
type application struct {
	config   *config.Manager
	logger   *logrus.Logger
	metrics  *metrics.Manager
	assessor *service.AssessmentService
}

func newApplication(configFile string, extra ...prediction.Option) (*application, error) {
	configManager, err := config.NewManager(configFile)
	if err != nil {
		return nil, err
	}
	if err := configManager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := configManager.GetConfig()

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if used := configManager.ConfigFileUsed(); used != "" {
		logger.WithField("config_file", used).Debug("Loaded configuration file")
	}

	metricsManager := metrics.NewManager(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithHistogramBuckets(cfg.Metrics.LatencyBuckets),
	)

	opts := append([]prediction.Option{prediction.WithRecorder(metricsManager)}, extra...)
	client, err := prediction.NewClient(cfg.Prediction, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction client: %w", err)
	}

	validator := service.NewObservationValidator(cfg.Assessment.EnforceClinicalRanges)
	assessor := service.NewAssessmentService(logger, client, validator, cfg.Assessment, metricsManager)

	return &application{
		config:   configManager,
		logger:   logger,
		metrics:  metricsManager,
		assessor: assessor,
	}, nil
}
