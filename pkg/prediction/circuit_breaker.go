package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/viacare/risk-assessor/internal/domain"
)

const (
	defaultBreakerMaxRequests      = 1
	defaultBreakerInterval         = 60 * time.Second
	defaultBreakerTimeout          = 30 * time.Second
	defaultBreakerFailureThreshold = 5
)

// newCircuitBreaker trips after FailureThreshold consecutive transport errors
// or 5xx responses. Rate limiting and client errors do not count as failures.
func newCircuitBreaker(config domain.CircuitBreakerConfig, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = defaultBreakerMaxRequests
	}
	if config.Interval == 0 {
		config.Interval = defaultBreakerInterval
	}
	if config.Timeout == 0 {
		config.Timeout = defaultBreakerTimeout
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaultBreakerFailureThreshold
	}
	threshold := config.FailureThreshold

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "prediction-service",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}
