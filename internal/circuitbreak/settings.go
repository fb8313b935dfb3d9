package circuitbreak

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// NewSettings builds breaker settings that trip after consecutiveFailures
// and report the open state for service.
func NewSettings(name, service string, intervalSeconds, consecutiveFailures uint32) gobreaker.Settings {
	return gobreaker.Settings{
		Name:     name,
		Interval: time.Duration(intervalSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			willTrip := counts.ConsecutiveFailures >= consecutiveFailures

			if willTrip {
				logging.Logger.Error("Circuit breaker about to trip",
					zap.String("service", service),
					zap.Uint32("total_requests", counts.Requests),
					zap.Uint32("total_failures", counts.TotalFailures),
					zap.Uint32("consecutive_failures", counts.ConsecutiveFailures),
					zap.Uint32("threshold", consecutiveFailures),
				)
			}

			return willTrip
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				TriggerError(service)
			}
		},
	}
}
