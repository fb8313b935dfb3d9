package healthchecker

import (
	"context"
	"maps"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"go.uber.org/zap"
)

// Check probes one dependency. nil means healthy.
type Check func(ctx context.Context) error

// Healthchecker tracks services whose circuit breaker opened and probes
// them until they answer again.
type Healthchecker struct {
	Checks       map[string]Check
	Interval     time.Duration
	CheckTimeout time.Duration

	mu       sync.RWMutex
	degraded map[string]string
	wg       sync.WaitGroup
}

func NewService(checks map[string]Check) *Healthchecker {
	return &Healthchecker{
		Checks:       checks,
		Interval:     time.Duration(config.Conf.HealthCheckerMonitorInterval) * time.Second,
		CheckTimeout: 10 * time.Second,
		degraded:     make(map[string]string),
	}
}

// Monitor consumes breaker trips until ctx is done.
func (h *Healthchecker) Monitor(ctx context.Context) {
	logging.Logger.Info("health checker monitor start successfully")

	defer h.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case serviceName := <-circuitbreak.CircuitBreakChan:
			logging.Logger.Info("circuit break happened", zap.String("service", serviceName))
			h.TriggerError(ctx, serviceName)
		}
	}
}

// TriggerError marks service degraded and starts probing it. A service that
// is already being probed is left alone.
func (h *Healthchecker) TriggerError(ctx context.Context, service string) {
	h.mu.Lock()
	_, probing := h.degraded[service]
	h.degraded[service] = "circuit breaker open"
	h.mu.Unlock()

	if probing {
		return
	}

	check, ok := h.Checks[service]
	if !ok {
		logging.Logger.Warn("No health check for service, it stays degraded until restart",
			zap.String("service", service),
		)

		return
	}

	h.wg.Add(1)

	go func() {
		defer h.wg.Done()
		defer handlePanic()

		h.probe(ctx, service, check)
	}()
}

func (h *Healthchecker) probe(ctx context.Context, service string, check Check) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.runCheck(ctx, service, check) {
				return
			}
		}
	}
}

func (h *Healthchecker) runCheck(ctx context.Context, service string, check Check) bool {
	checkCtx, cancel := context.WithTimeout(ctx, h.CheckTimeout)
	defer cancel()

	err := check(checkCtx)
	if err != nil {
		h.mu.Lock()
		h.degraded[service] = err.Error()
		h.mu.Unlock()

		logging.Logger.Warn("service still unhealthy",
			zap.String("service", service),
			zap.String("error", err.Error()),
		)

		return false
	}

	h.mu.Lock()
	delete(h.degraded, service)
	h.mu.Unlock()

	logging.Logger.Info(service + " service back healthy")

	return true
}

// Degraded returns the unhealthy services with their last known problem.
func (h *Healthchecker) Degraded() map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return maps.Clone(h.degraded)
}

func handlePanic() {
	r := recover()
	if r != nil {
		logging.Logger.Error("Recovered from panic in health probe", zap.Any("panic", r))
	}
}
