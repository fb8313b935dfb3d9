package deadletter

import (
	"context"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type WorkerOptions struct {
	PoolSize   int
	Interval   time.Duration
	RetryDelay time.Duration
	MaxRetries int
	Limit      int
}

func WorkerOptionsFromConfig() WorkerOptions {
	return WorkerOptions{
		PoolSize:   config.Conf.DeadLetterPoolSize,
		Interval:   time.Duration(config.Conf.DeadLetterReportInterval) * time.Minute,
		RetryDelay: time.Duration(config.Conf.DeadLetterReportRetryDelay) * time.Minute,
		MaxRetries: config.Conf.DeadLetterReportMaxRetries,
		Limit:      config.Conf.DeadLetterReportLimit,
	}
}

type Worker struct {
	WorkerPool *ants.Pool
	Service    *Service
	Options    WorkerOptions
	waitGroup  sync.WaitGroup
}

func NewWorker(dlService *Service, options WorkerOptions) (*Worker, error) {
	workerPool, err := ants.NewPool(max(options.PoolSize, 1), ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Worker{
		WorkerPool: workerPool,
		Service:    dlService,
		Options:    options,
	}, nil
}

// Run retries due dead letters every interval until ctx is done, then waits
// for in-flight retries and releases the pool.
func (dlWorker *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(dlWorker.Options.Interval)
	defer ticker.Stop()

	defer dlWorker.WorkerPool.Release()
	defer dlWorker.waitGroup.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dlWorker.ProcessPending(ctx)
		}
	}
}

// ProcessPending submits every due dead letter to the pool. It returns the
// number submitted.
func (dlWorker *Worker) ProcessPending(ctx context.Context) int {
	now := dlWorker.Service.now().UTC()

	deadLetters, err := dlWorker.Service.Repository.Pending(ctx, PendingQuery{
		Before:        now.Add(-dlWorker.Options.RetryDelay),
		ClaimedBefore: dlWorker.Service.claimedBefore(now),
		MaxRetries:    dlWorker.Options.MaxRetries,
		Limit:         dlWorker.Options.Limit,
	})
	if err != nil {
		return 0
	}

	if len(deadLetters) == 0 {
		logging.Logger.Debug("No dead letters are due")
		return 0
	}

	logging.Logger.Info("Start processing dead letters", zap.Int("count", len(deadLetters)))

	submitted := 0

	for _, deadLetter := range deadLetters {
		dlWorker.waitGroup.Add(1)

		err := dlWorker.WorkerPool.Submit(func() {
			defer dlWorker.waitGroup.Done()

			dlWorker.Service.Process(ctx, deadLetter)
		})
		if err != nil {
			dlWorker.waitGroup.Done()

			logging.Logger.Error("Failed to submit dead letter to worker pool",
				zap.String("call_id", deadLetter.CallID),
				zap.String("error", err.Error()),
			)

			continue
		}

		submitted++
	}

	return submitted
}

// Wait blocks until submitted retries finish.
func (dlWorker *Worker) Wait() {
	dlWorker.waitGroup.Wait()
}
