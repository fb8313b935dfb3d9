package deadletter

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"go.uber.org/zap"
)

type Repository interface {
	Upsert(ctx context.Context, callID, errMsg string, now time.Time) (*ReportDeadLetter, error)
	Pending(ctx context.Context, query PendingQuery) ([]ReportDeadLetter, error)
	Claim(ctx context.Context, callID string, now, claimedBefore time.Time) (bool, error)
	IncreaseRetryCount(ctx context.Context, callID, errMsg string, now time.Time) error
	Delete(ctx context.Context, callID string) error
}

// Regenerator produces and saves the report for a call.
type Regenerator interface {
	Regenerate(ctx context.Context, callID string) error
}

const (
	// DefaultClaimLease is how long a claim holds before another worker may
	// take the dead letter over.
	DefaultClaimLease = 15 * time.Minute

	settleTimeout = 30 * time.Second
)

type Service struct {
	Repository Repository
	Reports    Regenerator
	ClaimLease time.Duration
	now        func() time.Time
}

func NewService(repository Repository, reports Regenerator) *Service {
	return &Service{
		Repository: repository,
		Reports:    reports,
		ClaimLease: DefaultClaimLease,
		now:        time.Now,
	}
}

func (dlService *Service) claimedBefore(now time.Time) time.Time {
	return now.Add(-dlService.ClaimLease)
}

// RecordFailure keeps callID for a later regeneration attempt.
func (dlService *Service) RecordFailure(ctx context.Context, callID string, cause error) error {
	_, err := dlService.Repository.Upsert(ctx, callID, cause.Error(), dlService.now().UTC())
	if err != nil {
		return err
	}

	logging.Logger.Info("Report generation marked as dead letter",
		zap.String("call_id", callID),
		zap.String("cause", cause.Error()),
	)

	return nil
}

// Process retries one dead letter. A success removes it; a failure counts
// against its retry budget. The outcome is written even when ctx is done, so
// a cancelled attempt does not leave the row in progress.
func (dlService *Service) Process(ctx context.Context, deadLetter ReportDeadLetter) {
	now := dlService.now().UTC()

	claimed, err := dlService.Repository.Claim(ctx, deadLetter.CallID, now, dlService.claimedBefore(now))
	if err != nil {
		logging.Logger.Error("[Process] Failed to claim dead letter",
			zap.String("call_id", deadLetter.CallID),
			zap.String("error", err.Error()),
		)

		return
	}

	if !claimed {
		logging.Logger.Debug("Dead letter already claimed", zap.String("call_id", deadLetter.CallID))
		return
	}

	err = dlService.Reports.Regenerate(ctx, deadLetter.CallID)

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err != nil {
		logging.Logger.Warn("[Process] Report regeneration failed again",
			zap.String("call_id", deadLetter.CallID),
			zap.Int("retry_count", deadLetter.RetryCount+1),
			zap.String("error", err.Error()),
		)

		countErr := dlService.Repository.IncreaseRetryCount(settleCtx, deadLetter.CallID, err.Error(), dlService.now().UTC())
		if countErr != nil {
			logging.Logger.Error("[Process] Failed to update dead letter",
				zap.String("call_id", deadLetter.CallID),
				zap.String("error", countErr.Error()),
			)
		}

		return
	}

	logging.Logger.Info("Dead letter report regenerated", zap.String("call_id", deadLetter.CallID))

	err = dlService.Repository.Delete(settleCtx, deadLetter.CallID)
	if err != nil {
		logging.Logger.Error("[Process] Failed to delete processed dead letter",
			zap.String("call_id", deadLetter.CallID),
			zap.String("error", err.Error()),
		)
	}
}
