package deadletter

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidDeadLetterResult      = errors.New("invalid result type, it should be pointer to ReportDeadLetter")
	ErrInvalidDeadLetterSliceResult = errors.New("invalid result type, it should be slice of ReportDeadLetter")
	ErrInvalidClaimResult           = errors.New("invalid result type, it should be bool")
)

// PendingQuery selects dead letters that are due for another attempt. An
// in progress row whose claim is older than ClaimedBefore counts as abandoned
// and is due again.
type PendingQuery struct {
	Before        time.Time
	ClaimedBefore time.Time
	MaxRetries    int
	Limit         int
}

type GormRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewGormRepository(dbConn *gorm.DB) *GormRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &GormRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Upsert records a failure for callID. An existing row keeps its retry count
// and goes back to pending.
func (dlRepository *GormRepository) Upsert(ctx context.Context, callID, errMsg string, now time.Time) (*ReportDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		deadLetter := ReportDeadLetter{
			CallID:      callID,
			Error:       errMsg,
			Status:      StatusPending,
			LastRetryAt: &now,
		}

		err := dlRepository.DBConn.WithContext(ctx).
			Where("call_id = ?", callID).
			Assign(map[string]any{
				"error":         errMsg,
				"status":        StatusPending,
				"last_retry_at": &now,
			}).
			FirstOrCreate(&deadLetter).Error
		if err != nil {
			logging.Logger.Error("[Upsert] Failed to create dead letter record",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &deadLetter, nil
	})
	if err != nil {
		return nil, err
	}

	deadLetter, ok := result.(*ReportDeadLetter)
	if !ok {
		return nil, ErrInvalidDeadLetterResult
	}

	return deadLetter, nil
}

func (dlRepository *GormRepository) Pending(ctx context.Context, query PendingQuery) ([]ReportDeadLetter, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []ReportDeadLetter

		err := dlRepository.DBConn.WithContext(ctx).
			Where(
				"((status = ? AND last_retry_at <= ?) OR (status = ? AND last_retry_at <= ?)) AND retry_count < ?",
				StatusPending,
				query.Before,
				StatusInProgress,
				query.ClaimedBefore,
				query.MaxRetries,
			).
			Order("created_at ASC").
			Limit(query.Limit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Error("[Pending] Failed to fetch dead letters", zap.String("error", err.Error()))
			return nil, err
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]ReportDeadLetter)
	if !ok {
		return nil, ErrInvalidDeadLetterSliceResult
	}

	return records, nil
}

// Claim moves a pending dead letter, or one whose claim was taken before
// claimedBefore, to in progress and stamps last_retry_at with now. It returns
// false when another worker holds a live claim.
func (dlRepository *GormRepository) Claim(ctx context.Context, callID string, now, claimedBefore time.Time) (bool, error) {
	result, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		tx := dlRepository.DBConn.WithContext(ctx).
			Model(&ReportDeadLetter{}).
			Where(
				"call_id = ? AND (status = ? OR (status = ? AND last_retry_at <= ?))",
				callID,
				StatusPending,
				StatusInProgress,
				claimedBefore,
			).
			Updates(map[string]any{
				"status":        StatusInProgress,
				"last_retry_at": now,
			})
		if tx.Error != nil {
			return nil, tx.Error
		}

		return tx.RowsAffected == 1, nil
	})
	if err != nil {
		return false, err
	}

	claimed, ok := result.(bool)
	if !ok {
		return false, ErrInvalidClaimResult
	}

	return claimed, nil
}

func (dlRepository *GormRepository) IncreaseRetryCount(ctx context.Context, callID, errMsg string, now time.Time) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": now,
			"status":        StatusPending,
			"error":         errMsg,
		}

		err := dlRepository.DBConn.WithContext(ctx).
			Model(&ReportDeadLetter{}).
			Where("call_id = ?", callID).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("[IncreaseRetryCount] Failed to increase dead letter retry count",
				zap.String("call_id", callID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return nil, nil
	})

	return err
}

func (dlRepository *GormRepository) Delete(ctx context.Context, callID string) error {
	_, err := dlRepository.CircuitBreaker.Execute(func() (any, error) {
		err := dlRepository.DBConn.WithContext(ctx).
			Where("call_id = ?", callID).
			Delete(&ReportDeadLetter{}).
			Error

		return nil, err
	})

	return err
}
