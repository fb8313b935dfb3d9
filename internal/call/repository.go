package call

import (
	"context"
	"errors"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrOutboundCallNotFound      = errors.New("outbound call not found")
	ErrInvalidOutboundCallResult = errors.New("invalid result type, it should be pointer to OutboundCall struct")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrOutboundCallNotFound)
	}

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Save records outboundCall. A second save for the same job overwrites it.
func (callRepository *Repository) Save(ctx context.Context, outboundCall *OutboundCall) error {
	_, err := callRepository.CircuitBreaker.Execute(func() (any, error) {
		err := callRepository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "job_id"}},
				UpdateAll: true,
			}).
			Create(outboundCall).Error
		if err != nil {
			logging.Logger.Error("[Save] Failed to save outbound call - may cause circuit breaker trip",
				zap.String("job_id", outboundCall.JobID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return outboundCall, nil
	})

	return err
}

func (callRepository *Repository) Get(ctx context.Context, jobID string) (*OutboundCall, error) {
	result, err := callRepository.CircuitBreaker.Execute(func() (any, error) {
		var outboundCall OutboundCall

		err := callRepository.DBConn.WithContext(ctx).
			Where("job_id = ?", jobID).
			First(&outboundCall).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOutboundCallNotFound
		}

		if err != nil {
			logging.Logger.Error("[Get] Failed to fetch outbound call - may cause circuit breaker trip",
				zap.String("job_id", jobID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return &outboundCall, nil
	})
	if err != nil {
		return nil, err
	}

	outboundCall, ok := result.(*OutboundCall)
	if !ok {
		return nil, ErrInvalidOutboundCallResult
	}

	return outboundCall, nil
}

// Customer returns the name and phone the job was placed for.
func (callRepository *Repository) Customer(ctx context.Context, jobID string) (string, string, bool) {
	outboundCall, err := callRepository.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, ErrOutboundCallNotFound) {
			logging.Logger.Warn("[Customer] Call memory unavailable",
				zap.String("job_id", jobID),
				zap.String("error", err.Error()),
			)
		}

		return "", "", false
	}

	return outboundCall.CustomerName, outboundCall.PhoneNumber, true
}
