package report

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
	ErrReportNotFound       = errors.New("report not found")
	ErrInvalidReportResult  = errors.New("invalid result type, it should be pointer to Report struct")
	ErrInvalidReportsResult = errors.New("invalid result type, it should be slice of Report struct")
)

type GormRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewGormRepository(dbConn *gorm.DB) *GormRepository {
	cbSettings := database.GetCircuitBreakerSettings()
	cbSettings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrReportNotFound)
	}

	return &GormRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Upsert inserts report or overwrites the row with the same id.
func (reportRepository *GormRepository) Upsert(ctx context.Context, report *Report) error {
	_, err := reportRepository.CircuitBreaker.Execute(func() (any, error) {
		err := reportRepository.DBConn.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).
			Create(report).Error
		if err != nil {
			logging.Logger.Error("[Upsert] Failed to upsert report - may cause circuit breaker trip",
				zap.String("report_id", report.ID),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return report, nil
	})

	return err
}

// List returns every report, newest first.
func (reportRepository *GormRepository) List(ctx context.Context) ([]Report, error) {
	result, err := reportRepository.CircuitBreaker.Execute(func() (any, error) {
		var reports []Report

		err := reportRepository.DBConn.WithContext(ctx).
			Order("created_at DESC").
			Find(&reports).Error
		if err != nil {
			logging.Logger.Error("[List] Failed to list reports - may cause circuit breaker trip",
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return reports, nil
	})
	if err != nil {
		return nil, err
	}

	reports, ok := result.([]Report)
	if !ok {
		return nil, ErrInvalidReportsResult
	}

	return reports, nil
}

func (reportRepository *GormRepository) Get(ctx context.Context, id string) (*Report, error) {
	result, err := reportRepository.CircuitBreaker.Execute(func() (any, error) {
		var report Report

		err := reportRepository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&report).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}

		if err != nil {
			logging.Logger.Error("[Get] Failed to fetch report - may cause circuit breaker trip",
				zap.String("report_id", id),
				zap.String("error", err.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, err
		}

		return &report, nil
	})
	if err != nil {
		return nil, err
	}

	report, ok := result.(*Report)
	if !ok {
		return nil, ErrInvalidReportResult
	}

	return report, nil
}

// Delete removes the row with id and reports whether one existed.
func (reportRepository *GormRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := reportRepository.CircuitBreaker.Execute(func() (any, error) {
		tx := reportRepository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			Delete(&Report{})
		if tx.Error != nil {
			logging.Logger.Error("[Delete] Failed to delete report - may cause circuit breaker trip",
				zap.String("report_id", id),
				zap.String("error", tx.Error.Error()),
				zap.Bool("is_context_error", ctx.Err() != nil),
			)

			return nil, tx.Error
		}

		return tx.RowsAffected > 0, nil
	})
	if err != nil {
		return false, err
	}

	deleted, _ := result.(bool)

	return deleted, nil
}
