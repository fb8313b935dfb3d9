package report

import (
	"context"
	"errors"
	"slices"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"go.uber.org/zap"
)

// Repository is the durable report table.
type Repository interface {
	Upsert(ctx context.Context, report *Report) error
	List(ctx context.Context) ([]Report, error)
	Get(ctx context.Context, id string) (*Report, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Store combines the durable repository with the fallback cache. Reads
// merge both and prefer durable rows.
type Store struct {
	Repository Repository
	Cache      Cache
}

func NewStore(repository Repository, cache Cache) *Store {
	if cache == nil {
		cache = NewMemoryCache()
	}

	return &Store{Repository: repository, Cache: cache}
}

// Upsert writes report durably and to the cache. The cache copy is written
// even when the durable write fails; that failure is still returned.
func (store *Store) Upsert(ctx context.Context, report *Report) (*Report, error) {
	durableErr := store.Repository.Upsert(ctx, report)

	cacheErr := store.Cache.Put(ctx, report)
	if cacheErr != nil {
		logging.Logger.Warn("[Upsert] Failed to write report to fallback cache",
			zap.String("report_id", report.ID),
			zap.String("error", cacheErr.Error()),
		)
	}

	if durableErr != nil {
		return nil, durableErr
	}

	return report, nil
}

// List returns merged summaries ordered by creation time, newest first.
// A durable failure degrades to cache entries only.
func (store *Store) List(ctx context.Context) ([]Summary, error) {
	durable, durableErr := store.Repository.List(ctx)
	if durableErr != nil {
		logging.Logger.Warn("[List] Durable store unavailable, listing cached reports only",
			zap.String("error", durableErr.Error()),
		)
	}

	cached, cacheErr := store.Cache.List(ctx)
	if cacheErr != nil {
		logging.Logger.Warn("[List] Failed to read fallback cache", zap.String("error", cacheErr.Error()))

		if durableErr != nil {
			return nil, durableErr
		}
	}

	return mergeSummaries(durable, cached), nil
}

func mergeSummaries(durable, cached []Report) []Summary {
	seen := make(map[string]struct{}, len(durable))
	summaries := make([]Summary, 0, len(durable)+len(cached))

	for idx := range durable {
		seen[durable[idx].ID] = struct{}{}
		summaries = append(summaries, durable[idx].Summarize())
	}

	for idx := range cached {
		_, ok := seen[cached[idx].ID]
		if ok {
			continue
		}

		seen[cached[idx].ID] = struct{}{}
		summaries = append(summaries, cached[idx].Summarize())
	}

	slices.SortStableFunc(summaries, func(a, b Summary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return summaries
}

// Get reads the durable row first and falls back to the cache.
func (store *Store) Get(ctx context.Context, id string) (*Report, error) {
	report, durableErr := store.Repository.Get(ctx, id)
	if durableErr == nil {
		return report, nil
	}

	cached, ok, cacheErr := store.Cache.Get(ctx, id)
	if cacheErr != nil {
		logging.Logger.Warn("[Get] Failed to read fallback cache",
			zap.String("report_id", id),
			zap.String("error", cacheErr.Error()),
		)
	}

	if ok {
		return cached, nil
	}

	return nil, durableErr
}

// Delete removes id from both stores. ErrReportNotFound means neither
// held it.
func (store *Store) Delete(ctx context.Context, id string) error {
	durableDeleted, durableErr := store.Repository.Delete(ctx, id)

	cacheDeleted, cacheErr := store.Cache.Delete(ctx, id)
	if cacheErr != nil {
		logging.Logger.Warn("[Delete] Failed to delete report from fallback cache",
			zap.String("report_id", id),
			zap.String("error", cacheErr.Error()),
		)
	}

	if durableErr != nil {
		return durableErr
	}

	if !durableDeleted && !cacheDeleted {
		return ErrReportNotFound
	}

	return nil
}

// IsNotFound reports whether err means the report does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReportNotFound)
}
