package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Cache is the local fallback copy of saved reports. Entries are only
// removed by an explicit Delete.
type Cache interface {
	Put(ctx context.Context, report *Report) error
	Get(ctx context.Context, id string) (*Report, bool, error)
	List(ctx context.Context) ([]Report, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type MemoryCache struct {
	mu      sync.RWMutex
	reports map[string]Report
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{reports: make(map[string]Report)}
}

func (memoryCache *MemoryCache) Put(_ context.Context, report *Report) error {
	memoryCache.mu.Lock()
	defer memoryCache.mu.Unlock()

	memoryCache.reports[report.ID] = *report

	return nil
}

func (memoryCache *MemoryCache) Get(_ context.Context, id string) (*Report, bool, error) {
	memoryCache.mu.RLock()
	defer memoryCache.mu.RUnlock()

	report, ok := memoryCache.reports[id]
	if !ok {
		return nil, false, nil
	}

	return &report, true, nil
}

func (memoryCache *MemoryCache) List(_ context.Context) ([]Report, error) {
	memoryCache.mu.RLock()
	defer memoryCache.mu.RUnlock()

	reports := make([]Report, 0, len(memoryCache.reports))
	for _, report := range memoryCache.reports {
		reports = append(reports, report)
	}

	return reports, nil
}

func (memoryCache *MemoryCache) Delete(_ context.Context, id string) (bool, error) {
	memoryCache.mu.Lock()
	defer memoryCache.mu.Unlock()

	_, ok := memoryCache.reports[id]
	delete(memoryCache.reports, id)

	return ok, nil
}

// RedisCache keeps reports in one hash keyed by report id.
type RedisCache struct {
	Client         redis.UniversalClient
	Key            string
	Timeout        time.Duration
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	cbSettings := circuitbreak.NewSettings(
		"redis",
		circuitbreak.RedisService,
		config.Conf.DBIntervalCB,
		config.Conf.DBConsecutiveFailuresCB,
	)

	timeout := time.Duration(config.Conf.RedisTimeout) * time.Second
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &RedisCache{
		Client:         client,
		Key:            config.Conf.RedisKeyPrefix + "reports",
		Timeout:        timeout,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

func (redisCache *RedisCache) Put(ctx context.Context, report *Report) error {
	value, err := json.Marshal(report)
	if err != nil {
		return err
	}

	_, err = redisCache.CircuitBreaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, redisCache.Timeout)
		defer cancel()

		return nil, redisCache.Client.HSet(ctx, redisCache.Key, report.ID, value).Err()
	})
	if err != nil {
		logging.Logger.Error("[Put] Failed to cache report",
			zap.String("report_id", report.ID),
			zap.String("error", err.Error()),
		)
	}

	return err
}

func (redisCache *RedisCache) Get(ctx context.Context, id string) (*Report, bool, error) {
	result, err := redisCache.CircuitBreaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, redisCache.Timeout)
		defer cancel()

		value, err := redisCache.Client.HGet(ctx, redisCache.Key, id).Result()
		if errors.Is(err, redis.Nil) {
			return "", nil
		}

		return value, err
	})
	if err != nil {
		return nil, false, err
	}

	value, _ := result.(string)
	if value == "" {
		return nil, false, nil
	}

	var report Report

	err = json.Unmarshal([]byte(value), &report)
	if err != nil {
		return nil, false, err
	}

	return &report, true, nil
}

func (redisCache *RedisCache) List(ctx context.Context) ([]Report, error) {
	result, err := redisCache.CircuitBreaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, redisCache.Timeout)
		defer cancel()

		return redisCache.Client.HGetAll(ctx, redisCache.Key).Result()
	})
	if err != nil {
		return nil, err
	}

	values, _ := result.(map[string]string)
	reports := make([]Report, 0, len(values))

	for id, value := range values {
		var report Report

		err = json.Unmarshal([]byte(value), &report)
		if err != nil {
			logging.Logger.Warn("Skipping unreadable cached report",
				zap.String("report_id", id),
				zap.String("error", err.Error()),
			)

			continue
		}

		reports = append(reports, report)
	}

	return reports, nil
}

func (redisCache *RedisCache) Delete(ctx context.Context, id string) (bool, error) {
	result, err := redisCache.CircuitBreaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, redisCache.Timeout)
		defer cancel()

		return redisCache.Client.HDel(ctx, redisCache.Key, id).Result()
	})
	if err != nil {
		return false, err
	}

	removed, _ := result.(int64)

	return removed > 0, nil
}
