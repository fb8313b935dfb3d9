package deadletter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	mu      sync.Mutex
	records map[string]*ReportDeadLetter
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{records: make(map[string]*ReportDeadLetter)}
}

func (repository *fakeRepository) Upsert(_ context.Context, callID, errMsg string, now time.Time) (*ReportDeadLetter, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	record, ok := repository.records[callID]
	if !ok {
		record = &ReportDeadLetter{CallID: callID, CreatedAt: now}
		repository.records[callID] = record
	}

	record.Error = errMsg
	record.Status = StatusPending
	record.LastRetryAt = &now

	return record, nil
}

func (repository *fakeRepository) Pending(_ context.Context, query PendingQuery) ([]ReportDeadLetter, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var records []ReportDeadLetter

	for _, record := range repository.records {
		due := record.Status == StatusPending && !record.LastRetryAt.After(query.Before)
		abandoned := record.Status == StatusInProgress && !record.LastRetryAt.After(query.ClaimedBefore)

		if (due || abandoned) && record.RetryCount < query.MaxRetries {
			records = append(records, *record)
		}
	}

	return records, nil
}

func (repository *fakeRepository) Claim(_ context.Context, callID string, now, claimedBefore time.Time) (bool, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	record, ok := repository.records[callID]
	if !ok {
		return false, nil
	}

	if record.Status == StatusInProgress && record.LastRetryAt.After(claimedBefore) {
		return false, nil
	}

	record.Status = StatusInProgress
	record.LastRetryAt = &now

	return true, nil
}

func (repository *fakeRepository) IncreaseRetryCount(ctx context.Context, callID, errMsg string, now time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	record := repository.records[callID]
	record.RetryCount++
	record.Error = errMsg
	record.Status = StatusPending
	record.LastRetryAt = &now

	return nil
}

func (repository *fakeRepository) Delete(ctx context.Context, callID string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	delete(repository.records, callID)

	return nil
}

func (repository *fakeRepository) get(callID string) (ReportDeadLetter, bool) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	record, ok := repository.records[callID]
	if !ok {
		return ReportDeadLetter{}, false
	}

	return *record, true
}

type fakeRegenerator struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (regenerator *fakeRegenerator) Regenerate(ctx context.Context, callID string) error {
	regenerator.mu.Lock()
	defer regenerator.mu.Unlock()

	regenerator.calls = append(regenerator.calls, callID)

	if ctx.Err() != nil {
		return ctx.Err()
	}

	return regenerator.err
}

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repository Repository, reports Regenerator) *Service {
	service := NewService(repository, reports)
	service.now = func() time.Time { return testNow }

	return service
}

func TestRecordFailure(t *testing.T) {
	repository := newFakeRepository()
	service := newTestService(repository, &fakeRegenerator{})

	require.NoError(t, service.RecordFailure(context.Background(), "job-1", errors.New("no transcript")))
	require.NoError(t, service.RecordFailure(context.Background(), "job-1", errors.New("llm down")))

	record, ok := repository.get("job-1")
	require.True(t, ok)
	assert.Equal(t, "llm down", record.Error)
	assert.Equal(t, StatusPending, record.Status)
}

func TestProcessSuccessDeletes(t *testing.T) {
	repository := newFakeRepository()
	reports := &fakeRegenerator{}
	service := newTestService(repository, reports)

	record, err := repository.Upsert(context.Background(), "job-1", "boom", testNow)
	require.NoError(t, err)

	service.Process(context.Background(), *record)

	_, ok := repository.get("job-1")
	assert.False(t, ok)
	assert.Equal(t, []string{"job-1"}, reports.calls)
}

func TestProcessFailureCountsRetry(t *testing.T) {
	repository := newFakeRepository()
	service := newTestService(repository, &fakeRegenerator{err: errors.New("still no transcript")})

	record, err := repository.Upsert(context.Background(), "job-1", "boom", testNow)
	require.NoError(t, err)

	service.Process(context.Background(), *record)

	updated, ok := repository.get("job-1")
	require.True(t, ok)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, "still no transcript", updated.Error)
}

func TestProcessSkipsClaimedRecord(t *testing.T) {
	repository := newFakeRepository()
	reports := &fakeRegenerator{}
	service := newTestService(repository, reports)

	record, err := repository.Upsert(context.Background(), "job-1", "boom", testNow)
	require.NoError(t, err)

	claimed, err := repository.Claim(context.Background(), "job-1", testNow, testNow.Add(-DefaultClaimLease))
	require.NoError(t, err)
	require.True(t, claimed)

	service.Process(context.Background(), *record)

	assert.Empty(t, reports.calls)
}

func TestProcessCancelledContextReleasesClaim(t *testing.T) {
	repository := newFakeRepository()
	reports := &fakeRegenerator{}
	service := newTestService(repository, reports)

	record, err := repository.Upsert(context.Background(), "job-1", "boom", testNow)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service.Process(ctx, *record)

	require.Equal(t, []string{"job-1"}, reports.calls)

	updated, ok := repository.get("job-1")
	require.True(t, ok)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	assert.Equal(t, context.Canceled.Error(), updated.Error)
}

func TestProcessSuccessDeletesAfterCancel(t *testing.T) {
	repository := newFakeRepository()
	service := newTestService(repository, cancellingRegenerator{})

	record, err := repository.Upsert(context.Background(), "job-1", "boom", testNow)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service.Process(context.WithValue(ctx, cancelKey{}, cancel), *record)

	_, ok := repository.get("job-1")
	assert.False(t, ok)
}

type cancelKey struct{}

// cancellingRegenerator succeeds and then cancels the caller's context.
type cancellingRegenerator struct{}

func (cancellingRegenerator) Regenerate(ctx context.Context, _ string) error {
	if cancel, ok := ctx.Value(cancelKey{}).(context.CancelFunc); ok {
		cancel()
	}

	return nil
}

func TestWorkerRetriesAbandonedClaim(t *testing.T) {
	repository := newFakeRepository()
	reports := &fakeRegenerator{}
	service := newTestService(repository, reports)

	_, err := repository.Upsert(context.Background(), "abandoned", "boom", testNow.Add(-2*time.Hour))
	require.NoError(t, err)

	staleClaim := testNow.Add(-DefaultClaimLease - time.Minute)
	claimed, err := repository.Claim(context.Background(), "abandoned", staleClaim, staleClaim.Add(-DefaultClaimLease))
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = repository.Upsert(context.Background(), "held", "boom", testNow.Add(-2*time.Hour))
	require.NoError(t, err)

	liveClaim := testNow.Add(-time.Minute)
	claimed, err = repository.Claim(context.Background(), "held", liveClaim, liveClaim.Add(-DefaultClaimLease))
	require.NoError(t, err)
	require.True(t, claimed)

	worker, err := NewWorker(service, WorkerOptions{
		PoolSize:   1,
		Interval:   time.Minute,
		RetryDelay: 5 * time.Minute,
		MaxRetries: 5,
		Limit:      10,
	})
	require.NoError(t, err)

	defer worker.WorkerPool.Release()

	assert.Equal(t, 1, worker.ProcessPending(context.Background()))
	worker.Wait()

	assert.Equal(t, []string{"abandoned"}, reports.calls)

	_, ok := repository.get("abandoned")
	assert.False(t, ok)

	held, ok := repository.get("held")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, held.Status)
}

func TestWorkerProcessPending(t *testing.T) {
	repository := newFakeRepository()
	reports := &fakeRegenerator{}
	service := newTestService(repository, reports)

	_, err := repository.Upsert(context.Background(), "due", "boom", testNow.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = repository.Upsert(context.Background(), "recent", "boom", testNow.Add(-time.Minute))
	require.NoError(t, err)

	exhausted, err := repository.Upsert(context.Background(), "exhausted", "boom", testNow.Add(-time.Hour))
	require.NoError(t, err)
	exhausted.RetryCount = 5

	worker, err := NewWorker(service, WorkerOptions{
		PoolSize:   2,
		Interval:   time.Minute,
		RetryDelay: 5 * time.Minute,
		MaxRetries: 5,
		Limit:      10,
	})
	require.NoError(t, err)

	defer worker.WorkerPool.Release()

	assert.Equal(t, 1, worker.ProcessPending(context.Background()))
	worker.Wait()

	assert.Equal(t, []string{"due"}, reports.calls)

	_, ok := repository.get("recent")
	assert.True(t, ok)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	worker, err := NewWorker(newTestService(newFakeRepository(), &fakeRegenerator{}), WorkerOptions{
		PoolSize: 1,
		Interval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		worker.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
