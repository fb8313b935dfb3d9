package test

import (
	"context"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/analysis"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestReportRepository(t *testing.T) {
	dbConn := startPostgres(t)
	repository := report.NewGormRepository(dbConn)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older := &report.Report{
		ID:           "report-1",
		CallID:       "call-1",
		CustomerName: "Sara",
		Status:       report.DefaultStatus,
		CreatedAt:    base,
		Analysis: datatypes.NewJSONType(analysis.Analysis{
			CustomerMood: "satisfied",
			CustomerAssessmentQuestions: analysis.Assessments{
				{Question: "q1", Answer: "a1", Status: "positive"},
			},
			CustomerOverallScore: 8,
		}),
	}
	newer := &report.Report{ID: "report-2", CallID: "call-2", CreatedAt: base.Add(time.Hour)}

	require.NoError(t, repository.Upsert(ctx, older))
	require.NoError(t, repository.Upsert(ctx, newer))

	older.Notes = "called back"
	require.NoError(t, repository.Upsert(ctx, older))

	reports, err := repository.List(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "report-2", reports[0].ID)
	assert.Equal(t, "report-1", reports[1].ID)

	found, err := repository.Get(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, "called back", found.Notes)
	assert.Equal(t, "satisfied", found.Analysis.Data().CustomerMood)
	assert.Len(t, found.Analysis.Data().CustomerAssessmentQuestions, 1)

	deleted, err := repository.Delete(ctx, "report-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repository.Delete(ctx, "report-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repository.Get(ctx, "report-1")
	require.ErrorIs(t, err, report.ErrReportNotFound)
}

func TestOutboundCallRepository(t *testing.T) {
	dbConn := startPostgres(t)
	repository := call.NewRepository(dbConn)
	ctx := context.Background()

	require.NoError(t, repository.Save(ctx, &call.OutboundCall{
		JobID:        "job-1",
		CustomerName: "Sara",
		PhoneNumber:  "+966500000000",
		Language:     call.LanguageArabic,
		ScenarioID:   call.DefaultScenarioID,
		CreatedAt:    time.Now().UTC(),
	}))

	name, phone, ok := repository.Customer(ctx, "job-1")
	require.True(t, ok)
	assert.Equal(t, "Sara", name)
	assert.Equal(t, "+966500000000", phone)

	_, _, ok = repository.Customer(ctx, "missing")
	assert.False(t, ok)

	_, err := repository.Get(ctx, "missing")
	require.ErrorIs(t, err, call.ErrOutboundCallNotFound)
}

func TestDeadLetterRepository(t *testing.T) {
	dbConn := startPostgres(t)
	repository := deadletter.NewGormRepository(dbConn)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	_, err := repository.Upsert(ctx, "call-1", "transcript not ready", now.Add(-time.Hour))
	require.NoError(t, err)

	_, err = repository.Upsert(ctx, "call-2", "llm timeout", now)
	require.NoError(t, err)

	pending, err := repository.Pending(ctx, deadletter.PendingQuery{
		Before:     now.Add(-30 * time.Minute),
		MaxRetries: 3,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "call-1", pending[0].CallID)

	lease := 15 * time.Minute

	claimed, err := repository.Claim(ctx, "call-1", now, now.Add(-lease))
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repository.Claim(ctx, "call-1", now, now.Add(-lease))
	require.NoError(t, err)
	assert.False(t, claimed)

	pending, err = repository.Pending(ctx, deadletter.PendingQuery{
		Before:        now,
		ClaimedBefore: now,
		MaxRetries:    3,
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, deadletter.StatusInProgress, pending[0].Status)

	claimed, err = repository.Claim(ctx, "call-1", now.Add(lease), now)
	require.NoError(t, err)
	assert.True(t, claimed)

	require.NoError(t, repository.IncreaseRetryCount(ctx, "call-1", "still not ready", now.Add(-time.Hour)))

	pending, err = repository.Pending(ctx, deadletter.PendingQuery{
		Before:     now,
		MaxRetries: 3,
		Limit:      10,
	})
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "still not ready", pending[0].Error)

	require.NoError(t, repository.Delete(ctx, "call-1"))

	pending, err = repository.Pending(ctx, deadletter.PendingQuery{Before: now, MaxRetries: 3, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "call-2", pending[0].CallID)
}
