package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tidemark-io/tidemark/internal/statement"
)

type fakeStatementRepo struct {
	loads int
}

func (f *fakeStatementRepo) LoadSnapshot(context.Context) (statement.Snapshot, error) {
	f.loads++
	return statement.Snapshot{Allowlist: map[string]struct{}{}}, nil
}

func (f *fakeStatementRepo) AllowlistedGroups(context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStatementRepo) AddAllowlistedGroup(context.Context, string) error { return nil }

func (f *fakeStatementRepo) RemoveAllowlistedGroup(context.Context, string) (bool, error) {
	return false, nil
}

func TestStatementsMonthlyGatesOnSecondWorkingDay(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &fakeStatementRepo{}
	job := NewStatementsMonthlyJob(statement.NewService(repo, logger), logger)

	task, err := NewStatementsMonthlyTask(StatementsMonthlyPayload{})
	require.NoError(t, err)

	// June 2026: the second working day is Tuesday the 2nd.
	job.clock = func() time.Time { return time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC) }
	require.NoError(t, job.Handle(context.Background(), task))
	require.Zero(t, repo.loads, "off-day runs skip without touching the warehouse")

	job.clock = func() time.Time { return time.Date(2026, 6, 2, 6, 0, 0, 0, time.UTC) }
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, repo.loads)
}

func TestStatementsMonthlyForceOverridesGate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := &fakeStatementRepo{}
	job := NewStatementsMonthlyJob(statement.NewService(repo, logger), logger)
	job.clock = func() time.Time { return time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC) }

	task, err := NewStatementsMonthlyTask(StatementsMonthlyPayload{Force: true, AsOf: "2026-05-31"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, repo.loads)
}
