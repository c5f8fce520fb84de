package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tidemark-io/tidemark/internal/sales"
)

// ReportsWarmupJob recomputes the headline sales aggregates after a cache
// bump so the first dashboard hit lands warm.
type ReportsWarmupJob struct {
	Sales  *sales.Service
	Logger *slog.Logger
	clock  func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(svc *sales.Service, logger *slog.Logger) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Sales:  svc,
		Logger: logger,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes reports:warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sales == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Days <= 0 {
		payload.Days = 90
	}

	now := j.clock()
	from := now.AddDate(0, 0, -payload.Days)
	started := time.Now()

	if _, err := j.Sales.Overview(ctx, from, now, sales.Filters{}); err != nil {
		j.logger().Error("warmup overview", slog.Any("error", err))
		return err
	}
	for _, dim := range []string{sales.ByMarket, sales.ByMerchantGroup, sales.ByProductGroup} {
		if _, err := j.Sales.Breakdown(ctx, dim, from, now, sales.Filters{}, 20); err != nil {
			j.logger().Error("warmup breakdown", slog.String("by", dim), slog.Any("error", err))
			return err
		}
	}

	j.logger().Info("completed report warmup",
		slog.Int("days", payload.Days), slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
