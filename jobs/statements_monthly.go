package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tidemark-io/tidemark/internal/statement"
)

// StatementsMonthlyJob computes merchant statement summaries once a month and
// hands them to the downstream report collaborator. The cron fires daily; the
// handler gates on the second working day so weekend month-starts slide to
// the first full business day with complete invoice data.
type StatementsMonthlyJob struct {
	Statements *statement.Service
	Logger     *slog.Logger
	clock      func() time.Time
}

// NewStatementsMonthlyJob wires dependencies for the statement batch handler.
func NewStatementsMonthlyJob(svc *statement.Service, logger *slog.Logger) *StatementsMonthlyJob {
	return &StatementsMonthlyJob{
		Statements: svc,
		Logger:     logger,
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes statements:monthly tasks.
func (j *StatementsMonthlyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Statements == nil {
		return errors.New("statements monthly: handler not configured")
	}
	var payload StatementsMonthlyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	now := j.clock()
	asOf := now
	if payload.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", payload.AsOf)
		if err != nil {
			j.logger().Error("invalid as_of in payload", slog.String("as_of", payload.AsOf))
			return asynq.SkipRetry
		}
		asOf = parsed
	}

	if !payload.Force && !sameDay(now, SecondWorkingDay(now)) {
		j.logger().Debug("not the statement day, skipping",
			slog.String("today", now.Format("2006-01-02")),
			slog.String("statement_day", SecondWorkingDay(now).Format("2006-01-02")))
		return nil
	}

	logger := j.logger().With(slog.String("as_of", asOf.Format("2006-01-02")))
	logger.Info("starting statement batch")

	summaries, err := j.Statements.MerchantSummaries(ctx, asOf)
	if err != nil {
		logger.Error("statement batch failed", slog.Any("error", err))
		return err
	}

	// Hand-off point: the report collaborator renders and distributes the
	// statements. Rendering stays outside this service.
	var total float64
	for _, s := range summaries {
		total += s.Total
		logger.Info("statement ready",
			slog.String("merchant_group", s.MerchantGroup),
			slog.Int("branches", s.BranchCount),
			slog.Int("invoices", s.InvoiceCount),
			slog.Float64("total", s.Total))
	}
	logger.Info("completed statement batch",
		slog.Int("merchants", len(summaries)), slog.Float64("total_outstanding", total))
	return nil
}

func (j *StatementsMonthlyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
