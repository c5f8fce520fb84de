package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatementsMonthly is the monthly statement batch task type.
	TaskStatementsMonthly = "statements:monthly"
	// TaskReportsWarmup repopulates the report cache after mutations.
	TaskReportsWarmup = "reports:warmup"
)

// StatementsMonthlyPayload parameterises a statement batch run. AsOf is
// normally empty and defaults to the handler's clock; operators set it to
// re-run a missed month.
type StatementsMonthlyPayload struct {
	AsOf string `json:"as_of,omitempty"`
	// Force skips the working-day gate for manual runs.
	Force bool `json:"force,omitempty"`
}

// NewStatementsMonthlyTask constructs the statement batch task.
func NewStatementsMonthlyTask(payload StatementsMonthlyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatementsMonthly, data), nil
}

// ReportsWarmupPayload scopes a warmup run to a trailing window.
type ReportsWarmupPayload struct {
	Days int `json:"days,omitempty"`
}

// NewReportsWarmupTask constructs a warmup task.
func NewReportsWarmupTask(payload ReportsWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}

// SecondWorkingDay returns the second weekday of the month containing t.
// Weekends are skipped; public holidays are not modelled, matching the
// upstream batch calendar.
func SecondWorkingDay(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	working := 0
	for {
		if day.Weekday() != time.Saturday && day.Weekday() != time.Sunday {
			working++
			if working == 2 {
				return day
			}
		}
		day = day.AddDate(0, 0, 1)
	}
}
