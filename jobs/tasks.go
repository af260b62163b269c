package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskObligationsGenerate seeds the obligation schedule of a fiscal year.
	TaskObligationsGenerate = "obligations:generate"
	// TaskDashboardWarmup pre-builds today's dashboard snapshots.
	TaskDashboardWarmup = "dashboard:warmup"
)

// GeneratePayload selects the year to generate, and optionally one dossier.
// A zero year means the year following the current one.
type GeneratePayload struct {
	Year      int        `json:"year,omitempty"`
	DossierID *uuid.UUID `json:"dossier_id,omitempty"`
}

// NewGenerateTask constructs an obligations:generate task.
func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskObligationsGenerate, data, asynq.MaxRetry(3)), nil
}

// NewWarmupTask constructs a dashboard:warmup task.
func NewWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDashboardWarmup, []byte(`{}`), asynq.MaxRetry(1))
}
