package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/appmato/gestion/internal/dashboard"
	jobmetrics "github.com/appmato/gestion/internal/jobs"
)

// Snapshotter builds dashboard snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context, filter dashboard.Filter) (dashboard.Snapshot, error)
}

// BranchLister lists branches holding active dossiers.
type BranchLister interface {
	Branches(ctx context.Context) ([]uuid.UUID, error)
}

// WarmupJob pre-builds today's dashboard for the firm and each branch.
type WarmupJob struct {
	Dashboard Snapshotter
	Branches  BranchLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(snapshots Snapshotter, branches BranchLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{Dashboard: snapshots, Branches: branches, Logger: logger, Metrics: metrics}
}

// Handle processes dashboard:warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Dashboard == nil || j.Branches == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()

	firm, err := j.warm(ctx, dashboard.Filter{})
	if err != nil {
		logger.Error("warm firm dashboard", slog.Any("error", err))
		return err
	}
	// Branch snapshots hold a subset of the firm's issues; count them once.
	byReason := make(map[string]int)
	for _, issue := range firm.Issues {
		byReason[issue.Reason]++
	}
	for reason, n := range byReason {
		j.metrics().AddDataIssues(reason, n)
	}

	branches, err := j.Branches.Branches(ctx)
	if err != nil {
		logger.Error("load branches", slog.Any("error", err))
		return err
	}
	for _, branch := range branches {
		if _, err := j.warm(ctx, dashboard.Filter{BranchID: uuid.NullUUID{UUID: branch, Valid: true}}); err != nil {
			logger.Error("warm branch dashboard", slog.String("branch_id", branch.String()), slog.Any("error", err))
			return err
		}
	}

	logger.Info("completed dashboard warmup",
		slog.Int("branches", len(branches)),
		slog.Int("data_issues", len(firm.Issues)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *WarmupJob) warm(ctx context.Context, filter dashboard.Filter) (dashboard.Snapshot, error) {
	scopeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return j.Dashboard.Snapshot(scopeCtx, filter)
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
