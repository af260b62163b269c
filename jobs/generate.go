package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/appmato/gestion/internal/jobs"
	"github.com/appmato/gestion/internal/obligations"
	"github.com/appmato/gestion/internal/platform/cache"
	"github.com/appmato/gestion/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const generateLockTTL = 10 * time.Minute

// ScheduleGenerator inserts missing obligations for a year.
type ScheduleGenerator interface {
	GenerateYear(ctx context.Context, year int, dossierID uuid.NullUUID) (obligations.GenerateResult, error)
}

// Locker serialises work across workers.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// GenerateJob seeds the fiscal-year schedule of every active dossier.
type GenerateJob struct {
	Generator ScheduleGenerator
	Locker    Locker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewGenerateJob wires dependencies for the generation handler.
func NewGenerateJob(generator ScheduleGenerator, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics, clock func() time.Time) *GenerateJob {
	return &GenerateJob{Generator: generator, Locker: locker, Logger: logger, Metrics: metrics, clock: clock}
}

// Handle processes obligations:generate tasks.
func (j *GenerateJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Generator == nil {
		return errors.New("obligations generate: handler not configured")
	}
	var payload GeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("obligations generate: decode payload: %w", asynq.SkipRetry)
	}
	year := payload.Year
	if year == 0 {
		year = j.now().Year() + 1
	}
	if year < 2000 || year > 2100 {
		return fmt.Errorf("obligations generate: year %d out of range: %w", year, asynq.SkipRetry)
	}
	dossierID := uuid.NullUUID{}
	if payload.DossierID != nil {
		dossierID = uuid.NullUUID{UUID: *payload.DossierID, Valid: true}
	}

	tracker := j.metrics().Track(TaskObligationsGenerate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("year", year))
	if dossierID.Valid {
		logger = logger.With(slog.String("dossier_id", dossierID.UUID.String()))
	}
	logger.Info("starting schedule generation")

	run := func(ctx context.Context) error {
		res, err := j.Generator.GenerateYear(ctx, year, dossierID)
		if err != nil {
			return err
		}
		j.metrics().AddCreated(res.Created)
		logger.Info("completed schedule generation",
			slog.Int("dossiers", res.Dossiers),
			slog.Int("created", res.Created),
			slog.Int("failed", res.Failed),
		)
		return nil
	}
	if j.Locker == nil {
		return run(ctx)
	}
	err := j.Locker.WithLock(ctx, shared.ScheduleLockKey(year), generateLockTTL, run)
	if errors.Is(err, cache.ErrLocked) {
		logger.Info("schedule generation already running elsewhere")
		return nil
	}
	if err != nil {
		logger.Error("schedule generation failed", slog.Any("error", err))
	}
	return err
}

func (j *GenerateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskObligationsGenerate))
	}
	return slog.Default().With(slog.String("job", TaskObligationsGenerate))
}

func (j *GenerateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GenerateJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now()
}
