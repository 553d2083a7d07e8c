package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/jobs"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/ledgerimport"
)

// LedgerImportJob adapts the import controller to the Asynq handler shape.
type LedgerImportJob struct {
	Service *ledgerimport.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerImportJob initialises the import job handler.
func NewLedgerImportJob(service *ledgerimport.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerImportJob {
	return &LedgerImportJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one dequeued import job. A malformed payload is not
// retryable; the controller decides everything else.
func (j *LedgerImportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("ledger import: handler not configured")
	}
	var job ledgerimport.ImportJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		j.logger().Error("malformed import payload", slog.Any("error", err))
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLedgerImport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("sync_id", job.SyncID.String()),
		slog.String("client_id", job.ClientID.String()),
	)
	logger.Info("handling import job")

	result, runErr := j.Service.RunImport(ctx, job)
	j.metrics().AddRows("processed", result.ProcessedRows)
	j.metrics().AddRows("skipped", result.SkippedRows)
	j.metrics().AddRows("error", result.ErrorRows)
	resultErr = runErr
	if resultErr != nil {
		logger.Error("import job failed", slog.Any("error", resultErr), slog.Duration("duration", time.Since(start)))
		return resultErr
	}
	logger.Info("import job done", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *LedgerImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerImport))
	}
	return slog.Default().With(slog.String("job", TaskLedgerImport))
}

func (j *LedgerImportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *LedgerImportJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
