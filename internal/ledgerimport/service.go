package ledgerimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/shared"
)

const idempotencyModule = "ledger_import"

// Enqueuer submits import jobs to the queue. Implemented by jobs.Client.
type Enqueuer interface {
	EnqueueLedgerImport(ctx context.Context, job ImportJob) error
}

// IdempotencyPort guards against at-least-once redelivery.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service orchestrates the import pipeline for one uploaded file and serves
// the sync-history query surface.
type Service struct {
	repo   Repository
	audit  shared.AuditPort
	idem   IdempotencyPort
	cache  *Cache
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the controller's collaborators. audit, idem, cache and
// queue may be nil in tests.
func NewService(repo Repository, audit shared.AuditPort, idem IdempotencyPort, cache *Cache, queue Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idem: idem, cache: cache, queue: queue, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateImportInput groups the fields needed to register an upload.
type CreateImportInput struct {
	FirmID   uuid.UUID
	ClientID uuid.UUID
	UserID   string
	FileName string
	FilePath string
	Format   Format
	Mapping  AccountMapping
}

// CreateImport registers a pending sync record for the staged file and
// enqueues the import job.
func (s *Service) CreateImport(ctx context.Context, in CreateImportInput) (SyncRecord, error) {
	rec := SyncRecord{
		ID:        uuid.New(),
		FirmID:    in.FirmID,
		ClientID:  in.ClientID,
		FileName:  in.FileName,
		FilePath:  in.FilePath,
		Format:    in.Format,
		Mapping:   in.Mapping,
		Status:    SyncPending,
		CreatedBy: in.UserID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSyncRecord(ctx, rec); err != nil {
		return SyncRecord{}, fmt.Errorf("ledgerimport: create sync record: %w", err)
	}
	if s.queue != nil {
		if err := s.queue.EnqueueLedgerImport(ctx, ImportJob{
			SyncID:   rec.ID,
			FirmID:   rec.FirmID,
			ClientID: rec.ClientID,
			FilePath: rec.FilePath,
			Format:   rec.Format,
			Mapping:  rec.Mapping,
			UserID:   rec.CreatedBy,
		}); err != nil {
			return SyncRecord{}, fmt.Errorf("ledgerimport: enqueue: %w", err)
		}
	}
	return rec, nil
}

// RunImport executes one dequeued import job through its state machine:
// pending -> processing -> completed or failed. The returned error is
// non-nil only for the failed path, so the queue records the failure.
//
// Redelivery safety: a record already completed is skipped, and an
// idempotency key per sync id blocks a second concurrent or redelivered run
// from re-inserting entries.
func (s *Service) RunImport(ctx context.Context, job ImportJob) (ImportResult, error) {
	logger := s.logger.With(slog.String("sync_id", job.SyncID.String()), slog.String("client_id", job.ClientID.String()))

	rec, err := s.repo.GetSyncRecord(ctx, job.SyncID)
	if err != nil {
		return ImportResult{}, fmt.Errorf("ledgerimport: load sync record: %w", err)
	}
	if rec.Status == SyncCompleted {
		logger.Info("import already completed, skipping redelivery")
		return ImportResult{}, nil
	}
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, job.SyncID.String(), idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				logger.Info("import already claimed, skipping redelivery")
				return ImportResult{}, nil
			}
			return ImportResult{}, fmt.Errorf("ledgerimport: idempotency check: %w", err)
		}
	}

	started := s.now()
	if err := s.repo.MarkProcessing(ctx, job.SyncID, started); err != nil {
		return ImportResult{}, fmt.Errorf("ledgerimport: mark processing: %w", err)
	}
	logger.Info("import started", slog.String("file", job.FilePath), slog.String("format", string(job.Format)))

	result, runErr := s.execute(ctx, job)

	rec.Status = SyncCompleted
	if runErr != nil {
		rec.Status = SyncFailed
	}
	rec.TotalRows = result.TotalRows
	rec.ProcessedRows = result.ProcessedRows
	rec.SkippedRows = result.SkippedRows
	rec.ErrorRows = result.ErrorRows
	rec.Errors = result.Errors
	completed := s.now()
	rec.CompletedAt = &completed

	if err := s.repo.FinishSyncRecord(ctx, rec); err != nil {
		logger.Error("persist sync record", slog.Any("error", err))
		if runErr == nil {
			runErr = err
		}
	}

	if runErr == nil {
		// The staged file is retained until the record is completed, so a
		// failed import can be retried from the same upload.
		if err := os.Remove(job.FilePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove import file", slog.Any("error", err))
		}
		s.recordAudit(ctx, job, "ledger.import_completed", map[string]any{
			"total_rows":     result.TotalRows,
			"processed_rows": result.ProcessedRows,
			"skipped_rows":   result.SkippedRows,
			"error_rows":     result.ErrorRows,
			"anomalies":      len(result.Anomalies),
		})
		logger.Info("import completed",
			slog.Int("total", result.TotalRows),
			slog.Int("processed", result.ProcessedRows),
			slog.Int("skipped", result.SkippedRows),
			slog.Int("errors", result.ErrorRows),
			slog.Duration("duration", completed.Sub(started)))
	} else {
		// Release the idempotency claim so a manual retry can run.
		if s.idem != nil {
			if err := s.idem.Delete(ctx, job.SyncID.String()); err != nil {
				logger.Warn("release idempotency key", slog.Any("error", err))
			}
		}
		s.recordAudit(ctx, job, "ledger.import_failed", map[string]any{
			"total_rows": result.TotalRows,
			"error_rows": result.ErrorRows,
			"error":      runErr.Error(),
		})
		logger.Error("import failed", slog.Any("error", runErr))
	}

	if err := s.cache.InvalidateStats(ctx, job.ClientID); err != nil {
		logger.Warn("invalidate stats cache", slog.Any("error", err))
	}
	return result, runErr
}

// execute runs read -> parse -> reconcile -> bulk write and returns the
// result regardless of outcome; the error marks the whole import failed.
func (s *Service) execute(ctx context.Context, job ImportJob) (ImportResult, error) {
	data, err := os.ReadFile(job.FilePath)
	if err != nil {
		return failedResult("file", fmt.Sprintf("read source file: %v", err)),
			fmt.Errorf("ledgerimport: read source file: %w", err)
	}

	rows, err := Parse(data, job.Format)
	if err != nil {
		return failedResult("file", err.Error()), err
	}

	result, accepted := Reconcile(rows, job.Mapping)

	if len(accepted) > 0 {
		entries := make([]LedgerEntry, 0, len(accepted))
		createdAt := s.now()
		for _, row := range accepted {
			entries = append(entries, LedgerEntry{
				FirmID:      job.FirmID,
				ClientID:    job.ClientID,
				SyncID:      job.SyncID,
				Date:        row.Date,
				Account:     row.Account,
				Particulars: row.Particulars,
				Debit:       row.Debit,
				Credit:      row.Credit,
				Balance:     row.Balance,
				Source:      EntrySource,
				CreatedBy:   job.UserID,
				CreatedAt:   createdAt,
			})
		}
		if _, err := s.repo.BulkInsertEntries(ctx, entries); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, RowError{Index: 0, Field: "database", Message: err.Error()})
			return result, err
		}
	}

	return result, nil
}

// Retry resets a failed record to pending and re-enqueues it from the
// retained source file. Only failed records can be retried.
func (s *Service) Retry(ctx context.Context, syncID uuid.UUID) (SyncRecord, error) {
	rec, err := s.repo.GetSyncRecord(ctx, syncID)
	if err != nil {
		return SyncRecord{}, err
	}
	if rec.Status != SyncFailed {
		return SyncRecord{}, shared.ErrInvalidStatus
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		return SyncRecord{}, shared.ErrSourceFileMissing
	}
	if s.idem != nil {
		if err := s.idem.Delete(ctx, syncID.String()); err != nil {
			return SyncRecord{}, fmt.Errorf("ledgerimport: release idempotency key: %w", err)
		}
	}
	if err := s.repo.ResetSyncRecord(ctx, syncID); err != nil {
		return SyncRecord{}, err
	}
	rec.Status = SyncPending
	rec.TotalRows, rec.ProcessedRows, rec.SkippedRows, rec.ErrorRows = 0, 0, 0, 0
	rec.Errors = nil
	rec.StartedAt, rec.CompletedAt = nil, nil
	if s.queue != nil {
		if err := s.queue.EnqueueLedgerImport(ctx, ImportJob{
			SyncID:   rec.ID,
			FirmID:   rec.FirmID,
			ClientID: rec.ClientID,
			FilePath: rec.FilePath,
			Format:   rec.Format,
			Mapping:  rec.Mapping,
			UserID:   rec.CreatedBy,
		}); err != nil {
			return SyncRecord{}, fmt.Errorf("ledgerimport: enqueue retry: %w", err)
		}
	}
	return rec, nil
}

// History returns a page of the client's past sync records, newest first.
func (s *Service) History(ctx context.Context, clientID uuid.UUID, page, perPage int) ([]SyncRecord, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	records, total, err := s.repo.ListSyncHistory(ctx, clientID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return records, shared.NewPagination(page, perPage, total), nil
}

// Stats returns the client's aggregate import stats, cached in Redis.
func (s *Service) Stats(ctx context.Context, clientID uuid.UUID) (SyncStats, error) {
	if cached, err := s.cache.GetStats(ctx, clientID); err != nil {
		s.logger.Warn("stats cache read", slog.Any("error", err))
	} else if cached != nil {
		return *cached, nil
	}
	stats, err := s.repo.SyncStats(ctx, clientID)
	if err != nil {
		return SyncStats{}, err
	}
	if err := s.cache.SetStats(ctx, clientID, stats); err != nil {
		s.logger.Warn("stats cache write", slog.Any("error", err))
	}
	return stats, nil
}

func (s *Service) recordAudit(ctx context.Context, job ImportJob, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  job.UserID,
		Action:   action,
		Entity:   "sync_record",
		EntityID: job.SyncID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err))
	}
}

func failedResult(field, message string) ImportResult {
	return ImportResult{
		Errors:     []RowError{{Index: 0, Field: field, Message: message}},
		Anomalies:  []string{},
		Duplicates: []string{},
	}
}
