package ledgerimport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/shared"
)

type fakeRepo struct {
	records map[uuid.UUID]SyncRecord
	entries []LedgerEntry
	bulkErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[uuid.UUID]SyncRecord{}}
}

func (f *fakeRepo) CreateSyncRecord(_ context.Context, rec SyncRecord) error {
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeRepo) GetSyncRecord(_ context.Context, id uuid.UUID) (SyncRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return SyncRecord{}, shared.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) MarkProcessing(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	rec, ok := f.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	rec.Status = SyncProcessing
	rec.StartedAt = &startedAt
	f.records[id] = rec
	return nil
}

func (f *fakeRepo) FinishSyncRecord(_ context.Context, rec SyncRecord) error {
	current, ok := f.records[rec.ID]
	if !ok {
		return shared.ErrNotFound
	}
	current.Status = rec.Status
	current.TotalRows = rec.TotalRows
	current.ProcessedRows = rec.ProcessedRows
	current.SkippedRows = rec.SkippedRows
	current.ErrorRows = rec.ErrorRows
	current.Errors = rec.Errors
	current.CompletedAt = rec.CompletedAt
	f.records[rec.ID] = current
	return nil
}

func (f *fakeRepo) ResetSyncRecord(_ context.Context, id uuid.UUID) error {
	rec, ok := f.records[id]
	if !ok {
		return shared.ErrNotFound
	}
	if rec.Status != SyncFailed {
		return shared.ErrInvalidStatus
	}
	rec.Status = SyncPending
	rec.TotalRows, rec.ProcessedRows, rec.SkippedRows, rec.ErrorRows = 0, 0, 0, 0
	rec.Errors = nil
	rec.StartedAt, rec.CompletedAt = nil, nil
	f.records[id] = rec
	return nil
}

func (f *fakeRepo) ListSyncHistory(_ context.Context, clientID uuid.UUID, limit, offset int) ([]SyncRecord, int, error) {
	var all []SyncRecord
	for _, rec := range f.records {
		if rec.ClientID == clientID {
			all = append(all, rec)
		}
	}
	total := len(all)
	if offset > len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeRepo) SyncStats(_ context.Context, clientID uuid.UUID) (SyncStats, error) {
	var stats SyncStats
	for _, rec := range f.records {
		if rec.ClientID != clientID {
			continue
		}
		stats.TotalImports++
		switch rec.Status {
		case SyncCompleted:
			stats.SuccessfulImports++
		case SyncFailed:
			stats.FailedImports++
		}
		stats.TotalRowsProcessed += rec.ProcessedRows
	}
	return stats, nil
}

func (f *fakeRepo) BulkInsertEntries(_ context.Context, entries []LedgerEntry) (int64, error) {
	if f.bulkErr != nil {
		return 0, f.bulkErr
	}
	f.entries = append(f.entries, entries...)
	return int64(len(entries)), nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(_ context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fakeIdem struct {
	keys map[string]bool
}

func newFakeIdem() *fakeIdem { return &fakeIdem{keys: map[string]bool{}} }

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type fakeQueue struct {
	jobs []ImportJob
}

func (f *fakeQueue) EnqueueLedgerImport(_ context.Context, job ImportJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type harness struct {
	repo    *fakeRepo
	audit   *fakeAudit
	idem    *fakeIdem
	queue   *fakeQueue
	service *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{repo: newFakeRepo(), audit: &fakeAudit{}, idem: newFakeIdem(), queue: &fakeQueue{}}
	h.service = NewService(h.repo, h.audit, h.idem, nil, h.queue, nil)
	return h
}

func stageCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func pendingJob(h *harness, t *testing.T, path string) ImportJob {
	t.Helper()
	rec, err := h.service.CreateImport(context.Background(), CreateImportInput{
		FirmID:   uuid.New(),
		ClientID: uuid.New(),
		UserID:   "user-1",
		FileName: "export.csv",
		FilePath: path,
		Format:   FormatCSV,
		Mapping:  nil,
	})
	require.NoError(t, err)
	require.Len(t, h.queue.jobs, 1)
	job := h.queue.jobs[0]
	require.Equal(t, rec.ID, job.SyncID)
	return job
}

func TestRunImportSuccess(t *testing.T) {
	h := newHarness(t)
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	result, err := h.service.RunImport(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalRows)
	require.Equal(t, 2, result.ProcessedRows)
	require.Equal(t, 1, result.SkippedRows)
	require.Equal(t, 0, result.ErrorRows)

	rec := h.repo.records[job.SyncID]
	require.Equal(t, SyncCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)
	require.Equal(t, 2, rec.ProcessedRows)

	require.Len(t, h.repo.entries, 2)
	require.Equal(t, EntrySource, h.repo.entries[0].Source)
	require.Equal(t, job.SyncID, h.repo.entries[0].SyncID)

	// Completed imports delete the staged file.
	_, statErr := os.Stat(path)
	require.True(t, errors.Is(statErr, os.ErrNotExist))

	require.Len(t, h.audit.logs, 1)
	require.Equal(t, "ledger.import_completed", h.audit.logs[0].Action)
	require.Equal(t, job.SyncID.String(), h.audit.logs[0].EntityID)
}

func TestRunImportBulkWriteFailure(t *testing.T) {
	h := newHarness(t)
	h.repo.bulkErr = errors.New("copy: connection reset")
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	result, err := h.service.RunImport(context.Background(), job)
	require.Error(t, err)
	require.False(t, result.Success)

	var dbErr *RowError
	for i := range result.Errors {
		if result.Errors[i].Field == "database" {
			dbErr = &result.Errors[i]
		}
	}
	require.NotNil(t, dbErr)
	require.Equal(t, 0, dbErr.Index)

	rec := h.repo.records[job.SyncID]
	require.Equal(t, SyncFailed, rec.Status)
	require.NotNil(t, rec.CompletedAt)

	// The staged file is retained for a manual retry.
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	// The idempotency claim is released so the retry can run.
	require.Empty(t, h.idem.keys)

	require.Len(t, h.audit.logs, 1)
	require.Equal(t, "ledger.import_failed", h.audit.logs[0].Action)
}

func TestRunImportUnreadableFile(t *testing.T) {
	h := newHarness(t)
	job := pendingJob(h, t, filepath.Join(t.TempDir(), "missing.csv"))

	_, err := h.service.RunImport(context.Background(), job)
	require.Error(t, err)

	rec := h.repo.records[job.SyncID]
	require.Equal(t, SyncFailed, rec.Status)
	require.NotEmpty(t, rec.Errors)
	require.Equal(t, "file", rec.Errors[0].Field)
}

func TestRunImportSkipsRedeliveryOfCompletedJob(t *testing.T) {
	h := newHarness(t)
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	_, err := h.service.RunImport(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, h.repo.entries, 2)

	// Redelivery of the same job must not insert entries again.
	_, err = h.service.RunImport(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, h.repo.entries, 2)
	require.Len(t, h.audit.logs, 1)
}

func TestRunImportIdempotencyClaimBlocksSecondRun(t *testing.T) {
	h := newHarness(t)
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	// Another worker already claimed this sync id.
	require.NoError(t, h.idem.CheckAndInsert(context.Background(), job.SyncID.String(), "ledger_import"))

	result, err := h.service.RunImport(context.Background(), job)
	require.NoError(t, err)
	require.Zero(t, result.TotalRows)
	require.Empty(t, h.repo.entries)
	require.Equal(t, SyncPending, h.repo.records[job.SyncID].Status)
}

func TestRetryFailedImport(t *testing.T) {
	h := newHarness(t)
	h.repo.bulkErr = errors.New("copy failed")
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	_, err := h.service.RunImport(context.Background(), job)
	require.Error(t, err)

	h.repo.bulkErr = nil
	rec, err := h.service.Retry(context.Background(), job.SyncID)
	require.NoError(t, err)
	require.Equal(t, SyncPending, rec.Status)
	require.Empty(t, rec.Errors)

	// Retry re-enqueues from the retained file.
	require.Len(t, h.queue.jobs, 2)
	retried := h.queue.jobs[1]
	require.Equal(t, job.SyncID, retried.SyncID)
	require.Equal(t, path, retried.FilePath)

	_, err = h.service.RunImport(context.Background(), retried)
	require.NoError(t, err)
	require.Equal(t, SyncCompleted, h.repo.records[job.SyncID].Status)
	require.Len(t, h.repo.entries, 2)
}

func TestRetryRequiresFailedStatus(t *testing.T) {
	h := newHarness(t)
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	_, err := h.service.Retry(context.Background(), job.SyncID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestRetryRequiresRetainedFile(t *testing.T) {
	h := newHarness(t)
	path := stageCSV(t, sampleCSV)
	job := pendingJob(h, t, path)

	rec := h.repo.records[job.SyncID]
	rec.Status = SyncFailed
	h.repo.records[job.SyncID] = rec
	require.NoError(t, os.Remove(path))

	_, err := h.service.Retry(context.Background(), job.SyncID)
	require.ErrorIs(t, err, shared.ErrSourceFileMissing)
}

func TestHistoryPagination(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, h.repo.CreateSyncRecord(context.Background(), SyncRecord{
			ID:       uuid.New(),
			ClientID: clientID,
			Status:   SyncCompleted,
		}))
	}

	records, pagination, err := h.service.History(context.Background(), clientID, 1, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 3, pagination.Total)
	require.Equal(t, 2, pagination.TotalPages)
}

func TestStatsWithoutCache(t *testing.T) {
	h := newHarness(t)
	clientID := uuid.New()
	require.NoError(t, h.repo.CreateSyncRecord(context.Background(), SyncRecord{
		ID: uuid.New(), ClientID: clientID, Status: SyncCompleted, ProcessedRows: 10,
	}))
	require.NoError(t, h.repo.CreateSyncRecord(context.Background(), SyncRecord{
		ID: uuid.New(), ClientID: clientID, Status: SyncFailed,
	}))

	stats, err := h.service.Stats(context.Background(), clientID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalImports)
	require.Equal(t, 1, stats.SuccessfulImports)
	require.Equal(t, 1, stats.FailedImports)
	require.Equal(t, 10, stats.TotalRowsProcessed)
}
