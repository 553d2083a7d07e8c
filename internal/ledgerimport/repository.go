package ledgerimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/platform/db"
	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/shared"
)

// Repository encapsulates DB operations for sync records and ledger entries.
type Repository interface {
	CreateSyncRecord(ctx context.Context, rec SyncRecord) error
	GetSyncRecord(ctx context.Context, id uuid.UUID) (SyncRecord, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	FinishSyncRecord(ctx context.Context, rec SyncRecord) error
	ResetSyncRecord(ctx context.Context, id uuid.UUID) error
	ListSyncHistory(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]SyncRecord, int, error)
	SyncStats(ctx context.Context, clientID uuid.UUID) (SyncStats, error)
	BulkInsertEntries(ctx context.Context, entries []LedgerEntry) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the Postgres-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const syncColumns = `id, firm_id, client_id, file_name, file_path, format, account_mapping, status,
total_rows, processed_rows, skipped_rows, error_rows, errors, created_by, started_at, completed_at, created_at`

func (r *repository) CreateSyncRecord(ctx context.Context, rec SyncRecord) error {
	mappingJSON, err := json.Marshal(rec.Mapping)
	if err != nil {
		return fmt.Errorf("ledgerimport: marshal mapping: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO sync_records
(id, firm_id, client_id, file_name, file_path, format, account_mapping, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10, NOW()))`,
		rec.ID, rec.FirmID, rec.ClientID, rec.FileName, rec.FilePath, rec.Format, mappingJSON, rec.Status, rec.CreatedBy, nullTime(rec.CreatedAt))
	return err
}

func (r *repository) GetSyncRecord(ctx context.Context, id uuid.UUID) (SyncRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+syncColumns+` FROM sync_records WHERE id=$1`, id)
	rec, err := scanSyncRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SyncRecord{}, shared.ErrNotFound
		}
		return SyncRecord{}, err
	}
	return rec, nil
}

func (r *repository) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE sync_records SET status=$2, started_at=$3 WHERE id=$1`,
		id, SyncProcessing, startedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FinishSyncRecord mirrors the import counters and error list into the
// record along with the terminal status and completion timestamp.
func (r *repository) FinishSyncRecord(ctx context.Context, rec SyncRecord) error {
	errorsJSON, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("ledgerimport: marshal errors: %w", err)
	}
	cmd, err := r.pool.Exec(ctx, `UPDATE sync_records SET
status=$2, total_rows=$3, processed_rows=$4, skipped_rows=$5, error_rows=$6, errors=$7, completed_at=$8
WHERE id=$1`,
		rec.ID, rec.Status, rec.TotalRows, rec.ProcessedRows, rec.SkippedRows, rec.ErrorRows, errorsJSON, rec.CompletedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ResetSyncRecord returns a failed record to pending for a manual retry,
// clearing counters, errors and timestamps.
func (r *repository) ResetSyncRecord(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE sync_records SET
status=$2, total_rows=0, processed_rows=0, skipped_rows=0, error_rows=0, errors='[]'::jsonb,
started_at=NULL, completed_at=NULL
WHERE id=$1 AND status=$3`, id, SyncPending, SyncFailed)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidStatus
	}
	return nil
}

func (r *repository) ListSyncHistory(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]SyncRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_records WHERE client_id=$1`, clientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+syncColumns+` FROM sync_records
WHERE client_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

func (r *repository) SyncStats(ctx context.Context, clientID uuid.UUID) (SyncStats, error) {
	var stats SyncStats
	err := r.pool.QueryRow(ctx, `SELECT
COUNT(*),
COUNT(*) FILTER (WHERE status='completed'),
COUNT(*) FILTER (WHERE status='failed'),
MAX(completed_at),
COALESCE(SUM(processed_rows), 0)
FROM sync_records WHERE client_id=$1`, clientID).
		Scan(&stats.TotalImports, &stats.SuccessfulImports, &stats.FailedImports, &stats.LastImportDate, &stats.TotalRowsProcessed)
	if err != nil {
		return SyncStats{}, err
	}
	return stats, nil
}

// BulkInsertEntries persists all entries inside one transaction via COPY.
// Either every entry of the import lands or none do.
func (r *repository) BulkInsertEntries(ctx context.Context, entries []LedgerEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	var copied int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"ledger_entries"},
			[]string{"firm_id", "client_id", "sync_id", "entry_date", "account", "particulars", "debit", "credit", "balance", "source", "created_by"},
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				return []any{
					e.FirmID, e.ClientID, e.SyncID, e.Date, e.Account, e.Particulars,
					e.Debit.String(), e.Credit.String(), e.Balance.String(), e.Source, e.CreatedBy,
				}, nil
			}),
		)
		if err != nil {
			return err
		}
		copied = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ledgerimport: bulk insert: %w", err)
	}
	return copied, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSyncRecord(row rowScanner) (SyncRecord, error) {
	var rec SyncRecord
	var mappingJSON, errorsJSON []byte
	err := row.Scan(&rec.ID, &rec.FirmID, &rec.ClientID, &rec.FileName, &rec.FilePath, &rec.Format,
		&mappingJSON, &rec.Status, &rec.TotalRows, &rec.ProcessedRows, &rec.SkippedRows, &rec.ErrorRows,
		&errorsJSON, &rec.CreatedBy, &rec.StartedAt, &rec.CompletedAt, &rec.CreatedAt)
	if err != nil {
		return SyncRecord{}, err
	}
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &rec.Mapping); err != nil {
			return SyncRecord{}, fmt.Errorf("ledgerimport: unmarshal mapping: %w", err)
		}
	}
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &rec.Errors); err != nil {
			return SyncRecord{}, fmt.Errorf("ledgerimport: unmarshal errors: %w", err)
		}
	}
	return rec, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
