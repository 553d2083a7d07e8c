package ledgerimport

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Format identifies a supported export file format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatXML Format = "xml"
)

// SyncStatus enumerates the lifecycle of one import job.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncProcessing SyncStatus = "processing"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
)

// EntrySource tags ledger entries created by the import pipeline.
const EntrySource = "imported from external ledger"

// RawRow is the ephemeral parse result of one export line. Never persisted.
type RawRow struct {
	Date        string
	Account     string
	Particulars string
	Debit       string
	Credit      string
	Balance     string
}

// NormalizedRow carries canonical per-row values. Debit and Credit are
// always non-negative.
type NormalizedRow struct {
	Date        time.Time
	Account     string
	Particulars string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
}

// RowError describes why a single row was rejected.
type RowError struct {
	Index   int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Index, e.Field, e.Message)
}

// ParsedRow is the tagged result of the combined parse+normalize step.
// Exactly one of Row and Err is set, so every malformed row stays visible
// to the caller instead of being dropped inside the parser.
type ParsedRow struct {
	Index int
	Row   *NormalizedRow
	Err   *RowError
}

// AccountMapping translates account names from the external export into the
// firm's canonical chart-of-accounts naming. Unmapped names pass through.
type AccountMapping map[string]string

// Resolve returns the canonical name for an exported account name.
func (m AccountMapping) Resolve(name string) string {
	if mapped, ok := m[name]; ok && mapped != "" {
		return mapped
	}
	return name
}

// ImportResult is the aggregate outcome of one import. Immutable once
// returned by the reconciliation engine, except that a persistence failure
// appends one database error and clears Success.
type ImportResult struct {
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	SkippedRows   int        `json:"skipped_rows"`
	ErrorRows     int        `json:"error_rows"`
	Errors        []RowError `json:"errors"`
	Anomalies     []string   `json:"anomalies"`
	Duplicates    []string   `json:"duplicates"`
	Success       bool       `json:"success"`
}

// SyncRecord is the persistent record of one import job's lifecycle.
// Records are never deleted; they form the client's import history.
type SyncRecord struct {
	ID            uuid.UUID
	FirmID        uuid.UUID
	ClientID      uuid.UUID
	FileName      string
	FilePath      string
	Format        Format
	Mapping       AccountMapping
	Status        SyncStatus
	TotalRows     int
	ProcessedRows int
	SkippedRows   int
	ErrorRows     int
	Errors        []RowError
	CreatedBy     string
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
}

// LedgerEntry is a persisted, firm-and-client-scoped financial record.
type LedgerEntry struct {
	ID          int64
	FirmID      uuid.UUID
	ClientID    uuid.UUID
	SyncID      uuid.UUID
	Date        time.Time
	Account     string
	Particulars string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
	Source      string
	CreatedBy   string
	CreatedAt   time.Time
}

// SyncStats aggregates a client's import history for the dashboard.
type SyncStats struct {
	TotalImports       int        `json:"total_imports"`
	SuccessfulImports  int        `json:"successful_imports"`
	FailedImports      int        `json:"failed_imports"`
	LastImportDate     *time.Time `json:"last_import_date"`
	TotalRowsProcessed int        `json:"total_rows_processed"`
}

// ImportJob is the queue payload for one import task.
type ImportJob struct {
	SyncID   uuid.UUID      `json:"sync_id"`
	FirmID   uuid.UUID      `json:"firm_id"`
	ClientID uuid.UUID      `json:"client_id"`
	FilePath string         `json:"file_path"`
	Format   Format         `json:"format"`
	Mapping  AccountMapping `json:"account_mapping"`
	UserID   string         `json:"user_id"`
}
