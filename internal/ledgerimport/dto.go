package ledgerimport

import (
	"time"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/shared"
)

// ImportRequest carries the non-file fields of a multipart upload.
type ImportRequest struct {
	FirmID   string            `json:"firm_id" validate:"required,uuid"`
	ClientID string            `json:"client_id" validate:"required,uuid"`
	Format   string            `json:"format" validate:"required,oneof=csv xml"`
	Mapping  map[string]string `json:"account_mapping" validate:"omitempty,dive,keys,required,endkeys,required"`
}

// SyncRecordResponse is the JSON shape of one sync record.
type SyncRecordResponse struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"client_id"`
	FileName      string     `json:"file_name"`
	Format        string     `json:"format"`
	Status        string     `json:"status"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	SkippedRows   int        `json:"skipped_rows"`
	ErrorRows     int        `json:"error_rows"`
	Errors        []RowError `json:"errors,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HistoryResponse pairs a page of records with pagination metadata.
type HistoryResponse struct {
	Records    []SyncRecordResponse `json:"records"`
	Pagination shared.Pagination    `json:"pagination"`
}

func toSyncRecordResponse(rec SyncRecord) SyncRecordResponse {
	return SyncRecordResponse{
		ID:            rec.ID.String(),
		ClientID:      rec.ClientID.String(),
		FileName:      rec.FileName,
		Format:        string(rec.Format),
		Status:        string(rec.Status),
		TotalRows:     rec.TotalRows,
		ProcessedRows: rec.ProcessedRows,
		SkippedRows:   rec.SkippedRows,
		ErrorRows:     rec.ErrorRows,
		Errors:        rec.Errors,
		StartedAt:     rec.StartedAt,
		CompletedAt:   rec.CompletedAt,
		CreatedAt:     rec.CreatedAt,
	}
}
