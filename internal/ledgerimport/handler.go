package ledgerimport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/SagarSreekumarPillai/ledgerfy-sub000/internal/shared"
)

// Handler exposes the import upload, history and retry endpoints.
type Handler struct {
	service       *Service
	logger        *slog.Logger
	validate      *validator.Validate
	importDir     string
	maxUploadSize int64
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service, importDir string, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = 10 << 20
	}
	return &Handler{
		service:       service,
		logger:        logger,
		validate:      validator.New(),
		importDir:     importDir,
		maxUploadSize: maxUploadSize,
	}
}

// CreateImport accepts a multipart upload (file, firm_id, client_id, format,
// account_mapping as JSON), stages the file and enqueues the import job.
func (h *Handler) CreateImport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := ImportRequest{
		FirmID:   r.FormValue("firm_id"),
		ClientID: r.FormValue("client_id"),
		Format:   r.FormValue("format"),
	}
	if raw := r.FormValue("account_mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Mapping); err != nil {
			writeError(w, http.StatusBadRequest, "invalid account mapping")
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	firmID, _ := uuid.Parse(req.FirmID)
	clientID, _ := uuid.Parse(req.ClientID)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	path, err := h.stageFile(file, req.Format)
	if err != nil {
		h.logger.Error("stage upload", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	rec, err := h.service.CreateImport(r.Context(), CreateImportInput{
		FirmID:   firmID,
		ClientID: clientID,
		UserID:   r.Header.Get("X-User-ID"),
		FileName: header.Filename,
		FilePath: path,
		Format:   Format(req.Format),
		Mapping:  req.Mapping,
	})
	if err != nil {
		h.logger.Error("create import", slog.Any("error", err))
		_ = os.Remove(path)
		writeError(w, http.StatusInternalServerError, "could not create import")
		return
	}
	writeJSON(w, http.StatusAccepted, toSyncRecordResponse(rec))
}

// History lists a client's past sync records, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	clientID, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	page, perPage := shared.PageParams(r.URL.Query())
	records, pagination, err := h.service.History(r.Context(), clientID, page, perPage)
	if err != nil {
		h.logger.Error("sync history", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	resp := HistoryResponse{Records: make([]SyncRecordResponse, 0, len(records)), Pagination: pagination}
	for _, rec := range records {
		resp.Records = append(resp.Records, toSyncRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Stats returns the client's aggregate import statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	clientID, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid client id")
		return
	}
	stats, err := h.service.Stats(r.Context(), clientID)
	if err != nil {
		h.logger.Error("sync stats", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Retry re-enqueues a failed import from its retained source file.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	syncID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sync id")
		return
	}
	rec, err := h.service.Retry(r.Context(), syncID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrNotFound):
			writeError(w, http.StatusNotFound, "sync record not found")
		case errors.Is(err, shared.ErrInvalidStatus):
			writeError(w, http.StatusConflict, "only failed imports can be retried")
		case errors.Is(err, shared.ErrSourceFileMissing):
			writeError(w, http.StatusGone, "source file no longer available, re-upload required")
		default:
			h.logger.Error("retry import", slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "could not retry import")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, toSyncRecordResponse(rec))
}

// stageFile copies the upload into the import directory under a fresh name.
func (h *Handler) stageFile(src io.Reader, format string) (string, error) {
	if err := os.MkdirAll(h.importDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(h.importDir, uuid.NewString()+"."+format)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, io.LimitReader(src, h.maxUploadSize)); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
