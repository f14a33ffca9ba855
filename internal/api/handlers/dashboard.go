// dashboard.go — сводка по таблице аудита для оператора.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/nambgit/archetype-data-audit/internal/api/errors"
	"github.com/nambgit/archetype-data-audit/internal/domain/model"
	"github.com/nambgit/archetype-data-audit/internal/repository"
)

// dashboardLimit — количество последних записей в сводке.
const dashboardLimit = 20

// DashboardHandler — обработчик сводки аудита.
type DashboardHandler struct {
	repo   repository.AuditRepository
	logger *slog.Logger
}

// NewDashboardHandler создаёт обработчик сводки.
func NewDashboardHandler(repo repository.AuditRepository, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{
		repo:   repo,
		logger: logger.With(slog.String("component", "dashboard_handler")),
	}
}

// fileView — представление записи аудита в ответе API.
type fileView struct {
	ID            string  `json:"id"`
	Source        string  `json:"source"`
	Path          string  `json:"path"`
	Checksum      string  `json:"checksum"`
	LastModified  string  `json:"last_modified"`
	LastAccessed  string  `json:"last_accessed"`
	Owner         string  `json:"owner"`
	Status        string  `json:"status"`
	ArchiveURL    *string `json:"archive_url,omitempty"`
	FailureReason *string `json:"failure_reason,omitempty"`
	UpdatedAt     string  `json:"updated_at"`
}

// dashboardResponse — ответ сводки.
type dashboardResponse struct {
	Counts map[string]int `json:"counts"`
	Recent []fileView     `json:"recent"`
}

// GetDashboard — GET /: последние записи и счётчики по статусам.
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.repo.CountByStatus(ctx)
	if err != nil {
		h.logger.Error("Ошибка подсчёта статусов", slog.String("error", err.Error()))
		apierrors.InternalError(w, "ошибка чтения сводки")
		return
	}

	records, err := h.repo.ListRecent(ctx, dashboardLimit)
	if err != nil {
		h.logger.Error("Ошибка выборки записей", slog.String("error", err.Error()))
		apierrors.InternalError(w, "ошибка чтения сводки")
		return
	}

	resp := dashboardResponse{
		Counts: make(map[string]int, len(counts)),
		Recent: make([]fileView, 0, len(records)),
	}
	// Все статусы присутствуют в ответе, даже нулевые
	for _, st := range []model.FileStatus{
		model.StatusActive, model.StatusArchived, model.StatusRestoring, model.StatusArchiveFailed,
	} {
		resp.Counts[string(st)] = counts[st]
	}
	for _, rec := range records {
		resp.Recent = append(resp.Recent, toFileView(rec))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// toFileView преобразует доменную запись в представление API.
func toFileView(rec *model.FileAuditRecord) fileView {
	return fileView{
		ID:            rec.ID,
		Source:        string(rec.Source),
		Path:          rec.Path,
		Checksum:      rec.Fingerprint,
		LastModified:  rec.LastModified.UTC().Format(time.RFC3339),
		LastAccessed:  rec.LastAccessed.UTC().Format(time.RFC3339),
		Owner:         rec.Owner,
		Status:        string(rec.Status),
		ArchiveURL:    rec.ArchiveRef,
		FailureReason: rec.FailureReason,
		UpdatedAt:     rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
