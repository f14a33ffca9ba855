// files.go — обработчики скачивания и восстановления файлов.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/nambgit/archetype-data-audit/internal/api/errors"
	"github.com/nambgit/archetype-data-audit/internal/gateway"
	"github.com/nambgit/archetype-data-audit/internal/graph"
	"github.com/nambgit/archetype-data-audit/internal/repository"
	"github.com/nambgit/archetype-data-audit/internal/restorer"
)

// FilesHandler — обработчик операций с файлами.
type FilesHandler struct {
	gateway  *gateway.Service
	restorer *restorer.Service
	logger   *slog.Logger
}

// NewFilesHandler создаёт обработчик операций с файлами.
func NewFilesHandler(gw *gateway.Service, rs *restorer.Service, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		gateway:  gw,
		restorer: rs,
		logger:   logger.With(slog.String("component", "files_handler")),
	}
}

// HandleDownload — GET /download/{id}: потоковая отдача файла.
func (h *FilesHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "некорректный идентификатор записи")
		return
	}

	err := h.gateway.Download(r.Context(), w, id)
	if err == nil {
		return
	}

	// До первого байта содержимого шлюз в w не пишет — безопасно
	// отвечать JSON-ошибкой.
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		apierrors.NotFound(w, "файл не найден")
	case errors.Is(err, gateway.ErrRestoreRequired):
		apierrors.InvalidState(w, "файл в архиве: инициируйте восстановление через /restore/"+id)
	case errors.Is(err, gateway.ErrStillRestoring):
		apierrors.RestoreInProgress(w, "восстановление из архива ещё выполняется, обычно 12-48 часов")
	case errors.Is(err, gateway.ErrFingerprintMismatch):
		h.logger.Error("Верификация содержимого провалена", slog.String("id", id))
		apierrors.ChecksumMismatch(w, "содержимое не прошло верификацию, файл не выдан")
	case errors.Is(err, gateway.ErrNotReadable):
		apierrors.Forbidden(w, "файл недоступен для чтения")
	case errors.Is(err, graph.ErrUnauthorized):
		apierrors.Unauthorized(w, "доступ к SharePoint не авторизован")
	case errors.Is(err, graph.ErrForbidden):
		apierrors.Forbidden(w, "недостаточно прав на файл SharePoint")
	case errors.Is(err, graph.ErrItemNotFound):
		apierrors.NotFound(w, "файл не найден в SharePoint")
	default:
		h.logger.Error("Ошибка скачивания",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		apierrors.CollaboratorError(w, "ошибка выдачи файла")
	}
}

// restoreResponse — ответ на запрос восстановления.
type restoreResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HandleRestore — GET /restore/{id}: инициирование восстановления.
// 202 при принятом запросе, включая идемпотентный повтор.
func (h *FilesHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.ValidationError(w, "некорректный идентификатор записи")
		return
	}

	err := h.restorer.RequestRestore(r.Context(), id)
	switch {
	case err == nil:
		// Сброс кэша шлюза: статус записи изменился
		h.gateway.Invalidate(id)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(restoreResponse{
			Message: "восстановление запрошено, файл будет доступен в течение 12-48 часов",
			Status:  "Restoring",
		})
	case errors.Is(err, repository.ErrNotFound):
		apierrors.NotFound(w, "запись не найдена")
	case errors.Is(err, restorer.ErrNotArchived):
		apierrors.NotArchived(w, "файл не находится в архиве")
	default:
		h.logger.Error("Ошибка запроса восстановления",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		apierrors.CollaboratorError(w, "ошибка запроса восстановления")
	}
}
