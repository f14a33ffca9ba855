package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nambgit/archetype-data-audit/internal/coldstore"
	"github.com/nambgit/archetype-data-audit/internal/domain/model"
	"github.com/nambgit/archetype-data-audit/internal/gateway"
	"github.com/nambgit/archetype-data-audit/internal/repository"
	"github.com/nambgit/archetype-data-audit/internal/restorer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo — репозиторий в памяти для тестов обработчиков.
type fakeRepo struct {
	records map[string]*model.FileAuditRecord
}

func newFakeRepo(recs ...*model.FileAuditRecord) *fakeRepo {
	m := make(map[string]*model.FileAuditRecord)
	for _, r := range recs {
		m[r.ID] = r
	}
	return &fakeRepo{records: m}
}

func (f *fakeRepo) Upsert(context.Context, *model.FileAuditRecord) error { return nil }
func (f *fakeRepo) GetByID(_ context.Context, id string) (*model.FileAuditRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *rec
	return &copy, nil
}
func (f *fakeRepo) GetByPath(context.Context, string) (*model.FileAuditRecord, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeRepo) ListRecent(_ context.Context, limit int) ([]*model.FileAuditRecord, error) {
	var out []*model.FileAuditRecord
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}
func (f *fakeRepo) CountByStatus(context.Context) (map[model.FileStatus]int, error) {
	counts := make(map[model.FileStatus]int)
	for _, rec := range f.records {
		counts[rec.Status]++
	}
	return counts, nil
}
func (f *fakeRepo) SetArchived(context.Context, string, string) error      { return nil }
func (f *fakeRepo) SetArchiveFailed(context.Context, string, string) error { return nil }
func (f *fakeRepo) SetRestoring(_ context.Context, id string) error {
	f.records[id].Status = model.StatusRestoring
	return nil
}

// fakeStore — холодное хранилище, принимающее любые запросы восстановления.
type fakeStore struct{ restores int }

func (s *fakeStore) Upload(context.Context, string, io.Reader, int64, coldstore.UploadMeta) (string, error) {
	return "", nil
}
func (s *fakeStore) Stat(context.Context, string) (*coldstore.ObjectInfo, error) {
	return nil, coldstore.ErrObjectNotFound
}
func (s *fakeStore) Restore(context.Context, string, int) error {
	s.restores++
	return nil
}
func (s *fakeStore) Download(context.Context, string, io.Writer) (string, error) {
	return "", coldstore.ErrStillRestoring
}

// newRouter собирает chi-роутер с обработчиками поверх фейков.
func newRouter(repo repository.AuditRepository, store coldstore.Store, t *testing.T) chi.Router {
	t.Helper()
	gw := gateway.New(repo, store, nil, t.TempDir(), 16, time.Minute, discardLogger())
	rs := restorer.New(repo, store, 5, discardLogger())
	files := NewFilesHandler(gw, rs, discardLogger())
	dash := NewDashboardHandler(repo, discardLogger())

	r := chi.NewRouter()
	r.Get("/", dash.GetDashboard)
	r.Get("/download/{id}", files.HandleDownload)
	r.Get("/restore/{id}", files.HandleRestore)
	return r
}

func strptr(s string) *string { return &s }

// --- Тесты ---

// TestDashboard проверяет сводку: счётчики и последние записи.
func TestDashboard(t *testing.T) {
	rec := &model.FileAuditRecord{
		ID:     uuid.New().String(),
		Source: model.SourceFileServer,
		Path:   "/srv/files/a.txt",
		Status: model.StatusActive,
		Owner:  "system",
	}
	router := newRouter(newFakeRepo(rec), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("статус %d, ожидался 200", w.Code)
	}

	var resp struct {
		Counts map[string]int `json:"counts"`
		Recent []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"recent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.Counts["Active"] != 1 {
		t.Errorf("counts[Active] = %d, ожидалось 1", resp.Counts["Active"])
	}
	// Нулевые статусы присутствуют в ответе
	if _, ok := resp.Counts["Archived"]; !ok {
		t.Error("counts должен содержать все статусы")
	}
	if len(resp.Recent) != 1 || resp.Recent[0].ID != rec.ID {
		t.Errorf("recent = %+v", resp.Recent)
	}
}

// TestDownload_InvalidID проверяет 400 для не-UUID идентификатора.
func TestDownload_InvalidID(t *testing.T) {
	router := newRouter(newFakeRepo(), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/not-a-uuid", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("статус %d, ожидался 400", w.Code)
	}
}

// TestDownload_NotFound проверяет 404 для неизвестной записи.
func TestDownload_NotFound(t *testing.T) {
	router := newRouter(newFakeRepo(), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+uuid.New().String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("статус %d, ожидался 404", w.Code)
	}
}

// TestDownload_ArchivedGuidance проверяет 400 INVALID_STATE для архивной записи.
func TestDownload_ArchivedGuidance(t *testing.T) {
	rec := &model.FileAuditRecord{
		ID:         uuid.New().String(),
		Source:     model.SourceFileServer,
		Path:       "/srv/files/a.txt",
		Status:     model.StatusArchived,
		ArchiveRef: strptr("s3://archive/a.txt"),
	}
	router := newRouter(newFakeRepo(rec), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+rec.ID, nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("статус %d, ожидался 400", w.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.Error.Code != "INVALID_STATE" {
		t.Errorf("код = %q, ожидался INVALID_STATE", resp.Error.Code)
	}
}

// TestDownload_RestoringGuidance проверяет 400 RESTORE_IN_PROGRESS
// для записи с незавершённым восстановлением.
func TestDownload_RestoringGuidance(t *testing.T) {
	rec := &model.FileAuditRecord{
		ID:         uuid.New().String(),
		Source:     model.SourceFileServer,
		Path:       "/srv/files/a.txt",
		Status:     model.StatusRestoring,
		ArchiveRef: strptr("s3://archive/a.txt"),
	}
	router := newRouter(newFakeRepo(rec), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/download/"+rec.ID, nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("статус %d, ожидался 400", w.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.Error.Code != "RESTORE_IN_PROGRESS" {
		t.Errorf("код = %q, ожидался RESTORE_IN_PROGRESS", resp.Error.Code)
	}
}

// TestRestore_Accepted проверяет 202 при запросе восстановления.
func TestRestore_Accepted(t *testing.T) {
	rec := &model.FileAuditRecord{
		ID:         uuid.New().String(),
		Source:     model.SourceFileServer,
		Path:       "/srv/files/a.txt",
		Status:     model.StatusArchived,
		ArchiveRef: strptr("s3://archive/a.txt"),
	}
	store := &fakeStore{}
	router := newRouter(newFakeRepo(rec), store, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/restore/"+rec.ID, nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("статус %d, ожидался 202: %s", w.Code, w.Body.String())
	}
	if store.restores != 1 {
		t.Errorf("запросов провайдеру %d, ожидался 1", store.restores)
	}

	// Повторный запрос — тоже 202, без нового обращения к провайдеру
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/restore/"+rec.ID, nil))
	if w.Code != http.StatusAccepted {
		t.Errorf("повторный статус %d, ожидался 202", w.Code)
	}
	if store.restores != 1 {
		t.Errorf("запросов провайдеру %d, повтор должен быть идемпотентным", store.restores)
	}
}

// TestRestore_NotArchived проверяет 400 NOT_ARCHIVED для Active-записи.
func TestRestore_NotArchived(t *testing.T) {
	rec := &model.FileAuditRecord{
		ID:     uuid.New().String(),
		Source: model.SourceFileServer,
		Path:   "/srv/files/a.txt",
		Status: model.StatusActive,
	}
	router := newRouter(newFakeRepo(rec), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/restore/"+rec.ID, nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("статус %d, ожидался 400", w.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ошибка разбора ответа: %v", err)
	}
	if resp.Error.Code != "NOT_ARCHIVED" {
		t.Errorf("код = %q, ожидался NOT_ARCHIVED", resp.Error.Code)
	}
}

// TestRestore_UnknownID проверяет 404 для неизвестной записи.
func TestRestore_UnknownID(t *testing.T) {
	router := newRouter(newFakeRepo(), &fakeStore{}, t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/restore/"+uuid.New().String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("статус %d, ожидался 404", w.Code)
	}
}
