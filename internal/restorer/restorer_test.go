package restorer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nambgit/archetype-data-audit/internal/coldstore"
	"github.com/nambgit/archetype-data-audit/internal/domain/model"
	"github.com/nambgit/archetype-data-audit/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo — репозиторий одной записи.
type fakeRepo struct {
	rec           *model.FileAuditRecord
	setRestorings int
}

func (f *fakeRepo) Upsert(context.Context, *model.FileAuditRecord) error { return nil }
func (f *fakeRepo) GetByID(_ context.Context, id string) (*model.FileAuditRecord, error) {
	if f.rec == nil || f.rec.ID != id {
		return nil, repository.ErrNotFound
	}
	copy := *f.rec
	return &copy, nil
}
func (f *fakeRepo) GetByPath(context.Context, string) (*model.FileAuditRecord, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeRepo) ListRecent(context.Context, int) ([]*model.FileAuditRecord, error) {
	return nil, nil
}
func (f *fakeRepo) CountByStatus(context.Context) (map[model.FileStatus]int, error) {
	return nil, nil
}
func (f *fakeRepo) SetArchived(context.Context, string, string) error      { return nil }
func (f *fakeRepo) SetArchiveFailed(context.Context, string, string) error { return nil }
func (f *fakeRepo) SetRestoring(_ context.Context, id string) error {
	f.setRestorings++
	f.rec.Status = model.StatusRestoring
	return nil
}

// fakeStore фиксирует запросы восстановления.
type fakeStore struct {
	restores   int
	restoreErr error
}

func (s *fakeStore) Upload(context.Context, string, io.Reader, int64, coldstore.UploadMeta) (string, error) {
	return "", errors.New("не реализовано")
}
func (s *fakeStore) Stat(context.Context, string) (*coldstore.ObjectInfo, error) {
	return nil, errors.New("не реализовано")
}
func (s *fakeStore) Restore(_ context.Context, ref string, days int) error {
	s.restores++
	return s.restoreErr
}
func (s *fakeStore) Download(context.Context, string, io.Writer) (string, error) {
	return "", errors.New("не реализовано")
}

func archivedRecord() *model.FileAuditRecord {
	ref := "s3://archive/docs/report.pdf"
	return &model.FileAuditRecord{
		ID:         "rec-1",
		Source:     model.SourceFileServer,
		Path:       "/srv/files/docs/report.pdf",
		Status:     model.StatusArchived,
		ArchiveRef: &ref,
	}
}

// --- Тесты ---

// TestRequestRestore проверяет успешный запрос восстановления.
func TestRequestRestore(t *testing.T) {
	repo := &fakeRepo{rec: archivedRecord()}
	store := &fakeStore{}
	svc := New(repo, store, 5, discardLogger())

	if err := svc.RequestRestore(context.Background(), "rec-1"); err != nil {
		t.Fatalf("RequestRestore() ошибка: %v", err)
	}
	if store.restores != 1 {
		t.Errorf("запросов провайдеру %d, ожидался 1", store.restores)
	}
	if repo.rec.Status != model.StatusRestoring {
		t.Errorf("Status = %s, ожидалось Restoring", repo.rec.Status)
	}
}

// TestRequestRestore_Idempotent проверяет, что повторный запрос для
// записи в Restoring не обращается к провайдеру.
func TestRequestRestore_Idempotent(t *testing.T) {
	repo := &fakeRepo{rec: archivedRecord()}
	store := &fakeStore{}
	svc := New(repo, store, 5, discardLogger())

	if err := svc.RequestRestore(context.Background(), "rec-1"); err != nil {
		t.Fatalf("первый RequestRestore() ошибка: %v", err)
	}
	if err := svc.RequestRestore(context.Background(), "rec-1"); err != nil {
		t.Fatalf("повторный RequestRestore() ошибка: %v", err)
	}
	if store.restores != 1 {
		t.Errorf("запросов провайдеру %d, ожидался 1 (повтор идемпотентен)", store.restores)
	}
	if repo.setRestorings != 1 {
		t.Errorf("SetRestoring вызван %d раз, ожидался 1", repo.setRestorings)
	}
}

// TestRequestRestore_NotArchived проверяет отказ для Active-записи.
func TestRequestRestore_NotArchived(t *testing.T) {
	rec := archivedRecord()
	rec.Status = model.StatusActive
	rec.ArchiveRef = nil
	repo := &fakeRepo{rec: rec}
	store := &fakeStore{}
	svc := New(repo, store, 5, discardLogger())

	err := svc.RequestRestore(context.Background(), "rec-1")
	if !errors.Is(err, ErrNotArchived) {
		t.Errorf("RequestRestore() = %v, ожидался ErrNotArchived", err)
	}
	if store.restores != 0 {
		t.Error("провайдер не должен вызываться для Active-записи")
	}
}

// TestRequestRestore_UnknownID проверяет проброс ErrNotFound.
func TestRequestRestore_UnknownID(t *testing.T) {
	svc := New(&fakeRepo{}, &fakeStore{}, 5, discardLogger())

	err := svc.RequestRestore(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("RequestRestore() = %v, ожидался ErrNotFound", err)
	}
}

// TestRequestRestore_ProviderError проверяет, что при ошибке провайдера
// статус записи не меняется.
func TestRequestRestore_ProviderError(t *testing.T) {
	repo := &fakeRepo{rec: archivedRecord()}
	store := &fakeStore{restoreErr: errors.New("провайдер недоступен")}
	svc := New(repo, store, 5, discardLogger())

	if err := svc.RequestRestore(context.Background(), "rec-1"); err == nil {
		t.Fatal("RequestRestore() при ошибке провайдера — ожидалась ошибка")
	}
	if repo.rec.Status != model.StatusArchived {
		t.Errorf("Status = %s, должен остаться Archived", repo.rec.Status)
	}
}
