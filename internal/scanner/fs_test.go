package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nambgit/archetype-data-audit/internal/domain/model"
)

// discardLogger — логгер для тестов, вывод подавлен.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo — репозиторий аудита в памяти по пути файла.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*model.FileAuditRecord
	upserts int
	failOn  string // путь, для которого Upsert возвращает ошибку
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[string]*model.FileAuditRecord)}
}

func (f *fakeRepo) Upsert(_ context.Context, rec *model.FileAuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && rec.Path == f.failOn {
		return errors.New("искусственная ошибка БД")
	}
	f.upserts++
	stored := *rec
	stored.Status = model.StatusActive
	if existing, ok := f.records[rec.Path]; ok {
		stored.ID = existing.ID
	} else {
		stored.ID = rec.Path // достаточно уникальности в тесте
	}
	f.records[rec.Path] = &stored
	rec.ID = stored.ID
	rec.Status = stored.Status
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id string) (*model.FileAuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			copy := *rec
			return &copy, nil
		}
	}
	return nil, errors.New("запись не найдена")
}

func (f *fakeRepo) GetByPath(_ context.Context, path string) (*model.FileAuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[path]
	if !ok {
		return nil, errors.New("запись не найдена")
	}
	copy := *rec
	return &copy, nil
}

func (f *fakeRepo) ListRecent(_ context.Context, limit int) ([]*model.FileAuditRecord, error) {
	return nil, nil
}

func (f *fakeRepo) CountByStatus(_ context.Context) (map[model.FileStatus]int, error) {
	return nil, nil
}

func (f *fakeRepo) SetArchived(_ context.Context, path, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[path]
	if !ok {
		return errors.New("запись не найдена")
	}
	rec.Status = model.StatusArchived
	rec.ArchiveRef = &ref
	return nil
}

func (f *fakeRepo) SetArchiveFailed(_ context.Context, path, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[path]
	if !ok {
		return errors.New("запись не найдена")
	}
	rec.Status = model.StatusArchiveFailed
	rec.FailureReason = &reason
	return nil
}

func (f *fakeRepo) SetRestoring(_ context.Context, id string) error {
	return nil
}

// fakeArchiver фиксирует переданных кандидатов.
type fakeArchiver struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, path, fp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, path)
	return nil
}

// writeAgedFile создаёт файл и выставляет atime/mtime в прошлое.
func writeAgedFile(t *testing.T, dir, name, content string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("не удалось создать %s: %v", name, err)
	}
	old := time.Now().Add(-age)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("не удалось выставить времена %s: %v", name, err)
	}
	return path
}

// --- Тесты FSScanner ---

// TestFSScan_FreshFilesNotArchived проверяет, что свежие файлы
// фиксируются как Active и не передаются архиватору.
func TestFSScan_FreshFilesNotArchived(t *testing.T) {
	root := t.TempDir()
	path := writeAgedFile(t, root, "fresh.txt", "data", time.Hour)

	repo := newFakeRepo()
	arch := &fakeArchiver{}
	s := NewFSScanner(repo, arch, root, 180*24*time.Hour, discardLogger())

	summary, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() ошибка: %v", err)
	}
	if summary.Processed != 1 {
		t.Errorf("Processed = %d, ожидалось 1", summary.Processed)
	}
	if summary.Archived != 0 || len(arch.calls) != 0 {
		t.Error("свежий файл не должен передаваться архиватору")
	}

	rec, err := repo.GetByPath(context.Background(), path)
	if err != nil {
		t.Fatalf("запись не создана: %v", err)
	}
	if rec.Status != model.StatusActive {
		t.Errorf("Status = %s, ожидалось Active", rec.Status)
	}
	if rec.Owner != "system" {
		t.Errorf("Owner = %q, ожидалось system", rec.Owner)
	}
}

// TestFSScan_StaleFileArchived проверяет передачу устаревшего файла архиватору.
func TestFSScan_StaleFileArchived(t *testing.T) {
	root := t.TempDir()
	stale := writeAgedFile(t, root, "stale.txt", "old data", 200*24*time.Hour)
	writeAgedFile(t, root, "fresh.txt", "new data", time.Hour)

	repo := newFakeRepo()
	arch := &fakeArchiver{}
	s := NewFSScanner(repo, arch, root, 180*24*time.Hour, discardLogger())

	summary, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() ошибка: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("Processed = %d, ожидалось 2", summary.Processed)
	}
	if summary.Archived != 1 {
		t.Errorf("Archived = %d, ожидалось 1", summary.Archived)
	}
	if len(arch.calls) != 1 || arch.calls[0] != stale {
		t.Errorf("архиватору переданы %v, ожидался только %s", arch.calls, stale)
	}
}

// TestFSScan_Idempotent проверяет, что повторный проход не создаёт
// новых записей и даёт тот же итог.
func TestFSScan_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeAgedFile(t, root, "a.txt", "aaa", time.Hour)
	writeAgedFile(t, root, "b.txt", "bbb", time.Hour)

	repo := newFakeRepo()
	s := NewFSScanner(repo, nil, root, 180*24*time.Hour, discardLogger())

	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("первый Scan() ошибка: %v", err)
	}
	second, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("второй Scan() ошибка: %v", err)
	}

	if first.Processed != 2 || second.Processed != 2 {
		t.Errorf("Processed = %d/%d, ожидалось 2/2", first.Processed, second.Processed)
	}
	if len(repo.records) != 2 {
		t.Errorf("записей в репозитории %d, ожидалось 2", len(repo.records))
	}
	if repo.upserts != 4 {
		t.Errorf("upserts = %d, ожидалось 4 (по одному на файл за проход)", repo.upserts)
	}
}

// TestFSScan_ArchiverErrorContinues проверяет, что ошибка архиватора
// не прерывает проход.
func TestFSScan_ArchiverErrorContinues(t *testing.T) {
	root := t.TempDir()
	writeAgedFile(t, root, "old1.txt", "1", 200*24*time.Hour)
	writeAgedFile(t, root, "old2.txt", "2", 200*24*time.Hour)

	repo := newFakeRepo()
	arch := &fakeArchiver{err: errors.New("хранилище недоступно")}
	s := NewFSScanner(repo, arch, root, 180*24*time.Hour, discardLogger())

	summary, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() ошибка: %v", err)
	}
	if summary.Processed != 2 {
		t.Errorf("Processed = %d, ожидалось 2", summary.Processed)
	}
	if summary.Failed != 2 {
		t.Errorf("Failed = %d, ожидалось 2", summary.Failed)
	}
	if summary.Archived != 0 {
		t.Errorf("Archived = %d, ожидалось 0", summary.Archived)
	}
}

// TestFSScan_UpsertErrorCounted проверяет учёт ошибки БД для одного
// файла без прерывания прохода.
func TestFSScan_UpsertErrorCounted(t *testing.T) {
	root := t.TempDir()
	bad := writeAgedFile(t, root, "bad.txt", "x", time.Hour)
	writeAgedFile(t, root, "good.txt", "y", time.Hour)

	repo := newFakeRepo()
	repo.failOn = bad
	s := NewFSScanner(repo, nil, root, 180*24*time.Hour, discardLogger())

	summary, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() ошибка: %v", err)
	}
	if summary.Processed != 1 {
		t.Errorf("Processed = %d, ожидалось 1", summary.Processed)
	}
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, ожидалось 1", summary.Failed)
	}
}

// TestFSScan_CancelledContext проверяет прерывание прохода по отмене контекста.
func TestFSScan_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeAgedFile(t, root, "a.txt", "aaa", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewFSScanner(newFakeRepo(), nil, root, 180*24*time.Hour, discardLogger())
	if _, err := s.Scan(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() с отменённым контекстом = %v, ожидался context.Canceled", err)
	}
}
