// Пакет archiver — перенос файлов в холодное хранилище.
// Последовательность: проверка границы корня, загрузка потока в архив,
// верификация по метаданным, перевод записи в Archived, удаление
// локальной копии. Статус в БД обновляется до удаления файла: при
// сбое удаления следующий скан восстановит согласованность.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nambgit/archetype-data-audit/internal/coldstore"
	"github.com/nambgit/archetype-data-audit/internal/fingerprint"
	"github.com/nambgit/archetype-data-audit/internal/repository"
)

// Ошибки архиватора.
var (
	// ErrPathEscape — путь выходит за пределы корня файлового сервера.
	ErrPathEscape = errors.New("путь выходит за пределы корня файлового сервера")
	// ErrNotReadable — файл отсутствует, нечитаем или не является обычным файлом.
	ErrNotReadable = errors.New("файл недоступен для чтения")
)

// Метрики архивирования.
var (
	archiveUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "da_archiver_uploads_total",
		Help: "Количество загрузок в холодное хранилище по результату",
	}, []string{"result"})

	verifyMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "da_archiver_verify_mismatch_total",
		Help: "Количество расхождений контрольной суммы при верификации загрузки",
	})
)

// Service — сервис архивирования.
type Service struct {
	repo   repository.AuditRepository
	store  coldstore.Store
	root   string
	logger *slog.Logger
}

// New создаёт сервис архивирования.
// root — корень файлового сервера, граница допустимых путей.
func New(repo repository.AuditRepository, store coldstore.Store, root string, logger *slog.Logger) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения корня %s: %w", root, err)
	}
	// Симлинки в корне разрешаются один раз при создании сервиса
	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения корня %s: %w", root, err)
	}

	return &Service{
		repo:   repo,
		store:  store,
		root:   resolved,
		logger: logger.With(slog.String("component", "archiver")),
	}, nil
}

// Archive переносит файл в холодное хранилище.
// fp — заранее вычисленная контрольная сумма (пустая — вычисляется здесь).
//
// Отклонение пути за пределами корня не оставляет следов: ни записи
// в БД, ни обращений к хранилищу. Ошибка после проверки границы
// фиксируется в записи как ArchiveFailed; локальный файл при этом
// не трогается.
func (s *Service) Archive(ctx context.Context, path, fp string) error {
	resolved, err := s.resolveWithinRoot(path)
	if err != nil {
		if errors.Is(err, ErrPathEscape) {
			// Побег за корень отклоняется без следов
			return err
		}
		return s.fail(ctx, path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return s.fail(ctx, path, fmt.Errorf("%w: %s", ErrNotReadable, path))
	}

	if fp == "" {
		fp, err = fingerprint.File(resolved)
		if err != nil {
			return s.fail(ctx, path, fmt.Errorf("%w: %v", ErrNotReadable, err))
		}
	}

	f, err := os.Open(resolved)
	if err != nil {
		return s.fail(ctx, path, fmt.Errorf("%w: %v", ErrNotReadable, err))
	}

	ref, err := s.store.Upload(ctx, s.objectKey(resolved), f, info.Size(), coldstore.UploadMeta{
		OriginalPath: path,
		Fingerprint:  fp,
	})
	f.Close()
	if err != nil {
		archiveUploads.WithLabelValues("error").Inc()
		return s.fail(ctx, path, fmt.Errorf("ошибка загрузки в архив: %w", err))
	}
	archiveUploads.WithLabelValues("ok").Inc()

	s.verify(ctx, ref, fp, path)

	// Сначала БД, затем удаление: файл без записи Archived опаснее,
	// чем запись Archived при ещё существующем файле — последний
	// случай чинится следующим сканом.
	if err := s.repo.SetArchived(ctx, path, ref); err != nil {
		return s.fail(ctx, path, fmt.Errorf("ошибка обновления записи: %w", err))
	}

	if err := os.Remove(resolved); err != nil {
		s.logger.Warn("Не удалось удалить локальную копию после архивирования",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("Файл архивирован",
		slog.String("path", path),
		slog.String("archive_ref", ref),
		slog.Int64("size", info.Size()),
	)
	return nil
}

// resolveWithinRoot разрешает путь и проверяет, что он внутри корня.
func (s *Service) resolveWithinRoot(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Несуществующий путь неотличим от побега до разрешения симлинков
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotReadable, path)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}

	rel, err := filepath.Rel(s.root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	return resolved, nil
}

// objectKey строит ключ объекта в хранилище из пути относительно корня.
func (s *Service) objectKey(resolved string) string {
	rel, err := filepath.Rel(s.root, resolved)
	if err != nil {
		rel = filepath.Base(resolved)
	}
	return strings.ToLower(filepath.ToSlash(rel))
}

// verify сверяет контрольную сумму загруженного объекта с локальной.
// Расхождение фиксируется предупреждением и метрикой, но не прерывает
// архивирование.
func (s *Service) verify(ctx context.Context, ref, fp, path string) {
	info, err := s.store.Stat(ctx, ref)
	if err != nil {
		s.logger.Warn("Не удалось верифицировать загрузку",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return
	}
	if info.Fingerprint != "" && info.Fingerprint != fp {
		verifyMismatches.Inc()
		s.logger.Warn("Расхождение контрольной суммы после загрузки",
			slog.String("path", path),
			slog.String("archive_ref", ref),
			slog.String("local", fp),
			slog.String("stored", info.Fingerprint),
		)
	}
}

// fail фиксирует ошибку архивирования в записи аудита.
func (s *Service) fail(ctx context.Context, path string, cause error) error {
	// Причина усечённо сохраняется для видимости оператору
	reason := cause.Error()
	if len(reason) > 500 {
		reason = reason[:500]
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := s.repo.SetArchiveFailed(dbCtx, path, reason); err != nil {
		s.logger.Error("Не удалось зафиксировать ошибку архивирования",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return cause
}
