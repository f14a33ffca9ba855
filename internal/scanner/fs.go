// Пакет scanner — сканеры источников файлов.
// FSScanner обходит файловый сервер, SPScanner — библиотеку SharePoint.
// Оба приводят обнаруженные файлы к записям аудита через upsert по пути;
// кандидатов на архивирование определяет только FSScanner.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nambgit/archetype-data-audit/internal/domain/model"
	"github.com/nambgit/archetype-data-audit/internal/fingerprint"
	"github.com/nambgit/archetype-data-audit/internal/repository"
)

// scanOwner — владелец записей файлового сервера: ОС не сообщает
// отображаемое имя, атрибуция выполняется на уровне источника.
const scanOwner = "system"

// CandidateArchiver — приёмник кандидатов на архивирование.
// Реализуется archiver.Service.
type CandidateArchiver interface {
	// Archive архивирует файл. Контрольная сумма уже вычислена сканером.
	Archive(ctx context.Context, path, fp string) error
}

// Summary — итог одного прохода сканирования.
type Summary struct {
	// Processed — файлов обработано (upsert выполнен)
	Processed int
	// Archived — файлов передано в архив
	Archived int
	// Skipped — файлов пропущено (исчезли или недоступны)
	Skipped int
	// Failed — файлов с ошибкой обработки
	Failed int
}

// FSScanner — сканер файлового сервера.
type FSScanner struct {
	repo      repository.AuditRepository
	archiver  CandidateArchiver
	root      string
	retention time.Duration
	logger    *slog.Logger
}

// NewFSScanner создаёт сканер файлового сервера.
// archiver может быть nil — тогда кандидаты только фиксируются в логе.
func NewFSScanner(repo repository.AuditRepository, archiver CandidateArchiver, root string, retention time.Duration, logger *slog.Logger) *FSScanner {
	return &FSScanner{
		repo:      repo,
		archiver:  archiver,
		root:      root,
		retention: retention,
		logger:    logger.With(slog.String("component", "fs_scanner")),
	}
}

// Scan выполняет полный проход по дереву файлового сервера.
// Ошибки отдельных файлов не прерывают проход: они логируются и
// учитываются в итоге. Ошибка возврата — только фатальная (корень
// недоступен или контекст отменён).
func (s *FSScanner) Scan(ctx context.Context) (*Summary, error) {
	start := time.Now()
	defer func() {
		scanDuration.WithLabelValues(string(model.SourceFileServer)).Observe(time.Since(start).Seconds())
	}()

	// Единый снимок времени на весь проход: порог неактивности
	// не дрейфует между файлами.
	now := time.Now().UTC()
	threshold := now.Add(-s.retention)

	summary := &Summary{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if walkErr != nil {
			// Недоступная директория или исчезнувший элемент
			s.logger.Warn("Пропуск недоступного элемента",
				slog.String("path", path),
				slog.String("error", walkErr.Error()),
			)
			summary.Skipped++
			filesSkipped.WithLabelValues(string(model.SourceFileServer)).Inc()
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		s.processFile(ctx, path, threshold, summary)
		return nil
	})
	if err != nil {
		return summary, fmt.Errorf("ошибка обхода %s: %w", s.root, err)
	}

	s.logger.Info("Сканирование файлового сервера завершено",
		slog.String("root", s.root),
		slog.Int("processed", summary.Processed),
		slog.Int("archived", summary.Archived),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("took", time.Since(start)),
	)
	return summary, nil
}

// processFile обрабатывает один файл: stat, контрольная сумма, upsert,
// при превышении порога неактивности — передача архиватору.
func (s *FSScanner) processFile(ctx context.Context, path string, threshold time.Time, summary *Summary) {
	info, err := os.Stat(path)
	if err != nil {
		// Файл исчез между WalkDir и Stat либо недоступен
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			s.logger.Warn("Пропуск файла",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			summary.Skipped++
			filesSkipped.WithLabelValues(string(model.SourceFileServer)).Inc()
			return
		}
		s.fail(path, err, summary)
		return
	}

	fp, err := fingerprint.File(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			s.logger.Warn("Пропуск нечитаемого файла",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			summary.Skipped++
			filesSkipped.WithLabelValues(string(model.SourceFileServer)).Inc()
			return
		}
		s.fail(path, err, summary)
		return
	}

	atime := accessTime(info)
	rec := &model.FileAuditRecord{
		Source:       model.SourceFileServer,
		Path:         path,
		Fingerprint:  fp,
		LastModified: info.ModTime().UTC(),
		LastAccessed: atime,
		Owner:        scanOwner,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		s.fail(path, err, summary)
		return
	}

	summary.Processed++
	filesProcessed.WithLabelValues(string(model.SourceFileServer)).Inc()

	// Кандидат на архивирование: последний доступ старше порога
	if atime.After(threshold) {
		return
	}

	if s.archiver == nil {
		s.logger.Info("Кандидат на архивирование (архиватор не подключён)",
			slog.String("path", path),
			slog.Time("last_accessed", atime),
		)
		return
	}

	if err := s.archiver.Archive(ctx, path, fp); err != nil {
		// Архиватор сам зафиксировал ArchiveFailed; проход продолжается
		s.logger.Error("Ошибка архивирования",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		summary.Failed++
		scanErrors.WithLabelValues(string(model.SourceFileServer)).Inc()
		return
	}

	summary.Archived++
	filesArchived.Inc()
}

// fail фиксирует ошибку обработки файла.
func (s *FSScanner) fail(path string, err error, summary *Summary) {
	s.logger.Error("Ошибка обработки файла",
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
	summary.Failed++
	scanErrors.WithLabelValues(string(model.SourceFileServer)).Inc()
}
