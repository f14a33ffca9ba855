// Пакет gateway — шлюз выдачи файлов.
// Единая точка скачивания: маршрутизация по источнику и статусу записи,
// верификация восстановленных из архива копий перед отдачей байтов.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nambgit/archetype-data-audit/internal/coldstore"
	"github.com/nambgit/archetype-data-audit/internal/domain/model"
	"github.com/nambgit/archetype-data-audit/internal/fingerprint"
	"github.com/nambgit/archetype-data-audit/internal/repository"
)

// Ошибки шлюза выдачи.
var (
	// ErrNotFound — запись или её содержимое не найдены.
	ErrNotFound = errors.New("файл не найден")
	// ErrRestoreRequired — файл в архиве, требуется запрос восстановления.
	ErrRestoreRequired = errors.New("файл в архиве: инициируйте восстановление")
	// ErrStillRestoring — восстановление ещё не завершено.
	ErrStillRestoring = errors.New("восстановление ещё выполняется")
	// ErrFingerprintMismatch — содержимое не прошло верификацию.
	ErrFingerprintMismatch = errors.New("контрольная сумма содержимого не совпадает с записью")
	// ErrNotReadable — локальный файл недоступен для чтения.
	ErrNotReadable = errors.New("файл недоступен для чтения")
)

// copyBufferSize — размер буфера потоковой отдачи (32 KiB).
const copyBufferSize = 32 * 1024

// Метрики выдачи.
var (
	downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "da_gateway_downloads_total",
		Help: "Количество скачиваний по пути выдачи и результату",
	}, []string{"route", "result"})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "da_gateway_cache_total",
		Help: "Обращения к кэшу записей",
	}, []string{"result"})
)

// RemoteStreamer — скачивание файла удалённого источника.
// Реализуется graph.Client.
type RemoteStreamer interface {
	DownloadShared(ctx context.Context, webURL string) (*http.Response, error)
}

// ResponseWriter — приёмник отдаваемого файла.
// http.ResponseWriter подходит напрямую.
type ResponseWriter interface {
	io.Writer
	Header() http.Header
}

// Service — шлюз выдачи файлов.
type Service struct {
	repo       repository.AuditRepository
	store      coldstore.Store
	remote     RemoteStreamer
	cache      *recordCache
	stagingDir string
	logger     *slog.Logger
}

// New создаёт шлюз выдачи.
// store и remote могут быть nil, если соответствующие источники
// не настроены — тогда их пути выдачи возвращают ошибку конфигурации.
func New(repo repository.AuditRepository, store coldstore.Store, remote RemoteStreamer, stagingDir string, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		remote:     remote,
		cache:      newRecordCache(cacheSize, cacheTTL),
		stagingDir: stagingDir,
		logger:     logger.With(slog.String("component", "gateway")),
	}
}

// Invalidate сбрасывает кэшированную запись (после смены статуса).
func (s *Service) Invalidate(id string) {
	s.cache.invalidate(id)
}

// lookup возвращает запись по id, используя кэш.
func (s *Service) lookup(ctx context.Context, id string) (*model.FileAuditRecord, error) {
	if rec, ok := s.cache.get(id); ok {
		cacheHits.WithLabelValues("hit").Inc()
		return rec, nil
	}
	cacheHits.WithLabelValues("miss").Inc()

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.cache.put(rec)
	return rec, nil
}

// Download отдаёт содержимое файла записи id в w.
// Маршрут выбирается по паре (источник, статус); до первого байта
// содержимого в w ничего не пишется при любой ошибке.
func (s *Service) Download(ctx context.Context, w ResponseWriter, id string) error {
	rec, err := s.lookup(ctx, id)
	if err != nil {
		downloads.WithLabelValues("lookup", "error").Inc()
		return err
	}

	switch rec.Status {
	case model.StatusArchived:
		downloads.WithLabelValues("archived", "rejected").Inc()
		return fmt.Errorf("%w (id %s)", ErrRestoreRequired, id)

	case model.StatusRestoring:
		return s.serveColdTier(ctx, w, rec)

	case model.StatusActive, model.StatusArchiveFailed:
		switch rec.Source {
		case model.SourceFileServer:
			return s.serveLocal(w, rec)
		case model.SourceSharePoint:
			return s.serveRemote(ctx, w, rec)
		default:
			return fmt.Errorf("неизвестный источник записи: %s", rec.Source)
		}

	default:
		return fmt.Errorf("неизвестный статус записи: %s", rec.Status)
	}
}

// serveLocal отдаёт файл с файлового сервера.
func (s *Service) serveLocal(w ResponseWriter, rec *model.FileAuditRecord) error {
	f, err := os.Open(rec.Path)
	if err != nil {
		downloads.WithLabelValues("local", "error").Inc()
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, rec.Path)
		}
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrNotReadable, rec.Path)
		}
		return fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		downloads.WithLabelValues("local", "error").Inc()
		return fmt.Errorf("ошибка чтения атрибутов файла: %w", err)
	}

	setDownloadHeaders(w, filepath.Base(rec.Path), info.Size())

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		downloads.WithLabelValues("local", "error").Inc()
		return fmt.Errorf("ошибка потоковой отдачи: %w", err)
	}

	downloads.WithLabelValues("local", "ok").Inc()
	return nil
}

// serveRemote отдаёт файл из SharePoint через Graph API.
func (s *Service) serveRemote(ctx context.Context, w ResponseWriter, rec *model.FileAuditRecord) error {
	if s.remote == nil {
		downloads.WithLabelValues("remote", "error").Inc()
		return errors.New("источник SharePoint не настроен")
	}

	resp, err := s.remote.DownloadShared(ctx, rec.Path)
	if err != nil {
		downloads.WithLabelValues("remote", "error").Inc()
		return err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	setDownloadHeaders(w, filepath.Base(rec.Path), resp.ContentLength)

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, resp.Body, buf); err != nil {
		downloads.WithLabelValues("remote", "error").Inc()
		return fmt.Errorf("ошибка потоковой отдачи: %w", err)
	}

	downloads.WithLabelValues("remote", "ok").Inc()
	return nil
}

// serveColdTier пытается отдать восстановленную из архива копию.
// Объект скачивается во временный файл, верифицируется по контрольной
// сумме и только затем отдаётся. Непроверенные байты никогда не
// попадают в w; временный файл удаляется при любом исходе.
func (s *Service) serveColdTier(ctx context.Context, w ResponseWriter, rec *model.FileAuditRecord) error {
	if s.store == nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return errors.New("холодное хранилище не настроено")
	}
	if rec.ArchiveRef == nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("запись %s в Restoring без ссылки на архив", rec.ID)
	}

	if err := os.MkdirAll(s.stagingDir, 0o755); err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка создания staging-директории: %w", err)
	}

	tmp, err := os.CreateTemp(s.stagingDir, "restore-*")
	if err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	metaFP, err := s.store.Download(ctx, *rec.ArchiveRef, tmp)
	if err != nil {
		if errors.Is(err, coldstore.ErrStillRestoring) {
			downloads.WithLabelValues("cold", "restoring").Inc()
			return fmt.Errorf("%w: обычно 12-48 часов для Deep Archive", ErrStillRestoring)
		}
		if errors.Is(err, coldstore.ErrObjectNotFound) {
			downloads.WithLabelValues("cold", "error").Inc()
			return fmt.Errorf("%w: объект %s отсутствует в архиве", ErrNotFound, *rec.ArchiveRef)
		}
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка скачивания из архива: %w", err)
	}

	// Эталон: сумма из метаданных объекта, при её отсутствии — из записи
	want := metaFP
	if want == "" {
		want = rec.Fingerprint
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}
	got, err := fingerprint.Reader(tmp)
	if err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка верификации: %w", err)
	}
	if want != "" && got != want {
		downloads.WithLabelValues("cold", "mismatch").Inc()
		s.logger.Error("Восстановленная копия не прошла верификацию",
			slog.String("id", rec.ID),
			slog.String("archive_ref", *rec.ArchiveRef),
			slog.String("want", want),
			slog.String("got", got),
		)
		return fmt.Errorf("%w (id %s)", ErrFingerprintMismatch, rec.ID)
	}

	info, err := tmp.Stat()
	if err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка чтения атрибутов временного файла: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка перемотки временного файла: %w", err)
	}

	setDownloadHeaders(w, filepath.Base(rec.Path), info.Size())

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, tmp, buf); err != nil {
		downloads.WithLabelValues("cold", "error").Inc()
		return fmt.Errorf("ошибка потоковой отдачи: %w", err)
	}

	downloads.WithLabelValues("cold", "ok").Inc()
	return nil
}

// setDownloadHeaders выставляет заголовки отдачи файла.
// size < 0 — размер неизвестен, Content-Length не выставляется.
func setDownloadHeaders(w ResponseWriter, filename string, size int64) {
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
}
