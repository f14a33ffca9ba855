// Пакет restorer — оркестрация восстановления из холодного хранилища.
// Запрос передаётся провайдеру, запись переводится в Restoring;
// завершения никто не ждёт — готовность выясняется при скачивании.
package restorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nambgit/archetype-data-audit/internal/coldstore"
	"github.com/nambgit/archetype-data-audit/internal/domain/model"
	"github.com/nambgit/archetype-data-audit/internal/repository"
)

// ErrNotArchived — запись не в архиве, восстанавливать нечего.
var ErrNotArchived = errors.New("файл не находится в архиве")

var restoreRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "da_restorer_requests_total",
	Help: "Количество запросов восстановления по результату",
}, []string{"result"})

// Service — сервис восстановления.
type Service struct {
	repo   repository.AuditRepository
	store  coldstore.Store
	days   int
	logger *slog.Logger
}

// New создаёт сервис восстановления.
// days — срок доступности восстановленной копии.
func New(repo repository.AuditRepository, store coldstore.Store, days int, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		days:   days,
		logger: logger.With(slog.String("component", "restorer")),
	}
}

// RequestRestore инициирует восстановление записи из архива.
// Повторный запрос для записи в Restoring — успех без обращения
// к провайдеру. Запись не в Archived — ErrNotArchived.
func (s *Service) RequestRestore(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		restoreRequests.WithLabelValues("error").Inc()
		return err
	}

	// Восстановление уже запрошено — идемпотентный успех
	if rec.Status == model.StatusRestoring {
		restoreRequests.WithLabelValues("already").Inc()
		s.logger.Info("Восстановление уже запрошено",
			slog.String("id", id),
			slog.String("path", rec.Path),
		)
		return nil
	}

	if rec.Status != model.StatusArchived || rec.ArchiveRef == nil {
		restoreRequests.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: статус %s", ErrNotArchived, rec.Status)
	}

	if s.store == nil {
		restoreRequests.WithLabelValues("error").Inc()
		return errors.New("холодное хранилище не настроено")
	}

	if err := s.store.Restore(ctx, *rec.ArchiveRef, s.days); err != nil {
		restoreRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("ошибка запроса восстановления: %w", err)
	}

	if err := s.repo.SetRestoring(ctx, id); err != nil {
		restoreRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("ошибка перевода в Restoring: %w", err)
	}

	restoreRequests.WithLabelValues("ok").Inc()
	s.logger.Info("Запрошено восстановление из архива",
		slog.String("id", id),
		slog.String("path", rec.Path),
		slog.String("archive_ref", *rec.ArchiveRef),
		slog.Int("days", s.days),
	)
	return nil
}
