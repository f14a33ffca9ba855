package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nambgit/archetype-data-audit/internal/domain/model"
)

// auditColumns — список колонок таблицы file_audit в порядке сканирования.
const auditColumns = `id, source, file_path, checksum, last_modified, last_accessed,
	owner, status, archive_url, failure_reason, created_at, updated_at`

// AuditRepository — доступ к таблице file_audit.
// Записи никогда не удаляются: таблица — аудиторский след.
type AuditRepository interface {
	// Upsert вставляет запись или обновляет существующую по file_path.
	// Повторное обнаружение файла сбрасывает статус в Active и очищает
	// archive_url/failure_reason: присутствие файла означает, что он не
	// архивирован. ID/CreatedAt/UpdatedAt/Status заполняются из БД.
	Upsert(ctx context.Context, rec *model.FileAuditRecord) error
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.FileAuditRecord, error)
	// GetByPath возвращает запись по каноническому пути.
	GetByPath(ctx context.Context, path string) (*model.FileAuditRecord, error)
	// ListRecent возвращает последние обновлённые записи (для дашборда).
	ListRecent(ctx context.Context, limit int) ([]*model.FileAuditRecord, error)
	// CountByStatus возвращает количество записей по каждому статусу.
	CountByStatus(ctx context.Context) (map[model.FileStatus]int, error)
	// SetArchived переводит запись в Archived с указанной ссылкой на архив.
	SetArchived(ctx context.Context, path, archiveRef string) error
	// SetArchiveFailed переводит запись в ArchiveFailed с причиной ошибки.
	SetArchiveFailed(ctx context.Context, path, reason string) error
	// SetRestoring переводит запись Archived в Restoring.
	// Повторный вызов для записи в Restoring — no-op без ошибки.
	SetRestoring(ctx context.Context, id string) error
}

// auditRepo — реализация AuditRepository.
type auditRepo struct {
	db DBTX
}

// NewAuditRepository создаёт репозиторий таблицы file_audit.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepo{db: db}
}

func (r *auditRepo) Upsert(ctx context.Context, rec *model.FileAuditRecord) error {
	query := `
		INSERT INTO file_audit (source, file_path, checksum, last_modified, last_accessed, owner)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (file_path) DO UPDATE SET
			source = EXCLUDED.source,
			checksum = EXCLUDED.checksum,
			last_modified = EXCLUDED.last_modified,
			last_accessed = EXCLUDED.last_accessed,
			owner = EXCLUDED.owner,
			status = 'Active',
			archive_url = NULL,
			failure_reason = NULL,
			updated_at = now()
		RETURNING id, status, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.Source, rec.Path, rec.Fingerprint, rec.LastModified, rec.LastAccessed, rec.Owner,
	).Scan(&rec.ID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка upsert записи аудита: %w", err)
	}
	rec.ArchiveRef = nil
	rec.FailureReason = nil
	return nil
}

func (r *auditRepo) GetByID(ctx context.Context, id string) (*model.FileAuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM file_audit WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *auditRepo) GetByPath(ctx context.Context, path string) (*model.FileAuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM file_audit WHERE file_path = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, path))
}

func (r *auditRepo) ListRecent(ctx context.Context, limit int) ([]*model.FileAuditRecord, error) {
	query := `SELECT ` + auditColumns + ` FROM file_audit ORDER BY updated_at DESC LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей аудита: %w", err)
	}
	defer rows.Close()

	var records []*model.FileAuditRecord
	for rows.Next() {
		rec, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения записей аудита: %w", err)
	}
	return records, nil
}

func (r *auditRepo) CountByStatus(ctx context.Context) (map[model.FileStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM file_audit GROUP BY status`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта по статусам: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.FileStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка чтения счётчика статусов: %w", err)
		}
		counts[model.FileStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения счётчиков статусов: %w", err)
	}
	return counts, nil
}

func (r *auditRepo) SetArchived(ctx context.Context, path, archiveRef string) error {
	query := `
		UPDATE file_audit
		SET status = 'Archived', archive_url = $2, failure_reason = NULL, updated_at = now()
		WHERE file_path = $1`

	tag, err := r.db.Exec(ctx, query, path, archiveRef)
	if err != nil {
		return fmt.Errorf("ошибка перевода в Archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *auditRepo) SetArchiveFailed(ctx context.Context, path, reason string) error {
	query := `
		UPDATE file_audit
		SET status = 'ArchiveFailed', archive_url = NULL, failure_reason = $2, updated_at = now()
		WHERE file_path = $1`

	tag, err := r.db.Exec(ctx, query, path, reason)
	if err != nil {
		return fmt.Errorf("ошибка перевода в ArchiveFailed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *auditRepo) SetRestoring(ctx context.Context, id string) error {
	// Условие по статусу делает операцию идемпотентной: запись уже
	// в Restoring обновляется повторно без смены семантики.
	query := `
		UPDATE file_audit
		SET status = 'Restoring', updated_at = now()
		WHERE id = $1 AND status IN ('Archived', 'Restoring')`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка перевода в Restoring: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanOne сканирует одну строку, транслируя pgx.ErrNoRows в ErrNotFound.
func (r *auditRepo) scanOne(row pgx.Row) (*model.FileAuditRecord, error) {
	rec := &model.FileAuditRecord{}
	err := row.Scan(
		&rec.ID, &rec.Source, &rec.Path, &rec.Fingerprint, &rec.LastModified,
		&rec.LastAccessed, &rec.Owner, &rec.Status, &rec.ArchiveRef,
		&rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи аудита: %w", err)
	}
	return rec, nil
}

// scanRow сканирует строку из rows.
func (r *auditRepo) scanRow(rows pgx.Rows) (*model.FileAuditRecord, error) {
	rec := &model.FileAuditRecord{}
	err := rows.Scan(
		&rec.ID, &rec.Source, &rec.Path, &rec.Fingerprint, &rec.LastModified,
		&rec.LastAccessed, &rec.Owner, &rec.Status, &rec.ArchiveRef,
		&rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения записи аудита: %w", err)
	}
	return rec, nil
}
