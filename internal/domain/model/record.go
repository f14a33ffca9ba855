// Пакет model — доменные модели Data Audit System.
// FileAuditRecord — маппинг таблицы file_audit (единственная сущность ядра).
package model

import (
	"fmt"
	"time"
)

// OwnerUnknown — значение поля owner, когда источник не сообщает владельца.
const OwnerUnknown = "Unknown"

// Source — источник файла.
type Source string

const (
	// SourceFileServer — локальный/сетевой файловый сервер
	SourceFileServer Source = "fileserver"
	// SourceSharePoint — библиотека документов SharePoint (Graph API)
	SourceSharePoint Source = "sharepoint"
)

// ParseSource преобразует строку в Source.
// Возвращает ошибку для недопустимых значений.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	switch src {
	case SourceFileServer, SourceSharePoint:
		return src, nil
	default:
		return "", fmt.Errorf("недопустимый источник: %q, допустимые: fileserver, sharepoint", s)
	}
}

// FileStatus — статус жизненного цикла файла.
type FileStatus string

const (
	// StatusActive — файл присутствует в источнике, не архивирован
	StatusActive FileStatus = "Active"
	// StatusArchived — файл перенесён в холодное хранилище, локальная копия удалена
	StatusArchived FileStatus = "Archived"
	// StatusRestoring — запрошено восстановление из холодного хранилища
	StatusRestoring FileStatus = "Restoring"
	// StatusArchiveFailed — последняя попытка архивирования завершилась ошибкой
	StatusArchiveFailed FileStatus = "ArchiveFailed"
)

// ParseStatus преобразует строку в FileStatus.
// Возвращает ошибку для недопустимых значений.
func ParseStatus(s string) (FileStatus, error) {
	st := FileStatus(s)
	if !isValidStatus(st) {
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: Active, Archived, Restoring, ArchiveFailed", s)
	}
	return st, nil
}

// validTransitions — матрица допустимых переходов между статусами.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
//
// Переход в Active из любого статуса выполняется сканером при повторном
// обнаружении физического файла: само присутствие файла означает,
// что он не архивирован. ArchiveFailed — не тупик: успешная повторная
// попытка архивирования переводит запись в Archived.
var validTransitions = map[FileStatus]map[FileStatus]bool{
	StatusActive:        {StatusArchived: true, StatusArchiveFailed: true},
	StatusArchived:      {StatusRestoring: true, StatusActive: true},
	StatusRestoring:     {StatusActive: true, StatusRestoring: true},
	StatusArchiveFailed: {StatusArchived: true, StatusActive: true, StatusArchiveFailed: true},
}

// CanTransitionTo проверяет, допустим ли переход в указанный статус.
func (s FileStatus) CanTransitionTo(target FileStatus) bool {
	transitions, ok := validTransitions[s]
	if !ok {
		return false
	}
	return transitions[target]
}

// HasArchiveRef сообщает, обязана ли запись в данном статусе иметь
// непустой archive_url. Инвариант: ссылка присутствует тогда и только
// тогда, когда статус Archived или Restoring.
func (s FileStatus) HasArchiveRef() bool {
	return s == StatusArchived || s == StatusRestoring
}

// isValidStatus проверяет, является ли строка допустимым статусом.
func isValidStatus(s FileStatus) bool {
	switch s {
	case StatusActive, StatusArchived, StatusRestoring, StatusArchiveFailed:
		return true
	default:
		return false
	}
}

// FileAuditRecord — запись аудита файла в таблице file_audit.
// Создаётся сканером при первом обнаружении, никогда не удаляется:
// запись сохраняется как аудиторский след даже после физического
// удаления файла из исходного расположения.
type FileAuditRecord struct {
	// ID — UUID записи, назначается БД при первой вставке
	ID string
	// Source — источник файла (fileserver, sharepoint)
	Source Source
	// Path — канонический путь файла, уникален в пределах таблицы
	// (естественный ключ для upsert)
	Path string
	// Fingerprint — SHA-256 hex-контрольная сумма.
	// Для fileserver — хэш содержимого файла. Для sharepoint — производная
	// от пути и времени модификации (Graph API не отдаёт содержимое
	// сканеру дёшево), т.е. гарантия целостности ослаблена — см.
	// fingerprint.Derived.
	Fingerprint string
	// LastModified — время последней модификации (UTC, со слов источника)
	LastModified time.Time
	// LastAccessed — время последнего доступа (UTC, со слов источника).
	// SharePoint не сообщает last_accessed — используется LastModified.
	LastAccessed time.Time
	// Owner — отображаемое имя владельца, best-effort ("Unknown" допустимо)
	Owner string
	// Status — статус жизненного цикла
	Status FileStatus
	// ArchiveRef — ссылка на объект в холодном хранилище (s3://bucket/key).
	// Непустая тогда и только тогда, когда Status ∈ {Archived, Restoring}.
	ArchiveRef *string
	// FailureReason — причина последней ошибки архивирования
	// (для видимости оператору), только при Status = ArchiveFailed
	FailureReason *string
	// CreatedAt — время создания записи (управляется БД)
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления (управляется БД)
	UpdatedAt time.Time
}
