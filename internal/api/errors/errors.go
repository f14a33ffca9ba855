// Пакет errors — конструкторы стандартных ошибок Data Audit System.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib осознанный

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidState      = "INVALID_STATE"
	CodeRestoreInProgress = "RESTORE_IN_PROGRESS"
	CodeNotArchived       = "NOT_ARCHIVED"
	CodeNotReadable       = "NOT_READABLE"
	CodePathEscape        = "PATH_ESCAPE"
	CodeChecksumMismatch  = "FINGERPRINT_MISMATCH"
	CodeCollaboratorError = "COLLABORATOR_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// InvalidState — 400 операция недопустима в текущем статусе записи.
func InvalidState(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeInvalidState, message)
}

// RestoreInProgress — 400 восстановление ещё выполняется.
func RestoreInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeRestoreInProgress, message)
}

// NotArchived — 400 запись не в архиве, восстанавливать нечего.
func NotArchived(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeNotArchived, message)
}

// ChecksumMismatch — 500 содержимое не прошло верификацию.
func ChecksumMismatch(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeChecksumMismatch, message)
}

// CollaboratorError — 500 ошибка внешней системы (Graph, S3, AD).
func CollaboratorError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeCollaboratorError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
