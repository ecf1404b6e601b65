// Пакет errors — конструкторы стандартных ошибок HTTP API.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib допустим внутри internal

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError      = "VALIDATION_ERROR"
	CodeInvalidSession       = "INVALID_SESSION"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeFileTooLarge         = "FILE_TOO_LARGE"
	CodeDecodeError          = "DECODE_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeStorageError         = "STORAGE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
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

// InvalidSession — 401 сессия отсутствует или неизвестна.
func InvalidSession(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeInvalidSession, message)
}

// UnsupportedMediaType — 415 формат файла не поддерживается.
func UnsupportedMediaType(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnsupportedMediaType, CodeUnsupportedMediaType, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// DecodeError — 422 файл заявлен как изображение, но не декодируется.
func DecodeError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnprocessableEntity, CodeDecodeError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Conflict — 409 изображение уже зарегистрировано в этой области.
func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeConflict, message)
}

// StorageError — 502 объектное хранилище недоступно.
func StorageError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadGateway, CodeStorageError, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
