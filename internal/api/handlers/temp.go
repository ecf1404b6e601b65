// temp.go — обработчики временной области: сессия загрузки,
// пакетная загрузка файлов, удаление временных изображений.
package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/arendadom/image-module/internal/api/errors"
	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/service"
	"github.com/arendadom/image-module/internal/session"
	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// tempImageResponse — представление временного изображения в ответах API.
type tempImageResponse struct {
	ImageID          string                `json:"image_id"`
	OriginalFilename string                `json:"original_filename"`
	Width            int                   `json:"width"`
	Height           int                   `json:"height"`
	Size             int64                 `json:"size"`
	CreatedAt        time.Time             `json:"created_at"`
	URLs             map[model.Size]string `json:"urls"`
}

// uploadFileResponse — результат загрузки одного файла из пакета.
type uploadFileResponse struct {
	Filename  string                `json:"filename"`
	Success   bool                  `json:"success"`
	ImageID   string                `json:"image_id,omitempty"`
	URLs      map[model.Size]string `json:"urls,omitempty"`
	ErrorCode string                `json:"error_code,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// TempHandler — обработчики временной области.
type TempHandler struct {
	registry    *session.Registry
	upload      *service.UploadService
	paths       *pathgen.Generator
	maxFileSize int64
	logger      *slog.Logger
}

// NewTempHandler создаёт обработчик временной области.
func NewTempHandler(
	registry *session.Registry,
	upload *service.UploadService,
	paths *pathgen.Generator,
	maxFileSize int64,
	logger *slog.Logger,
) *TempHandler {
	return &TempHandler{
		registry:    registry,
		upload:      upload,
		paths:       paths,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "temp_handler")),
	}
}

// GetSession обрабатывает GET /api/v1/temp/session.
// Возвращает текущую сессию загрузки, создавая её при отсутствии.
// Устанавливает cookie сессии. Идемпотентен.
func (h *TempHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := h.registry.GetOrCreate(w, r)

	images, err := h.registry.Images(token)
	if err != nil {
		apierrors.InvalidSession(w, "сессия загрузки не найдена")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_token": token,
		"images":        h.tempImages(token, images),
	})
}

// Upload обрабатывает POST /api/v1/temp/images.
// Принимает multipart/form-data с полем files (один или несколько файлов).
// Файлы независимы: ответ содержит результат по каждому.
func (h *TempHandler) Upload(w http.ResponseWriter, r *http.Request) {
	token := h.registry.GetOrCreate(w, r)

	files, ok := readMultipartFiles(w, r, h.maxFileSize)
	if !ok {
		return
	}

	results := h.upload.UploadBatch(r.Context(), token, files)

	resp := make([]uploadFileResponse, 0, len(results))
	for _, res := range results {
		item := uploadFileResponse{
			Filename:  res.Filename,
			Success:   res.Success,
			ImageID:   res.ImageID,
			ErrorCode: res.ErrorCode,
			Error:     res.Error,
		}
		if res.Success {
			item.URLs = h.tempURLs(token, res.ImageID)
		}
		resp = append(resp, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": resp})
}

// List обрабатывает GET /api/v1/temp/images.
// Возвращает изображения текущей сессии в порядке загрузки.
func (h *TempHandler) List(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token == "" || !h.registry.IsValid(token) {
		apierrors.InvalidSession(w, "сессия загрузки не найдена")
		return
	}

	images, err := h.registry.Images(token)
	if err != nil {
		apierrors.InvalidSession(w, "сессия загрузки не найдена")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"images": h.tempImages(token, images),
	})
}

// Delete обрабатывает DELETE /api/v1/temp/images/{imageID}.
// Удаляет варианты изображения из временной области и запись из сессии.
// Идемпотентен: повторное удаление — тоже 204.
func (h *TempHandler) Delete(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token == "" || !h.registry.IsValid(token) {
		apierrors.InvalidSession(w, "сессия загрузки не найдена")
		return
	}

	imageID := chi.URLParam(r, "imageID")
	if _, err := uuid.Parse(imageID); err != nil {
		apierrors.ValidationError(w, "некорректный идентификатор изображения")
		return
	}

	if err := h.upload.RemoveTempImage(r.Context(), token, imageID); err != nil {
		h.logger.Error("Ошибка удаления временного изображения",
			slog.String("image_id", imageID),
			slog.String("error", err.Error()),
		)
		apierrors.StorageError(w, "ошибка удаления изображения")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// tempImages строит представления временных изображений с URL вариантов.
func (h *TempHandler) tempImages(token string, images []model.TempImageInfo) []tempImageResponse {
	resp := make([]tempImageResponse, 0, len(images))
	for _, img := range images {
		resp = append(resp, tempImageResponse{
			ImageID:          img.ImageID,
			OriginalFilename: img.OriginalFilename,
			Width:            img.Width,
			Height:           img.Height,
			Size:             img.Size,
			CreatedAt:        img.CreatedAt,
			URLs:             h.tempURLs(token, img.ImageID),
		})
	}
	return resp
}

// tempURLs строит URL всех вариантов временного изображения.
func (h *TempHandler) tempURLs(token, imageID string) map[model.Size]string {
	urls := make(map[model.Size]string, len(model.Sizes))
	for _, size := range model.Sizes {
		urls[size] = h.paths.TempURL(token, imageID, size)
	}
	return urls
}

// readMultipartFiles разбирает multipart-форму и читает файлы поля files.
// При ошибке пишет ответ и возвращает ok = false.
func readMultipartFiles(w http.ResponseWriter, r *http.Request, maxFileSize int64) ([]service.UploadFile, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		apierrors.ValidationError(w, "некорректный multipart запрос: "+err.Error())
		return nil, false
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		apierrors.ValidationError(w, "пакет не содержит файлов (поле files)")
		return nil, false
	}

	files := make([]service.UploadFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			apierrors.InternalError(w, "ошибка чтения файла "+part.Filename)
			return nil, false
		}
		// Лимит +1 байт: превышение отличимо от файла ровно в лимит,
		// код ошибки генерирует процессор вариантов
		data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
		_ = f.Close()
		if err != nil {
			apierrors.InternalError(w, "ошибка чтения файла "+part.Filename)
			return nil, false
		}
		files = append(files, service.UploadFile{Filename: part.Filename, Data: data})
	}
	return files, true
}

// writeJSON — вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
