// images.go — обработчики постоянной области: миграция, чтение,
// удаление и управление порядком изображений.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/arendadom/image-module/internal/api/errors"
	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/repository"
	"github.com/arendadom/image-module/internal/service"
	"github.com/arendadom/image-module/internal/session"
	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// migrateRequest — тело запроса POST /api/v1/images/migrate.
type migrateRequest struct {
	EntityType model.EntityType `json:"entity_type"`
	EntityID   int64            `json:"entity_id"`
	Category   model.Category   `json:"category"`
	ImageIDs   []string         `json:"image_ids"`
}

// orderRequest — тело запроса PUT /api/v1/images/{imageID}/order.
type orderRequest struct {
	DisplayOrder int `json:"display_order"`
}

// ImagesHandler — обработчики постоянной области.
type ImagesHandler struct {
	migrate      *service.MigrationService
	entityUpload *service.EntityUploadService
	query        *service.QueryService
	registry     *session.Registry
	paths        *pathgen.Generator
	maxFileSize  int64
	logger       *slog.Logger
}

// NewImagesHandler создаёт обработчик постоянной области.
func NewImagesHandler(
	migrate *service.MigrationService,
	entityUpload *service.EntityUploadService,
	query *service.QueryService,
	registry *session.Registry,
	paths *pathgen.Generator,
	maxFileSize int64,
	logger *slog.Logger,
) *ImagesHandler {
	return &ImagesHandler{
		migrate:      migrate,
		entityUpload: entityUpload,
		query:        query,
		registry:     registry,
		paths:        paths,
		maxFileSize:  maxFileSize,
		logger:       logger.With(slog.String("component", "images_handler")),
	}
}

// Upload обрабатывает POST /api/v1/images.
// Загружает файлы сразу для существующей сущности: пакет проходит через
// временную область и немедленно мигрируется. Multipart-поля:
// entity_type, entity_id, category и files.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	token := h.registry.GetOrCreate(w, r)

	files, ok := readMultipartFiles(w, r, h.maxFileSize)
	if !ok {
		return
	}

	et := model.EntityType(r.FormValue("entity_type"))
	if !model.ValidEntityType(et) {
		apierrors.ValidationError(w, "неизвестный тип сущности: "+string(et))
		return
	}
	category := model.Category(r.FormValue("category"))
	if !model.ValidCategory(et, category) {
		apierrors.ValidationError(w, "категория "+string(category)+" недопустима для сущности "+string(et))
		return
	}
	entityID, err := strconv.ParseInt(r.FormValue("entity_id"), 10, 64)
	if err != nil || entityID <= 0 {
		apierrors.ValidationError(w, "entity_id должен быть положительным целым")
		return
	}

	results, err := h.entityUpload.UploadImages(r.Context(), service.EntityUploadParams{
		SessionToken: token,
		EntityType:   et,
		EntityID:     entityID,
		Category:     category,
	}, files)
	if err != nil {
		h.logger.Error("Ошибка загрузки для сущности",
			slog.String("entity_type", string(et)),
			slog.Int64("entity_id", entityID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "ошибка загрузки изображений")
		return
	}

	// У сущности появились изображения — кеш фасада устарел
	h.query.Invalidate(et, entityID)

	resp := make([]uploadFileResponse, 0, len(results))
	allOK := true
	for _, res := range results {
		item := uploadFileResponse{
			Filename:  res.Filename,
			Success:   res.Success,
			ImageID:   res.ImageID,
			ErrorCode: res.ErrorCode,
			Error:     res.Error,
		}
		if res.Success {
			item.URLs = h.permanentURLs(et, entityID, category, res.ImageID)
		} else {
			allOK = false
		}
		resp = append(resp, item)
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, map[string]any{"files": resp})
}

// permanentURLs строит URL всех вариантов постоянного изображения.
func (h *ImagesHandler) permanentURLs(et model.EntityType, entityID int64, c model.Category, imageID string) map[model.Size]string {
	urls := make(map[model.Size]string, len(model.Sizes))
	for _, size := range model.Sizes {
		urls[size] = h.paths.PermanentURL(et, entityID, c, imageID, size)
	}
	return urls
}

// Migrate обрабатывает POST /api/v1/images/migrate.
// Переносит изображения текущей сессии в постоянную область сущности.
// Возвращает 200 при полном успехе, 207 при частичном провале:
// отчёт содержит статус каждого варианта.
func (h *ImagesHandler) Migrate(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r)
	if token == "" {
		apierrors.InvalidSession(w, "сессия загрузки не найдена")
		return
	}

	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}
	if !model.ValidEntityType(req.EntityType) {
		apierrors.ValidationError(w, "неизвестный тип сущности: "+string(req.EntityType))
		return
	}
	if !model.ValidCategory(req.EntityType, req.Category) {
		apierrors.ValidationError(w, "категория "+string(req.Category)+" недопустима для сущности "+string(req.EntityType))
		return
	}
	if req.EntityID <= 0 {
		apierrors.ValidationError(w, "entity_id должен быть положительным")
		return
	}
	if len(req.ImageIDs) == 0 {
		apierrors.ValidationError(w, "список image_ids пуст")
		return
	}
	for _, id := range req.ImageIDs {
		if _, err := uuid.Parse(id); err != nil {
			apierrors.ValidationError(w, "некорректный идентификатор изображения: "+id)
			return
		}
	}

	result, err := h.migrate.MigrateToPermanent(r.Context(), service.MigrateParams{
		SessionToken: token,
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		Category:     req.Category,
		ImageIDs:     req.ImageIDs,
	})
	if err != nil {
		h.logger.Error("Ошибка миграции",
			slog.String("entity_type", string(req.EntityType)),
			slog.Int64("entity_id", req.EntityID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "ошибка миграции изображений")
		return
	}

	// У сущности появились изображения — кеш фасада устарел
	h.query.Invalidate(req.EntityType, req.EntityID)

	status := http.StatusOK
	if !result.AllSucceeded() {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, result)
}

// List обрабатывает GET /api/v1/images?entity_type=&entity_id=[&category=].
// Возвращает активные изображения сущности в порядке отображения.
func (h *ImagesHandler) List(w http.ResponseWriter, r *http.Request) {
	et, entityID, ok := entityParams(w, r)
	if !ok {
		return
	}

	var (
		views []*service.ImageView
		err   error
	)
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := model.Category(raw)
		if !model.ValidCategory(et, c) {
			apierrors.ValidationError(w, "категория "+raw+" недопустима для сущности "+string(et))
			return
		}
		views, err = h.query.ListImagesByCategory(r.Context(), et, entityID, c)
	} else {
		views, err = h.query.ListImages(r.Context(), et, entityID)
	}
	if err != nil {
		h.logger.Error("Ошибка списка изображений", slog.String("error", err.Error()))
		apierrors.InternalError(w, "ошибка получения списка изображений")
		return
	}
	if views == nil {
		views = []*service.ImageView{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"images": views})
}

// Main обрабатывает GET /api/v1/images/main?entity_type=&entity_id=.
// Возвращает главное изображение сущности.
func (h *ImagesHandler) Main(w http.ResponseWriter, r *http.Request) {
	et, entityID, ok := entityParams(w, r)
	if !ok {
		return
	}

	view, err := h.query.GetMainImage(r.Context(), et, entityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "у сущности нет изображений")
			return
		}
		h.logger.Error("Ошибка получения главного изображения", slog.String("error", err.Error()))
		apierrors.InternalError(w, "ошибка получения главного изображения")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Get обрабатывает GET /api/v1/images/{imageID}.
func (h *ImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.query.GetImage(r.Context(), imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "изображение не найдено")
			return
		}
		h.logger.Error("Ошибка получения изображения", slog.String("error", err.Error()))
		apierrors.InternalError(w, "ошибка получения изображения")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Delete обрабатывает DELETE /api/v1/images/{imageID}.
// Деактивирует запись и удаляет объекты вариантов.
func (h *ImagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	if err := h.query.DeleteImage(r.Context(), imageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "изображение не найдено")
			return
		}
		h.logger.Error("Ошибка удаления изображения",
			slog.String("image_id", imageID),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "ошибка удаления изображения")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateOrder обрабатывает PUT /api/v1/images/{imageID}/order.
func (h *ImagesHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}
	if req.DisplayOrder < 0 {
		apierrors.ValidationError(w, "display_order не может быть отрицательным")
		return
	}

	if err := h.query.UpdateOrder(r.Context(), imageID, req.DisplayOrder); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "изображение не найдено")
			return
		}
		apierrors.InternalError(w, "ошибка обновления порядка")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetMain обрабатывает PUT /api/v1/images/{imageID}/main.
func (h *ImagesHandler) SetMain(w http.ResponseWriter, r *http.Request) {
	imageID, ok := imageIDParam(w, r)
	if !ok {
		return
	}

	if err := h.query.SetMain(r.Context(), imageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "изображение не найдено")
			return
		}
		apierrors.InternalError(w, "ошибка назначения главного изображения")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// entityParams извлекает и валидирует entity_type и entity_id из query.
func entityParams(w http.ResponseWriter, r *http.Request) (model.EntityType, int64, bool) {
	et := model.EntityType(r.URL.Query().Get("entity_type"))
	if !model.ValidEntityType(et) {
		apierrors.ValidationError(w, "неизвестный тип сущности: "+string(et))
		return "", 0, false
	}
	entityID, err := strconv.ParseInt(r.URL.Query().Get("entity_id"), 10, 64)
	if err != nil || entityID <= 0 {
		apierrors.ValidationError(w, "entity_id должен быть положительным целым")
		return "", 0, false
	}
	return et, entityID, true
}

// imageIDParam извлекает и валидирует imageID из пути.
func imageIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	imageID := chi.URLParam(r, "imageID")
	if _, err := uuid.Parse(imageID); err != nil {
		apierrors.ValidationError(w, "некорректный идентификатор изображения")
		return "", false
	}
	return imageID, true
}
