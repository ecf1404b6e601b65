// entity_upload.go — загрузка изображений сразу в постоянную область
// сущности: пакетная загрузка во временную область и немедленная
// миграция успешных файлов одной операцией.
package service

import (
	"context"
	"fmt"
	"log/slog"

	apierrors "github.com/arendadom/image-module/internal/api/errors"
	"github.com/arendadom/image-module/internal/domain/model"
)

// EntityUploadParams — параметры загрузки, привязанной к сущности.
type EntityUploadParams struct {
	// SessionToken — токен сессии вызывающего клиента
	SessionToken string
	// EntityType — тип сущности-владельца
	EntityType model.EntityType
	// EntityID — идентификатор сущности-владельца
	EntityID int64
	// Category — категория изображений
	Category model.Category
}

// EntityUploadService — загрузка для уже существующей сущности.
// Двухфазный конвейер сохраняется: файлы проходят через временную
// область и тут же мигрируются, клиенту возвращается единый
// результат по каждому файлу.
type EntityUploadService struct {
	upload  *UploadService
	migrate *MigrationService
	logger  *slog.Logger
}

// NewEntityUploadService создаёт сервис загрузки для сущности.
func NewEntityUploadService(upload *UploadService, migrate *MigrationService, logger *slog.Logger) *EntityUploadService {
	return &EntityUploadService{
		upload:  upload,
		migrate: migrate,
		logger:  logger.With(slog.String("component", "entity_upload_service")),
	}
}

// UploadImages загружает пакет файлов и переносит успешные в постоянную
// область сущности. Файлы независимы: провал одного (на загрузке или на
// миграции) не прерывает остальные. Успех файла — все четыре варианта
// в постоянной области и активная запись в реестре.
func (s *EntityUploadService) UploadImages(ctx context.Context, params EntityUploadParams, files []UploadFile) ([]model.UploadFileResult, error) {
	if !model.ValidEntityType(params.EntityType) {
		return nil, fmt.Errorf("неизвестный тип сущности: %s", params.EntityType)
	}
	if !model.ValidCategory(params.EntityType, params.Category) {
		return nil, fmt.Errorf("категория %s недопустима для сущности %s", params.Category, params.EntityType)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("пакет не содержит файлов")
	}

	// Фаза 1: временная область
	results := s.upload.UploadBatch(ctx, params.SessionToken, files)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Success {
			ids = append(ids, r.ImageID)
		}
	}
	if len(ids) == 0 {
		return results, nil
	}

	// Фаза 2: миграция успешно загруженных
	migration, err := s.migrate.MigrateToPermanent(ctx, MigrateParams{
		SessionToken: params.SessionToken,
		EntityType:   params.EntityType,
		EntityID:     params.EntityID,
		Category:     params.Category,
		ImageIDs:     ids,
	})
	if err != nil {
		return nil, err
	}

	// Провал миграции переводит результат файла в ошибку:
	// загруженное, но не перенесённое изображение остаётся во временной
	// области и доступно для повторной миграции.
	for i := range results {
		if !results[i].Success || migration.ImageSucceeded(results[i].ImageID) {
			continue
		}
		results[i].Success = false
		results[i].ErrorCode = apierrors.CodeStorageError
		results[i].Error = migrationError(migration, results[i].ImageID)
	}

	s.logger.Info("Загрузка для сущности завершена",
		slog.String("entity_type", string(params.EntityType)),
		slog.Int64("entity_id", params.EntityID),
		slog.String("category", string(params.Category)),
		slog.Int("files", len(files)),
		slog.Int("migrated", len(migration.Migrated)),
	)

	return results, nil
}

// migrationError возвращает сообщение первого проваленного варианта
// изображения из отчёта миграции.
func migrationError(m *model.MigrationResult, imageID string) string {
	for _, size := range model.Sizes {
		if u, ok := m.Units[imageID][size]; ok && !u.Success {
			return fmt.Sprintf("вариант %s не мигрирован: %s", size, u.Error)
		}
	}
	return "изображение не перенесено в постоянное хранилище"
}
