// migrate.go — координатор миграции изображений из временной области
// в постоянное хранилище сущности.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/repository"
	"github.com/arendadom/image-module/internal/session"
	"github.com/arendadom/image-module/internal/storage/blob"
	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// Бизнес-метрики миграции
var (
	// migrationsTotal — количество мигрированных изображений по результату.
	migrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_migrations_total",
			Help: "Количество изображений, мигрированных в постоянное хранилище",
		},
		[]string{"result"},
	)

	// migrationDuration — гистограмма длительности вызова миграции.
	migrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "im_migration_duration_seconds",
			Help:    "Длительность миграции пакета изображений в секундах",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// MigrateParams — параметры миграции пакета изображений.
type MigrateParams struct {
	// SessionToken — токен сессии, владеющей временными изображениями
	SessionToken string
	// EntityType — тип сущности-владельца
	EntityType model.EntityType
	// EntityID — идентификатор сущности-владельца
	EntityID int64
	// Category — категория изображений
	Category model.Category
	// ImageIDs — изображения в порядке отображения
	ImageIDs []string
}

// MigrationService — координатор переноса изображений из временной
// области в постоянную. Изображения переносятся параллельно
// (с ограничением), варианты одного изображения — последовательно.
type MigrationService struct {
	repo        repository.ImageRepository
	store       *blob.RetryStore
	registry    *session.Registry
	paths       *pathgen.Generator
	concurrency int
	logger      *slog.Logger
}

// NewMigrationService создаёт координатор миграции.
func NewMigrationService(
	repo repository.ImageRepository,
	store *blob.RetryStore,
	registry *session.Registry,
	paths *pathgen.Generator,
	concurrency int,
	logger *slog.Logger,
) *MigrationService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &MigrationService{
		repo:        repo,
		store:       store,
		registry:    registry,
		paths:       paths,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "migration_service")),
	}
}

// MigrateToPermanent переносит изображения сессии в постоянную область
// сущности.
//
// Поток по изображению:
//  1. Проверка повторной миграции (запись уже в реестре — пропуск)
//  2. По каждому из четырёх вариантов: copy → verify → delete источника
//  3. Регистрация записи в image_registry (только если все 4 успешны)
//  4. Удаление изображения из сессии
//
// Изображения независимы: провал одного не прерывает остальные.
// Вариант — единица частичного успеха, отчёт содержит статус каждого.
// Повторный вызов после частичного провала безопасен: уже перенесённые
// варианты распознаются по наличию объекта в постоянной области.
func (s *MigrationService) MigrateToPermanent(ctx context.Context, params MigrateParams) (*model.MigrationResult, error) {
	start := time.Now()
	defer func() {
		migrationDuration.Observe(time.Since(start).Seconds())
	}()

	if !model.ValidEntityType(params.EntityType) {
		return nil, fmt.Errorf("неизвестный тип сущности: %s", params.EntityType)
	}
	if !model.ValidCategory(params.EntityType, params.Category) {
		return nil, fmt.Errorf("категория %s недопустима для сущности %s", params.Category, params.EntityType)
	}
	if len(params.ImageIDs) == 0 {
		return nil, fmt.Errorf("список изображений пуст")
	}

	// Дубликаты в запросе схлопываются: одно изображение — одна миграция,
	// позиция определяется первым вхождением.
	imageIDs := dedupe(params.ImageIDs)

	// Базовый display_order вычисляется один раз до параллельной части:
	// изображения получают порядок по позиции в запросе.
	baseOrder, err := s.repo.NextDisplayOrder(ctx, params.EntityType, params.EntityID, params.Category)
	if err != nil {
		return nil, err
	}

	result := model.NewMigrationResult()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, imageID := range imageIDs {
		g.Go(func() error {
			units := s.migrateImage(gctx, params, imageID, baseOrder+i)

			mu.Lock()
			defer mu.Unlock()
			for _, u := range units {
				result.Record(u)
			}
			if result.ImageSucceeded(imageID) {
				result.Migrated = append(result.Migrated, imageID)
			} else {
				result.Failed = append(result.Failed, imageID)
			}
			return nil
		})
	}

	// Ошибки юнитов попадают в отчёт, а не в error группы
	_ = g.Wait()

	for range result.Migrated {
		migrationsTotal.WithLabelValues("success").Inc()
	}
	for range result.Failed {
		migrationsTotal.WithLabelValues("error").Inc()
	}

	s.logger.Info("Миграция завершена",
		slog.String("entity_type", string(params.EntityType)),
		slog.Int64("entity_id", params.EntityID),
		slog.String("category", string(params.Category)),
		slog.Int("migrated", len(result.Migrated)),
		slog.Int("failed", len(result.Failed)),
	)

	return result, nil
}

// migrateImage переносит все варианты одного изображения и регистрирует
// запись. Возвращает юниты отчёта по каждому варианту.
func (s *MigrationService) migrateImage(ctx context.Context, params MigrateParams, imageID string, displayOrder int) []*model.MigrationUnit {
	failAll := func(message string) []*model.MigrationUnit {
		units := make([]*model.MigrationUnit, 0, len(model.Sizes))
		for _, size := range model.Sizes {
			units = append(units, &model.MigrationUnit{
				ImageID: imageID,
				Size:    size,
				Error:   message,
			})
		}
		return units
	}

	// Повторная миграция: изображение уже зарегистрировано в этой области
	migrated, err := s.repo.ExistsMigrated(ctx, params.EntityType, params.EntityID, params.Category, imageID)
	if err != nil {
		return failAll(fmt.Sprintf("ошибка проверки реестра: %s", err))
	}
	if migrated {
		units := make([]*model.MigrationUnit, 0, len(model.Sizes))
		for _, size := range model.Sizes {
			units = append(units, &model.MigrationUnit{
				ImageID:      imageID,
				Size:         size,
				Success:      true,
				PermanentKey: s.paths.PermanentKey(params.EntityType, params.EntityID, params.Category, imageID, size),
			})
		}
		s.registry.Remove(params.SessionToken, imageID)
		return units
	}

	info, ok := s.registry.Get(params.SessionToken, imageID)
	if !ok {
		return failAll("изображение не найдено в сессии")
	}

	// Варианты одного изображения переносятся последовательно
	units := make([]*model.MigrationUnit, 0, len(model.Sizes))
	allOK := true
	for _, size := range model.Sizes {
		u := s.migrateUnit(ctx, params, imageID, size)
		if !u.Success {
			allOK = false
		}
		units = append(units, u)
	}
	if !allOK {
		return units
	}

	// Запись регистрируется только после верификации всех вариантов:
	// в реестре не бывает записей с неполным набором вариантов.
	rec := &model.ImageRecord{
		ImageID:        imageID,
		EntityType:     params.EntityType,
		EntityID:       params.EntityID,
		Category:       params.Category,
		StoredFilename: s.paths.StoredFilename(imageID, model.SizeOriginal),
		DisplayOrder:   displayOrder,
		Active:         true,
		UploadedAt:     info.CreatedAt,
		MimeType:       info.MimeType,
		Width:          info.Width,
		Height:         info.Height,
		Size:           info.Size,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		// Конкурентная миграция того же изображения: соперник успел
		// зарегистрировать запись между проверкой реестра и вставкой.
		// Варианты верифицированы, запись существует — это успех.
		if errors.Is(err, repository.ErrConflict) {
			s.registry.Remove(params.SessionToken, imageID)
			s.logger.Info("Изображение уже зарегистрировано конкурентной миграцией",
				slog.String("image_id", imageID),
				slog.String("entity_type", string(params.EntityType)),
				slog.Int64("entity_id", params.EntityID),
			)
			return units
		}
		s.logger.Error("Ошибка регистрации мигрированного изображения",
			slog.String("image_id", imageID),
			slog.String("error", err.Error()),
		)
		for _, u := range units {
			u.Success = false
			u.Error = fmt.Sprintf("ошибка регистрации записи: %s", err)
		}
		return units
	}

	s.registry.Remove(params.SessionToken, imageID)

	s.logger.Info("Изображение мигрировано",
		slog.String("image_id", imageID),
		slog.String("entity_type", string(params.EntityType)),
		slog.Int64("entity_id", params.EntityID),
		slog.Int("display_order", displayOrder),
	)

	return units
}

// dedupe возвращает идентификаторы без дубликатов, сохраняя порядок
// первых вхождений.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// migrateUnit переносит один вариант: copy → verify → delete источника.
// Уже существующий объект назначения считается перенесённым ранее —
// повторный вызов после частичного провала не дублирует работу.
func (s *MigrationService) migrateUnit(ctx context.Context, params MigrateParams, imageID string, size model.Size) *model.MigrationUnit {
	srcKey := s.paths.TempKey(params.SessionToken, imageID, size)
	dstKey := s.paths.PermanentKey(params.EntityType, params.EntityID, params.Category, imageID, size)

	unit := &model.MigrationUnit{ImageID: imageID, Size: size}
	fail := func(format string, args ...any) *model.MigrationUnit {
		unit.Error = fmt.Sprintf(format, args...)
		s.logger.Warn("Вариант не мигрирован",
			slog.String("image_id", imageID),
			slog.String("size", string(size)),
			slog.String("error", unit.Error),
		)
		return unit
	}

	dstExists, err := s.store.Exists(ctx, dstKey)
	if err != nil {
		return fail("ошибка проверки назначения: %s", err)
	}

	if !dstExists {
		if err := s.store.Copy(ctx, srcKey, dstKey); err != nil {
			return fail("ошибка копирования: %s", err)
		}
	}

	// Верификация: объект назначения существует и непуст
	dstInfo, err := s.store.Info(ctx, dstKey)
	if err != nil {
		return fail("ошибка верификации: %s", err)
	}
	if dstInfo == nil {
		return fail("объект назначения не найден после копирования")
	}
	if dstInfo.Size == 0 {
		return fail("объект назначения пуст")
	}

	// Источник удаляется только после верификации назначения
	if err := s.store.Delete(ctx, srcKey); err != nil {
		return fail("ошибка удаления источника: %s", err)
	}

	unit.Success = true
	unit.PermanentKey = dstKey
	return unit
}
