// query.go — фасад чтения и управления постоянными изображениями.
//
// Читающие запросы кешируются по сущности (LRU с TTL): карточки
// каталога запрашивают изображения одних и тех же объектов
// многократно. Любая мутация изображения инвалидирует кеш его сущности.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arendadom/image-module/internal/domain/model"
	"github.com/arendadom/image-module/internal/repository"
	"github.com/arendadom/image-module/internal/storage/blob"
	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// Метрики кеша фасада чтения
var (
	// queryCacheHits — попадания в кеш списков изображений.
	queryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_query_cache_hits_total",
		Help: "Количество попаданий в кеш списков изображений",
	})

	// queryCacheMisses — промахи кеша списков изображений.
	queryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_query_cache_misses_total",
		Help: "Количество промахов кеша списков изображений",
	})
)

// ImageView — представление изображения для клиентов API.
// Содержит готовые URL всех размерных вариантов.
type ImageView struct {
	ImageID      string              `json:"image_id"`
	Category     model.Category      `json:"category"`
	DisplayOrder int                 `json:"display_order"`
	Main         bool                `json:"main"`
	Width        int                 `json:"width"`
	Height       int                 `json:"height"`
	UploadedAt   time.Time           `json:"uploaded_at"`
	URLs         map[model.Size]string `json:"urls"`
}

// QueryService — фасад чтения и мутаций постоянных изображений.
type QueryService struct {
	repo   repository.ImageRepository
	store  *blob.RetryStore
	paths  *pathgen.Generator
	cache  *expirable.LRU[string, []*ImageView]
	logger *slog.Logger
}

// NewQueryService создаёт фасад чтения.
// cacheSize — ёмкость LRU, cacheTTL — время жизни записи кеша.
func NewQueryService(
	repo repository.ImageRepository,
	store *blob.RetryStore,
	paths *pathgen.Generator,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		repo:   repo,
		store:  store,
		paths:  paths,
		cache:  expirable.NewLRU[string, []*ImageView](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "query_service")),
	}
}

// cacheKey — ключ кеша по сущности.
func cacheKey(et model.EntityType, entityID int64) string {
	return fmt.Sprintf("%s:%d", et, entityID)
}

// ListImages возвращает активные изображения сущности в порядке
// отображения. Результат кешируется по сущности.
func (s *QueryService) ListImages(ctx context.Context, et model.EntityType, entityID int64) ([]*ImageView, error) {
	if !model.ValidEntityType(et) {
		return nil, fmt.Errorf("неизвестный тип сущности: %s", et)
	}

	key := cacheKey(et, entityID)
	if views, ok := s.cache.Get(key); ok {
		queryCacheHits.Inc()
		return views, nil
	}
	queryCacheMisses.Inc()

	active := true
	records, err := s.repo.List(ctx, et, entityID, repository.ListFilters{Active: &active})
	if err != nil {
		return nil, err
	}

	views := make([]*ImageView, 0, len(records))
	for i, rec := range records {
		views = append(views, s.view(rec, i == 0))
	}
	s.cache.Add(key, views)
	return views, nil
}

// ListImagesByCategory возвращает активные изображения сущности
// в заданной категории. Фильтрация поверх кешированного списка.
func (s *QueryService) ListImagesByCategory(ctx context.Context, et model.EntityType, entityID int64, c model.Category) ([]*ImageView, error) {
	if !model.ValidCategory(et, c) {
		return nil, fmt.Errorf("категория %s недопустима для сущности %s", c, et)
	}
	all, err := s.ListImages(ctx, et, entityID)
	if err != nil {
		return nil, err
	}
	views := make([]*ImageView, 0, len(all))
	for _, v := range all {
		if v.Category == c {
			views = append(views, v)
		}
	}
	return views, nil
}

// GetMainImage возвращает главное изображение сущности: активную запись
// с наименьшим display_order. ErrNotFound — у сущности нет изображений.
func (s *QueryService) GetMainImage(ctx context.Context, et model.EntityType, entityID int64) (*ImageView, error) {
	views, err := s.ListImages(ctx, et, entityID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, repository.ErrNotFound
	}
	return views[0], nil
}

// GetImage возвращает представление одного изображения по идентификатору.
// Неактивные записи не резолвятся: для клиента изображение удалено.
func (s *QueryService) GetImage(ctx context.Context, imageID string) (*ImageView, error) {
	rec, err := s.repo.GetByImageID(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return nil, repository.ErrNotFound
	}
	return s.view(rec, false), nil
}

// DeleteImage удаляет изображение: запись деактивируется (soft delete),
// объекты всех вариантов удаляются из постоянной области.
// Строка реестра сохраняется для аудита.
func (s *QueryService) DeleteImage(ctx context.Context, imageID string) error {
	rec, err := s.repo.GetByImageID(ctx, imageID)
	if err != nil {
		return err
	}
	if !rec.Active {
		return repository.ErrNotFound
	}

	if err := s.repo.Deactivate(ctx, imageID); err != nil {
		return err
	}

	// Объекты удаляются после деактивации: запись уже не резолвится
	// в URL, недоудалённый объект безвреден.
	for _, size := range model.Sizes {
		key := s.paths.PermanentKey(rec.EntityType, rec.EntityID, rec.Category, imageID, size)
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Error("Ошибка удаления объекта изображения",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	s.invalidate(rec)
	s.logger.Info("Изображение удалено",
		slog.String("image_id", imageID),
		slog.String("entity_type", string(rec.EntityType)),
		slog.Int64("entity_id", rec.EntityID),
	)
	return nil
}

// UpdateOrder изменяет порядок отображения изображения.
func (s *QueryService) UpdateOrder(ctx context.Context, imageID string, order int) error {
	if order < 0 {
		return fmt.Errorf("display_order не может быть отрицательным")
	}
	rec, err := s.repo.GetByImageID(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateOrder(ctx, imageID, order); err != nil {
		return err
	}
	s.invalidate(rec)
	return nil
}

// SetMain делает изображение главным для своей сущности.
func (s *QueryService) SetMain(ctx context.Context, imageID string) error {
	rec, err := s.repo.GetByImageID(ctx, imageID)
	if err != nil {
		return err
	}
	if err := s.repo.SetMain(ctx, imageID); err != nil {
		return err
	}
	s.invalidate(rec)
	return nil
}

// Invalidate сбрасывает кеш сущности. Вызывается после миграции:
// у сущности появились новые изображения.
func (s *QueryService) Invalidate(et model.EntityType, entityID int64) {
	s.cache.Remove(cacheKey(et, entityID))
}

// invalidate сбрасывает кеш сущности записи.
func (s *QueryService) invalidate(rec *model.ImageRecord) {
	s.cache.Remove(cacheKey(rec.EntityType, rec.EntityID))
}

// view строит представление записи с URL всех вариантов.
func (s *QueryService) view(rec *model.ImageRecord, main bool) *ImageView {
	urls := make(map[model.Size]string, len(model.Sizes))
	for _, size := range model.Sizes {
		urls[size] = s.paths.PermanentURL(rec.EntityType, rec.EntityID, rec.Category, rec.ImageID, size)
	}
	return &ImageView{
		ImageID:      rec.ImageID,
		Category:     rec.Category,
		DisplayOrder: rec.DisplayOrder,
		Main:         main,
		Width:        rec.Width,
		Height:       rec.Height,
		UploadedAt:   rec.UploadedAt,
		URLs:         urls,
	}
}
