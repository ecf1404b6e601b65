package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/arendadom/image-module/internal/domain/model"
)

// imageColumns — список столбцов таблицы image_registry для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const imageColumns = `id, image_id, entity_type, entity_id, category,
	stored_filename, display_order, active, uploaded_at, mime_type,
	width, height, size, created_at, updated_at`

// ListFilters — фильтры списка изображений сущности.
// Все поля — указатели, nil = фильтр не применяется.
type ListFilters struct {
	// Category — фильтр по категории
	Category *model.Category
	// Active — фильтр по флагу активности
	Active *bool
}

// ImageRepository — интерфейс доступа к image_registry.
type ImageRepository interface {
	// Insert создаёт запись изображения (выполняется при миграции).
	Insert(ctx context.Context, rec *model.ImageRecord) error
	// GetByImageID возвращает запись по идентификатору изображения.
	GetByImageID(ctx context.Context, imageID string) (*model.ImageRecord, error)
	// List возвращает записи сущности по фильтрам,
	// отсортированные по display_order, затем по image_id.
	List(ctx context.Context, et model.EntityType, entityID int64, filters ListFilters) ([]*model.ImageRecord, error)
	// GetMain возвращает активную запись с наименьшим display_order.
	GetMain(ctx context.Context, et model.EntityType, entityID int64) (*model.ImageRecord, error)
	// NextDisplayOrder возвращает следующий свободный display_order
	// в категории сущности.
	NextDisplayOrder(ctx context.Context, et model.EntityType, entityID int64, c model.Category) (int, error)
	// ExistsMigrated возвращает true, если изображение уже мигрировано
	// в указанную область сущности (идемпотентность повторной миграции).
	ExistsMigrated(ctx context.Context, et model.EntityType, entityID int64, c model.Category, imageID string) (bool, error)
	// Deactivate выполняет soft delete: active → false.
	// Запись сохраняется для аудита, физического удаления строк нет.
	Deactivate(ctx context.Context, imageID string) error
	// UpdateOrder обновляет display_order записи.
	UpdateOrder(ctx context.Context, imageID string, order int) error
	// SetMain нормализует порядок так, чтобы указанное изображение
	// сортировалось первым среди записей своей сущности.
	SetMain(ctx context.Context, imageID string) error
}

// imageRepo — реализация ImageRepository через pgx.
type imageRepo struct {
	db DBTX
}

// NewImageRepository создаёт репозиторий изображений.
func NewImageRepository(db DBTX) ImageRepository {
	return &imageRepo{db: db}
}

// Insert создаёт запись изображения.
func (r *imageRepo) Insert(ctx context.Context, rec *model.ImageRecord) error {
	query := `
		INSERT INTO image_registry (image_id, entity_type, entity_id, category,
			stored_filename, display_order, active, uploaded_at, mime_type,
			width, height, size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ImageID, rec.EntityType, rec.EntityID, rec.Category,
		rec.StoredFilename, rec.DisplayOrder, rec.Active, rec.UploadedAt,
		rec.MimeType, rec.Width, rec.Height, rec.Size,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: изображение уже зарегистрировано в этой области", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации изображения: %w", err)
	}
	return nil
}

// GetByImageID возвращает запись по идентификатору изображения или ErrNotFound.
func (r *imageRepo) GetByImageID(ctx context.Context, imageID string) (*model.ImageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM image_registry WHERE image_id = $1`, imageColumns)

	rec := &model.ImageRecord{}
	err := scanImage(r.db.QueryRow(ctx, query, imageID), rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения изображения: %w", err)
	}
	return rec, nil
}

// List возвращает записи сущности по фильтрам.
func (r *imageRepo) List(ctx context.Context, et model.EntityType, entityID int64, filters ListFilters) ([]*model.ImageRecord, error) {
	where, args := buildListWhere(et, entityID, filters)
	query := fmt.Sprintf(
		`SELECT %s FROM image_registry %s ORDER BY display_order, image_id`,
		imageColumns, where,
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка списка изображений: %w", err)
	}
	defer rows.Close()

	var result []*model.ImageRecord
	for rows.Next() {
		rec := &model.ImageRecord{}
		if err := scanImage(rows, rec); err != nil {
			return nil, fmt.Errorf("ошибка сканирования изображения: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// GetMain возвращает активную запись с наименьшим display_order или ErrNotFound.
func (r *imageRepo) GetMain(ctx context.Context, et model.EntityType, entityID int64) (*model.ImageRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM image_registry
		WHERE entity_type = $1 AND entity_id = $2 AND active
		ORDER BY display_order, image_id
		LIMIT 1`, imageColumns)

	rec := &model.ImageRecord{}
	err := scanImage(r.db.QueryRow(ctx, query, et, entityID), rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения главного изображения: %w", err)
	}
	return rec, nil
}

// NextDisplayOrder возвращает max(display_order)+1 в категории сущности.
func (r *imageRepo) NextDisplayOrder(ctx context.Context, et model.EntityType, entityID int64, c model.Category) (int, error) {
	query := `
		SELECT COALESCE(MAX(display_order), -1) + 1
		FROM image_registry
		WHERE entity_type = $1 AND entity_id = $2 AND category = $3`

	var next int
	if err := r.db.QueryRow(ctx, query, et, entityID, c).Scan(&next); err != nil {
		return 0, fmt.Errorf("ошибка вычисления display_order: %w", err)
	}
	return next, nil
}

// ExistsMigrated возвращает true, если изображение уже мигрировано
// в указанную область сущности.
func (r *imageRepo) ExistsMigrated(ctx context.Context, et model.EntityType, entityID int64, c model.Category, imageID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM image_registry
			WHERE entity_type = $1 AND entity_id = $2 AND category = $3 AND image_id = $4
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, et, entityID, c, imageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки регистрации изображения: %w", err)
	}
	return exists, nil
}

// Deactivate выполняет soft delete записи.
func (r *imageRepo) Deactivate(ctx context.Context, imageID string) error {
	query := `
		UPDATE image_registry
		SET active = false, updated_at = now()
		WHERE image_id = $1 AND active`

	tag, err := r.db.Exec(ctx, query, imageID)
	if err != nil {
		return fmt.Errorf("ошибка деактивации изображения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOrder обновляет display_order записи.
func (r *imageRepo) UpdateOrder(ctx context.Context, imageID string, order int) error {
	query := `
		UPDATE image_registry
		SET display_order = $2, updated_at = now()
		WHERE image_id = $1 AND active`

	tag, err := r.db.Exec(ctx, query, imageID, order)
	if err != nil {
		return fmt.Errorf("ошибка обновления порядка: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMain сдвигает активные записи сущности на +1 и ставит указанному
// изображению display_order = 0, делая его главным.
// Оба UPDATE выполняются в одной транзакции: частично применённый сдвиг
// оставил бы порядок сущности в несогласованном состоянии.
func (r *imageRepo) SetMain(ctx context.Context, imageID string) error {
	db := r.db
	if b, ok := r.db.(txBeginner); ok {
		tx, err := b.Begin(ctx)
		if err != nil {
			return fmt.Errorf("ошибка начала транзакции: %w", err)
		}
		defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op
		if err := setMain(ctx, tx, imageID); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}
	return setMain(ctx, db, imageID)
}

// setMain выполняет сдвиг и назначение главного изображения на db.
func setMain(ctx context.Context, db DBTX, imageID string) error {
	shift := `
		UPDATE image_registry
		SET display_order = display_order + 1, updated_at = now()
		WHERE active AND (entity_type, entity_id) = (
			SELECT entity_type, entity_id FROM image_registry WHERE image_id = $1
		)`

	if _, err := db.Exec(ctx, shift, imageID); err != nil {
		return fmt.Errorf("ошибка сдвига порядка: %w", err)
	}

	promote := `
		UPDATE image_registry
		SET display_order = 0, updated_at = now()
		WHERE image_id = $1 AND active`

	tag, err := db.Exec(ctx, promote, imageID)
	if err != nil {
		return fmt.Errorf("ошибка назначения главного изображения: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanImage сканирует строку image_registry в ImageRecord.
func scanImage(row pgx.Row, rec *model.ImageRecord) error {
	return row.Scan(
		&rec.ID, &rec.ImageID, &rec.EntityType, &rec.EntityID, &rec.Category,
		&rec.StoredFilename, &rec.DisplayOrder, &rec.Active, &rec.UploadedAt,
		&rec.MimeType, &rec.Width, &rec.Height, &rec.Size,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
}

// buildListWhere строит WHERE-условие и аргументы для списка
// изображений сущности.
func buildListWhere(et model.EntityType, entityID int64, filters ListFilters) (whereClause string, args []any) {
	conditions := []string{"entity_type = $1", "entity_id = $2"}
	args = append(args, et, entityID)
	argNum := 3

	// Фильтр по категории
	if filters.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argNum))
		args = append(args, *filters.Category)
		argNum++
	}

	// Фильтр по активности
	if filters.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", argNum))
		args = append(args, *filters.Active)
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}
