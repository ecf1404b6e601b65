// Пакет model — доменные модели Image Module.
// ImageRecord — постоянная запись изображения в image_registry,
// TempImageInfo — staged-изображение во временной сессии,
// MigrationResult — по-юнитовый отчёт миграции temp → permanent.
package model

import (
	"fmt"
	"time"
)

// EntityType — тип бизнес-сущности, владеющей изображением.
type EntityType string

const (
	// EntityProperty — объект недвижимости
	EntityProperty EntityType = "property"
	// EntityFurnitureProduct — арендуемая мебель
	EntityFurnitureProduct EntityType = "furniture_product"
	// EntityMemberProfile — профиль пользователя
	EntityMemberProfile EntityType = "member_profile"
)

// Category — категория изображения внутри сущности.
// Набор допустимых категорий зависит от типа сущности.
type Category string

const (
	CategoryGallery   Category = "gallery"
	CategoryLiving    Category = "living"
	CategoryKitchen   Category = "kitchen"
	CategoryBathroom  Category = "bathroom"
	CategoryExterior  Category = "exterior"
	CategoryFloorPlan Category = "floor_plan"
	CategoryDetail    Category = "detail"
	CategoryAvatar    Category = "avatar"
)

// categoriesByEntity — допустимые категории для каждого типа сущности.
var categoriesByEntity = map[EntityType][]Category{
	EntityProperty: {
		CategoryGallery, CategoryLiving, CategoryKitchen,
		CategoryBathroom, CategoryExterior, CategoryFloorPlan,
	},
	EntityFurnitureProduct: {CategoryGallery, CategoryDetail},
	EntityMemberProfile:    {CategoryAvatar},
}

// ValidEntityType проверяет, что тип сущности известен.
func ValidEntityType(et EntityType) bool {
	_, ok := categoriesByEntity[et]
	return ok
}

// ValidCategory проверяет, что категория допустима для типа сущности.
func ValidCategory(et EntityType, c Category) bool {
	for _, known := range categoriesByEntity[et] {
		if known == c {
			return true
		}
	}
	return false
}

// Size — размерный вариант изображения.
// Все четыре варианта создаются вместе при загрузке (всё-или-ничего),
// при миграции каждый перемещается независимо.
type Size string

const (
	SizeOriginal  Size = "original"
	SizeLarge     Size = "large"
	SizeMedium    Size = "medium"
	SizeThumbnail Size = "thumbnail"
)

// Sizes — полный набор размерных вариантов в фиксированном порядке.
var Sizes = []Size{SizeOriginal, SizeLarge, SizeMedium, SizeThumbnail}

// MaxDimension возвращает максимальный размер стороны для варианта.
// 0 — без ограничения (original хранится как есть).
func (s Size) MaxDimension() int {
	switch s {
	case SizeLarge:
		return 1280
	case SizeMedium:
		return 640
	case SizeThumbnail:
		return 240
	default:
		return 0
	}
}

// TempImageInfo — staged-изображение, загруженное до сохранения
// владеющей сущности. Живёт только в реестре временных сессий,
// уничтожается миграцией или TTL-sweep'ом.
type TempImageInfo struct {
	// ImageID — глобальный идентификатор изображения (UUID v4).
	// Неизменен на протяжении всей жизни изображения, связывает
	// все варианты и обе фазы хранения.
	ImageID string `json:"image_id"`

	// SessionToken — токен сессии-владельца (32 hex-символа)
	SessionToken string `json:"session_token"`

	// OriginalFilename — имя файла при загрузке
	OriginalFilename string `json:"original_filename"`

	// Size — размер оригинала в байтах
	Size int64 `json:"size"`

	// MimeType — MIME-тип исходного файла
	MimeType string `json:"mime_type"`

	// Width, Height — размеры оригинала в пикселях
	Width  int `json:"width"`
	Height int `json:"height"`

	// CreatedAt — время загрузки (UTC)
	CreatedAt time.Time `json:"created_at"`
}

// ImageRecord — постоянная запись изображения в image_registry.
// Создаётся при миграции, никогда не удаляется физически:
// soft delete переводит Active в false.
type ImageRecord struct {
	// ID — числовой идентификатор строки (bigserial)
	ID int64 `json:"id"`

	// ImageID — глобальный идентификатор изображения (UUID v4)
	ImageID string `json:"image_id"`

	// EntityType — тип владеющей сущности
	EntityType EntityType `json:"entity_type"`

	// EntityID — идентификатор владеющей сущности
	EntityID int64 `json:"entity_id"`

	// Category — категория изображения
	Category Category `json:"category"`

	// StoredFilename — имя файла в постоянном хранилище
	// (имя объекта без префикса пути, формат {image_id}_{size}.jpg
	// для size=original)
	StoredFilename string `json:"stored_filename"`

	// DisplayOrder — порядок отображения; наименьший среди активных
	// записей сущности — главное изображение
	DisplayOrder int `json:"display_order"`

	// Active — false для soft-deleted записей.
	// Неактивная запись не резолвится в живой URL.
	Active bool `json:"active"`

	// UploadedAt — время первоначальной загрузки (UTC)
	UploadedAt time.Time `json:"uploaded_at"`

	// MimeType — MIME-тип исходного файла
	MimeType string `json:"mime_type"`

	// Width, Height — размеры оригинала в пикселях
	Width  int `json:"width"`
	Height int `json:"height"`

	// Size — размер оригинала в байтах
	Size int64 `json:"size"`

	// CreatedAt, UpdatedAt — служебные метки времени строки
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MigrationUnit — результат миграции одного варианта одного изображения.
// Единица частичного успеха: её провал не влияет на соседние юниты.
type MigrationUnit struct {
	// ImageID — идентификатор изображения
	ImageID string `json:"image_id"`
	// Size — размерный вариант
	Size Size `json:"size"`
	// Success — юнит успешно перемещён и верифицирован
	Success bool `json:"success"`
	// PermanentKey — ключ объекта в постоянном хранилище (при успехе)
	PermanentKey string `json:"permanent_key,omitempty"`
	// Error — причина провала (при неуспехе)
	Error string `json:"error,omitempty"`
}

// MigrationResult — отчёт одного вызова MigrateToPermanent.
// Содержит ровно 4 × len(imageIDs) юнитов. Транзиентен:
// возвращается вызывающему, не персистируется.
type MigrationResult struct {
	// Units — результаты по (image_id, size)
	Units map[string]map[Size]*MigrationUnit `json:"units"`
	// Migrated — изображения, у которых все 4 варианта успешны
	Migrated []string `json:"migrated"`
	// Failed — изображения хотя бы с одним проваленным вариантом
	Failed []string `json:"failed"`
}

// NewMigrationResult создаёт пустой отчёт миграции.
func NewMigrationResult() *MigrationResult {
	return &MigrationResult{
		Units: make(map[string]map[Size]*MigrationUnit),
	}
}

// Record добавляет результат одного юнита в отчёт.
func (r *MigrationResult) Record(u *MigrationUnit) {
	if r.Units[u.ImageID] == nil {
		r.Units[u.ImageID] = make(map[Size]*MigrationUnit, len(Sizes))
	}
	r.Units[u.ImageID][u.Size] = u
}

// ImageSucceeded возвращает true, если все 4 варианта изображения успешны.
func (r *MigrationResult) ImageSucceeded(imageID string) bool {
	units := r.Units[imageID]
	if len(units) != len(Sizes) {
		return false
	}
	for _, u := range units {
		if !u.Success {
			return false
		}
	}
	return true
}

// UnitCount возвращает общее количество юнитов в отчёте.
func (r *MigrationResult) UnitCount() int {
	n := 0
	for _, sizes := range r.Units {
		n += len(sizes)
	}
	return n
}

// AllSucceeded возвращает true, если проваленных изображений нет.
func (r *MigrationResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// UploadFileResult — результат загрузки одного файла из батча.
// Провал одного файла не прерывает обработку остальных.
type UploadFileResult struct {
	// Filename — имя файла из запроса
	Filename string `json:"filename"`
	// Success — файл принят, варианты сохранены во временном хранилище
	Success bool `json:"success"`
	// ImageID — идентификатор изображения (при успехе)
	ImageID string `json:"image_id,omitempty"`
	// ErrorCode — машиночитаемый код ошибки (при неуспехе)
	ErrorCode string `json:"error_code,omitempty"`
	// Error — человекочитаемое описание ошибки (при неуспехе)
	Error string `json:"error,omitempty"`
}

// String — сводка для логов.
func (u *MigrationUnit) String() string {
	if u.Success {
		return fmt.Sprintf("%s/%s: ok → %s", u.ImageID, u.Size, u.PermanentKey)
	}
	return fmt.Sprintf("%s/%s: %s", u.ImageID, u.Size, u.Error)
}
