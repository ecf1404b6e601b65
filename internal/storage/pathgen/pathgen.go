// Пакет pathgen — детерминированная генерация ключей объектов и
// внешних URL для временного и постоянного хранилищ.
//
// Чистые функции: для одинаковых входов выход байт-в-байт одинаков,
// без состояния и без I/O. Пространства имён temp/ и images/
// не пересекаются, разные кортежи (тип, сущность, изображение, размер)
// не сталкиваются на одном ключе.
package pathgen

import (
	"fmt"
	"strings"

	"github.com/arendadom/image-module/internal/domain/model"
)

// Префиксы пространств имён хранилища.
const (
	// tempPrefix — корень временного (session-scoped) пространства
	tempPrefix = "temp"
	// permanentPrefix — корень постоянного (entity-scoped) пространства
	permanentPrefix = "images"
)

// variantExt — единый формат хранения всех вариантов.
const variantExt = ".jpg"

// Generator — генератор ключей и URL.
// baseURL — внешний корень хранилища (например,
// https://storage.googleapis.com/arendadom-images), без trailing slash.
type Generator struct {
	baseURL string
}

// New создаёт генератор с указанным базовым URL.
func New(baseURL string) *Generator {
	return &Generator{baseURL: strings.TrimRight(baseURL, "/")}
}

// TempKey возвращает ключ варианта во временном хранилище.
// Формат: temp/{token}/{imageID}/{size}.jpg
func (g *Generator) TempKey(token, imageID string, size model.Size) string {
	return fmt.Sprintf("%s/%s/%s/%s%s", tempPrefix, token, imageID, size, variantExt)
}

// PermanentKey возвращает ключ варианта в постоянном хранилище.
// Формат: images/{entityType}/{entityID}/{category}/{imageID}_{size}.jpg
func (g *Generator) PermanentKey(et model.EntityType, entityID int64, c model.Category, imageID string, size model.Size) string {
	return fmt.Sprintf("%s/%s/%d/%s/%s_%s%s",
		permanentPrefix, et, entityID, c, imageID, size, variantExt)
}

// StoredFilename возвращает имя объекта без префикса пути —
// значение для поля stored_filename в image_registry.
func (g *Generator) StoredFilename(imageID string, size model.Size) string {
	return fmt.Sprintf("%s_%s%s", imageID, size, variantExt)
}

// URL возвращает внешний URL для ключа хранилища.
func (g *Generator) URL(key string) string {
	return g.baseURL + "/" + key
}

// TempURL возвращает внешний URL временного варианта.
func (g *Generator) TempURL(token, imageID string, size model.Size) string {
	return g.URL(g.TempKey(token, imageID, size))
}

// PermanentURL возвращает внешний URL постоянного варианта.
func (g *Generator) PermanentURL(et model.EntityType, entityID int64, c model.Category, imageID string, size model.Size) string {
	return g.URL(g.PermanentKey(et, entityID, c, imageID, size))
}

// IsTempKey возвращает true, если ключ принадлежит временному пространству.
func IsTempKey(key string) bool {
	return strings.HasPrefix(key, tempPrefix+"/")
}

// IsWellFormedURL проверяет, что URL соответствует схеме генератора:
// собственный базовый URL, непустой ключ, формат вариантов .jpg.
// Используется вызывающим кодом для защитной валидации.
func (g *Generator) IsWellFormedURL(url string) bool {
	if !strings.HasPrefix(url, g.baseURL+"/") {
		return false
	}
	key := strings.TrimPrefix(url, g.baseURL+"/")
	if !strings.HasSuffix(key, variantExt) {
		return false
	}
	return IsTempKey(key) || strings.HasPrefix(key, permanentPrefix+"/")
}
