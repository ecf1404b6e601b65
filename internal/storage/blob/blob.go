// Пакет blob — клиенты объектного хранилища вариантов изображений.
//
// Store — узкий интерфейс над хранилищем (диск или GCS),
// RetryStore — декоратор с ограниченным retry и backoff для загрузок.
// Ключи объектов генерирует pathgen; blob трактует их как непрозрачные
// строки с разделителем "/".
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrPermanent — маркер невосстановимой ошибки хранилища.
// Ошибки, обёрнутые через Permanent, не ретраятся.
var ErrPermanent = errors.New("невосстановимая ошибка хранилища")

// Permanent помечает ошибку как невосстановимую (без retry).
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsTransient возвращает true, если ошибку имеет смысл ретраить.
// Невосстановимые: помеченные Permanent и отменённые контексты.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// ObjectInfo — метаданные объекта в хранилище.
type ObjectInfo struct {
	// Size — размер объекта в байтах
	Size int64
	// ContentType — MIME-тип объекта
	ContentType string
	// IsTemporary — объект находится во временном пространстве имён
	IsTemporary bool
}

// Store — операции объектного хранилища.
// Реализации: DiskStore (локальный диск), GCSStore (Google Cloud Storage).
type Store interface {
	// Put записывает объект. Неуспешная запись не оставляет
	// читаемого объекта под ключом. Возвращает количество байт.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	// Get открывает объект для чтения. Вызывающий код закрывает ReadCloser.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists проверяет существование объекта.
	Exists(ctx context.Context, key string) (bool, error)
	// Info возвращает метаданные объекта или (nil, nil), если его нет.
	Info(ctx context.Context, key string) (*ObjectInfo, error)
	// Copy копирует объект внутри хранилища.
	Copy(ctx context.Context, srcKey, dstKey string) error
	// Delete удаляет объект. Идемпотентен: удаление
	// несуществующего ключа — успех.
	Delete(ctx context.Context, key string) error
}
