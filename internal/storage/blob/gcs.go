// gcs.go — реализация Store поверх Google Cloud Storage.
// Каждая операция ограничена собственным таймаутом (IM_STORAGE_TIMEOUT).
// Объект становится видимым только после успешного Writer.Close,
// поэтому неуспешная загрузка не оставляет читаемого объекта.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"

	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// GCSStore — хранилище объектов в бакете Google Cloud Storage.
type GCSStore struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

// NewGCSStore создаёт GCS-хранилище.
// Аутентификация — стандартная цепочка Application Default Credentials.
func NewGCSStore(ctx context.Context, bucket string, timeout time.Duration) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("создание GCS-клиента: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, timeout: timeout}, nil
}

// Close освобождает ресурсы GCS-клиента.
func (gs *GCSStore) Close() error {
	return gs.client.Close()
}

// withTimeout оборачивает контекст операционным таймаутом.
func (gs *GCSStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, gs.timeout)
}

// Put записывает объект через storage.Writer.
func (gs *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error) {
	ctx, cancel := gs.withTimeout(ctx)
	defer cancel()

	w := gs.client.Bucket(gs.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	size, err := io.Copy(w, r)
	if err != nil {
		// CloseWithError отменяет запись, полузаписанный объект не появится
		_ = w.CloseWithError(err)
		return 0, fmt.Errorf("запись объекта %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("завершение записи %s: %w", key, err)
	}
	return size, nil
}

// Get открывает объект для чтения.
func (gs *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rd, err := gs.client.Bucket(gs.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, Permanent(fmt.Errorf("объект не найден: %s", key))
		}
		return nil, fmt.Errorf("открытие объекта %s: %w", key, err)
	}
	return rd, nil
}

// Exists проверяет существование объекта через Attrs.
func (gs *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := gs.withTimeout(ctx)
	defer cancel()

	_, err := gs.client.Bucket(gs.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("получение атрибутов %s: %w", key, err)
	}
	return true, nil
}

// Info возвращает метаданные объекта или (nil, nil), если его нет.
func (gs *GCSStore) Info(ctx context.Context, key string) (*ObjectInfo, error) {
	ctx, cancel := gs.withTimeout(ctx)
	defer cancel()

	attrs, err := gs.client.Bucket(gs.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("получение атрибутов %s: %w", key, err)
	}

	return &ObjectInfo{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		IsTemporary: pathgen.IsTempKey(key),
	}, nil
}

// Copy копирует объект server-side через storage.Copier.
func (gs *GCSStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	ctx, cancel := gs.withTimeout(ctx)
	defer cancel()

	src := gs.client.Bucket(gs.bucket).Object(srcKey)
	dst := gs.client.Bucket(gs.bucket).Object(dstKey)

	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Permanent(fmt.Errorf("источник копирования не найден: %s", srcKey))
		}
		return fmt.Errorf("копирование %s → %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// Delete удаляет объект. Отсутствующий ключ — успех.
func (gs *GCSStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := gs.withTimeout(ctx)
	defer cancel()

	err := gs.client.Bucket(gs.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("удаление объекта %s: %w", key, err)
	}
	return nil
}

// CheckReady проверяет доступность бакета.
// Реализует интерфейс handlers.ReadinessChecker.
func (gs *GCSStore) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if _, err := gs.client.Bucket(gs.bucket).Attrs(ctx); err != nil {
		return "fail", fmt.Sprintf("бакет %s недоступен: %v", gs.bucket, err)
	}
	return "ok", ""
}
