// disk.go — локальная дисковая реализация Store.
// Паттерн записи: temp файл → io.Copy → fsync → atomic rename,
// поэтому незавершённая запись никогда не видна под ключом.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arendadom/image-module/internal/storage/pathgen"
)

// DiskStore — хранилище объектов на локальном диске.
// Ключ объекта отображается в путь относительно dataDir.
// Используется в тестах и в dev-окружении (IM_STORAGE_BACKEND=disk).
type DiskStore struct {
	dataDir string
}

// NewDiskStore создаёт дисковое хранилище. Создаёт dataDir при отсутствии.
func NewDiskStore(dataDir string) (*DiskStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &DiskStore{dataDir: dataDir}, nil
}

// fullPath преобразует ключ объекта в абсолютный путь.
// Валидирует ключ от выхода за пределы dataDir.
func (ds *DiskStore) fullPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", Permanent(fmt.Errorf("недопустимый ключ объекта: %q", key))
	}
	return filepath.Join(ds.dataDir, clean), nil
}

// Put записывает объект атомарно: temp файл → fsync → rename.
// При ошибке temp файл удаляется, объект под ключом не появляется.
func (ds *DiskStore) Put(ctx context.Context, key string, r io.Reader, _ string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fullPath, err := ds.fullPath(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return 0, fmt.Errorf("создание директории для %s: %w", key, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("создание временного файла: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("запись данных %s: %w", key, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("fsync %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("закрытие файла %s: %w", key, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("атомарное переименование %s: %w", key, err)
	}

	return size, nil
}

// Get открывает объект для чтения.
func (ds *DiskStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := ds.fullPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Permanent(fmt.Errorf("объект не найден: %s", key))
		}
		return nil, fmt.Errorf("открытие объекта %s: %w", key, err)
	}
	return f, nil
}

// Exists проверяет существование объекта.
func (ds *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath, err := ds.fullPath(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Info возвращает метаданные объекта или (nil, nil), если его нет.
// Content-Type выводится из расширения ключа.
func (ds *DiskStore) Info(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := ds.fullPath(key)
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	return &ObjectInfo{
		Size:        st.Size(),
		ContentType: contentTypeFromKey(key),
		IsTemporary: pathgen.IsTempKey(key),
	}, nil
}

// Copy копирует объект через Get + Put (атомарность наследуется от Put).
func (ds *DiskStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	src, err := ds.Get(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("чтение источника %s: %w", srcKey, err)
	}
	defer src.Close()

	if _, err := ds.Put(ctx, dstKey, src, contentTypeFromKey(dstKey)); err != nil {
		return fmt.Errorf("запись копии %s: %w", dstKey, err)
	}
	return nil
}

// Delete удаляет объект. Отсутствующий ключ — успех.
func (ds *DiskStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := ds.fullPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление объекта %s: %w", key, err)
	}
	return nil
}

// contentTypeFromKey выводит MIME-тип из расширения ключа.
// Все варианты хранятся как JPEG, остальное — octet-stream.
func contentTypeFromKey(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// CheckReady проверяет доступность директории данных на запись.
// Реализует интерфейс handlers.ReadinessChecker.
func (ds *DiskStore) CheckReady() (status string, message string) {
	testFile := filepath.Join(ds.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return "fail", "директория данных недоступна для записи: " + err.Error()
	}
	_ = os.Remove(testFile)
	return "ok", ""
}
