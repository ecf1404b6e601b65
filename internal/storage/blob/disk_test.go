package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestDiskStore создаёт дисковое хранилище в TempDir.
func newTestDiskStore(t *testing.T) *DiskStore {
	t.Helper()

	ds, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания DiskStore: %v", err)
	}
	return ds
}

// TestDiskStore_PutGet проверяет запись и чтение объекта.
func TestDiskStore_PutGet(t *testing.T) {
	ds := newTestDiskStore(t)
	ctx := context.Background()

	data := []byte("jpeg-bytes")
	size, err := ds.Put(ctx, "temp/tok/img-1/original.jpg", bytes.NewReader(data), "image/jpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("size = %d, ожидался %d", size, len(data))
	}

	rc, err := ds.Get(ctx, "temp/tok/img-1/original.jpg")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("данные не совпадают: %q != %q", got, data)
	}
}

// TestDiskStore_ExistsInfo проверяет Exists и Info для присутствующего
// и отсутствующего объекта.
func TestDiskStore_ExistsInfo(t *testing.T) {
	ds := newTestDiskStore(t)
	ctx := context.Background()

	key := "images/property/42/gallery/img-1_medium.jpg"
	if _, err := ds.Put(ctx, key, strings.NewReader("0123456789"), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := ds.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), ожидался (true, nil)", ok, err)
	}

	info, err := ds.Info(ctx, key)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info == nil {
		t.Fatal("Info = nil для существующего объекта")
	}
	if info.Size != 10 {
		t.Errorf("Size = %d, ожидался 10", info.Size)
	}
	if info.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, ожидался image/jpeg", info.ContentType)
	}
	if info.IsTemporary {
		t.Error("постоянный ключ помечен как временный")
	}

	// Отсутствующий объект: Exists=false, Info=nil без ошибки
	ok, err = ds.Exists(ctx, "images/property/42/gallery/none.jpg")
	if err != nil || ok {
		t.Errorf("Exists для отсутствующего = (%v, %v), ожидался (false, nil)", ok, err)
	}
	info, err = ds.Info(ctx, "images/property/42/gallery/none.jpg")
	if err != nil || info != nil {
		t.Errorf("Info для отсутствующего = (%v, %v), ожидался (nil, nil)", info, err)
	}
}

// TestDiskStore_DeleteIdempotent проверяет идемпотентность удаления.
func TestDiskStore_DeleteIdempotent(t *testing.T) {
	ds := newTestDiskStore(t)
	ctx := context.Background()

	key := "temp/tok/img-1/large.jpg"
	if _, err := ds.Put(ctx, key, strings.NewReader("x"), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := ds.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Повторное удаление — тоже успех
	if err := ds.Delete(ctx, key); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}

	ok, _ := ds.Exists(ctx, key)
	if ok {
		t.Error("объект существует после удаления")
	}
}

// TestDiskStore_Copy проверяет копирование между пространствами имён.
func TestDiskStore_Copy(t *testing.T) {
	ds := newTestDiskStore(t)
	ctx := context.Background()

	src := "temp/tok/img-1/thumbnail.jpg"
	dst := "images/property/42/gallery/img-1_thumbnail.jpg"
	if _, err := ds.Put(ctx, src, strings.NewReader("thumb"), "image/jpeg"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := ds.Copy(ctx, src, dst); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	srcInfo, _ := ds.Info(ctx, src)
	dstInfo, _ := ds.Info(ctx, dst)
	if srcInfo == nil || dstInfo == nil {
		t.Fatal("источник или копия отсутствуют после Copy")
	}
	if srcInfo.Size != dstInfo.Size {
		t.Errorf("размер копии %d != размера источника %d", dstInfo.Size, srcInfo.Size)
	}

	// Копирование отсутствующего источника — невосстановимая ошибка
	err := ds.Copy(ctx, "temp/tok/none/original.jpg", dst)
	if err == nil {
		t.Fatal("ожидалась ошибка копирования отсутствующего источника")
	}
	if IsTransient(err) {
		t.Errorf("ошибка отсутствующего источника помечена как transient: %v", err)
	}
}

// TestDiskStore_KeyEscape проверяет защиту от выхода ключа за dataDir.
func TestDiskStore_KeyEscape(t *testing.T) {
	ds := newTestDiskStore(t)
	ctx := context.Background()

	for _, key := range []string{"../escape.jpg", "/abs/path.jpg", "."} {
		if _, err := ds.Put(ctx, key, strings.NewReader("x"), "image/jpeg"); err == nil {
			t.Errorf("ключ %q принят, ожидалась ошибка", key)
		}
	}
}

// TestDiskStore_NoPartialObject проверяет, что после неудачной записи
// объект под ключом не появляется (atomic rename).
func TestDiskStore_NoPartialObject(t *testing.T) {
	dir := t.TempDir()
	ds, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	key := "temp/tok/img-1/original.jpg"
	if _, err := ds.Put(ctx, key, failingReader{}, "image/jpeg"); err == nil {
		t.Fatal("ожидалась ошибка записи")
	}

	ok, _ := ds.Exists(ctx, key)
	if ok {
		t.Error("полузаписанный объект виден под ключом")
	}
	// И temp-файл тоже убран
	matches, _ := filepath.Glob(filepath.Join(dir, "temp", "tok", "img-1", "*"))
	if len(matches) != 0 {
		t.Errorf("остались файлы после неудачной записи: %v", matches)
	}
}

// failingReader — reader, всегда возвращающий ошибку.
type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, os.ErrDeadlineExceeded
}
