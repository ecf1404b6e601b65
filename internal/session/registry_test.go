package session

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/arendadom/image-module/internal/domain/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func tempInfo(imageID string) *model.TempImageInfo {
	return &model.TempImageInfo{
		ImageID:          imageID,
		OriginalFilename: imageID + ".jpg",
		Size:             1024,
		MimeType:         "image/jpeg",
		CreatedAt:        time.Now().UTC(),
	}
}

// TestNewToken_WellFormed проверяет формат и уникальность токенов.
func TestNewToken_WellFormed(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewToken()
		if !WellFormed(token) {
			t.Fatalf("токен %q некорректен", token)
		}
		if len(token) != 32 {
			t.Fatalf("длина токена %d, ожидалась 32", len(token))
		}
		if seen[token] {
			t.Fatalf("токен %q повторился", token)
		}
		seen[token] = true
	}
}

// TestWellFormed_Rejects проверяет отбраковку некорректных токенов.
func TestWellFormed_Rejects(t *testing.T) {
	bad := []string{
		"",
		"short",
		"ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ",                // не hex
		"A1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8",                // верхний регистр
		"a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8ff",              // длиннее 32
		"../../etc/passwd\x00aaaaaaaaaaaaaa",              // управляющие символы
	}
	for _, token := range bad {
		if WellFormed(token) {
			t.Errorf("токен %q принят, ожидалась отбраковка", token)
		}
	}
}

// TestRegistry_AddImagesOrder проверяет членство и порядок вставки.
func TestRegistry_AddImagesOrder(t *testing.T) {
	r := NewRegistry(time.Hour, testLogger())
	token := r.Create()

	for i := 0; i < 5; i++ {
		if err := r.Add(token, tempInfo(fmt.Sprintf("img-%d", i))); err != nil {
			t.Fatalf("Add img-%d: %v", i, err)
		}
	}

	images, err := r.Images(token)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 5 {
		t.Fatalf("изображений %d, ожидалось 5", len(images))
	}
	for i, img := range images {
		want := fmt.Sprintf("img-%d", i)
		if img.ImageID != want {
			t.Errorf("позиция %d: %q, ожидался %q (порядок вставки)", i, img.ImageID, want)
		}
		if img.SessionToken != token {
			t.Errorf("img %s: SessionToken = %q, ожидался %q", img.ImageID, img.SessionToken, token)
		}
	}
}

// TestRegistry_AddInvalidSession проверяет отказ для неизвестного токена.
func TestRegistry_AddInvalidSession(t *testing.T) {
	r := NewRegistry(time.Hour, testLogger())

	err := r.Add("a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8", tempInfo("img-1"))
	if err != ErrInvalidSession {
		t.Errorf("err = %v, ожидался ErrInvalidSession", err)
	}
}

// TestRegistry_Remove проверяет дерегистрацию и no-op для отсутствующего.
func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(time.Hour, testLogger())
	token := r.Create()

	r.Add(token, tempInfo("img-1"))
	r.Add(token, tempInfo("img-2"))
	r.Add(token, tempInfo("img-3"))

	r.Remove(token, "img-2")
	// Повторное и отсутствующее удаление — no-op
	r.Remove(token, "img-2")
	r.Remove(token, "img-absent")

	images, _ := r.Images(token)
	if len(images) != 2 {
		t.Fatalf("изображений %d, ожидалось 2", len(images))
	}
	if images[0].ImageID != "img-1" || images[1].ImageID != "img-3" {
		t.Errorf("порядок после удаления: %s, %s", images[0].ImageID, images[1].ImageID)
	}
}

// TestRegistry_IsValid проверяет валидность и истечение TTL.
func TestRegistry_IsValid(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, testLogger())
	token := r.Create()

	if !r.IsValid(token) {
		t.Error("свежая сессия невалидна")
	}
	if r.IsValid("a1b2c3d4e5f6a7b8a1b2c3d4e5f6a7b8") {
		t.Error("незарегистрированный токен валиден")
	}
	if r.IsValid("мусор") {
		t.Error("некорректный токен валиден")
	}

	time.Sleep(60 * time.Millisecond)
	if r.IsValid(token) {
		t.Error("истёкшая сессия валидна")
	}
}

// TestRegistry_ConcurrentAdd проверяет отсутствие потерянных записей
// при конкурентных Add для одного токена.
func TestRegistry_ConcurrentAdd(t *testing.T) {
	r := NewRegistry(time.Hour, testLogger())
	token := r.Create()

	const workers = 20
	const perWorker = 10

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := r.Add(token, tempInfo(fmt.Sprintf("img-%d-%d", w, i))); err != nil {
					t.Errorf("Add: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	images, err := r.Images(token)
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != workers*perWorker {
		t.Errorf("изображений %d, ожидалось %d (потерянные записи)", len(images), workers*perWorker)
	}
}

// TestRegistry_PopExpired проверяет извлечение истёкших сессий.
func TestRegistry_PopExpired(t *testing.T) {
	r := NewRegistry(time.Hour, testLogger())

	live := r.Create()
	r.Add(live, tempInfo("live-img"))

	dead := r.Create()
	r.Add(dead, tempInfo("dead-img-1"))
	r.Add(dead, tempInfo("dead-img-2"))

	// Сейчас ничего не истекло
	if got := r.PopExpired(time.Now().UTC()); len(got) != 0 {
		t.Fatalf("извлечено %d сессий, ожидалось 0", len(got))
	}

	// Через два TTL истекло всё
	future := time.Now().UTC().Add(2 * time.Hour)
	expired := r.PopExpired(future)
	if len(expired) != 2 {
		t.Fatalf("извлечено %d сессий, ожидалось 2", len(expired))
	}
	if r.Count() != 0 {
		t.Errorf("в реестре осталось %d сессий", r.Count())
	}

	total := 0
	for _, s := range expired {
		total += len(s.Images)
	}
	if total != 3 {
		t.Errorf("извлечено %d изображений, ожидалось 3", total)
	}
}

// TestGetOrCreate_Idempotent проверяет cookie round-trip: повторные
// вызовы в одном клиентском контексте возвращают идентичный токен.
func TestGetOrCreate_Idempotent(t *testing.T) {
	r := NewRegistry(time.Hour, testLogger())

	// Первый запрос — без cookie, сессия создаётся
	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	rec1 := httptest.NewRecorder()
	token1 := r.GetOrCreate(rec1, req1)

	if !WellFormed(token1) {
		t.Fatalf("токен %q некорректен", token1)
	}

	cookies := rec1.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == CookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("cookie сессии не установлена")
	}
	if sessionCookie.Value != token1 {
		t.Errorf("cookie = %q, токен = %q", sessionCookie.Value, token1)
	}

	// Второй запрос с той же cookie — тот же токен, cookie не переставляется
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(sessionCookie)
	rec2 := httptest.NewRecorder()
	token2 := r.GetOrCreate(rec2, req2)

	if token2 != token1 {
		t.Errorf("повторный вызов вернул другой токен: %q != %q", token2, token1)
	}

	// Третий вызов — всё ещё тот же
	req3 := httptest.NewRequest(http.MethodGet, "/", nil)
	req3.AddCookie(sessionCookie)
	token3 := r.GetOrCreate(httptest.NewRecorder(), req3)
	if token3 != token1 {
		t.Errorf("третий вызов вернул другой токен: %q != %q", token3, token1)
	}
}

// TestGetOrCreate_SurvivesRestart проверяет перерегистрацию токена
// из живой cookie после потери состояния реестра.
func TestGetOrCreate_SurvivesRestart(t *testing.T) {
	r1 := NewRegistry(time.Hour, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	token := r1.GetOrCreate(rec, req)

	// "Рестарт": новый реестр, cookie у клиента осталась
	r2 := NewRegistry(time.Hour, testLogger())
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	token2 := r2.GetOrCreate(httptest.NewRecorder(), req2)

	if token2 != token {
		t.Errorf("после рестарта токен сменился: %q != %q", token2, token)
	}
	if !r2.IsValid(token) {
		t.Error("перерегистрированный токен невалиден")
	}
}
