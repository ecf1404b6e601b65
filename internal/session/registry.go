// Пакет session — реестр временных upload-сессий.
//
// Сессия соотносит батч staged-изображений с клиентом через токен
// (32 hex-символа) до того, как владеющая сущность сохранена.
// Потокобезопасный in-memory реестр с RWMutex: записи несут TTL,
// истечение обрабатывает фоновый sweep (internal/service),
// сам реестр отвечает на запросы валидности и членства синхронно.
//
// Не персистентный: при рестарте staged-загрузки теряются, клиент
// загружает заново (temp-фаза по определению короткоживущая).
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/arendadom/image-module/internal/domain/model"
)

// TokenLength — длина токена сессии в символах.
const TokenLength = 32

// ErrInvalidSession — токен неизвестен, истёк или некорректен.
var ErrInvalidSession = errors.New("недействительная сессия")

// entry — одна временная сессия.
type entry struct {
	createdAt time.Time
	// deadline — момент истечения; обновляется при каждом касании сессии
	deadline time.Time
	// images — staged-изображения в порядке добавления
	images []*model.TempImageInfo
}

// ExpiredSession — истёкшая сессия, извлечённая sweep'ом.
type ExpiredSession struct {
	Token  string
	Images []model.TempImageInfo
}

// Registry — потокобезопасный реестр временных сессий.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	logger   *slog.Logger
}

// NewRegistry создаёт пустой реестр с указанным TTL сессий.
func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "session_registry")),
	}
}

// NewToken генерирует криптослучайный токен (16 байт → 32 hex-символа).
func NewToken() string {
	b := make([]byte, TokenLength/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand не возвращает ошибок на поддерживаемых платформах
		panic(err)
	}
	return hex.EncodeToString(b)
}

// WellFormed проверяет формат токена: ровно 32 hex-символа в нижнем регистре.
func WellFormed(token string) bool {
	if len(token) != TokenLength {
		return false
	}
	for _, c := range token {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Create регистрирует новую сессию и возвращает её токен.
func (r *Registry) Create() string {
	token := NewToken()

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.sessions[token] = &entry{createdAt: now, deadline: now.Add(r.ttl)}

	r.logger.Debug("Сессия создана", slog.String("token", token))
	return token
}

// Touch регистрирует известный клиенту токен заново (после рестарта)
// или продлевает дедлайн живой сессии. Некорректный токен отвергается.
// Возвращает true, если сессия жива после вызова.
func (r *Registry) Touch(token string) bool {
	if !WellFormed(token) {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	e, ok := r.sessions[token]
	if !ok || now.After(e.deadline) {
		// Реестр не персистентный: токен из живой cookie
		// перерегистрируется с пустым списком изображений
		r.sessions[token] = &entry{createdAt: now, deadline: now.Add(r.ttl)}
		return true
	}
	e.deadline = now.Add(r.ttl)
	return true
}

// IsValid возвращает true, если токен корректен и сессия не истекла.
func (r *Registry) IsValid(token string) bool {
	if !WellFormed(token) {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[token]
	return ok && time.Now().UTC().Before(e.deadline)
}

// Add регистрирует staged-изображение под сессией.
// Конкурентные Add для одного токена не теряют записей (append под мьютексом).
func (r *Registry) Add(token string, info *model.TempImageInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[token]
	if !ok || time.Now().UTC().After(e.deadline) {
		return ErrInvalidSession
	}

	copied := *info
	copied.SessionToken = token
	e.images = append(e.images, &copied)
	e.deadline = time.Now().UTC().Add(r.ttl)
	return nil
}

// Images возвращает staged-изображения сессии в порядке добавления.
// Возвращает копии для потокобезопасности.
func (r *Registry) Images(token string) ([]model.TempImageInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[token]
	if !ok || time.Now().UTC().After(e.deadline) {
		return nil, ErrInvalidSession
	}

	result := make([]model.TempImageInfo, len(e.images))
	for i, img := range e.images {
		result[i] = *img
	}
	return result, nil
}

// Get возвращает одно staged-изображение сессии или (nil, false).
func (r *Registry) Get(token, imageID string) (*model.TempImageInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[token]
	if !ok {
		return nil, false
	}
	for _, img := range e.images {
		if img.ImageID == imageID {
			copied := *img
			return &copied, true
		}
	}
	return nil, false
}

// Remove дерегистрирует staged-изображение. No-op, если изображение
// или сессия отсутствуют (идемпотентность для ретраев миграции).
func (r *Registry) Remove(token, imageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[token]
	if !ok {
		return
	}
	for i, img := range e.images {
		if img.ImageID == imageID {
			e.images = append(e.images[:i], e.images[i+1:]...)
			return
		}
	}
}

// PopExpired извлекает и удаляет все истёкшие сессии.
// Используется sweep'ом: возвращённые изображения ещё имеют
// temp-объекты в хранилище, подлежащие удалению.
func (r *Registry) PopExpired(now time.Time) []ExpiredSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []ExpiredSession
	for token, e := range r.sessions {
		if now.Before(e.deadline) {
			continue
		}
		images := make([]model.TempImageInfo, len(e.images))
		for i, img := range e.images {
			images[i] = *img
		}
		expired = append(expired, ExpiredSession{Token: token, Images: images})
		delete(r.sessions, token)
	}
	return expired
}

// Count возвращает количество живых сессий (включая ещё не вычищенные истёкшие).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
