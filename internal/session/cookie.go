// cookie.go — привязка токена сессии к клиенту через HTTP cookie.
// Токен — непрозрачный случайный ключ в реестр, секретов не содержит,
// поэтому хранится в cookie открыто (HttpOnly, SameSite=Lax).
package session

import (
	"net/http"
	"time"
)

// CookieName — имя cookie с токеном временной сессии.
const CookieName = "arenda_img_session"

// TokenFromRequest извлекает токен сессии из cookie запроса.
// Возвращает пустую строку, если cookie нет или токен некорректен.
func TokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil || !WellFormed(c.Value) {
		return ""
	}
	return c.Value
}

// GetOrCreate возвращает токен сессии вызывающего клиента.
// Идемпотентен: повторные вызовы в одном клиентском контексте
// (та же cookie) возвращают идентичный токен. При отсутствии или
// некорректности cookie создаётся новая сессия и ставится cookie.
func (r *Registry) GetOrCreate(w http.ResponseWriter, req *http.Request) string {
	if token := TokenFromRequest(req); token != "" && r.Touch(token) {
		return token
	}

	token := r.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(r.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}
