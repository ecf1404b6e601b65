// handler.go — сборка chi-роутера из доменных handler'ов.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter создаёт роутер со всеми маршрутами модуля изображений.
// middlewares применяются в порядке переданного среза.
func NewRouter(
	temp *TempHandler,
	images *ImagesHandler,
	health *HealthHandler,
	middlewares ...func(http.Handler) http.Handler,
) chi.Router {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}

	// Служебные endpoints
	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// Временная область (до сохранения сущности)
		r.Get("/temp/session", temp.GetSession)
		r.Post("/temp/images", temp.Upload)
		r.Get("/temp/images", temp.List)
		r.Delete("/temp/images/{imageID}", temp.Delete)

		// Постоянная область
		r.Post("/images", images.Upload)
		r.Post("/images/migrate", images.Migrate)
		r.Get("/images", images.List)
		r.Get("/images/main", images.Main)
		r.Get("/images/{imageID}", images.Get)
		r.Delete("/images/{imageID}", images.Delete)
		r.Put("/images/{imageID}/order", images.UpdateOrder)
		r.Put("/images/{imageID}/main", images.SetMain)
	})

	return router
}
