// handler.go — APIHandler собирает доменные обработчики и регистрирует маршруты.
package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/gallery/internal/api/middleware"
)

// APIHandler объединяет все обработчики HTTP API.
type APIHandler struct {
	photos      *PhotosHandler
	system      *SystemHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
	static      *StaticHandler
	// rateLimit — лимит POST /api/photos в минуту на IP (0 — без лимита)
	rateLimit int
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	photos *PhotosHandler,
	system *SystemHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
	static *StaticHandler,
	rateLimit int,
) *APIHandler {
	return &APIHandler{
		photos:      photos,
		system:      system,
		maintenance: maintenance,
		health:      health,
		static:      static,
		rateLimit:   rateLimit,
	}
}

// Register регистрирует маршруты на роутере.
// /metrics монтирует сервер.
func (h *APIHandler) Register(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)

	r.Route("/api", func(r chi.Router) {
		r.Get("/photos", h.photos.List)
		r.With(middleware.RateLimit(h.rateLimit)).Post("/photos", h.photos.Add)
		r.Put("/photos", h.photos.Update)
		r.Delete("/photos/{hash}", h.photos.Delete)

		r.Get("/info", h.system.GetInfo)
		r.Post("/maintenance/reconcile", h.maintenance.Reconcile)

		// Всё остальное под /api, включая неподдерживаемые методы
		r.HandleFunc("/*", APIFallback)
		r.NotFound(APIFallback)
		r.MethodNotAllowed(APIFallback)
	})

	r.Get("/photos/*", h.static.Photos)
	r.Get("/*", h.static.Client)
}
