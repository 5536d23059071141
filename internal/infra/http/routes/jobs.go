package routes

import (
	"github.com/leakwatch/gateway/internal/infra/http/handler"
)

// registerJobRoutes registers scan job endpoints.
// Reads are open to every authenticated role; mutations need a command role.
func registerJobRoutes(router Router, h *handler.JobHandler, commands []Middleware) {
	router.Group("/jobs", func(r Router) {
		r.GET("/", h.List)
		r.GET("/{id}", h.Get)
		r.GET("/{id}/stream", h.Stream)

		r.POST("/{id}/cancel", h.Cancel, commands...)
		r.POST("/{id}/pause", h.Pause, commands...)
		r.POST("/{id}/resume", h.Resume, commands...)
		r.DELETE("/{id}", h.Delete, commands...)
		r.DELETE("/", h.ClearAll, commands...)
	})
}
