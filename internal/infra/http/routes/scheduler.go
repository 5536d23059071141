package routes

import (
	"github.com/leakwatch/gateway/internal/infra/http/handler"
)

// registerSchedulerRoutes registers scheduled job endpoints.
func registerSchedulerRoutes(router Router, h *handler.ScheduleHandler, commands []Middleware) {
	router.Group("/scheduler", func(r Router) {
		r.GET("/phases", h.Phases)
		r.GET("/phases/stream", h.PhasesStream)

		r.GET("/jobs", h.List)
		r.GET("/jobs/{id}", h.Get)
		r.GET("/jobs/{id}/history", h.History)
		r.GET("/jobs/{id}/next-run", h.NextRun)

		r.POST("/jobs", h.Create, commands...)
		r.PUT("/jobs/{id}", h.Update, commands...)
		r.DELETE("/jobs/{id}", h.Delete, commands...)
		r.POST("/jobs/{id}/run-now", h.RunNow, commands...)
		r.POST("/jobs/{id}/pause", h.Pause, commands...)
		r.POST("/jobs/{id}/resume", h.Resume, commands...)
	})
}
