package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leakwatch/gateway/internal/infra/http/handler"
	"github.com/leakwatch/gateway/internal/infra/http/middleware"
	"github.com/leakwatch/gateway/internal/infra/websocket"
	"github.com/leakwatch/gateway/pkg/jwt"
)

// registerHealthRoutes registers health check endpoints.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", promhttp.Handler().ServeHTTP)
}

// registerAuditRoutes registers the audit trail. Administrators only.
func registerAuditRoutes(router Router, h *handler.AuditHandler) {
	router.GET("/audit", h.List, middleware.RequireRole(jwt.RoleAdministrator))
}

// registerWebSocketRoutes registers the WebSocket endpoint. Browsers cannot
// set headers on the upgrade, so Auth also accepts ?access_token= here.
func registerWebSocketRoutes(router Router, h *websocket.Handler) {
	router.GET("/ws", h.ServeWS)
}
