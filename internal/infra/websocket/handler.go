package websocket

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/internal/infra/http/middleware"
	"github.com/leakwatch/gateway/pkg/apierror"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Handler upgrades authenticated requests to WebSocket clients.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewHandler creates a handler accepting the given browser origins. A "*"
// entry accepts any origin; requests without Origin are always accepted.
func NewHandler(hub *Hub, allowedOrigins []string, log *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWS handles GET /api/v1/ws. Auth runs first; browsers pass the token
// as ?access_token=.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	username := middleware.GetUsername(r.Context())
	if username == "" {
		apierror.Unauthorized("Authentication required").WriteJSON(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Debug("websocket upgrade failed", "username", username, "error", err)
		return
	}

	// polls run on the hub's context, not r's
	client := NewClient(h.hub, conn, username,
		authority.TokenFromContext(r.Context()),
		middleware.GetRequestID(r.Context()),
		h.logger)
	if err := client.Start(); err != nil {
		return
	}

	h.logger.Info("websocket client connected",
		"client_id", client.ID,
		"username", username,
		"remote_addr", r.RemoteAddr,
	)
}
