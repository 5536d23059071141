package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/pkg/logger"
)

// Default limits.
const (
	DefaultMaxConnsPerUser         = 10
	DefaultMaxSubscriptionsPerConn = 50
)

// ErrConnectionLimit is returned when a user already holds the maximum
// number of connections.
var ErrConnectionLimit = errors.New("websocket: connection limit exceeded")

// Streams starts the poll loops behind subscriptions. Both calls block
// until ctx is done or the sink fails.
type Streams interface {
	WatchJob(ctx context.Context, jobID string, closeOnTerminal bool, sink app.JobSink) error
	WatchPhases(ctx context.Context, sink app.PhaseSink) error
}

// Bridge adapts the application pollers to Streams.
type Bridge struct {
	Jobs   *app.JobStream
	Phases *app.PhasePoller
}

// WatchJob implements Streams.
func (b Bridge) WatchJob(ctx context.Context, jobID string, closeOnTerminal bool, sink app.JobSink) error {
	return b.Jobs.Run(ctx, jobID, closeOnTerminal, sink)
}

// WatchPhases implements Streams.
func (b Bridge) WatchPhases(ctx context.Context, sink app.PhaseSink) error {
	return b.Phases.Run(ctx, sink)
}

// HubConfig bounds the hub.
type HubConfig struct {
	MaxConnsPerUser         int
	MaxSubscriptionsPerConn int
}

// Hub tracks live connections. It holds no subscription state: each client
// owns its loops and tears them down when it closes.
type Hub struct {
	streams Streams
	cfg     HubConfig
	logger  *logger.Logger

	mu             sync.Mutex
	ctx            context.Context
	clients        map[*Client]struct{}
	userConnCounts map[string]int
	stopped        bool
}

// NewHub creates a new Hub.
func NewHub(streams Streams, cfg HubConfig, log *logger.Logger) *Hub {
	if cfg.MaxConnsPerUser <= 0 {
		cfg.MaxConnsPerUser = DefaultMaxConnsPerUser
	}
	if cfg.MaxSubscriptionsPerConn <= 0 {
		cfg.MaxSubscriptionsPerConn = DefaultMaxSubscriptionsPerConn
	}
	return &Hub{
		streams:        streams,
		cfg:            cfg,
		logger:         log.With("component", "websocket_hub"),
		ctx:            context.Background(),
		clients:        make(map[*Client]struct{}),
		userConnCounts: make(map[string]int),
	}
}

// Run binds client lifetimes to ctx and closes every client when it ends.
func (h *Hub) Run(ctx context.Context) {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	h.logger.Info("websocket hub started")
	<-ctx.Done()
	h.logger.Info("websocket hub stopping")
	h.closeAllClients()
}

// register admits c, enforcing the per-user connection cap.
func (h *Hub) register(c *Client) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil, context.Canceled
	}
	if count := h.userConnCounts[c.Username]; count >= h.cfg.MaxConnsPerUser {
		h.logger.Warn("connection limit exceeded",
			"username", c.Username,
			"current", count,
			"max", h.cfg.MaxConnsPerUser,
		)
		return nil, ErrConnectionLimit
	}
	h.userConnCounts[c.Username]++
	h.clients[c] = struct{}{}
	return h.ctx, nil
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if count := h.userConnCounts[c.Username]; count > 1 {
		h.userConnCounts[c.Username] = count - 1
	} else {
		delete(h.userConnCounts, c.Username)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	h.stopped = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// HubStats contains hub statistics.
type HubStats struct {
	TotalClients       int `json:"total_clients"`
	TotalUsers         int `json:"total_users"`
	TotalSubscriptions int `json:"total_subscriptions"`
}

// Stats returns hub statistics.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	stats := HubStats{TotalClients: len(h.clients), TotalUsers: len(h.userConnCounts)}
	h.mu.Unlock()

	for _, c := range clients {
		stats.TotalSubscriptions += len(c.Subscriptions())
	}
	return stats
}
