package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBufferSize = 64
)

var errClientClosed = errors.New("websocket: client closed")

type subscription struct {
	cancel context.CancelFunc
}

// Client is one WebSocket connection and the subscriptions it owns.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	ID       string
	Username string

	token     string
	requestID string

	ctx    context.Context
	cancel context.CancelFunc

	subMu sync.Mutex
	subs  map[string]*subscription
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// NewClient creates a client for conn. Call Start to register and pump it.
// token is forwarded on every authority poll made for the client's
// subscriptions; requestID is the id of the upgrade request.
func NewClient(hub *Hub, conn *websocket.Conn, username, token, requestID string, log *logger.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		logger:    log.With("client_id", id, "username", username),
		ID:        id,
		Username:  username,
		token:     token,
		requestID: requestID,
		subs:      make(map[string]*subscription),
	}
}

// Start registers the client with the hub and launches both pumps. The
// connection is closed if the hub refuses it.
func (c *Client) Start() error {
	parent, err := c.hub.register(c)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection limit exceeded")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.conn.Close()
		return err
	}
	parent = authority.WithToken(parent, c.token)
	if c.requestID != "" {
		parent = context.WithValue(parent, logger.ContextKeyRequestID, c.requestID)
	}
	c.ctx, c.cancel = context.WithCancel(parent)

	go c.writePump()
	go c.readPump()
	return nil
}

// Close cancels every subscription and closes the connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		_ = c.conn.Close()
	})
}

// Subscriptions returns the channels currently subscribed.
func (c *Client) Subscriptions() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	channels := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		channels = append(channels, ch)
	}
	return channels
}

// SendMessage queues msg for the writer, waiting while the buffer is full so
// a subscription's events are never reordered or dropped.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Close()
		c.wg.Wait()
		c.logger.Debug("websocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "Invalid message format", "")
			continue
		}
		c.handleMessage(&msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		var req SubscribeRequest
		if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &req) != nil || req.Channel == "" {
			req = SubscribeRequest{Channel: msg.Channel, RequestID: msg.RequestID}
		}
		c.handleSubscribe(req)
	case MessageTypeUnsubscribe:
		var req UnsubscribeRequest
		if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &req) != nil || req.Channel == "" {
			req = UnsubscribeRequest{Channel: msg.Channel, RequestID: msg.RequestID}
		}
		c.handleUnsubscribe(req)
	case MessageTypePing:
		_ = c.SendMessage(c.ctx, NewMessage(MessageTypePong).WithRequestID(msg.RequestID))
	default:
		c.sendError("UNKNOWN_MESSAGE_TYPE", "Unknown message type: "+string(msg.Type), msg.RequestID)
	}
}

func (c *Client) handleSubscribe(req SubscribeRequest) {
	kind, id := ParseChannel(req.Channel)
	switch {
	case kind == ChannelTypeJob && id != "":
	case kind == ChannelTypePhases && id == "":
	default:
		c.sendError("INVALID_CHANNEL", "Unknown channel: "+req.Channel, req.RequestID)
		return
	}

	c.subMu.Lock()
	if _, ok := c.subs[req.Channel]; ok {
		c.subMu.Unlock()
		c.reply(MessageTypeSubscribed, req.Channel, req.RequestID)
		return
	}
	if len(c.subs) >= c.hub.cfg.MaxSubscriptionsPerConn {
		c.subMu.Unlock()
		c.logger.Warn("subscription limit exceeded", "max", c.hub.cfg.MaxSubscriptionsPerConn)
		c.sendError("SUBSCRIPTION_LIMIT", "Too many subscriptions", req.RequestID)
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	sub := &subscription{cancel: cancel}
	c.subs[req.Channel] = sub
	c.wg.Add(1)
	c.subMu.Unlock()

	// confirm before the loop's first event
	c.reply(MessageTypeSubscribed, req.Channel, req.RequestID)
	go c.runSubscription(ctx, sub, req.Channel, kind, id, req.CloseOnTerminal)
}

func (c *Client) runSubscription(ctx context.Context, sub *subscription, channel string, kind ChannelType, id string, closeOnTerminal bool) {
	defer c.wg.Done()
	defer sub.cancel()

	var err error
	switch kind {
	case ChannelTypeJob:
		err = c.hub.streams.WatchJob(ctx, id, closeOnTerminal, func(ctx context.Context, ev app.JobEvent) error {
			msg := NewMessage(MessageTypeEvent).
				WithChannel(channel).
				WithEvent(string(ev.Kind)).
				WithData(ev.Payload())
			return c.SendMessage(ctx, msg)
		})
	case ChannelTypePhases:
		err = c.hub.streams.WatchPhases(ctx, func(ctx context.Context, ev app.PhaseEvent) error {
			msg := NewMessage(MessageTypeEvent).
				WithChannel(channel).
				WithEvent(ev.Name()).
				WithData(ev.Payload())
			return c.SendMessage(ctx, msg)
		})
	}

	c.subMu.Lock()
	owned := c.subs[channel] == sub
	if owned {
		delete(c.subs, channel)
	}
	c.subMu.Unlock()

	if err != nil && !errors.Is(err, errClientClosed) && !errors.Is(err, context.Canceled) {
		c.logger.Warn("subscription ended", "channel", channel, "error", err)
	}
	// the loop finished on its own (terminal job); tell the client
	if owned && ctx.Err() == nil {
		c.reply(MessageTypeUnsubscribed, channel, "")
	}
}

func (c *Client) handleUnsubscribe(req UnsubscribeRequest) {
	if req.Channel == "" {
		c.sendError("INVALID_CHANNEL", "Channel is required", req.RequestID)
		return
	}

	c.subMu.Lock()
	sub, ok := c.subs[req.Channel]
	delete(c.subs, req.Channel)
	c.subMu.Unlock()

	if ok {
		sub.cancel()
	}
	c.reply(MessageTypeUnsubscribed, req.Channel, req.RequestID)
}

func (c *Client) reply(t MessageType, channel, requestID string) {
	_ = c.SendMessage(c.ctx, NewMessage(t).WithChannel(channel).WithRequestID(requestID))
}

func (c *Client) sendError(code, message, requestID string) {
	_ = c.SendMessage(c.ctx, NewMessage(MessageTypeError).
		WithData(ErrorData{Code: code, Message: message}).
		WithRequestID(requestID))
}
