package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leakwatch/gateway/internal/app"
	"github.com/leakwatch/gateway/internal/infra/authority"
	"github.com/leakwatch/gateway/internal/infra/authority/authoritytest"
	"github.com/leakwatch/gateway/internal/infra/http/middleware"
	"github.com/leakwatch/gateway/pkg/domain/scanjob"
	"github.com/leakwatch/gateway/pkg/domain/scheduledjob"
	"github.com/leakwatch/gateway/pkg/logger"
)

// scriptedStreams emits one snapshot and one error per job subscription,
// then waits for cancellation.
type scriptedStreams struct {
	cancelled chan string
}

func (s *scriptedStreams) WatchJob(ctx context.Context, jobID string, closeOnTerminal bool, sink app.JobSink) error {
	job, err := scanjob.New(jobID, scanjob.JobTypeSingle, "IntelX search", "bank.co.id", time.Now())
	if err != nil {
		return err
	}
	if closeOnTerminal {
		_ = job.Cancel(time.Now())
		return sink(ctx, app.JobEvent{Kind: app.EventSnapshot, Job: job})
	}
	if err := sink(ctx, app.JobEvent{Kind: app.EventSnapshot, Job: job}); err != nil {
		return err
	}
	if err := sink(ctx, app.JobEvent{Kind: app.EventError, Error: "Job not found", Status: http.StatusNotFound}); err != nil {
		return err
	}
	<-ctx.Done()
	s.cancelled <- jobID
	return nil
}

func (s *scriptedStreams) WatchPhases(ctx context.Context, sink app.PhaseSink) error {
	ev := app.PhaseEvent{Kind: app.EventSnapshot, Phases: map[string]scanjob.Status{"s1": scanjob.StatusCollecting}}
	if err := sink(ctx, ev); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

type wsFixture struct {
	streams *scriptedStreams
	hub     *Hub
	server  *httptest.Server
}

const callerToken = "tok-alice"

func newWSFixture(t *testing.T, cfg HubConfig) *wsFixture {
	t.Helper()
	streams := &scriptedStreams{cancelled: make(chan string, 8)}
	f := serveHub(t, streams, cfg)
	f.streams = streams
	return f
}

// serveHub runs a hub over streams behind a handler that authenticates every
// upgrade as alice.
func serveHub(t *testing.T, streams Streams, cfg HubConfig) *wsFixture {
	t.Helper()
	hub := NewHub(streams, cfg, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	h := NewHandler(hub, nil, logger.NewNop())
	authed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.UsernameKey, "alice")
		ctx = authority.WithToken(ctx, callerToken)
		h.ServeWS(w, r.WithContext(ctx))
	})
	server := httptest.NewServer(authed)

	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &wsFixture{hub: hub, server: server}
}

func (f *wsFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func next(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestJobSubscription(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t)

	send(t, conn, Message{Type: MessageTypeSubscribe, Channel: "job:j1", RequestID: "r1"})

	msg := next(t, conn)
	assert.Equal(t, MessageTypeSubscribed, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)

	msg = next(t, conn)
	assert.Equal(t, MessageTypeEvent, msg.Type)
	assert.Equal(t, "snapshot", msg.Event)
	assert.Equal(t, "job:j1", msg.Channel)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, "j1", snap["id"])
	assert.Equal(t, "queued", snap["status"])

	msg = next(t, conn)
	assert.Equal(t, "error", msg.Event)
	assert.JSONEq(t, `{"error":"Job not found","status":404}`, string(msg.Data))

	send(t, conn, Message{Type: MessageTypeUnsubscribe, Channel: "job:j1"})
	msg = next(t, conn)
	assert.Equal(t, MessageTypeUnsubscribed, msg.Type)

	select {
	case id := <-f.streams.cancelled:
		assert.Equal(t, "j1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("job loop was not cancelled on unsubscribe")
	}
}

func TestCloseOnTerminal(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t)

	data, _ := json.Marshal(SubscribeRequest{Channel: "job:j2", CloseOnTerminal: true})
	send(t, conn, Message{Type: MessageTypeSubscribe, Data: data})

	assert.Equal(t, MessageTypeSubscribed, next(t, conn).Type)
	ev := next(t, conn)
	assert.Equal(t, "snapshot", ev.Event)
	assert.Contains(t, string(ev.Data), `"cancelled"`)

	msg := next(t, conn)
	assert.Equal(t, MessageTypeUnsubscribed, msg.Type)
	assert.Equal(t, "job:j2", msg.Channel)
}

func TestPhasesSubscription(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t)

	send(t, conn, Message{Type: MessageTypeSubscribe, Channel: PhasesChannel})
	assert.Equal(t, MessageTypeSubscribed, next(t, conn).Type)

	msg := next(t, conn)
	assert.Equal(t, "phases", msg.Event)
	assert.JSONEq(t, `{"s1":"collecting"}`, string(msg.Data))
}

func TestSubscriptionsForwardCallerToken(t *testing.T) {
	fake := authoritytest.New(t, nil)
	fake.AddJob(scanjob.ScanJob{ID: "j1", Status: scanjob.StatusCollecting, RawStatus: "collecting"})
	fake.AddSchedule(scheduledjob.ScheduledJob{ID: "11111111-1111-1111-1111-111111111111", IsActive: true})

	client := authority.New(authority.Config{BaseURL: fake.URL, Timeout: 2 * time.Second}, logger.NewNop())
	bridge := Bridge{
		Jobs:   app.NewJobStream(client, app.JobStreamConfig{Interval: time.Hour}, nil, logger.NewNop()),
		Phases: app.NewPhasePoller(client, app.PhasePollerConfig{Interval: time.Hour}, logger.NewNop()),
	}
	f := serveHub(t, bridge, HubConfig{})
	conn := f.dial(t)

	send(t, conn, Message{Type: MessageTypeSubscribe, Channel: "job:j1"})
	assert.Equal(t, MessageTypeSubscribed, next(t, conn).Type)

	msg := next(t, conn)
	require.Equal(t, "snapshot", msg.Event, string(msg.Data))
	assert.Contains(t, string(msg.Data), `"collecting"`)

	send(t, conn, Message{Type: MessageTypeSubscribe, Channel: PhasesChannel})
	assert.Equal(t, MessageTypeSubscribed, next(t, conn).Type)
	assert.Equal(t, "phases", next(t, conn).Event)

	require.NotEmpty(t, fake.Tokens())
	for _, tok := range fake.Tokens() {
		assert.Equal(t, callerToken, tok)
	}
	assert.Equal(t, 1, fake.Calls(http.MethodGet, "/api/jobs/j1"))
}

func TestInvalidMessages(t *testing.T) {
	f := newWSFixture(t, HubConfig{})
	conn := f.dial(t)

	tests := []struct {
		name string
		msg  Message
		code string
	}{
		{"unknown channel", Message{Type: MessageTypeSubscribe, Channel: "finding:1"}, "INVALID_CHANNEL"},
		{"job without id", Message{Type: MessageTypeSubscribe, Channel: "job:"}, "INVALID_CHANNEL"},
		{"unknown type", Message{Type: "shout"}, "UNKNOWN_MESSAGE_TYPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, conn, tt.msg)
			msg := next(t, conn)
			require.Equal(t, MessageTypeError, msg.Type)
			var e ErrorData
			require.NoError(t, json.Unmarshal(msg.Data, &e))
			assert.Equal(t, tt.code, e.Code)
		})
	}

	send(t, conn, Message{Type: MessageTypePing, RequestID: "p"})
	assert.Equal(t, MessageTypePong, next(t, conn).Type)
}

func TestSubscriptionLimit(t *testing.T) {
	f := newWSFixture(t, HubConfig{MaxSubscriptionsPerConn: 1})
	conn := f.dial(t)

	send(t, conn, Message{Type: MessageTypeSubscribe, Channel: PhasesChannel})
	assert.Equal(t, MessageTypeSubscribed, next(t, conn).Type)
	assert.Equal(t, MessageTypeEvent, next(t, conn).Type)

	send(t, conn, Message{Type: MessageTypeSubscribe, Channel: "job:j3"})
	msg := next(t, conn)
	require.Equal(t, MessageTypeError, msg.Type)
	assert.Contains(t, string(msg.Data), "SUBSCRIPTION_LIMIT")
}

func TestConnectionLimit(t *testing.T) {
	f := newWSFixture(t, HubConfig{MaxConnsPerUser: 1})
	first := f.dial(t)
	send(t, first, Message{Type: MessageTypePing})
	assert.Equal(t, MessageTypePong, next(t, first).Type)

	second := f.dial(t)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))

	assert.Equal(t, 1, f.hub.Stats().TotalClients)
}

func TestParseChannel(t *testing.T) {
	kind, id := ParseChannel("job:abc")
	assert.Equal(t, ChannelTypeJob, kind)
	assert.Equal(t, "abc", id)

	kind, id = ParseChannel("phases")
	assert.Equal(t, ChannelTypePhases, kind)
	assert.Empty(t, id)

	assert.Equal(t, "job:abc", MakeChannel(ChannelTypeJob, "abc"))
	assert.Equal(t, "phases", MakeChannel(ChannelTypePhases, ""))
}
