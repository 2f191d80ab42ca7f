package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ensemble-relay/global/config"
	"ensemble-relay/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type wsEnv struct {
	srv    *Server
	reg    *Registry
	url    string
	strict atomic.Bool
}

func newWSEnv(t *testing.T, tune func(*config.TransportConfig)) *wsEnv {
	t.Helper()
	tc := config.Default().Transport
	tc.PingPeriod = tc.PongWait * 9 / 10
	if tune != nil {
		tune(&tc)
	}

	env := &wsEnv{reg: NewRegistry()}
	var n atomic.Int64
	env.srv = NewServer(env.reg, ServerConf{
		Transport: tc,
		Strict:    env.strict.Load,
		NewID:     func() string { return fmt.Sprintf("c%d", n.Add(1)) },
		Metrics:   NewMetrics(nil),
	})
	relay, err := NewRelay(env.reg, env.srv, RelayConf{MaxBodyLen: 100})
	if err != nil {
		t.Fatal(err)
	}
	env.srv.Disp().Register(HandlerFunc(EventSendMessage, func(ctx context.Context, connID string, data json.RawMessage) error {
		p, err := DecodePayload[SendMessagePayload](data)
		if err != nil {
			return err
		}
		if _, err := relay.Relay(ctx, connID, p); err != nil {
			return &HandlerError{MsgID: p.ID, Err: err}
		}
		return nil
	}))

	ts := httptest.NewServer(http.HandlerFunc(env.srv.ServeWS))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.srv.Shutdown(ctx)
		ts.Close()
	})
	env.url = "ws" + strings.TrimPrefix(ts.URL, "http")
	return env
}

type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
	id string
}

func (e *wsEnv) dial(t *testing.T, name string) *wsClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(e.url+"/ws?username="+name, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	c := &wsClient{t: t, ws: ws}
	env, err := c.read(2 * time.Second)
	if err != nil || env.Event != EventConnected {
		t.Fatalf("first frame = %+v, %v", env, err)
	}
	var cp ConnectedPayload
	_ = json.Unmarshal(env.Data, &cp)
	c.id = cp.ConnectionID
	return c
}

func (c *wsClient) send(event string, data any) {
	c.t.Helper()
	frame, err := EncodeEvent(event, data)
	if err != nil {
		c.t.Fatal(err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *wsClient) read(timeout time.Duration) (Envelope, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	err = json.Unmarshal(data, &env)
	return env, err
}

func (c *wsClient) expect(event string) json.RawMessage {
	c.t.Helper()
	env, err := c.read(2 * time.Second)
	if err != nil {
		c.t.Fatalf("waiting for %s: %v", event, err)
	}
	if env.Event != event {
		c.t.Fatalf("got event %q (%s), want %q", env.Event, env.Data, event)
	}
	return env.Data
}

// expectNothing fails if any frame arrives within d. It leaves the socket
// unusable for further reads, so call it last.
func (c *wsClient) expectNothing(d time.Duration) {
	c.t.Helper()
	if env, err := c.read(d); err == nil {
		c.t.Fatalf("unexpected frame %q %s", env.Event, env.Data)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWSBroadcast(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")
	c := env.dial(t, "carol")
	waitFor(t, "three registrations", func() bool { return env.reg.Len() == 3 })

	a.send(EventSendMessage, map[string]any{"message": "hi"})

	for _, rc := range []*wsClient{b, c} {
		raw := rc.expect(EventReceiveMessage)
		var p ReceiveMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Fatal(err)
		}
		if p.Username != "alice" || p.Message != "hi" || p.ID == "" || p.ProfilePhoto != "" || p.Kind != KindText {
			t.Fatalf("payload %+v", p)
		}

		var keys map[string]any
		if err := json.Unmarshal(raw, &keys); err != nil {
			t.Fatal(err)
		}
		for _, k := range []string{"id", "username", "message"} {
			if _, ok := keys[k]; !ok {
				t.Fatalf("key %q missing from %s", k, raw)
			}
		}
		for _, k := range []string{"profilePhoto", "senderId", "lat", "lon"} {
			if _, ok := keys[k]; ok {
				t.Fatalf("unexpected key %q in %s", k, raw)
			}
		}
	}
	a.expectNothing(200 * time.Millisecond)
}

func TestWSErrorGoesToSenderOnly(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")
	waitFor(t, "registrations", func() bool { return env.reg.Len() == 2 })

	a.send(EventSendMessage, map[string]any{"id": "m1", "message": "   "})
	var ep ErrorPayload
	_ = json.Unmarshal(a.expect(EventError), &ep)
	if ep.Code != "empty_message" || ep.ID != "m1" {
		t.Fatalf("error payload %+v", ep)
	}
	b.expectNothing(200 * time.Millisecond)
}

func TestWSUnknownEvent(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")

	a.send("typing", map[string]any{})
	a.send(EventSendMessage, map[string]any{"message": ""})
	// lenient: the unknown event is skipped and the next reply is the empty_message error
	var ep ErrorPayload
	_ = json.Unmarshal(a.expect(EventError), &ep)
	if ep.Code != "empty_message" {
		t.Fatalf("got %+v", ep)
	}

	env.strict.Store(true)
	a.send("typing", map[string]any{})
	_ = json.Unmarshal(a.expect(EventError), &ep)
	if ep.Code != "unknown_event" {
		t.Fatalf("strict mode got %+v", ep)
	}
}

func TestWSBadFrame(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")
	if err := a.ws.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatal(err)
	}
	var ep ErrorPayload
	_ = json.Unmarshal(a.expect(EventError), &ep)
	if ep.Code != "bad_payload" {
		t.Fatalf("got %+v", ep)
	}
}

func TestWSDisconnectUnregisters(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")
	b := env.dial(t, "bob")
	waitFor(t, "registrations", func() bool { return env.reg.Len() == 2 })

	_ = a.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = a.ws.Close()
	waitFor(t, "unregister", func() bool { return env.reg.Len() == 1 })
	if _, ok := env.reg.Get(a.id); ok {
		t.Fatal("closed connection still registered")
	}
	if env.srv.Conns() != 1 {
		t.Fatalf("transport handles = %d", env.srv.Conns())
	}

	// idempotent
	env.srv.OnDisconnect(a.id)
	env.srv.OnDisconnect("never-existed")

	b.send(EventSendMessage, map[string]any{"message": "anyone?"})
	b.expectNothing(200 * time.Millisecond)
}

func TestWSLateJoinerGetsNoHistory(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")
	a.send(EventSendMessage, map[string]any{"message": "early"})
	_ = a.ws.Close()
	waitFor(t, "unregister", func() bool { return env.reg.Len() == 0 })

	b := env.dial(t, "bob")
	b.expectNothing(200 * time.Millisecond)
}

func TestWSShutdownClosesClients(t *testing.T) {
	env := newWSEnv(t, nil)
	a := env.dial(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	_, err := a.read(2 * time.Second)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read after shutdown: %v", err)
	}
	if env.reg.Len() != 0 {
		t.Fatalf("registry not empty: %d", env.reg.Len())
	}

	if _, _, err := websocket.DefaultDialer.Dial(env.url+"/ws", nil); err == nil {
		t.Fatal("dial succeeded after shutdown")
	}
}

func TestWSHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newWSEnv(t, nil)
	env.dial(t, "alice")
	waitFor(t, "registration", func() bool { return env.reg.Len() == 1 })

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	env.srv.HandleHealth(c)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"connections":1`) {
		t.Fatalf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestDeliverToUnknownConnection(t *testing.T) {
	srv := NewServer(NewRegistry(), ServerConf{Transport: config.Default().Transport})
	err := srv.Deliver("ghost", ChatMessage{ID: "m"})
	if !errors.Is(err, errs.ErrConnectionClosed) || !errors.Is(err, errs.ErrDeliveryFailed) {
		t.Fatalf("err = %v", err)
	}
}

func TestOnConnectRefusedAfterShutdown(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer(reg, ServerConf{Transport: config.Default().Transport})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := srv.OnConnect(nil, "late", ""); !errors.Is(err, errs.ErrConnectionClosed) {
		t.Fatalf("OnConnect after shutdown: %v", err)
	}
	if reg.Len() != 0 || srv.Conns() != 0 {
		t.Fatalf("late connection kept: registry=%d conns=%d", reg.Len(), srv.Conns())
	}
}

func TestShutdownWaitsForAcceptedConnections(t *testing.T) {
	reg := NewRegistry()
	srv := NewServer(reg, ServerConf{Transport: config.Default().Transport})
	wc, err := srv.OnConnect(nil, "a", "")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := srv.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown returned %v while a connection was still running", err)
	}
	if wc.State() != StateConnecting {
		t.Fatalf("state %v", wc.State())
	}

	srv.OnDisconnect(wc.ID)
	srv.wg.Done()
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
