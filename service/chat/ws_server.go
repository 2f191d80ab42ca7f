package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"ensemble-relay/global/config"
	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"
	"ensemble-relay/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerConf wires the websocket transport.
type ServerConf struct {
	Transport config.TransportConfig
	Strict    func() bool   // unknown events become errors when true
	NewID     func() string // nil => uuid
	Observers *Observers
	Metrics   *Metrics
}

// Server is the transport listener: it accepts websocket clients, owns their
// outbound queues and routes inbound frames through the dispatcher. It is
// also the relay's Deliverer.
type Server struct {
	reg       *Registry
	disp      *Dispatcher
	conf      config.TransportConfig
	upgrader  websocket.Upgrader
	newID     func() string
	observers *Observers
	metrics   *Metrics
	log       *zap.Logger

	mu    sync.RWMutex
	conns map[string]*WsConn

	wg      sync.WaitGroup
	closing atomic.Bool
}

func NewServer(reg *Registry, conf ServerConf) *Server {
	safe.MustNotNil(reg, "registry")
	if conf.NewID == nil {
		conf.NewID = uuid.NewString
	}
	return &Server{
		reg:  reg,
		disp: NewDispatcher(conf.Strict),
		conf: conf.Transport,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  conf.Transport.ReadBuffer,
			WriteBufferSize: conf.Transport.WriteBuffer,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newID:     conf.NewID,
		observers: conf.Observers,
		metrics:   conf.Metrics,
		log:       logger.Named("ws"),
		conns:     make(map[string]*WsConn),
	}
}

func (s *Server) Disp() *Dispatcher { return s.disp }

func (s *Server) Registry() *Registry { return s.reg }

// HandleWS is ServeWS for gin routes.
func (s *Server) HandleWS(c *gin.Context) { s.ServeWS(c.Writer, c.Request) }

// ServeWS upgrades one request and runs the connection until it closes.
// Query parameters username and profilePhoto seed the display fields.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	q := r.URL.Query()
	conn, err := s.OnConnect(ws, q.Get("username"), q.Get("profilePhoto"))
	if err != nil {
		code, reason := websocket.CloseInternalServerErr, "registration failed"
		if errors.Is(err, errs.ErrConnectionClosed) {
			code, reason = websocket.CloseGoingAway, "shutting down"
		}
		s.log.Warn("connect rejected", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline(s.conf.WriteWait))
		_ = ws.Close()
		return
	}
	defer s.wg.Done()

	safe.Go("ws-write", conn.writePump)
	conn.setState(StateActive)
	if err := s.SendEvent(conn.ID, EventConnected, ConnectedPayload{ConnectionID: conn.ID}); err != nil {
		s.log.Info("connected event not queued", zap.String("conn", conn.ID), zap.Error(err))
	}

	ctx := r.Context()
	conn.readPump(func(frame []byte) {
		safe.Run("ws-event", func() { s.OnInboundEvent(ctx, conn.ID, frame) })
	})

	s.OnDisconnect(conn.ID)
	<-conn.done
}

// OnConnect registers a freshly accepted socket. The transport handle is
// published before the registry entry so that any relay that can see the
// connection can also deliver to it. After Shutdown has started it fails
// with ErrConnectionClosed. On success the connection is counted in s.wg;
// the caller calls s.wg.Done once its pumps have finished.
func (s *Server) OnConnect(ws *websocket.Conn, displayName, avatarRef string) (*WsConn, error) {
	id := s.newID()
	wc := newWsConn(id, ws, s.conf, s.metrics)

	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		wc.setState(StateClosed)
		return nil, errs.ErrConnectionClosed.WrapMsg("server shutting down", "conn", id)
	}
	if _, dup := s.conns[id]; dup {
		s.mu.Unlock()
		wc.setState(StateClosed)
		s.log.Error("duplicate connection id", zap.String("conn", id))
		return nil, errs.ErrDuplicateConnection.WrapMsg("", "conn", id)
	}
	s.conns[id] = wc
	s.wg.Add(1)
	s.mu.Unlock()

	c, err := s.reg.Register(id, displayName, avatarRef)
	if err != nil {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.wg.Done()
		wc.setState(StateClosed)
		return nil, err
	}
	s.log.Info("connected", zap.String("conn", id), zap.String("remote", wc.Remote), zap.String("name", displayName))
	s.observers.Connected(c)
	return wc, nil
}

// OnInboundEvent handles one inbound frame. Failures go back to the sender
// as an error event; other connections never see them.
func (s *Server) OnInboundEvent(ctx context.Context, connID string, frame []byte) {
	env, err := ParseEnvelope(frame)
	if err == nil {
		err = s.disp.Dispatch(ctx, connID, env)
	}
	if err == nil {
		return
	}

	// the sender is already gone; nobody to tell
	if errors.Is(err, errs.ErrUnknownSender) {
		s.log.Debug("event from unregistered connection dropped", zap.String("conn", connID))
		return
	}

	var msgID string
	var ee *HandlerError
	if errors.As(err, &ee) {
		msgID = ee.MsgID
	}
	p := NewErrorPayload(err, msgID)
	s.metrics.messageRejected(p.Code)
	s.log.Info("event rejected", zap.String("conn", connID), zap.String("event", env.Event), zap.Error(err))
	if err := s.SendEvent(connID, EventError, p); err != nil {
		s.log.Debug("error event not queued", zap.String("conn", connID), zap.Error(err))
	}
}

// OnDisconnect removes connID from the registry and closes its queue.
// Calling it again, or for an unknown id, does nothing.
func (s *Server) OnDisconnect(connID string) {
	c, had := s.reg.Get(connID)
	removed := s.reg.Unregister(connID)

	s.mu.Lock()
	wc := s.conns[connID]
	delete(s.conns, connID)
	s.mu.Unlock()

	if wc != nil {
		wc.setState(StateClosed)
		wc.closeSend()
	}
	if had && removed {
		s.log.Info("disconnected", zap.String("conn", connID))
		s.observers.Disconnected(c)
	}
}

// Deliver queues msg as a receive_message event for connID.
func (s *Server) Deliver(connID string, msg ChatMessage) error {
	return s.SendEvent(connID, EventReceiveMessage, NewReceivePayload(msg))
}

// SendEvent queues one event for connID without blocking.
func (s *Server) SendEvent(connID, event string, data any) error {
	wc := s.conn(connID)
	if wc == nil {
		return errs.ErrConnectionClosed.WrapMsg("", "conn", connID)
	}
	frame, err := EncodeEvent(event, data)
	if err != nil {
		return err
	}
	return wc.Enqueue(frame)
}

func (s *Server) conn(id string) *WsConn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns[id]
}

// Conns is the number of live transport handles.
func (s *Server) Conns() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Shutdown refuses new upgrades, closes every connection with a normal close
// frame and waits for their goroutines or ctx. Sockets still open when ctx
// ends are closed hard.
func (s *Server) Shutdown(ctx context.Context) error {
	// under mu so that no OnConnect slips in after the snapshot
	s.mu.Lock()
	s.closing.Store(true)
	all := make([]*WsConn, 0, len(s.conns))
	for _, wc := range s.conns {
		all = append(all, wc)
	}
	s.mu.Unlock()
	for _, wc := range all {
		wc.closeSend()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, wc := range all {
			if wc.ws != nil {
				_ = wc.ws.Close()
			}
		}
		return ctx.Err()
	}
}

// HandleHealth reports liveness and the current connection count.
func (s *Server) HandleHealth(c *gin.Context) {
	status, code := "ok", http.StatusOK
	if s.closing.Load() {
		status, code = "shutting_down", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "connections": s.reg.Len()})
}

// Closing reports whether Shutdown has started.
func (s *Server) Closing() bool { return s.closing.Load() }
