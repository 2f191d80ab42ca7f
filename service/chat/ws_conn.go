package chat

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"ensemble-relay/global/config"
	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WsConn is the transport handle of one connection: the socket, its bounded
// outbound queue and its lifecycle state. One read goroutine and one write
// goroutine own the socket.
type WsConn struct {
	ID     string
	Remote string

	ws      *websocket.Conn
	conf    config.TransportConfig
	state   atomic.Int32
	metrics *Metrics
	log     *zap.Logger

	mu     sync.Mutex // guards send against close
	send   chan []byte
	closed bool

	done chan struct{} // closed when the write pump exits
}

func newWsConn(id string, ws *websocket.Conn, conf config.TransportConfig, m *Metrics) *WsConn {
	c := &WsConn{
		ID:      id,
		ws:      ws,
		conf:    conf,
		metrics: m,
		log:     logger.Named("ws").With(zap.String("conn", id)),
		send:    make(chan []byte, conf.SendQueueSize),
		done:    make(chan struct{}),
	}
	if ws != nil {
		if ra := ws.RemoteAddr(); ra != nil {
			c.Remote = ra.String()
		}
	}
	c.state.Store(int32(StateConnecting))
	m.connCreated()
	return c
}

func (c *WsConn) State() ConnState { return ConnState(c.state.Load()) }

// setState moves the state forward; backwards or repeated moves are refused.
func (c *WsConn) setState(to ConnState) bool {
	for {
		cur := c.state.Load()
		if ConnState(cur) >= to {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(to)) {
			c.metrics.connState(ConnState(cur), to)
			c.log.Debug("state", zap.Stringer("from", ConnState(cur)), zap.Stringer("to", to))
			return true
		}
	}
}

// Enqueue queues one frame without blocking. On a full queue the configured
// policy applies: drop_oldest evicts the oldest queued frame, disconnect
// closes the connection and fails with ErrQueueFull.
func (c *WsConn) Enqueue(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errs.ErrConnectionClosed.WrapMsg("", "conn", c.ID)
	}
	select {
	case c.send <- frame:
		return nil
	default:
	}

	if c.conf.OverflowPolicy == config.OverflowDisconnect {
		c.metrics.queueOverflow("disconnect")
		c.log.Warn("outbound queue full, disconnecting", zap.Int("size", cap(c.send)))
		c.closeSendLocked()
		if c.ws != nil {
			_ = c.ws.Close()
		}
		return errs.ErrQueueFull.WrapMsg("", "conn", c.ID)
	}

	// only the write pump receives, so after one eviction there is room
	select {
	case <-c.send:
	default:
	}
	c.send <- frame
	c.metrics.queueOverflow("drop_oldest")
	c.log.Debug("outbound queue full, oldest frame dropped")
	return nil
}

// closeSend stops the queue; the write pump flushes what is queued, sends a
// close frame and shuts the socket.
func (c *WsConn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *WsConn) closeSendLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WsConn) writePump() {
	ticker := time.NewTicker(c.conf.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Info("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.conf.WriteWait)); err != nil {
				c.log.Info("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readPump delivers inbound text/binary frames to handle, in arrival order,
// until the socket fails or the peer closes.
func (c *WsConn) readPump(handle func(frame []byte)) {
	c.ws.SetReadLimit(c.conf.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				c.log.Info("peer closed", zap.Error(err))
			case errors.As(err, &ne) && ne.Timeout():
				c.log.Info("read timeout", zap.Error(err))
			default:
				c.log.Info("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		handle(data)
	}
}

func deadline(d time.Duration) time.Time { return time.Now().Add(d) }
