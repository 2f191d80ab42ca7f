package handlers

import (
	"context"
	"encoding/json"
	"time"

	"ensemble-relay/service/chat"
)

// EventSender queues an event for one connection.
type EventSender interface {
	SendEvent(connID, event string, data any) error
}

// PingHandler answers the JSON-level ping with a pong to the same connection.
// Transport keepalive uses websocket control frames and does not pass here.
type PingHandler struct {
	out EventSender
	now func() time.Time
}

func NewPingHandler(out EventSender) chat.Handler {
	return &PingHandler{out: out, now: time.Now}
}

func (h *PingHandler) Event() string { return chat.EventPing }

func (h *PingHandler) Handle(_ context.Context, connID string, _ json.RawMessage) error {
	return h.out.SendEvent(connID, chat.EventPong, chat.PongPayload{Timestamp: h.now().UnixMilli()})
}

// RegisterAll installs the standard event handlers on srv's dispatcher.
func RegisterAll(srv *chat.Server, relay Relayer) {
	d := srv.Disp()
	d.Register(NewSendMessageHandler(relay))
	d.Register(NewProfileHandler(srv.Registry()))
	d.Register(NewPingHandler(srv))
}
