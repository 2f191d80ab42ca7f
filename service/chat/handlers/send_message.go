package handlers

import (
	"context"
	"encoding/json"

	"ensemble-relay/service/chat"
)

// Relayer is the part of *chat.Relay the send handler needs.
type Relayer interface {
	Relay(ctx context.Context, fromID string, p chat.SendMessagePayload) (chat.RelayResult, error)
}

type SendMessageHandler struct{ relay Relayer }

func NewSendMessageHandler(r Relayer) chat.Handler { return &SendMessageHandler{relay: r} }

func (h *SendMessageHandler) Event() string { return chat.EventSendMessage }

func (h *SendMessageHandler) Handle(ctx context.Context, connID string, data json.RawMessage) error {
	p, err := chat.DecodePayload[chat.SendMessagePayload](data)
	if err != nil {
		return err
	}
	if _, err := h.relay.Relay(ctx, connID, p); err != nil {
		return &chat.HandlerError{MsgID: p.ID, Err: err}
	}
	return nil
}
