package handlers

import (
	"context"
	"encoding/json"

	"ensemble-relay/logger"
	"ensemble-relay/service/chat"

	"go.uber.org/zap"
)

// ProfileHandler applies set_profile: later messages from the connection
// carry the new display fields.
type ProfileHandler struct{ reg *chat.Registry }

func NewProfileHandler(reg *chat.Registry) chat.Handler { return &ProfileHandler{reg: reg} }

func (h *ProfileHandler) Event() string { return chat.EventSetProfile }

func (h *ProfileHandler) Handle(_ context.Context, connID string, data json.RawMessage) error {
	p, err := chat.DecodePayload[chat.ProfilePayload](data)
	if err != nil {
		return err
	}
	c, err := h.reg.UpdateProfile(connID, chat.ProfileUpdate{DisplayName: p.Username, AvatarRef: p.ProfilePhoto})
	if err != nil {
		return err
	}
	logger.Debug("profile updated", zap.String("conn", connID), zap.String("name", c.DisplayName))
	return nil
}
