package natsx

import (
	"context"
	"encoding/json"
	"time"

	"ensemble-relay/logger"
	"ensemble-relay/service/chat"
	"ensemble-relay/tools/errs"

	"go.uber.org/zap"
)

// Feed event types; each is published on "<subject>.<type>".
const (
	TypeConnected    = "connected"
	TypeDisconnected = "disconnected"
	TypeRelayed      = "relayed"
)

// FeedEvent is the JSON body of one feed message. Message content is never
// published, only metadata.
type FeedEvent struct {
	Type         string `json:"type"`
	Node         string `json:"node"`
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Recipients   int    `json:"recipients,omitempty"`
	Delivered    int    `json:"delivered,omitempty"`
	Failed       int    `json:"failed,omitempty"`
	TS           int64  `json:"ts"`
}

// Publisher is satisfied by *Client.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error
}

// Feed publishes connection lifecycle and relay metadata to NATS. It is a
// chat.Observer.
type Feed struct {
	pub     Publisher
	subject string
	node    string
	now     func() time.Time
}

func NewFeed(pub Publisher, subject, node string) *Feed {
	if subject == "" {
		subject = "relay.events"
	}
	return &Feed{pub: pub, subject: subject, node: node, now: time.Now}
}

func (f *Feed) OnConnect(ctx context.Context, c chat.Connection) error {
	return f.publish(ctx, FeedEvent{Type: TypeConnected, ConnectionID: c.ID, Username: c.DisplayName}, c.ID)
}

func (f *Feed) OnDisconnect(ctx context.Context, c chat.Connection) error {
	return f.publish(ctx, FeedEvent{Type: TypeDisconnected, ConnectionID: c.ID, Username: c.DisplayName}, c.ID)
}

func (f *Feed) OnRelay(ctx context.Context, msg chat.ChatMessage, res chat.RelayResult) error {
	return f.publish(ctx, FeedEvent{
		Type:         TypeRelayed,
		ConnectionID: msg.SenderID,
		Username:     msg.SenderName,
		MessageID:    msg.ID,
		Kind:         string(msg.Content.Kind),
		Recipients:   res.Recipients,
		Delivered:    res.Delivered,
		Failed:       res.Failed,
	}, msg.ID)
}

func (f *Feed) publish(ctx context.Context, ev FeedEvent, key string) error {
	ev.Node = f.node
	ev.TS = f.now().UnixMilli()
	data, err := json.Marshal(ev)
	if err != nil {
		return errs.WrapMsg(err, "marshal feed event")
	}
	hdr := map[string]string{"Nats-Msg-Id": f.node + ":" + ev.Type + ":" + key}
	return f.pub.Publish(ctx, f.subject+"."+ev.Type, data, hdr)
}

// PeerLogger returns a Handler that logs feed events from other nodes.
func PeerLogger(self string) Handler {
	log := logger.Named("feed")
	return func(_ context.Context, msg Message) error {
		var ev FeedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return errs.ErrBadPayload.WrapMsg("feed event", "subject", msg.Subject)
		}
		if ev.Node == self {
			return nil
		}
		log.Debug("peer event",
			zap.String("node", ev.Node),
			zap.String("type", ev.Type),
			zap.String("conn", ev.ConnectionID),
			zap.Int("delivered", ev.Delivered))
		return nil
	}
}
