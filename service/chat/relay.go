package chat

import (
	"context"
	"time"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"
	"ensemble-relay/tools/ids"
	"ensemble-relay/tools/safe"

	"go.uber.org/zap"
)

// Deliverer hands one message to one connection's transport. It must not
// block on the network; an error means this recipient missed the message.
type Deliverer interface {
	Deliver(connID string, msg ChatMessage) error
}

// RelayResult describes one fan-out.
type RelayResult struct {
	Message    ChatMessage
	Recipients int // snapshot size
	Delivered  int
	Failed     int
}

type RelayConf struct {
	RecentIDWindow int              // how many message ids to remember for replay detection
	MaxBodyLen     int              // runes; <=0 disables
	IDs            *ids.Generator   // server-generated ids; nil => ids.Default()
	Clock          func() time.Time // nil => time.Now
	Observers      *Observers       // optional
	Metrics        *Metrics         // optional
}

// Relay validates inbound chat events and broadcasts them to every other
// registered connection. Delivery is best effort and at most once.
type Relay struct {
	reg       *Registry
	out       Deliverer
	recent    *RecentIDs
	ids       *ids.Generator
	now       func() time.Time
	maxLen    int
	observers *Observers
	metrics   *Metrics
	log       *zap.Logger
}

func NewRelay(reg *Registry, out Deliverer, conf RelayConf) (*Relay, error) {
	safe.MustNotNil(reg, "registry")
	safe.MustNotNil(out, "deliverer")

	recent, err := NewRecentIDs(safe.DefaultInt(conf.RecentIDWindow, 1024))
	if err != nil {
		return nil, errs.WrapMsg(err, "recent id window")
	}
	if conf.IDs == nil {
		conf.IDs = ids.Default()
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &Relay{
		reg:       reg,
		out:       out,
		recent:    recent,
		ids:       conf.IDs,
		now:       conf.Clock,
		maxLen:    conf.MaxBodyLen,
		observers: conf.Observers,
		metrics:   conf.Metrics,
		log:       logger.Named("relay"),
	}, nil
}

// Relay accepts one send_message from fromID and fans it out.
//
// Fails with ErrUnknownSender when fromID is not registered (a disconnect
// raced the send), and with ErrEmptyMessage, ErrInvalidLocation,
// ErrMessageTooLong or ErrBadPayload for bad input. A failed call delivers
// nothing. Per-recipient delivery failures are logged and counted in the
// result, never returned.
func (r *Relay) Relay(ctx context.Context, fromID string, p SendMessagePayload) (RelayResult, error) {
	if _, ok := r.reg.Get(fromID); !ok {
		return RelayResult{}, errs.ErrUnknownSender.WrapMsg("", "conn", fromID)
	}

	content, err := p.Content()
	if err != nil {
		return RelayResult{}, err
	}
	if err := content.Validate(r.maxLen); err != nil {
		return RelayResult{}, err
	}

	// identity always comes from the registry; the payload may only update it
	var sender Connection
	if prof := p.Profile(); !prof.empty() {
		sender, err = r.reg.UpdateProfile(fromID, prof)
	} else {
		var ok bool
		if sender, ok = r.reg.Get(fromID); !ok {
			err = errs.ErrUnknownSender.WrapMsg("", "conn", fromID)
		}
	}
	if err != nil {
		return RelayResult{}, err
	}

	msg := ChatMessage{
		ID:              r.assignID(p.ID),
		SenderID:        sender.ID,
		SenderName:      sender.DisplayName,
		SenderAvatarRef: sender.AvatarRef,
		Content:         content,
		Timestamp:       r.now(),
	}
	res := r.fanOut(msg)

	r.metrics.messageRelayed(content.Kind)
	r.observers.Relayed(msg, res)
	if ctx.Err() != nil {
		r.log.Debug("relay finished after context end", zap.String("msg", msg.ID), zap.Error(ctx.Err()))
	}
	return res, nil
}

// assignID keeps a well-formed client id the first time it is seen inside
// the recent window; otherwise it generates one.
func (r *Relay) assignID(clientID string) string {
	if clientID != "" && validClientID(clientID) && r.recent.Claim(clientID) {
		return clientID
	}
	if clientID != "" {
		r.log.Debug("client message id replaced", zap.String("client_id", clientID))
	}
	for {
		id := r.ids.NextString()
		if r.recent.Claim(id) {
			return id
		}
	}
}

func (r *Relay) fanOut(msg ChatMessage) RelayResult {
	targets := r.reg.ListOthers(msg.SenderID)
	res := RelayResult{Message: msg, Recipients: len(targets)}
	for _, t := range targets {
		if err := r.out.Deliver(t.ID, msg); err != nil {
			res.Failed++
			r.metrics.delivery(false)
			r.log.Warn("delivery failed",
				zap.String("msg", msg.ID),
				zap.String("to", t.ID),
				zap.Error(err))
			continue
		}
		res.Delivered++
		r.metrics.delivery(true)
	}
	return res
}
