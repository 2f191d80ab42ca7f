package natsx

import (
	"context"
	"strings"
	"sync"
	"time"

	"ensemble-relay/global/config"
	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client is a core NATS connection used to publish and tail the relay's
// event feed.
type Client struct {
	nc  *nats.Conn
	log *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials the servers in c with unlimited reconnects.
func Connect(c config.NatsConfig) (*Client, error) {
	if len(c.Servers) == 0 {
		return nil, errs.ErrArgs.WrapMsg("nats servers missing")
	}
	log := logger.Named("nats")
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500 * time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.User != "" {
		opts = append(opts, nats.UserInfo(c.User, c.Pass))
	}
	nc, err := nats.Connect(strings.Join(c.Servers, ","), opts...)
	if err != nil {
		return nil, errs.WrapMsg(err, "nats connect", "servers", c.Servers)
	}
	return &Client{nc: nc, log: log}, nil
}

// Publish sends data on subject. ctx only bounds the call; core NATS
// publishing is fire and forget.
func (c *Client) Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := &nats.Msg{Subject: subject, Data: data}
	if len(hdr) > 0 {
		m.Header = nats.Header{}
		for k, v := range hdr {
			m.Header.Set(k, v)
		}
	}
	return errs.WrapMsg(c.nc.PublishMsg(m), "nats publish", "subject", subject)
}

// Subscribe delivers messages on subject to h through mws. A non-empty
// queue joins a queue group.
func (c *Client) Subscribe(subject, queue string, h Handler, mws ...Middleware) error {
	cb := callback(Chain(h, mws...), c.log)
	var (
		sub *nats.Subscription
		err error
	)
	if queue == "" {
		sub, err = c.nc.Subscribe(subject, cb)
	} else {
		sub, err = c.nc.QueueSubscribe(subject, queue, cb)
	}
	if err != nil {
		return errs.WrapMsg(err, "nats subscribe", "subject", subject)
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

func callback(h Handler, log *zap.Logger) nats.MsgHandler {
	return func(m *nats.Msg) {
		if err := h(context.Background(), toMessage(m)); err != nil {
			log.Warn("feed handler failed", zap.String("subject", m.Subject), zap.Error(err))
		}
	}
}

// Close drains subscriptions and the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	for _, s := range c.subs {
		_ = s.Drain()
	}
	c.subs = nil
	c.mu.Unlock()
	return c.nc.Drain()
}
