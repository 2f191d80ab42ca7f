package chat

import (
	"context"
	"sync"
	"time"

	"ensemble-relay/logger"
	"ensemble-relay/tools/safe"

	"go.uber.org/zap"
)

// Observer receives connection lifecycle and relay notifications, e.g. to
// mirror presence into Redis or publish an event feed. Errors are logged by
// Observers and never reach the relay path.
type Observer interface {
	OnConnect(ctx context.Context, c Connection) error
	OnDisconnect(ctx context.Context, c Connection) error
	OnRelay(ctx context.Context, msg ChatMessage, res RelayResult) error
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evRelay
)

type observerEvent struct {
	kind eventKind
	conn Connection
	msg  ChatMessage
	res  RelayResult
}

// Observers fans notifications out to a list of Observer on one background
// worker. Notify never blocks: when the queue is full the event is dropped.
// A single worker keeps every observer seeing events in notify order.
type Observers struct {
	list    []Observer
	events  chan observerEvent
	timeout time.Duration
	log     *zap.Logger

	mu      sync.RWMutex // guards closed against notify
	closed  bool
	done    chan struct{}
	metrics *Metrics
}

// NewObservers starts the worker. queue <= 0 uses 1024.
func NewObservers(queue int, metrics *Metrics, list ...Observer) *Observers {
	if queue <= 0 {
		queue = 1024
	}
	o := &Observers{
		list:    list,
		events:  make(chan observerEvent, queue),
		timeout: 3 * time.Second,
		log:     logger.Named("observers"),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	safe.Go("observers", o.loop)
	return o
}

func (o *Observers) Len() int {
	if o == nil {
		return 0
	}
	return len(o.list)
}

func (o *Observers) notify(ev observerEvent) {
	if o == nil || len(o.list) == 0 {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}
	select {
	case o.events <- ev:
	default:
		o.metrics.observerDropped()
		o.log.Warn("observer queue full, event dropped", zap.Int("kind", int(ev.kind)))
	}
}

func (o *Observers) Connected(c Connection)    { o.notify(observerEvent{kind: evConnect, conn: c}) }
func (o *Observers) Disconnected(c Connection) { o.notify(observerEvent{kind: evDisconnect, conn: c}) }
func (o *Observers) Relayed(m ChatMessage, r RelayResult) {
	o.notify(observerEvent{kind: evRelay, msg: m, res: r})
}

func (o *Observers) loop() {
	defer close(o.done)
	for ev := range o.events {
		for _, ob := range o.list {
			o.deliver(ob, ev)
		}
	}
}

func (o *Observers) deliver(ob Observer, ev observerEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	var err error
	safe.Run("observer", func() {
		switch ev.kind {
		case evConnect:
			err = ob.OnConnect(ctx, ev.conn)
		case evDisconnect:
			err = ob.OnDisconnect(ctx, ev.conn)
		case evRelay:
			err = ob.OnRelay(ctx, ev.msg, ev.res)
		}
	})
	if err != nil {
		o.log.Warn("observer failed", zap.Int("kind", int(ev.kind)), zap.Error(err))
	}
}

// Close stops accepting events and waits for the queue to drain or ctx to
// end. Later notifications are ignored.
func (o *Observers) Close(ctx context.Context) error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	o.mu.Unlock()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
