package chat

import (
	"context"
	"encoding/json"
	"sync"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"go.uber.org/zap"
)

// Handler processes one inbound event name for a connection.
type Handler interface {
	Event() string
	Handle(ctx context.Context, connID string, data json.RawMessage) error
}

type handlerFunc struct {
	event string
	fn    func(ctx context.Context, connID string, data json.RawMessage) error
}

func (h handlerFunc) Event() string { return h.event }
func (h handlerFunc) Handle(ctx context.Context, connID string, data json.RawMessage) error {
	return h.fn(ctx, connID, data)
}

// HandlerFunc adapts fn to a Handler for event.
func HandlerFunc(event string, fn func(ctx context.Context, connID string, data json.RawMessage) error) Handler {
	return handlerFunc{event: event, fn: fn}
}

// Dispatcher routes events by name. Unknown names are ignored unless strict
// reports true, in which case they fail with ErrUnknownEvent.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	strict   func() bool
}

func NewDispatcher(strict func() bool) *Dispatcher {
	if strict == nil {
		strict = func() bool { return false }
	}
	return &Dispatcher{handlers: make(map[string]Handler), strict: strict}
}

// Register adds or replaces the handler for h.Event().
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.Event()] = h
}

func (d *Dispatcher) GetHandler(event string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[event]
}

func (d *Dispatcher) Dispatch(ctx context.Context, connID string, env Envelope) error {
	h := d.GetHandler(env.Event)
	if h == nil {
		if d.strict() {
			return errs.ErrUnknownEvent.WrapMsg("", "event", env.Event)
		}
		logger.Debug("no handler for event, ignored", zap.String("event", env.Event), zap.String("conn", connID))
		return nil
	}
	return h.Handle(ctx, connID, env.Data)
}

// HandlerError ties a handler failure to the client message id it concerns,
// so the error event sent back can reference it.
type HandlerError struct {
	MsgID string
	Err   error
}

func (e *HandlerError) Error() string { return e.Err.Error() }
func (e *HandlerError) Unwrap() error { return e.Err }
