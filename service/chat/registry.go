package chat

import (
	"sync"
	"time"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"go.uber.org/zap"
)

// Registry is the single source of truth for who is connected.
// Register, Unregister and the ListOthers snapshot are serialized by mu.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Connection
	clock func() time.Time
}

func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

// NewRegistryWithClock is NewRegistry with an injectable clock (tests).
func NewRegistryWithClock(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		byID:  make(map[string]*Connection),
		clock: clock,
	}
}

// Register adds a connection. A repeated id means the transport handed out
// the same id twice; it is logged and rejected with ErrDuplicateConnection.
func (r *Registry) Register(id, displayName, avatarRef string) (Connection, error) {
	if id == "" {
		return Connection{}, errs.ErrInvalidConnection.WrapMsg("empty connection id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		logger.Error("duplicate connection id", zap.String("conn", id))
		return Connection{}, errs.ErrDuplicateConnection.WrapMsg("", "conn", id)
	}
	c := &Connection{
		ID:          id,
		DisplayName: displayName,
		AvatarRef:   avatarRef,
		ConnectedAt: r.clock(),
	}
	r.byID[id] = c
	return *c, nil
}

// Unregister removes id. It is a no-op when id is absent because disconnect
// notifications can race or fire twice; the result says whether anything was removed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

func (r *Registry) Get(id string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// ListOthers returns a snapshot of every connection except excludingID.
// Order is unspecified.
func (r *Registry) ListOthers(excludingID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.byID))
	for id, c := range r.byID {
		if id == excludingID {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// UpdateProfile changes the display fields of a live connection.
func (r *Registry) UpdateProfile(id string, u ProfileUpdate) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Connection{}, errs.ErrUnknownSender.WrapMsg("", "conn", id)
	}
	if u.DisplayName != nil {
		c.DisplayName = *u.DisplayName
	}
	if u.AvatarRef != nil {
		c.AvatarRef = *u.AvatarRef
	}
	return *c, nil
}

// List is ListOthers without exclusion.
func (r *Registry) List() []Connection {
	return r.ListOthers("")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
