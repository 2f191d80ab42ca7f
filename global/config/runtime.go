package config

import (
	"sync"
	"sync/atomic"

	"ensemble-relay/logger"
	"ensemble-relay/tools/errs"

	"go.uber.org/zap"
)

// RuntimeSettings are the knobs that may change while the process runs.
type RuntimeSettings struct {
	StrictEvents bool   `mapstructure:"strict_events"`
	LogLevel     string `mapstructure:"log_level"`
}

// Runtime holds the live RuntimeSettings and notifies subscribers on change.
type Runtime struct {
	strict atomic.Bool

	mu        sync.Mutex
	current   RuntimeSettings
	listeners []func(RuntimeSettings)
}

func NewRuntime(cfg *AppConfig) *Runtime {
	r := &Runtime{current: RuntimeSettings{
		StrictEvents: cfg.Relay.StrictEvents,
		LogLevel:     cfg.Log.Level,
	}}
	r.strict.Store(cfg.Relay.StrictEvents)
	return r
}

// StrictEvents is safe to call from any goroutine.
func (r *Runtime) StrictEvents() bool { return r.strict.Load() }

func (r *Runtime) Settings() RuntimeSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// OnChange registers fn to run after every successful Apply.
func (r *Runtime) OnChange(fn func(RuntimeSettings)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// ApplyYAML overlays a YAML document of the form
//
//	relay:
//	  strict_events: true
//	log:
//	  level: debug
//
// on the current settings. Absent keys keep their value.
func (r *Runtime) ApplyYAML(content string) error {
	doc := struct {
		Relay struct {
			StrictEvents *bool `mapstructure:"strict_events"`
		} `mapstructure:"relay"`
		Log struct {
			Level *string `mapstructure:"level"`
		} `mapstructure:"log"`
	}{}
	if err := decodeYAML([]byte(content), &doc); err != nil {
		return errs.ErrBadPayload.WrapMsg("runtime config", "err", err)
	}

	r.mu.Lock()
	next := r.current
	if doc.Relay.StrictEvents != nil {
		next.StrictEvents = *doc.Relay.StrictEvents
	}
	if doc.Log.Level != nil {
		next.LogLevel = *doc.Log.Level
	}
	if err := logger.SetLevel(next.LogLevel); err != nil {
		r.mu.Unlock()
		return errs.ErrArgs.WrapMsg("runtime config", "log_level", next.LogLevel)
	}
	r.current = next
	r.strict.Store(next.StrictEvents)
	listeners := append([]func(RuntimeSettings){}, r.listeners...)
	r.mu.Unlock()

	logger.Info("runtime config applied",
		zap.Bool("strict_events", next.StrictEvents),
		zap.String("log_level", next.LogLevel))
	for _, fn := range listeners {
		fn(next)
	}
	return nil
}
