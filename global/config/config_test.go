package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ensemble-relay/tools/errs"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 || cfg.Server.Path != "/ws" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Transport.PingPeriod != 54*time.Second {
		t.Fatalf("ping period = %v, want 9/10 of pong wait", cfg.Transport.PingPeriod)
	}
	if cfg.Transport.OverflowPolicy != OverflowDropOldest {
		t.Fatalf("overflow policy = %q", cfg.Transport.OverflowPolicy)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	p := writeFile(t, `
server:
  port: 8080
  path: chat
transport:
  send_queue_size: "16"
  overflow_policy: DISCONNECT
  write_wait: 2s
nats:
  servers: nats://a:4222,nats://b:4222
`)
	t.Setenv("RELAY_PORT", "9090")
	t.Setenv("RELAY_STRICT_EVENTS", "true")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("env should override file: port=%d", cfg.Server.Port)
	}
	if cfg.Server.Path != "/chat" {
		t.Fatalf("path = %q", cfg.Server.Path)
	}
	if cfg.Transport.SendQueueSize != 16 || cfg.Transport.WriteWait != 2*time.Second {
		t.Fatalf("transport = %+v", cfg.Transport)
	}
	if cfg.Transport.OverflowPolicy != OverflowDisconnect {
		t.Fatalf("overflow policy = %q", cfg.Transport.OverflowPolicy)
	}
	if !cfg.Relay.StrictEvents {
		t.Fatalf("strict events not picked from env")
	}
	if len(cfg.Nats.Servers) != 2 || cfg.Nats.Servers[1] != "nats://b:4222" {
		t.Fatalf("nats servers = %v", cfg.Nats.Servers)
	}
	// untouched keys keep defaults
	if cfg.Relay.RecentIDWindow != 1024 {
		t.Fatalf("recent id window = %d", cfg.Relay.RecentIDWindow)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"policy": "transport:\n  overflow_policy: block\n",
		"port":   "server:\n  port: 70000\n",
		"queue":  "transport:\n  send_queue_size: 0\n",
		"ping":   "transport:\n  pong_wait: 10s\n  ping_period: 20s\n",
		"grpc":   "server:\n  port: 4000\n  grpc_port: 4000\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, doc))
			if !errors.Is(err, errs.ErrArgs) {
				t.Fatalf("expected ErrArgs, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRuntimeApplyYAML(t *testing.T) {
	cfg := Default()
	rt := NewRuntime(&cfg)
	if rt.StrictEvents() {
		t.Fatalf("strict events should start off")
	}

	var got []RuntimeSettings
	rt.OnChange(func(s RuntimeSettings) { got = append(got, s) })

	if err := rt.ApplyYAML("relay:\n  strict_events: true\n"); err != nil {
		t.Fatalf("ApplyYAML: %v", err)
	}
	if !rt.StrictEvents() || len(got) != 1 || got[0].LogLevel != "info" {
		t.Fatalf("unexpected state strict=%v got=%+v", rt.StrictEvents(), got)
	}

	if err := rt.ApplyYAML("log:\n  level: loud\n"); err == nil {
		t.Fatalf("expected bad level to be rejected")
	}
	if rt.Settings().LogLevel != "info" || len(got) != 1 {
		t.Fatalf("rejected document must not change settings: %+v", rt.Settings())
	}
}

type fakeNacos struct {
	mu       sync.Mutex
	content  string
	onChange func(namespace, group, dataId, data string)
	canceled chan struct{}
}

func (f *fakeNacos) GetConfig(vo.ConfigParam) (string, error) { return f.content, nil }

func (f *fakeNacos) ListenConfig(p vo.ConfigParam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = p.OnChange
	return nil
}

func (f *fakeNacos) CancelListenConfig(vo.ConfigParam) error {
	close(f.canceled)
	return nil
}

func TestWatchRuntime(t *testing.T) {
	cfg := Default()
	rt := NewRuntime(&cfg)
	fake := &fakeNacos{content: "relay:\n  strict_events: true\n", canceled: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	if err := WatchRuntime(ctx, fake, cfg.Nacos, rt); err != nil {
		t.Fatalf("WatchRuntime: %v", err)
	}
	if !rt.StrictEvents() {
		t.Fatalf("initial document not applied")
	}

	fake.mu.Lock()
	cb := fake.onChange
	fake.mu.Unlock()
	cb("", cfg.Nacos.Group, cfg.Nacos.DataID, "relay:\n  strict_events: false\n")
	if rt.StrictEvents() {
		t.Fatalf("change not applied")
	}

	cancel()
	select {
	case <-fake.canceled:
	case <-time.After(time.Second):
		t.Fatalf("listener not canceled after ctx done")
	}
}
