package global

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ensemble-relay/global/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

func TestConfigRedisDisabled(t *testing.T) {
	cfg := config.Default()
	rdb, p, err := ConfigRedis(context.Background(), &cfg)
	if err != nil || rdb != nil || p != nil {
		t.Fatalf("got %v %v %v", rdb, p, err)
	}
}

func TestConfigRedisEnabled(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	rdb, p, err := ConfigRedis(context.Background(), &cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer rdb.Close()
	if p == nil {
		t.Fatal("presence not built")
	}
	online, err := p.Online(context.Background())
	if err != nil || len(online) != 0 {
		t.Fatalf("online = %v, %v", online, err)
	}
}

func TestConfigNatsDisabled(t *testing.T) {
	cfg := config.Default()
	cli, feed, err := ConfigNats(&cfg)
	if err != nil || cli != nil || feed != nil {
		t.Fatalf("got %v %v %v", cli, feed, err)
	}
}

func TestConfigMiddlewareCORS(t *testing.T) {
	r, m := ConfigMiddleware()
	if m.Len() != 1 {
		t.Fatalf("middlewares = %d", m.Len())
	}
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://a.example")
	r.ServeHTTP(w, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "https://a.example" {
		t.Fatalf("headers = %v", w.Header())
	}
}

func TestNodeName(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.NodeID = 42
	if NodeName(&cfg) != "42" {
		t.Fatal(NodeName(&cfg))
	}
}
