package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"ensemble-relay/logger"
	"ensemble-relay/service/chat"
	"ensemble-relay/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key layout, with <p> the configured prefix:
//
//	<p>:conn:<connID>          hash  name, avatar, node, connected_at, last_seen, sent
//	<p>:node:<node>:online     zset  member = conn key, score = expiry (unix ms)
//	<p>:node:<node>:stats      hash  relayed, delivered, failed

// KEYS[1] = conn key, KEYS[2] = node index
// ARGV[1] = ttl ms, ARGV[2] = expireAt ms, ARGV[3..] = field/value pairs
const luaOnline = `
local kConn = KEYS[1]
local idx   = KEYS[2]
local ttl   = tonumber(ARGV[1])
local expAt = tonumber(ARGV[2])
redis.call("DEL", kConn)
for i = 3, #ARGV, 2 do
  redis.call("HSET", kConn, ARGV[i], ARGV[i + 1])
end
redis.call("PEXPIRE", kConn, ttl)
redis.call("ZADD", idx, expAt, kConn)
redis.call("PEXPIRE", idx, ttl * 2)
return 1
`

// KEYS[1] = conn key, KEYS[2] = node index
// returns 1 when the session key existed
const luaOffline = `
local existed = redis.call("DEL", KEYS[1])
redis.call("ZREM", KEYS[2], KEYS[1])
return existed
`

// KEYS[1] = conn key (sender), KEYS[2] = node stats
// ARGV[1] = now ms, ARGV[2] = delivered, ARGV[3] = failed
const luaRelayed = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "last_seen", ARGV[1])
  redis.call("HINCRBY", KEYS[1], "sent", 1)
end
redis.call("HINCRBY", KEYS[2], "relayed", 1)
redis.call("HINCRBY", KEYS[2], "delivered", ARGV[2])
redis.call("HINCRBY", KEYS[2], "failed", ARGV[3])
return 1
`

var (
	scriptOnline  = redis.NewScript(luaOnline)
	scriptOffline = redis.NewScript(luaOffline)
	scriptRelayed = redis.NewScript(luaRelayed)
)

type PresenceConfig struct {
	NodeID    string        // this relay process
	KeyPrefix string        // default "relay"
	TTL       time.Duration // session key lifetime between refreshes
	Clock     func() time.Time
}

// PresenceEntry is one online connection as stored in Redis.
type PresenceEntry struct {
	ConnID      string    `json:"connectionId"`
	Username    string    `json:"username"`
	Avatar      string    `json:"profilePhoto,omitempty"`
	Node        string    `json:"node"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastSeen    time.Time `json:"lastSeen"`
	Sent        int64     `json:"sent"`
}

// Presence mirrors the connection registry into Redis so other processes
// can see who is online. It is a chat.Observer; Redis failures never affect
// the relay.
type Presence struct {
	rdb  redis.UniversalClient
	conf PresenceConfig
	log  *zap.Logger
}

func NewPresence(rdb redis.UniversalClient, conf PresenceConfig) *Presence {
	if conf.KeyPrefix == "" {
		conf.KeyPrefix = "relay"
	}
	if conf.NodeID == "" {
		conf.NodeID = "0"
	}
	if conf.TTL <= 0 {
		conf.TTL = 2 * time.Minute
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &Presence{rdb: rdb, conf: conf, log: logger.Named("presence")}
}

func (p *Presence) connKey(id string) string { return p.conf.KeyPrefix + ":conn:" + id }

func (p *Presence) indexKey() string {
	return p.conf.KeyPrefix + ":node:" + p.conf.NodeID + ":online"
}

func (p *Presence) statsKey() string {
	return p.conf.KeyPrefix + ":node:" + p.conf.NodeID + ":stats"
}

func (p *Presence) expireAt() int64 { return p.conf.Clock().Add(p.conf.TTL).UnixMilli() }

func (p *Presence) OnConnect(ctx context.Context, c chat.Connection) error {
	now := p.conf.Clock().UnixMilli()
	args := []any{
		p.conf.TTL.Milliseconds(), p.expireAt(),
		"name", c.DisplayName,
		"avatar", c.AvatarRef,
		"node", p.conf.NodeID,
		"connected_at", c.ConnectedAt.UnixMilli(),
		"last_seen", now,
		"sent", 0,
	}
	if err := scriptOnline.Run(ctx, p.rdb, []string{p.connKey(c.ID), p.indexKey()}, args...).Err(); err != nil {
		return errs.WrapMsg(err, "presence online", "conn", c.ID)
	}
	return nil
}

func (p *Presence) OnDisconnect(ctx context.Context, c chat.Connection) error {
	n, err := scriptOffline.Run(ctx, p.rdb, []string{p.connKey(c.ID), p.indexKey()}).Int()
	if err != nil {
		return errs.WrapMsg(err, "presence offline", "conn", c.ID)
	}
	if n == 0 {
		p.log.Debug("presence key already gone", zap.String("conn", c.ID))
	}
	return nil
}

func (p *Presence) OnRelay(ctx context.Context, msg chat.ChatMessage, res chat.RelayResult) error {
	keys := []string{p.connKey(msg.SenderID), p.statsKey()}
	err := scriptRelayed.Run(ctx, p.rdb, keys, p.conf.Clock().UnixMilli(), res.Delivered, res.Failed).Err()
	return errs.WrapMsg(err, "presence relay", "msg", msg.ID)
}

// Refresh extends the lifetime of every listed connection. Entries whose
// key already expired are not resurrected.
func (p *Presence) Refresh(ctx context.Context, conns []chat.Connection) error {
	if len(conns) == 0 {
		return nil
	}
	exp := p.expireAt()
	_, err := p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, c := range conns {
			k := p.connKey(c.ID)
			pipe.PExpire(ctx, k, p.conf.TTL)
			pipe.ZAddXX(ctx, p.indexKey(), redis.Z{Score: float64(exp), Member: k})
		}
		pipe.PExpire(ctx, p.indexKey(), 2*p.conf.TTL)
		return nil
	})
	return errs.WrapMsg(err, "presence refresh", "count", len(conns))
}

// Run refreshes list() every interval until ctx ends.
func (p *Presence) Run(ctx context.Context, interval time.Duration, list func() []chat.Connection) {
	if interval <= 0 {
		interval = p.conf.TTL / 3
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.Refresh(ctx, list()); err != nil {
				p.log.Warn("refresh failed", zap.Error(err))
			}
		}
	}
}

// Online sweeps expired index entries and returns this node's live sessions.
func (p *Presence) Online(ctx context.Context) ([]PresenceEntry, error) {
	idx := p.indexKey()
	now := strconv.FormatInt(p.conf.Clock().UnixMilli(), 10)
	if err := p.rdb.ZRemRangeByScore(ctx, idx, "-inf", "("+now).Err(); err != nil {
		return nil, errs.WrapMsg(err, "presence sweep")
	}
	members, err := p.rdb.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence index")
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range members {
			cmds[i] = pipe.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, errs.WrapMsg(err, "presence read")
	}

	prefix := p.conf.KeyPrefix + ":conn:"
	out := make([]PresenceEntry, 0, len(members))
	for i, k := range members {
		h := cmds[i].Val()
		if len(h) == 0 {
			continue
		}
		out = append(out, PresenceEntry{
			ConnID:      strings.TrimPrefix(k, prefix),
			Username:    h["name"],
			Avatar:      h["avatar"],
			Node:        h["node"],
			ConnectedAt: millis(h["connected_at"]),
			LastSeen:    millis(h["last_seen"]),
			Sent:        atoi(h["sent"]),
		})
	}
	return out, nil
}

// Stats returns this node's relay counters.
func (p *Presence) Stats(ctx context.Context) (map[string]int64, error) {
	h, err := p.rdb.HGetAll(ctx, p.statsKey()).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence stats")
	}
	out := make(map[string]int64, len(h))
	for k, v := range h {
		out[k] = atoi(v)
	}
	return out, nil
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func millis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	return time.UnixMilli(atoi(s))
}
