package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
)

// releaseScript deletes the lock only if this lease still owns it.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// ErrLeaseLost is returned by Release when the lock expired and was taken
// by someone else before the change finished.
var ErrLeaseLost = errors.New("membership lease lost")

// redisLocker is the subset of redis.Cmdable the gate uses.
type redisLocker interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	LockKey   string `json:"lock_key" yaml:"lock_key"`
	EpochKey  string `json:"epoch_key" yaml:"epoch_key"`
	LockTTLMS int    `json:"lock_ttl_ms" yaml:"lock_ttl_ms"`
	PollMS    int    `json:"poll_ms" yaml:"poll_ms"`
}

// RedisGate holds a SET NX lock while a change is in flight. Epochs come
// from INCR on a counter key, so they increase across leases and holders.
type RedisGate struct {
	client   redisLocker
	owner    string
	lockKey  string
	epochKey string
	ttl      time.Duration
	poll     time.Duration
}

func NewRedisGate(client redisLocker, owner string, cfg RedisConfig) *RedisGate {
	g := &RedisGate{
		client:   client,
		owner:    owner,
		lockKey:  cfg.LockKey,
		epochKey: cfg.EpochKey,
		ttl:      time.Duration(cfg.LockTTLMS) * time.Millisecond,
		poll:     time.Duration(cfg.PollMS) * time.Millisecond,
	}
	if g.lockKey == "" {
		g.lockKey = "cache:membership:lock"
	}
	if g.epochKey == "" {
		g.epochKey = "cache:membership:epoch"
	}
	if g.ttl <= 0 {
		g.ttl = 30 * time.Second
	}
	if g.poll <= 0 {
		g.poll = 100 * time.Millisecond
	}
	return g
}

var _ port.MembershipGate = (*RedisGate)(nil)

func (g *RedisGate) Acquire(ctx context.Context) (port.MembershipLease, error) {
	token := fmt.Sprintf("%s/%d", g.owner, time.Now().UnixNano())
	for {
		ok, err := g.client.SetNX(ctx, g.lockKey, token, g.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire membership lock: %w", err)
		}
		if ok {
			break
		}
		if !resilience.SleepContext(ctx, g.poll) {
			return nil, ctx.Err()
		}
	}

	epoch, err := g.client.Incr(ctx, g.epochKey).Result()
	if err != nil {
		_ = g.release(context.WithoutCancel(ctx), token)
		return nil, fmt.Errorf("issue membership epoch: %w", err)
	}
	return &redisLease{gate: g, token: token, epoch: uint64(epoch)}, nil
}

func (g *RedisGate) release(ctx context.Context, token string) error {
	n, err := g.client.Eval(ctx, releaseScript, []string{g.lockKey}, token).Int64()
	if err != nil {
		return fmt.Errorf("release membership lock: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

type redisLease struct {
	gate  *RedisGate
	token string
	epoch uint64
}

func (l *redisLease) Epoch() uint64 {
	return l.epoch
}

func (l *redisLease) Release(ctx context.Context) error {
	return l.gate.release(ctx, l.token)
}
