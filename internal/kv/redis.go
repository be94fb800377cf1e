package kv

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// hitScript trims a sorted set to the window, adds the new hit and returns
// the remaining cardinality. ARGV: now (ms), window (ms), member.
var hitScript = rueidis.NewLuaScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', tonumber(ARGV[1]) - tonumber(ARGV[2]))
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return redis.call('ZCARD', KEYS[1])
`)

type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type Redis struct {
	client rueidis.Client
	clock  Clock
	logger *zap.Logger
}

func DialRedis(opts RedisOptions, logger *zap.Logger) (*Redis, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{opts.Addr},
		Username:     opts.Username,
		Password:     opts.Password,
		SelectDB:     opts.DB,
		ClientName:   "guildwarden",
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", opts.DB, err)
	}
	return NewRedis(client, logger), nil
}

func NewRedis(client rueidis.Client, logger *zap.Logger) *Redis {
	return &Redis{client: client, clock: realClock{}, logger: logger.Named("kv")}
}

func (r *Redis) WithClock(clock Clock) {
	r.clock = clock
}

func (r *Redis) Close() {
	r.client.Close()
}

func (r *Redis) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	now := r.clock.Now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()
	count, err := hitScript.Exec(ctx, r.client, []string{key}, []string{
		strconv.FormatInt(now, 10),
		strconv.FormatInt(window.Milliseconds(), 10),
		member,
	}).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("sliding window hit %s: %w", key, err)
	}
	return int(count), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Do(ctx, r.client.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		return r.client.Do(ctx, r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Px(ttl).Build()).Error()
	}
	return r.client.Do(ctx, r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Build()).Error()
}

func (r *Redis) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var err error
	if ttl > 0 {
		err = r.client.Do(ctx, r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Nx().Px(ttl).Build()).Error()
	} else {
		err = r.client.Do(ctx, r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Nx().Build()).Error()
	}
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Do(ctx, r.client.B().Del().Key(key).Build()).Error()
}

func (r *Redis) Take(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Do(ctx, r.client.B().Getdel().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}
