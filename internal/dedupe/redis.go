package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisSettings struct {
	Addr     string
	Password string
	Database int
	Timeout  time.Duration
}

type Redis struct {
	cli *redis.Client
}

func NewRedis(cfg RedisSettings) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: missing addr")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	cli := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.Database,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	return &Redis{cli: cli}, nil
}

func (r *Redis) key(sender, clientMsgID string) string {
	return fmt.Sprintf("relay:idem:%s:%s", sender, clientMsgID)
}

func (r *Redis) Get(ctx context.Context, sender, clientMsgID string) (string, bool, error) {
	v, err := r.cli.Get(ctx, r.key(sender, clientMsgID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (r *Redis) Set(ctx context.Context, sender, clientMsgID, msgID string, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		ttlSeconds = 600
	}
	return r.cli.Set(ctx, r.key(sender, clientMsgID), msgID, time.Duration(ttlSeconds)*time.Second).Err()
}

func (r *Redis) Close() error { return r.cli.Close() }
