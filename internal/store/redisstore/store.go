package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agent:"

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return goerr.Wrap(err, "redis ping failed", goerr.V("addr", s.rdb.Options().Addr))
	}
	return nil
}

func (s *Store) Close() error { return s.rdb.Close() }

// Get reports found=false when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, goerr.Wrap(err, "redis get failed", goerr.V("key", key))
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return goerr.Wrap(err, "redis set failed", goerr.V("key", key))
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return goerr.Wrap(err, "redis del failed", goerr.V("key", key))
	}
	return nil
}
