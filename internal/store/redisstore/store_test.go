package redisstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/store/redisstore"
)

func TestStore_GetSet(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	s := redisstore.New(addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	defer s.Close()
	gt.NoError(t, s.Ping(ctx)).Required()

	key := "test:selected_model"
	gt.NoError(t, s.Delete(ctx, key)).Required()

	_, found, err := s.Get(ctx, key)
	gt.NoError(t, err).Required()
	gt.Bool(t, found).False()

	gt.NoError(t, s.Set(ctx, key, "qwen2.5:7b")).Required()
	v, found, err := s.Get(ctx, key)
	gt.NoError(t, err).Required()
	gt.Bool(t, found).True()
	gt.Value(t, v).Equal("qwen2.5:7b")

	gt.NoError(t, s.Delete(ctx, key))
}
