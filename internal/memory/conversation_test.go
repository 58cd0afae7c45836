package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/memory"
)

func TestCreateConversation_AllocatesNext(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	owner := uint64(1)

	first, err := repo.CreateConversation(ctx, &owner)
	gt.NoError(t, err).Required()
	gt.Value(t, first.ID).Equal(int64(1))
	gt.Value(t, *first.OwnerID).Equal(owner)

	// anonymous records in a higher id push the allocator past them
	_, err = repo.Append(ctx, memory.AppendParams{ConversationID: 6, Role: "user", Content: "anon"})
	gt.NoError(t, err).Required()

	next, err := repo.CreateConversation(ctx, nil)
	gt.NoError(t, err).Required()
	gt.Value(t, next.ID).Equal(int64(7))
	gt.Bool(t, next.OwnerID == nil).True()
}

func TestEnsureConversation_NeverReassigns(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	bob, eve := uint64(2), uint64(3)

	c, err := repo.EnsureConversation(ctx, 5, &bob)
	gt.NoError(t, err).Required()
	gt.Value(t, *c.OwnerID).Equal(bob)

	c, err = repo.EnsureConversation(ctx, 5, &eve)
	gt.NoError(t, err).Required()
	gt.Value(t, *c.OwnerID).Equal(bob)

	anon, err := repo.EnsureConversation(ctx, 6, nil)
	gt.NoError(t, err).Required()
	gt.Bool(t, anon.OwnerID == nil).True()

	anon, err = repo.EnsureConversation(ctx, 6, &eve)
	gt.NoError(t, err).Required()
	gt.Bool(t, anon.OwnerID == nil).True()
}

func TestGetConversation_NotFound(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.GetConversation(context.Background(), 99)
	gt.Bool(t, errors.Is(err, memory.ErrNotFound)).True()
}
