package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/memory"
)

func TestUpsertSystem_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, err := repo.UpsertSystem(ctx, "persona", "v1", nil)
	gt.NoError(t, err).Required()
	_, err = repo.UpsertSystem(ctx, "persona", "v2", ptr("meta"))
	gt.NoError(t, err).Required()

	e, err := repo.GetSystem(ctx, "persona")
	gt.NoError(t, err).Required()
	gt.Value(t, e.Content).Equal("v2")
	gt.Value(t, *e.Metadata).Equal("meta")

	all, err := repo.ListSystem(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(1)
}

func TestUpsertSystem_EmptyKey(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.UpsertSystem(context.Background(), "  ", "x", nil)
	gt.Bool(t, errors.Is(err, memory.ErrEmptyKey)).True()
}

func TestUpdateSystem(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	_, err := repo.UpdateSystem(ctx, "missing", ptr("x"), nil)
	gt.Bool(t, errors.Is(err, memory.ErrNotFound)).True()

	_, err = repo.UpsertSystem(ctx, "k", "old", ptr("m1"))
	gt.NoError(t, err).Required()

	e, err := repo.UpdateSystem(ctx, "k", ptr("new"), nil)
	gt.NoError(t, err).Required()
	gt.Value(t, e.Content).Equal("new")
	gt.Value(t, *e.Metadata).Equal("m1")
}

func TestDeleteSystem(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	for _, k := range []string{"a", "b", "c"} {
		_, err := repo.UpsertSystem(ctx, k, k, nil)
		gt.NoError(t, err).Required()
	}

	n, err := repo.DeleteSystem(ctx, "a")
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(int64(1))

	_, err = repo.DeleteSystem(ctx, "a")
	gt.Bool(t, errors.Is(err, memory.ErrNotFound)).True()

	_, err = repo.GetSystem(ctx, "a")
	gt.Bool(t, errors.Is(err, memory.ErrNotFound)).True()

	n, err = repo.DeleteSystem(ctx, "")
	gt.NoError(t, err).Required()
	gt.Value(t, n).Equal(int64(2))
}

func TestListSystem_RecentlyUpdatedFirst(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	for _, k := range []string{"first", "second"} {
		_, err := repo.UpsertSystem(ctx, k, k, nil)
		gt.NoError(t, err).Required()
	}
	_, err := repo.UpdateSystem(ctx, "first", ptr("touched"), nil)
	gt.NoError(t, err).Required()

	all, err := repo.ListSystem(ctx)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(2).Required()
	gt.Value(t, all[0].Key).Equal("first")
}

func TestSystemSummary(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	empty, err := repo.SystemSummary(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, empty.Count).Equal(int64(0))
	gt.Bool(t, empty.FirstCreated == nil).True()

	_, err = repo.UpsertSystem(ctx, "a", "1", nil)
	gt.NoError(t, err).Required()
	_, err = repo.UpsertSystem(ctx, "b", "2", nil)
	gt.NoError(t, err).Required()

	sum, err := repo.SystemSummary(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, sum.Count).Equal(int64(2))
	gt.Value(t, sum.FirstCreated).NotNil()
	gt.Value(t, sum.LastUpdated).NotNil()
}
