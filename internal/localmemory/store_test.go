package localmemory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/ai"
	"github.com/suPer8Hu/agent-backend/internal/localmemory"
)

func TestStore_KeepLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.json")
	s := localmemory.New(path, 3)

	gt.Array(t, s.Load()).Length(0)

	gt.NoError(t, s.Append(
		ai.Message{Role: ai.RoleUser, Content: "1"},
		ai.Message{Role: ai.RoleAssistant, Content: "2"},
	)).Required()
	gt.NoError(t, s.Append(
		ai.Message{Role: ai.RoleUser, Content: "3"},
		ai.Message{Role: ai.RoleAssistant, Content: "4"},
	)).Required()

	got := s.Load()
	gt.Array(t, got).Length(3).Required()
	gt.Value(t, got[0].Content).Equal("2")
	gt.Value(t, got[2].Content).Equal("4")

	// a fresh store over the same file sees the history
	gt.Array(t, localmemory.New(path, 10).Load()).Length(3)

	gt.NoError(t, s.Clear()).Required()
	gt.Array(t, s.Load()).Length(0)
	gt.NoError(t, s.Clear())
}

func TestStore_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	gt.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644)).Required()

	s := localmemory.New(path, 0)
	gt.Array(t, s.Load()).Length(0)
	gt.NoError(t, s.Append(ai.Message{Role: ai.RoleUser, Content: "hi"})).Required()
	gt.Array(t, s.Load()).Length(1)
}
