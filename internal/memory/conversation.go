package memory

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateConversation allocates the next unused conversation id for ownerID.
// Allocation is max+1 over the registry and the log; a concurrent allocation
// of the same id fails on the primary key and is retried.
func (r *Repo) CreateConversation(ctx context.Context, ownerID *uint64) (*Conversation, error) {
	var lastErr error
	for range maxAllocAttempts {
		next, err := r.nextConversationID(ctx)
		if err != nil {
			return nil, err
		}
		c := &Conversation{ID: next, OwnerID: ownerID}

		q, cancel := r.conn(ctx)
		err = q.Create(c).Error
		cancel()
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, goerr.Wrap(lastErr, "failed to allocate conversation id", goerr.V("attempts", maxAllocAttempts))
}

func (r *Repo) nextConversationID(ctx context.Context) (int64, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var fromLog, fromRegistry int64
	if err := q.Model(&Message{}).Select("COALESCE(MAX(conversation_id), 0)").Row().Scan(&fromLog); err != nil {
		return 0, goerr.Wrap(err, "failed to read max conversation id")
	}
	if err := q.Model(&Conversation{}).Select("COALESCE(MAX(id), 0)").Row().Scan(&fromRegistry); err != nil {
		return 0, goerr.Wrap(err, "failed to read max registered conversation id")
	}
	maxID := max(fromLog, fromRegistry)
	return maxID + 1, nil
}

func (r *Repo) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var c Conversation
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("conversation_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("conversation_id", id))
	}
	return &c, nil
}

// EnsureConversation registers id with ownerID when it is not registered yet
// and returns the registered row. An existing owner is never replaced.
func (r *Repo) EnsureConversation(ctx context.Context, id int64, ownerID *uint64) (*Conversation, error) {
	q, cancel := r.conn(ctx)
	c := &Conversation{ID: id, OwnerID: ownerID}
	err := q.Clauses(clause.OnConflict{DoNothing: true}).Create(c).Error
	cancel()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to register conversation", goerr.V("conversation_id", id))
	}
	return r.GetConversation(ctx, id)
}
