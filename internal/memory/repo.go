package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"
)

const (
	DefaultReadLimit = 100
	defaultOpTimeout = 5 * time.Second
	likeEscape       = "!"
	likeEscapeClause = " ESCAPE '!'"
	maxAllocAttempts = 5
)

// Repo is the memory access layer. It keeps no state between calls; every
// operation is an independent statement bounded by the op timeout.
type Repo struct {
	db        *gorm.DB
	opTimeout time.Duration
}

func NewRepo(db *gorm.DB, opTimeout time.Duration) *Repo {
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	return &Repo{db: db, opTimeout: opTimeout}
}

func (r *Repo) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	cctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	return r.db.WithContext(cctx), cancel
}

type AppendParams struct {
	ConversationID int64
	Role           string
	Content        string
	Type           MemoryType
	Metadata       *string
	UserID         *uint64
}

func (r *Repo) Append(ctx context.Context, p AppendParams) (*Message, error) {
	if p.Type == "" {
		p.Type = TypeChat
	}
	m := &Message{
		ConversationID: p.ConversationID,
		MemoryType:     p.Type,
		Role:           p.Role,
		Content:        p.Content,
		Metadata:       p.Metadata,
		UserID:         p.UserID,
	}

	q, cancel := r.conn(ctx)
	defer cancel()
	if err := q.Create(m).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to append message",
			goerr.V("conversation_id", p.ConversationID),
			goerr.V("memory_type", p.Type))
	}
	return m, nil
}

// AppendBatch inserts messages in order inside one transaction. Either every
// record is persisted or none is.
func (r *Repo) AppendBatch(ctx context.Context, conversationID int64, messages []AgentMessage, typ MemoryType, userID *uint64) ([]Message, error) {
	return r.AppendBatchThen(ctx, conversationID, messages, typ, userID, nil)
}

// AppendBatchThen is AppendBatch with then run in the same transaction after
// the inserts. An error from then rolls the batch back.
func (r *Repo) AppendBatchThen(ctx context.Context, conversationID int64, messages []AgentMessage, typ MemoryType, userID *uint64, then func(tx *gorm.DB, rows []Message) error) ([]Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if typ == "" {
		typ = TypeChat
	}
	rows := make([]Message, 0, len(messages))
	for _, m := range messages {
		rows = append(rows, Message{
			ConversationID: conversationID,
			MemoryType:     typ,
			Role:           m.Role,
			Content:        m.Content,
			UserID:         userID,
		})
	}

	q, cancel := r.conn(ctx)
	defer cancel()
	err := q.Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		if then != nil {
			return then(tx, rows)
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to append batch",
			goerr.V("conversation_id", conversationID),
			goerr.V("size", len(messages)))
	}
	return rows, nil
}

// Read returns the most recent limit records of one type, oldest first.
func (r *Repo) Read(ctx context.Context, conversationID int64, limit int, typ MemoryType) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	if typ == "" {
		typ = TypeChat
	}

	q, cancel := r.conn(ctx)
	defer cancel()
	var msgs []Message
	if err := q.
		Where("conversation_id = ? AND memory_type = ?", conversationID, typ).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to read messages",
			goerr.V("conversation_id", conversationID),
			goerr.V("memory_type", typ))
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *Repo) ReadForAgent(ctx context.Context, conversationID int64, limit int, typ MemoryType) ([]AgentMessage, error) {
	msgs, err := r.Read(ctx, conversationID, limit, typ)
	if err != nil {
		return nil, err
	}
	out := make([]AgentMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, AgentMessage{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// Transcript returns every record of a conversation across memory types,
// oldest first.
func (r *Repo) Transcript(ctx context.Context, conversationID int64) ([]Message, error) {
	q, cancel := r.conn(ctx)
	defer cancel()
	var msgs []Message
	if err := q.
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to read transcript", goerr.V("conversation_id", conversationID))
	}
	return msgs, nil
}

// ClearScope narrows Clear. The zero value clears the whole log.
type ClearScope struct {
	ConversationID *int64
	Type           *MemoryType
}

func (s ClearScope) IsAll() bool { return s.ConversationID == nil && s.Type == nil }

// Clear deletes records in the given scope and returns how many were removed.
// Clearing everything also drops the conversation registry.
func (r *Repo) Clear(ctx context.Context, scope ClearScope) (int64, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	if scope.IsAll() {
		var n int64
		err := q.Transaction(func(tx *gorm.DB) error {
			res := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Message{})
			if res.Error != nil {
				return res.Error
			}
			n = res.RowsAffected
			return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Conversation{}).Error
		})
		if err != nil {
			return 0, goerr.Wrap(err, "failed to clear all memory")
		}
		return n, nil
	}

	if scope.ConversationID != nil {
		q = q.Where("conversation_id = ?", *scope.ConversationID)
	}
	if scope.Type != nil {
		q = q.Where("memory_type = ?", *scope.Type)
	}
	res := q.Delete(&Message{})
	if res.Error != nil {
		return 0, goerr.Wrap(res.Error, "failed to clear memory",
			goerr.V("conversation_id", scope.ConversationID),
			goerr.V("memory_type", scope.Type))
	}
	return res.RowsAffected, nil
}

// Search is a plain substring match on content, newest first.
func (r *Repo) Search(ctx context.Context, conversationID int64, keyword string, typ MemoryType) ([]Message, error) {
	if typ == "" {
		typ = TypeChat
	}
	pattern := "%" + escapeLike(keyword) + "%"

	q, cancel := r.conn(ctx)
	defer cancel()
	var msgs []Message
	if err := q.
		Where("conversation_id = ? AND memory_type = ?", conversationID, typ).
		Where("content LIKE ?"+likeEscapeClause, pattern).
		Order("id DESC").
		Find(&msgs).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to search messages",
			goerr.V("conversation_id", conversationID),
			goerr.V("keyword", keyword))
	}
	return msgs, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(
		likeEscape, likeEscape+likeEscape,
		"%", likeEscape+"%",
		"_", likeEscape+"_",
	).Replace(s)
}

type statsRow struct {
	Total     int64
	Users     int64
	Assistant int64
	FirstID   *uint64
	LastID    *uint64
}

// Statistics aggregates a conversation across all memory types. An unknown
// conversation yields zero counts and nil timestamps.
func (r *Repo) Statistics(ctx context.Context, conversationID int64) (*Stats, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var row statsRow
	if err := q.Model(&Message{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN role = 'user' THEN 1 ELSE 0 END), 0) AS users,
			COALESCE(SUM(CASE WHEN role = 'assistant' THEN 1 ELSE 0 END), 0) AS assistant,
			MIN(id) AS first_id,
			MAX(id) AS last_id`).
		Where("conversation_id = ?", conversationID).
		Scan(&row).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to compute statistics", goerr.V("conversation_id", conversationID))
	}

	stats := &Stats{
		ConversationID:    conversationID,
		TotalMessages:     row.Total,
		UserMessages:      row.Users,
		AssistantMessages: row.Assistant,
	}
	if row.FirstID == nil || row.LastID == nil {
		return stats, nil
	}

	// ids follow insertion order, so the bounding ids carry the bounding times
	var bounds []Message
	if err := q.Select("id", "created_at").
		Where("id IN ?", []uint64{*row.FirstID, *row.LastID}).
		Find(&bounds).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to load statistics bounds", goerr.V("conversation_id", conversationID))
	}
	for _, b := range bounds {
		t := b.CreatedAt
		if b.ID == *row.FirstID {
			stats.FirstMessageTime = &t
		}
		if b.ID == *row.LastID {
			stats.LastMessageTime = &t
		}
	}
	return stats, nil
}

// ListConversationIDs returns every conversation id present in the log or the
// registry, ascending.
func (r *Repo) ListConversationIDs(ctx context.Context) ([]int64, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var fromLog []int64
	if err := q.Model(&Message{}).Distinct().Pluck("conversation_id", &fromLog).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list conversation ids")
	}
	var registered []int64
	if err := q.Model(&Conversation{}).Pluck("id", &registered).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list registered conversations")
	}
	return mergeIDs(fromLog, registered, false), nil
}

// ListConversationIDsByUser returns conversations owned by userID or holding
// any of their records, newest id first.
func (r *Repo) ListConversationIDsByUser(ctx context.Context, userID uint64) ([]int64, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var fromLog []int64
	if err := q.Model(&Message{}).
		Where("user_id = ?", userID).
		Distinct().
		Pluck("conversation_id", &fromLog).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list user conversations", goerr.V("user_id", userID))
	}
	var owned []int64
	if err := q.Model(&Conversation{}).
		Where("owner_id = ?", userID).
		Pluck("id", &owned).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list owned conversations", goerr.V("user_id", userID))
	}
	return mergeIDs(fromLog, owned, true), nil
}

func mergeIDs(a, b []int64, desc bool) []int64 {
	out := append(append(make([]int64, 0, len(a)+len(b)), a...), b...)
	slices.Sort(out)
	out = slices.Compact(out)
	if desc {
		slices.Reverse(out)
	}
	return out
}

func (r *Repo) HasRecordsOwnedBy(ctx context.Context, conversationID int64, userID uint64) (bool, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var n int64
	if err := q.Model(&Message{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Limit(1).
		Count(&n).Error; err != nil {
		return false, goerr.Wrap(err, "failed to check record ownership",
			goerr.V("conversation_id", conversationID),
			goerr.V("user_id", userID))
	}
	return n > 0, nil
}

// HasRecordsOfOtherUsers reports whether the conversation holds records
// written by an authenticated user other than userID. A nil userID matches
// every authenticated writer.
func (r *Repo) HasRecordsOfOtherUsers(ctx context.Context, conversationID int64, userID *uint64) (bool, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	q = q.Model(&Message{}).Where("conversation_id = ? AND user_id IS NOT NULL", conversationID)
	if userID != nil {
		q = q.Where("user_id <> ?", *userID)
	}
	var n int64
	if err := q.Limit(1).Count(&n).Error; err != nil {
		return false, goerr.Wrap(err, "failed to check foreign records",
			goerr.V("conversation_id", conversationID))
	}
	return n > 0, nil
}

// TypeCounts returns the number of records per memory type.
func (r *Repo) TypeCounts(ctx context.Context) ([]TypeCount, error) {
	q, cancel := r.conn(ctx)
	defer cancel()

	var out []TypeCount
	if err := q.Model(&Message{}).
		Select("memory_type, COUNT(*) AS count").
		Group("memory_type").
		Order("memory_type").
		Scan(&out).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to count memory types")
	}
	return out, nil
}
