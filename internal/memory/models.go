package memory

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

type MemoryType string

const (
	TypeChat      MemoryType = "chat"
	TypeSystem    MemoryType = "system"
	TypeContext   MemoryType = "context"
	TypeKnowledge MemoryType = "knowledge"
)

// AllTypes lists every memory type in display order.
var AllTypes = []MemoryType{TypeChat, TypeSystem, TypeContext, TypeKnowledge}

// ParseMemoryType accepts any casing; an empty string means chat.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeChat:
		return TypeChat, nil
	case TypeSystem:
		return TypeSystem, nil
	case TypeContext:
		return TypeContext, nil
	case TypeKnowledge:
		return TypeKnowledge, nil
	}
	return "", goerr.Wrap(ErrInvalidType, "unknown memory type", goerr.V("memory_type", s))
}

// Message is one record of the unified memory log.
type Message struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64      `gorm:"not null;index:idx_unified_conv_type,priority:1" json:"conversation_id"`
	MemoryType     MemoryType `gorm:"type:varchar(16);not null;index:idx_unified_conv_type,priority:2;index:idx_unified_type" json:"memory_type"`
	Role           string     `gorm:"type:varchar(32);not null" json:"role"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Metadata       *string    `gorm:"type:text" json:"metadata"`
	UserID         *uint64    `gorm:"index" json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Message) TableName() string { return "unified_memory" }

// AgentMessage is the minimal turn format handed to the agent.
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SystemEntry is a keyed fact independent of any conversation.
type SystemEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Key       string    `gorm:"column:memory_key;type:varchar(191);uniqueIndex;not null" json:"key"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Metadata  *string   `gorm:"type:text" json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemEntry) TableName() string { return "system_memory" }

// Conversation registers a conversation id and its owner. OwnerID is nil for
// conversations started anonymously.
type Conversation struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"conversation_id"`
	OwnerID   *uint64   `gorm:"index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Conversation) TableName() string { return "conversations" }

type Stats struct {
	ConversationID    int64      `json:"conversation_id"`
	TotalMessages     int64      `json:"total_messages"`
	UserMessages      int64      `json:"user_messages"`
	AssistantMessages int64      `json:"assistant_messages"`
	FirstMessageTime  *time.Time `json:"first_message_time"`
	LastMessageTime   *time.Time `json:"last_message_time"`
}

type SystemSummary struct {
	Count        int64      `json:"count"`
	FirstCreated *time.Time `json:"first_created"`
	LastUpdated  *time.Time `json:"last_updated"`
}

type TypeCount struct {
	MemoryType MemoryType `json:"memory_type"`
	Count      int64      `json:"count"`
}

// Models returns every table owned by this package, for migration.
func Models() []any {
	return []any{&Message{}, &SystemEntry{}, &Conversation{}}
}
