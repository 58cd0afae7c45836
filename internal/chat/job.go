package chat

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is an ask that runs on the worker. UserID is nil for anonymous callers.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID         *uint64 `gorm:"index;index:uniq_user_idempo,unique,priority:1" json:"user_id"`
	ConversationID int64   `gorm:"index;not null" json:"conversation_id"`

	Prompt   string `gorm:"type:text;not null" json:"-"`
	MaxTurns int    `gorm:"not null;default:0" json:"-"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_user_idempo,unique,priority:2" json:"idempotency_key"`

	Status JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Filled when succeeded
	ResultMessageID *uint64 `gorm:"index" json:"result_message_id"`
	Reply           *string `gorm:"type:text" json:"reply"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "chat_jobs" }
