package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"user_id"`
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Role         string     `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Email        *string    `gorm:"type:varchar(255)" json:"email"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
	IsActive     bool       `gorm:"not null;default:true" json:"is_active"`
}

func (User) TableName() string { return "users" }

// UserSession is an issued bearer token. Expiry is absolute from issuance.
type UserSession struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string     `gorm:"type:varchar(26);uniqueIndex;not null" json:"session_id"`
	UserID    uint64     `gorm:"index;not null" json:"user_id"`
	Token     string     `gorm:"type:varchar(512);uniqueIndex;not null" json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

func (UserSession) TableName() string { return "user_sessions" }

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
