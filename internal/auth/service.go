package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gorm.io/gorm"

	"github.com/suPer8Hu/agent-backend/internal/common"
	"github.com/suPer8Hu/agent-backend/internal/models"
)

const (
	DefaultSessionTTL = 24 * time.Hour
	minPasswordLen    = 6
	maxUsernameLen    = 64
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   uint64  `json:"user_id"`
	Username string  `json:"username"`
	Role     string  `json:"role"`
	Email    *string `json:"email"`
}

func (p *Principal) IsAdmin() bool { return p != nil && p.Role == models.RoleAdmin }

type Settings struct {
	JWTSecret  string
	SessionTTL time.Duration
	BcryptCost int
	OpTimeout  time.Duration
}

type Service struct {
	db     *gorm.DB
	cfg    Settings
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, cfg Settings, logger *slog.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &Service{db: db, cfg: cfg, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	return s.db.WithContext(cctx), cancel
}

type CreateAccountParams struct {
	Username string
	Password string
	Role     string
	Email    *string
}

func (s *Service) CreateAccount(ctx context.Context, p CreateAccountParams) (*models.User, error) {
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" || len(p.Username) > maxUsernameLen {
		return nil, goerr.Wrap(ErrInvalidInput, "username must be 1-64 characters")
	}
	if len(p.Password) < minPasswordLen {
		return nil, goerr.Wrap(ErrInvalidInput, "password too short", goerr.V("min", minPasswordLen))
	}
	if p.Role == "" {
		p.Role = models.RoleUser
	}
	if !models.ValidRole(p.Role) {
		return nil, goerr.Wrap(ErrInvalidRole, "unknown role", goerr.V("role", p.Role))
	}

	exists, err := s.usernameExists(ctx, p.Username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, goerr.Wrap(ErrDuplicateUsername, "account exists", goerr.V("username", p.Username))
	}

	hash, err := HashPasswordCost(p.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to hash password")
	}

	user := &models.User{
		Username:     p.Username,
		PasswordHash: hash,
		Role:         p.Role,
		Email:        p.Email,
		IsActive:     true,
	}
	q, cancel := s.conn(ctx)
	err = q.Create(user).Error
	cancel()
	if err != nil {
		// lost a race with a concurrent create of the same name
		if exists, checkErr := s.usernameExists(ctx, p.Username); checkErr == nil && exists {
			return nil, goerr.Wrap(ErrDuplicateUsername, "account exists", goerr.V("username", p.Username))
		}
		return nil, goerr.Wrap(err, "failed to create account", goerr.V("username", p.Username))
	}
	return user, nil
}

func (s *Service) usernameExists(ctx context.Context, username string) (bool, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	var n int64
	if err := q.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return false, goerr.Wrap(err, "failed to check username", goerr.V("username", username))
	}
	return n > 0, nil
}

// EnsureAccount creates the account unless the username is already taken.
func (s *Service) EnsureAccount(ctx context.Context, p CreateAccountParams) (*models.User, bool, error) {
	u, err := s.CreateAccount(ctx, p)
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, ErrDuplicateUsername) {
		return nil, false, err
	}

	q, cancel := s.conn(ctx)
	defer cancel()
	var existing models.User
	if err := q.Where("username = ?", strings.TrimSpace(p.Username)).First(&existing).Error; err != nil {
		return nil, false, goerr.Wrap(err, "failed to load account", goerr.V("username", p.Username))
	}
	return &existing, false, nil
}

// Authenticate rejects unknown users, wrong passwords and inactive accounts
// with the same error.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*Principal, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	var u models.User
	if err := q.Where("username = ?", strings.TrimSpace(username)).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goerr.Wrap(ErrInvalidCredentials, "unknown user", goerr.V("username", username))
		}
		return nil, goerr.Wrap(err, "failed to load user", goerr.V("username", username))
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, goerr.Wrap(ErrInvalidCredentials, "password mismatch", goerr.V("username", username))
	}
	if !u.IsActive {
		return nil, goerr.Wrap(ErrInvalidCredentials, "account inactive", goerr.V("username", username))
	}
	return principalOf(&u), nil
}

func principalOf(u *models.User) *Principal {
	return &Principal{UserID: u.ID, Username: u.Username, Role: u.Role, Email: u.Email}
}

// IssueSession mints a signed token for userID and records it. ttl <= 0
// means the configured default.
func (s *Service) IssueSession(ctx context.Context, userID uint64, ttl time.Duration) (string, *models.UserSession, error) {
	if ttl <= 0 {
		ttl = s.cfg.SessionTTL
	}
	sid, err := common.NewULID()
	if err != nil {
		return "", nil, goerr.Wrap(err, "failed to generate session id")
	}

	now := s.now()
	token, err := SignJWT(userID, sid, s.cfg.JWTSecret, now, ttl)
	if err != nil {
		return "", nil, goerr.Wrap(err, "failed to sign token")
	}

	sess := &models.UserSession{
		SessionID: sid,
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	q, cancel := s.conn(ctx)
	defer cancel()
	if err := q.Create(sess).Error; err != nil {
		return "", nil, goerr.Wrap(err, "failed to store session", goerr.V("user_id", userID))
	}
	return token, sess, nil
}

type sessionRow struct {
	UserID   uint64
	Username string
	Role     string
	Email    *string
}

// VerifySession checks the token signature, then confirms in one join that the
// session exists, is neither revoked nor expired, and its account is active.
func (s *Service) VerifySession(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, goerr.Wrap(ErrInvalidSession, "empty token")
	}
	if _, err := ParseJWT(token, s.cfg.JWTSecret, s.now); err != nil {
		return nil, goerr.Wrap(ErrInvalidSession, "token rejected", goerr.V("cause", err.Error()))
	}

	q, cancel := s.conn(ctx)
	defer cancel()

	var row sessionRow
	res := q.Table("user_sessions AS s").
		Select("u.id AS user_id, u.username, u.role, u.email").
		Joins("JOIN users AS u ON u.id = s.user_id").
		Where("s.token = ? AND s.revoked_at IS NULL AND s.expires_at > ? AND u.is_active = ?", token, s.now(), true).
		Limit(1).
		Scan(&row)
	if res.Error != nil {
		return nil, goerr.Wrap(res.Error, "failed to verify session")
	}
	if res.RowsAffected == 0 {
		return nil, goerr.Wrap(ErrInvalidSession, "session not active")
	}
	return &Principal{UserID: row.UserID, Username: row.Username, Role: row.Role, Email: row.Email}, nil
}

// RevokeSession invalidates token. Revoking an unknown or already revoked
// token is not an error.
func (s *Service) RevokeSession(ctx context.Context, token string) error {
	q, cancel := s.conn(ctx)
	defer cancel()

	if err := q.Model(&models.UserSession{}).
		Where("token = ? AND revoked_at IS NULL", token).
		Update("revoked_at", s.now()).Error; err != nil {
		return goerr.Wrap(err, "failed to revoke session")
	}
	return nil
}

// ListAccounts returns every account, newest first.
func (s *Service) ListAccounts(ctx context.Context) ([]models.User, error) {
	q, cancel := s.conn(ctx)
	defer cancel()

	var users []models.User
	if err := q.Order("id DESC").Find(&users).Error; err != nil {
		return nil, goerr.Wrap(err, "failed to list accounts")
	}
	return users, nil
}

func (s *Service) RecordLogin(ctx context.Context, userID uint64) error {
	q, cancel := s.conn(ctx)
	defer cancel()

	if err := q.Model(&models.User{}).Where("id = ?", userID).Update("last_login", s.now()).Error; err != nil {
		return goerr.Wrap(err, "failed to record login", goerr.V("user_id", userID))
	}
	return nil
}

func (s *Service) SetActive(ctx context.Context, userID uint64, active bool) error {
	q, cancel := s.conn(ctx)
	defer cancel()

	res := q.Model(&models.User{}).Where("id = ?", userID).Update("is_active", active)
	if res.Error != nil {
		return goerr.Wrap(res.Error, "failed to update account", goerr.V("user_id", userID))
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := q.Model(&models.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return goerr.Wrap(err, "failed to check account", goerr.V("user_id", userID))
		}
		if n == 0 {
			return goerr.Wrap(ErrUserNotFound, "account not found", goerr.V("user_id", userID))
		}
	}
	return nil
}

type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *Principal `json:"user"`
}

// Login authenticates, records the login and issues a session. A failure to
// record the login is logged and does not fail the login.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	p, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if err := s.RecordLogin(ctx, p.UserID); err != nil {
		s.logger.Warn("record login failed", "user_id", p.UserID, "error", err)
	}
	token, sess, err := s.IssueSession(ctx, p.UserID, 0)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: sess.ExpiresAt, User: p}, nil
}

// Models returns the tables owned by this package, for migration.
func Models() []any {
	return []any{&models.User{}, &models.UserSession{}}
}
