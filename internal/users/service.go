package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arvoredolab/arvoredo/backend/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	defaultMaxLoginAttempts = 5
	defaultBcryptCost       = 12
)

const (
	opRegister      = "users.register"
	opLogin         = "users.login"
	opResetPassword = "users.reset_password"
	opListUsers     = "users.list_users"
	opUpdateUser    = "users.update_user"
	opDeleteUser    = "users.delete_user"
)

var (
	// ErrMissingFields indicates the registration payload is incomplete.
	ErrMissingFields = errors.New("users: username, password, name and email are required")
	// ErrUsernameTaken indicates a registration collided on username.
	ErrUsernameTaken = errors.New("users: username already exists")
	// ErrEmailTaken indicates a registration collided on email.
	ErrEmailTaken = errors.New("users: email already exists")
	// ErrInvalidCredentials indicates an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("users: invalid username or password")
	// ErrUserNotFound indicates the addressed account does not exist.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrPasswordMismatch indicates the reset confirmation did not match.
	ErrPasswordMismatch = errors.New("users: passwords do not match")

	errMissingDatabase = errors.New("users: database connection required")
	errMissingTokens   = errors.New("users: token issuer required")
)

// BlockedError reports an account inside its lockout window.
type BlockedError struct {
	Remaining time.Duration
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("users: account temporarily blocked for %s", e.Remaining)
}

// Minutes returns the remaining block rounded up to whole minutes.
func (e *BlockedError) Minutes() int {
	return int((e.Remaining + time.Minute - 1) / time.Minute)
}

// TokenIssuer abstracts the JWT issuer used after successful logins.
type TokenIssuer interface {
	IssueAccessToken(actor auth.Actor) (string, error)
	IssueRefreshToken(actor auth.Actor) (string, error)
}

// ServiceConfig describes the dependencies of the account service.
type ServiceConfig struct {
	Database         *gorm.DB
	Tokens           TokenIssuer
	Lockouts         LockoutStore
	Clock            func() time.Time
	Logger           *zap.Logger
	MaxLoginAttempts int
	BcryptCost       int
}

// Service manages account registration, login, and password resets.
type Service struct {
	db          *gorm.DB
	tokens      TokenIssuer
	lockouts    LockoutStore
	clock       func() time.Time
	logger      *zap.Logger
	maxAttempts int
	bcryptCost  int
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokens
	}
	lockouts := cfg.Lockouts
	if lockouts == nil {
		lockouts = NewMemoryLockoutStore()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := cfg.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxLoginAttempts
	}
	bcryptCost := cfg.BcryptCost
	if bcryptCost <= 0 {
		bcryptCost = defaultBcryptCost
	}
	return &Service{
		db:          cfg.Database,
		tokens:      cfg.Tokens,
		lockouts:    lockouts,
		clock:       clock,
		logger:      logger,
		maxAttempts: maxAttempts,
		bcryptCost:  bcryptCost,
	}, nil
}

// RegisterRequest carries a new account submission.
type RegisterRequest struct {
	Username string
	Password string
	Email    string
	FullName string
	IsAdmin  bool
}

// Register creates a new account after uniqueness checks on username and
// email. The stored credential is a bcrypt hash.
func (s *Service) Register(ctx context.Context, request RegisterRequest) (PublicUser, error) {
	username := normalize(request.Username)
	email := normalize(request.Email)
	fullName := normalize(request.FullName)
	if username == "" || request.Password == "" || email == "" || fullName == "" {
		return PublicUser{}, ErrMissingFields
	}

	if err := s.ensureAvailable(ctx, "username", username, ErrUsernameTaken); err != nil {
		return PublicUser{}, err
	}
	if err := s.ensureAvailable(ctx, "email", email, ErrEmailTaken); err != nil {
		return PublicUser{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), s.bcryptCost)
	if err != nil {
		s.logError(opRegister, "hash_failed", err, zap.String("username", username))
		return PublicUser{}, fmt.Errorf("users: password hashing failed: %w", err)
	}

	account := User{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		FullName:     fullName,
		IsAdmin:      request.IsAdmin,
		CreatedAt:    formatTimestamp(s.clock()),
	}
	if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
		s.logError(opRegister, "insert_failed", err, zap.String("username", username))
		return PublicUser{}, fmt.Errorf("users: registration failed: %w", err)
	}
	return account.Public(), nil
}

func (s *Service) ensureAvailable(ctx context.Context, column, value string, taken error) error {
	var existing User
	err := s.db.WithContext(ctx).Where(column+" = ?", value).Take(&existing).Error
	if err == nil {
		return taken
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	s.logError(opRegister, "uniqueness_check_failed", err, zap.String("column", column))
	return fmt.Errorf("users: registration failed: %w", err)
}

// LoginResult carries the issued tokens and the sanitized account.
type LoginResult struct {
	Token        string
	RefreshToken string
	User         PublicUser
}

// Login authenticates a username/password pair with lockout tracking:
// blocked accounts are rejected up front, failed attempts are recorded, and
// a successful login clears the counter and refreshes last_login.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = normalize(username)

	if s.lockouts.IsBlocked(username) {
		return LoginResult{}, &BlockedError{Remaining: s.lockouts.RemainingBlock(username)}
	}

	var account User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.lockouts.RecordFailure(username, s.maxAttempts)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logError(opLogin, "lookup_failed", err, zap.String("username", username))
		return LoginResult{}, fmt.Errorf("users: login failed: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		s.lockouts.RecordFailure(username, s.maxAttempts)
		return LoginResult{}, ErrInvalidCredentials
	}

	s.lockouts.Clear(username)

	account.LastLogin = formatTimestamp(s.clock())
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", account.ID).
		Update("last_login", account.LastLogin).Error; err != nil {
		s.logError(opLogin, "last_login_update_failed", err, zap.Int64("user_id", account.ID))
	}

	actor := accountActor(account)
	token, err := s.tokens.IssueAccessToken(actor)
	if err != nil {
		s.logError(opLogin, "token_issue_failed", err, zap.Int64("user_id", account.ID))
		return LoginResult{}, fmt.Errorf("users: login failed: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(actor)
	if err != nil {
		s.logError(opLogin, "refresh_issue_failed", err, zap.Int64("user_id", account.ID))
		return LoginResult{}, fmt.Errorf("users: login failed: %w", err)
	}

	return LoginResult{
		Token:        token,
		RefreshToken: refreshToken,
		User:         account.Public(),
	}, nil
}

// ResetPassword replaces the account credential after the confirmation
// matches, then clears any lockout state for the username.
func (s *Service) ResetPassword(ctx context.Context, username, newPassword, confirmPassword string) error {
	username = normalize(username)
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}

	var account User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		s.logError(opResetPassword, "lookup_failed", err, zap.String("username", username))
		return fmt.Errorf("users: password reset failed: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		s.logError(opResetPassword, "hash_failed", err, zap.String("username", username))
		return fmt.Errorf("users: password reset failed: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", account.ID).
		Update("password_hash", string(hash)).Error; err != nil {
		s.logError(opResetPassword, "update_failed", err, zap.Int64("user_id", account.ID))
		return fmt.Errorf("users: password reset failed: %w", err)
	}

	s.lockouts.Clear(username)
	return nil
}

// ListUsers returns all accounts ordered by full name, without credentials.
func (s *Service) ListUsers(ctx context.Context) ([]PublicUser, error) {
	var accounts []User
	if err := s.db.WithContext(ctx).
		Order("full_name ASC").
		Find(&accounts).Error; err != nil {
		s.logError(opListUsers, "query_failed", err)
		return nil, fmt.Errorf("users: listing failed: %w", err)
	}
	listed := make([]PublicUser, 0, len(accounts))
	for _, account := range accounts {
		listed = append(listed, account.Public())
	}
	return listed, nil
}

// UpdateRequest carries an admin-side account edit. A non-empty Password
// replaces the stored credential.
type UpdateRequest struct {
	FullName string
	Email    string
	Username string
	IsAdmin  bool
	Password string
}

// UpdateUser rewrites the account's profile fields.
func (s *Service) UpdateUser(ctx context.Context, id int64, request UpdateRequest) error {
	var account User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		s.logError(opUpdateUser, "lookup_failed", err, zap.Int64("user_id", id))
		return fmt.Errorf("users: update failed: %w", err)
	}

	fields := map[string]interface{}{
		"full_name": normalize(request.FullName),
		"email":     normalize(request.Email),
		"username":  normalize(request.Username),
		"is_admin":  request.IsAdmin,
	}
	if request.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(request.Password), s.bcryptCost)
		if err != nil {
			s.logError(opUpdateUser, "hash_failed", err, zap.Int64("user_id", id))
			return fmt.Errorf("users: update failed: %w", err)
		}
		fields["password_hash"] = string(hash)
	}

	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Updates(fields).Error; err != nil {
		s.logError(opUpdateUser, "update_failed", err, zap.Int64("user_id", id))
		return fmt.Errorf("users: update failed: %w", err)
	}
	return nil
}

// DeleteUser removes the account.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&User{})
	if result.Error != nil {
		s.logError(opDeleteUser, "delete_failed", result.Error, zap.Int64("user_id", id))
		return fmt.Errorf("users: deletion failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func accountActor(account User) auth.Actor {
	return auth.Actor{
		ID:       account.ID,
		Username: account.Username,
		Email:    account.Email,
		FullName: account.FullName,
		IsAdmin:  account.IsAdmin,
	}
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}
