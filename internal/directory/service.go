// Package directory manages user accounts and implements the collaboration
// core's UserDirectory interface.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwell-labs/inkwell/backend/internal/ids"
	"github.com/inkwell-labs/inkwell/backend/internal/sharing"
)

var (
	errMissingDatabase   = errors.New("directory: database connection required")
	errMissingIDProvider = errors.New("directory: id provider required")
	// ErrEmailTaken indicates a registration attempt with an email that
	// already belongs to an account.
	ErrEmailTaken = errors.New("directory: email already registered")
)

// User captures a registered account.
type User struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	DisplayName      string `gorm:"column:display_name;size:320"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
}

// Service manages user accounts. Emails are stored lowercase so lookups are
// case-insensitive.
type Service struct {
	db    *gorm.DB
	ids   ids.Provider
	clock func() time.Time
}

// NewService constructs the directory service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingIDProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, ids: cfg.IDProvider, clock: clock}, nil
}

// Register creates an account for the email. The unique index on email makes
// concurrent registrations of the same address yield exactly one account;
// the loser receives ErrEmailTaken.
func (s *Service) Register(ctx context.Context, email, displayName string) (User, error) {
	normalized, err := sharing.NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	userID, err := s.ids.NewID()
	if err != nil {
		return User{}, fmt.Errorf("directory: id generation failed: %w", err)
	}
	account := User{
		UserID:           userID,
		Email:            normalized,
		DisplayName:      strings.TrimSpace(displayName),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&account)
	if result.Error != nil {
		return User{}, fmt.Errorf("%w: user insert: %v", sharing.ErrUpstreamUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, fmt.Errorf("%w: %s", ErrEmailTaken, normalized)
	}
	return account, nil
}

// FindByEmail resolves an account by email, sharing.ErrNotFound when absent.
func (s *Service) FindByEmail(ctx context.Context, email string) (sharing.UserRecord, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	var account User
	err := s.db.WithContext(ctx).
		Where("email = ?", normalized).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sharing.UserRecord{}, fmt.Errorf("%w: user %s", sharing.ErrNotFound, normalized)
	}
	if err != nil {
		return sharing.UserRecord{}, fmt.Errorf("%w: user lookup: %v", sharing.ErrUpstreamUnavailable, err)
	}
	return record(account), nil
}

// FindByID resolves an account by user id, sharing.ErrNotFound when absent.
func (s *Service) FindByID(ctx context.Context, userID string) (sharing.UserRecord, error) {
	var account User
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sharing.UserRecord{}, fmt.Errorf("%w: user %s", sharing.ErrNotFound, userID)
	}
	if err != nil {
		return sharing.UserRecord{}, fmt.Errorf("%w: user lookup: %v", sharing.ErrUpstreamUnavailable, err)
	}
	return record(account), nil
}

func record(account User) sharing.UserRecord {
	return sharing.UserRecord{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}
}
