// Package notify persists in-app notifications. Dispatch is best-effort;
// callers decide whether a failure matters.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/backend/internal/ids"
)

var (
	errMissingDatabase   = errors.New("notify: database connection required")
	errMissingIDProvider = errors.New("notify: id provider required")
)

// Notification is a stored in-app notification row.
type Notification struct {
	NotificationID   string `gorm:"column:notification_id;primaryKey;size:190;not null"`
	UserID           string `gorm:"column:user_id;size:190;not null;index:idx_notifications_user"`
	Title            string `gorm:"column:title;size:320;not null"`
	Message          string `gorm:"column:message;type:text;not null"`
	Type             string `gorm:"column:type;size:64;not null"`
	NoteID           string `gorm:"column:note_id;size:190"`
	ReadAtSeconds    int64  `gorm:"column:read_at_s;not null;default:0"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// DispatcherConfig describes the dependencies of the dispatcher.
type DispatcherConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
}

// Dispatcher writes notification rows.
type Dispatcher struct {
	db    *gorm.DB
	ids   ids.Provider
	clock func() time.Time
}

// NewDispatcher constructs the dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
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
	return &Dispatcher{db: cfg.Database, ids: cfg.IDProvider, clock: clock}, nil
}

// Create stores a notification for the user.
func (d *Dispatcher) Create(ctx context.Context, userID, title, message, notificationType, noteID string) error {
	notificationID, err := d.ids.NewID()
	if err != nil {
		return fmt.Errorf("notify: id generation failed: %w", err)
	}
	row := Notification{
		NotificationID:   notificationID,
		UserID:           userID,
		Title:            title,
		Message:          message,
		Type:             notificationType,
		NoteID:           noteID,
		CreatedAtSeconds: d.clock().UTC().Unix(),
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("notify: insert failed: %w", err)
	}
	return nil
}

// ListForUser returns a user's notifications, newest first.
func (d *Dispatcher) ListForUser(ctx context.Context, userID string) ([]Notification, error) {
	var rows []Notification
	if err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at_s DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notify: list failed: %w", err)
	}
	return rows, nil
}
