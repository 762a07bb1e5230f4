package sharing

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("sharing: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("sharing: invalid user id")
	// ErrInvalidConnectionID indicates that a connection identifier is empty or exceeds storage bounds.
	ErrInvalidConnectionID = errors.New("sharing: invalid connection id")
	// ErrInvalidPermission indicates that a permission value is not READ, WRITE, or ADMIN.
	ErrInvalidPermission = errors.New("sharing: invalid permission")
	// ErrInvalidEmail indicates that an invitee email is empty or malformed.
	ErrInvalidEmail = errors.New("sharing: invalid email")
)

// Permission enumerates the access levels a collaborator can hold on a note.
type Permission string

const (
	// PermissionNone marks the absence of any access.
	PermissionNone Permission = ""
	// PermissionRead allows viewing a note.
	PermissionRead Permission = "READ"
	// PermissionWrite allows editing a note.
	PermissionWrite Permission = "WRITE"
	// PermissionAdmin allows managing collaborators in addition to editing.
	PermissionAdmin Permission = "ADMIN"
)

// ParsePermission validates raw input and returns a Permission.
func ParsePermission(rawInput string) (Permission, error) {
	switch strings.ToUpper(strings.TrimSpace(rawInput)) {
	case string(PermissionRead):
		return PermissionRead, nil
	case string(PermissionWrite):
		return PermissionWrite, nil
	case string(PermissionAdmin):
		return PermissionAdmin, nil
	default:
		return PermissionNone, fmt.Errorf("%w: %q", ErrInvalidPermission, rawInput)
	}
}

// Display returns the lowercase form used in collaborator listings.
func (p Permission) Display() string {
	return strings.ToLower(string(p))
}

// AllowsRead reports whether the permission grants at least read access.
func (p Permission) AllowsRead() bool {
	return p == PermissionRead || p == PermissionWrite || p == PermissionAdmin
}

// AllowsWrite reports whether the permission grants at least write access.
func (p Permission) AllowsWrite() bool {
	return p == PermissionWrite || p == PermissionAdmin
}

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ConnectionID represents a validated transport connection identifier.
type ConnectionID string

// NewConnectionID validates raw input and returns a ConnectionID.
func NewConnectionID(rawInput string) (ConnectionID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidConnectionID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidConnectionID, maxIdentifierLength)
	}
	return ConnectionID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ConnectionID) String() string {
	return string(id)
}

// NormalizeEmail lowercases and trims an email address for lookup and storage.
func NormalizeEmail(rawInput string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(rawInput))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	return normalized, nil
}

// Grant models a persisted collaboration grant. The owner of a note is never
// represented as a grant row; ownership is resolved separately.
type Grant struct {
	NoteID           string     `gorm:"column:note_id;primaryKey;size:190;not null"`
	UserID           string     `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_grants_user"`
	Permission       Permission `gorm:"column:permission;size:16;not null"`
	InvitedBy        string     `gorm:"column:invited_by;size:190;not null"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Grant) TableName() string {
	return "note_grants"
}

// PendingInvitation records an invitation addressed to an email with no
// registered account. It is converted into a Grant when the invitee registers.
type PendingInvitation struct {
	NoteID           string     `gorm:"column:note_id;primaryKey;size:190;not null"`
	InviteeEmail     string     `gorm:"column:invitee_email;primaryKey;size:320;not null;index:idx_pending_email"`
	Permission       Permission `gorm:"column:permission;size:16;not null"`
	InviterID        string     `gorm:"column:inviter_id;size:190;not null"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (PendingInvitation) TableName() string {
	return "pending_invitations"
}
