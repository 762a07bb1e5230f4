package sharing

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("database handle is required")

// GrantStore persists collaboration grants keyed by (note_id, user_id). The
// composite primary key carries the uniqueness constraint that resolves
// concurrent invite races.
type GrantStore struct {
	db *gorm.DB
}

// NewGrantStore constructs a GrantStore over the provided database handle.
func NewGrantStore(db *gorm.DB) (*GrantStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &GrantStore{db: db}, nil
}

// Get returns the grant for (noteID, userID), or ErrNotFound.
func (s *GrantStore) Get(ctx context.Context, noteID, userID string) (Grant, error) {
	var grant Grant
	err := s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Grant{}, fmt.Errorf("%w: grant %s/%s", ErrNotFound, noteID, userID)
	}
	if err != nil {
		return Grant{}, fmt.Errorf("%w: grant lookup: %v", ErrUpstreamUnavailable, err)
	}
	return grant, nil
}

// Create inserts the grant. A conflicting row for the same (note, user) pair
// yields ErrDuplicateCollaborator, which also breaks invite races in favor of
// exactly one winner.
func (s *GrantStore) Create(ctx context.Context, grant Grant) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&grant)
	if result.Error != nil {
		return fmt.Errorf("%w: grant insert: %v", ErrUpstreamUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s already collaborates on %s", ErrDuplicateCollaborator, grant.UserID, grant.NoteID)
	}
	return nil
}

// UpdatePermission changes the stored permission for (noteID, userID), or
// returns ErrNotFound if no grant exists.
func (s *GrantStore) UpdatePermission(ctx context.Context, noteID, userID string, permission Permission) error {
	result := s.db.WithContext(ctx).
		Model(&Grant{}).
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Update("permission", permission)
	if result.Error != nil {
		return fmt.Errorf("%w: grant update: %v", ErrUpstreamUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: grant %s/%s", ErrNotFound, noteID, userID)
	}
	return nil
}

// Delete removes the grant for (noteID, userID), or returns ErrNotFound.
func (s *GrantStore) Delete(ctx context.Context, noteID, userID string) error {
	result := s.db.WithContext(ctx).
		Where("note_id = ? AND user_id = ?", noteID, userID).
		Delete(&Grant{})
	if result.Error != nil {
		return fmt.Errorf("%w: grant delete: %v", ErrUpstreamUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: grant %s/%s", ErrNotFound, noteID, userID)
	}
	return nil
}

// ListByNote returns all grants on a note.
func (s *GrantStore) ListByNote(ctx context.Context, noteID string) ([]Grant, error) {
	var grants []Grant
	if err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("%w: grant list: %v", ErrUpstreamUnavailable, err)
	}
	return grants, nil
}

// ListByUser returns all grants held by a user across notes.
func (s *GrantStore) ListByUser(ctx context.Context, userID string) ([]Grant, error) {
	var grants []Grant
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("%w: grant list: %v", ErrUpstreamUnavailable, err)
	}
	return grants, nil
}

// PendingStore persists invitations addressed to emails without an account.
type PendingStore struct {
	db *gorm.DB
}

// NewPendingStore constructs a PendingStore over the provided database handle.
func NewPendingStore(db *gorm.DB) (*PendingStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &PendingStore{db: db}, nil
}

// Upsert records a pending invitation. Re-inviting the same email to the same
// note overwrites the stored permission rather than failing.
func (s *PendingStore) Upsert(ctx context.Context, invitation PendingInvitation) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "note_id"}, {Name: "invitee_email"}},
			DoUpdates: clause.AssignmentColumns([]string{"permission", "inviter_id"}),
		}).
		Create(&invitation).Error
	if err != nil {
		return fmt.Errorf("%w: pending invitation insert: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

// ListByEmail returns all pending invitations addressed to an email.
func (s *PendingStore) ListByEmail(ctx context.Context, email string) ([]PendingInvitation, error) {
	var invitations []PendingInvitation
	if err := s.db.WithContext(ctx).
		Where("invitee_email = ?", email).
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("%w: pending invitation list: %v", ErrUpstreamUnavailable, err)
	}
	return invitations, nil
}

// DeleteByEmail removes every pending invitation addressed to an email.
func (s *PendingStore) DeleteByEmail(ctx context.Context, email string) error {
	if err := s.db.WithContext(ctx).
		Where("invitee_email = ?", email).
		Delete(&PendingInvitation{}).Error; err != nil {
		return fmt.Errorf("%w: pending invitation delete: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

// CountByNote returns how many pending invitations a note has outstanding.
func (s *PendingStore) CountByNote(ctx context.Context, noteID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&PendingInvitation{}).
		Where("note_id = ?", noteID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: pending invitation count: %v", ErrUpstreamUnavailable, err)
	}
	return count, nil
}
