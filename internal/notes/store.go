package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwell-labs/inkwell/backend/internal/sharing"
)

var errMissingDatabase = errors.New("database handle is required")

// StoreConfig describes the dependencies of the note store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Store persists note ownership records and implements the collaboration
// core's NoteStore interface.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewStore constructs the note store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: cfg.Database, clock: clock}, nil
}

// OwnerAndTitle resolves the owner and title of a note.
func (s *Store) OwnerAndTitle(ctx context.Context, noteID string) (sharing.NoteRecord, error) {
	var note Note
	err := s.db.WithContext(ctx).
		Where("note_id = ?", noteID).
		Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sharing.NoteRecord{}, fmt.Errorf("%w: note %s", sharing.ErrNotFound, noteID)
	}
	if err != nil {
		return sharing.NoteRecord{}, fmt.Errorf("%w: note lookup: %v", sharing.ErrUpstreamUnavailable, err)
	}
	return sharing.NoteRecord{
		NoteID:  note.NoteID,
		OwnerID: note.OwnerID,
		Title:   note.Title,
	}, nil
}

// Create inserts a note owned by ownerID. A conflicting note id returns
// sharing.ErrInvalidOperation.
func (s *Store) Create(ctx context.Context, noteID, ownerID, title string) (Note, error) {
	now := s.clock().UTC().Unix()
	note := Note{
		NoteID:           noteID,
		OwnerID:          ownerID,
		Title:            title,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&note)
	if result.Error != nil {
		return Note{}, fmt.Errorf("%w: note insert: %v", sharing.ErrUpstreamUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return Note{}, fmt.Errorf("%w: note %s already exists", sharing.ErrInvalidOperation, noteID)
	}
	return note, nil
}

// ListByOwner returns all notes owned by a user.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Note, error) {
	var owned []Note
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at_s DESC").
		Find(&owned).Error; err != nil {
		return nil, fmt.Errorf("%w: note list: %v", sharing.ErrUpstreamUnavailable, err)
	}
	return owned, nil
}
