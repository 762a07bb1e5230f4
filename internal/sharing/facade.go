package sharing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/presence"
)

var errMissingRegistry = errors.New("presence registry is required")

// ServiceConfig describes the dependencies of the collaboration facade.
type ServiceConfig struct {
	Access    *AccessController
	Workflow  *Workflow
	Notes     NoteStore
	Grants    *GrantStore
	Pending   *PendingStore
	Directory UserDirectory
	Presence  *presence.Registry
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service is the collaboration facade consumed by the presentation layer. It
// composes durable permission state with the in-memory presence registry.
type Service struct {
	access    *AccessController
	workflow  *Workflow
	notes     NoteStore
	grants    *GrantStore
	pending   *PendingStore
	directory UserDirectory
	presence  *presence.Registry
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the collaboration facade.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Access == nil {
		return nil, errMissingAccessController
	}
	if cfg.Workflow == nil {
		return nil, errors.New("invitation workflow is required")
	}
	if cfg.Notes == nil {
		return nil, errMissingNoteStore
	}
	if cfg.Grants == nil {
		return nil, errMissingGrantStore
	}
	if cfg.Pending == nil {
		return nil, errMissingPendingStore
	}
	if cfg.Directory == nil {
		return nil, errMissingDirectory
	}
	if cfg.Presence == nil {
		return nil, errMissingRegistry
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		access:    cfg.Access,
		workflow:  cfg.Workflow,
		notes:     cfg.Notes,
		grants:    cfg.Grants,
		pending:   cfg.Pending,
		directory: cfg.Directory,
		presence:  cfg.Presence,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Collaborator is one entry in a note's collaborator listing. Permission is
// the lowercase display form. Online and Cursor are eventually consistent
// with concurrent joins and leaves.
type Collaborator struct {
	UserID     string           `json:"user_id"`
	Permission string           `json:"permission"`
	IsOwner    bool             `json:"is_owner"`
	Online     bool             `json:"online"`
	Cursor     *presence.Cursor `json:"cursor,omitempty"`
}

// CollaboratedNote is one entry in a user's cross-note collaboration listing.
type CollaboratedNote struct {
	NoteID     string `json:"note_id"`
	Title      string `json:"title"`
	OwnerID    string `json:"owner_id"`
	Permission string `json:"permission"`
}

// Stats summarizes a note's collaboration state.
type Stats struct {
	TotalCollaborators int   `json:"total_collaborators"`
	OnlineCount        int   `json:"online_count"`
	PendingInvitations int64 `json:"pending_invitations"`
}

// Invite delegates to the invitation workflow.
func (s *Service) Invite(ctx context.Context, noteID NoteID, inviterID UserID, inviteeEmail string, permission Permission) (InviteOutcome, error) {
	return s.workflow.Invite(ctx, noteID, inviterID, inviteeEmail, permission)
}

// RemoveCollaborator delegates to the invitation workflow.
func (s *Service) RemoveCollaborator(ctx context.Context, noteID NoteID, targetID, removerID UserID) error {
	return s.workflow.RemoveCollaborator(ctx, noteID, targetID, removerID)
}

// UpdatePermission delegates to the invitation workflow.
func (s *Service) UpdatePermission(ctx context.Context, noteID NoteID, targetID UserID, permission Permission, updaterID UserID) (Grant, error) {
	return s.workflow.UpdatePermission(ctx, noteID, targetID, permission, updaterID)
}

// ActivatePendingInvitations delegates to the invitation workflow; it is the
// registration hook that materializes deferred invitations into grants.
func (s *Service) ActivatePendingInvitations(ctx context.Context, userID UserID, email string) (int, error) {
	return s.workflow.ActivatePendingInvitations(ctx, userID, email)
}

// GetCollaborators lists everyone with access to a note. Exactly one ADMIN
// entry is synthesized for the owner; it is never read from the grant store.
// The list has no ordering guarantee beyond the owner being present.
func (s *Service) GetCollaborators(ctx context.Context, noteID NoteID, requesterID UserID) ([]Collaborator, error) {
	note, err := s.notes.OwnerAndTitle(ctx, noteID.String())
	if err != nil {
		return nil, err
	}
	if _, err := s.access.RequireAccess(ctx, noteID.String(), requesterID.String()); err != nil {
		return nil, err
	}
	grants, err := s.grants.ListByNote(ctx, noteID.String())
	if err != nil {
		return nil, err
	}

	collaborators := make([]Collaborator, 0, len(grants)+1)
	collaborators = append(collaborators, s.presenceEntry(noteID.String(), note.OwnerID, PermissionAdmin, true))
	for _, grant := range grants {
		collaborators = append(collaborators, s.presenceEntry(noteID.String(), grant.UserID, grant.Permission, false))
	}
	return collaborators, nil
}

func (s *Service) presenceEntry(noteID, userID string, permission Permission, isOwner bool) Collaborator {
	entry := Collaborator{
		UserID:     userID,
		Permission: permission.Display(),
		IsOwner:    isOwner,
		Online:     s.presence.IsUserActive(noteID, userID),
	}
	if cursor, ok := s.presence.CursorOf(noteID, userID); ok {
		entry.Cursor = &cursor
	}
	return entry
}

// GetUserPermission returns the effective permission a user holds on a note,
// PermissionNone when they hold none.
func (s *Service) GetUserPermission(ctx context.Context, noteID NoteID, userID UserID) (Permission, error) {
	return s.access.PermissionOf(ctx, noteID.String(), userID.String())
}

// GetCollaboratedNotes lists the notes a user collaborates on through grants.
// Grants pointing at deleted notes are skipped.
func (s *Service) GetCollaboratedNotes(ctx context.Context, userID UserID) ([]CollaboratedNote, error) {
	grants, err := s.grants.ListByUser(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	collaborated := make([]CollaboratedNote, 0, len(grants))
	for _, grant := range grants {
		note, err := s.notes.OwnerAndTitle(ctx, grant.NoteID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("grant references missing note",
				zap.String("note_id", grant.NoteID),
				zap.String("user_id", userID.String()))
			continue
		}
		if err != nil {
			return nil, err
		}
		collaborated = append(collaborated, CollaboratedNote{
			NoteID:     note.NoteID,
			Title:      note.Title,
			OwnerID:    note.OwnerID,
			Permission: grant.Permission.Display(),
		})
	}
	return collaborated, nil
}

// GetCollaborationStats summarizes a note's collaboration state for a
// requester with access.
func (s *Service) GetCollaborationStats(ctx context.Context, noteID NoteID, requesterID UserID) (Stats, error) {
	note, err := s.notes.OwnerAndTitle(ctx, noteID.String())
	if err != nil {
		return Stats{}, err
	}
	if _, err := s.access.RequireAccess(ctx, noteID.String(), requesterID.String()); err != nil {
		return Stats{}, err
	}
	grants, err := s.grants.ListByNote(ctx, noteID.String())
	if err != nil {
		return Stats{}, err
	}
	pendingCount, err := s.pending.CountByNote(ctx, noteID.String())
	if err != nil {
		return Stats{}, err
	}

	online := 0
	if s.presence.IsUserActive(noteID.String(), note.OwnerID) {
		online++
	}
	for _, grant := range grants {
		if s.presence.IsUserActive(noteID.String(), grant.UserID) {
			online++
		}
	}
	return Stats{
		TotalCollaborators: len(grants) + 1,
		OnlineCount:        online,
		PendingInvitations: pendingCount,
	}, nil
}

// Join verifies access and registers a presence session for the connection,
// then returns the note's current collaborator listing.
func (s *Service) Join(ctx context.Context, noteID NoteID, userID UserID, connectionID ConnectionID) ([]Collaborator, error) {
	if _, err := s.access.RequireAccess(ctx, noteID.String(), userID.String()); err != nil {
		return nil, err
	}
	s.presence.Join(noteID.String(), userID.String(), connectionID.String())
	return s.GetCollaborators(ctx, noteID, userID)
}

// Leave drops the presence session for the connection. Unknown connection
// ids are silent no-ops. It reports the (note, user) pair that left, when a
// session existed.
func (s *Service) Leave(connectionID ConnectionID) (noteID, userID string, ok bool) {
	return s.presence.Leave(connectionID.String())
}

// UpdateCursor records the connection's cursor position. Unknown connection
// ids are silent no-ops. It reports the (note, user) pair the cursor belongs
// to, when the session exists.
func (s *Service) UpdateCursor(connectionID ConnectionID, cursor presence.Cursor) (noteID, userID string, ok bool) {
	return s.presence.UpdateCursor(connectionID.String(), cursor)
}

// Touch refreshes the connection's activity timestamp.
func (s *Service) Touch(connectionID ConnectionID) {
	s.presence.Touch(connectionID.String())
}
