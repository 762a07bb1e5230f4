package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Email job names understood by the mail pipeline.
const (
	EmailJobInvitation        = "collaboration-invitation"
	EmailJobPendingInvitation = "collaboration-invitation-pending"
)

// Notification types surfaced to clients.
const (
	NotificationTypeInvited           = "collaboration_invited"
	NotificationTypeRemoved           = "collaboration_removed"
	NotificationTypePermissionChanged = "collaboration_permission_changed"
)

// InviteStatus describes the terminal state of an invitation attempt.
type InviteStatus string

const (
	// InviteStatusGranted means a grant was created for an existing account.
	InviteStatusGranted InviteStatus = "granted"
	// InviteStatusDeferred means the invitee has no account yet; the
	// invitation is recorded and materializes on registration.
	InviteStatusDeferred InviteStatus = "deferred"
)

// InviteOutcome reports the result of a successful invitation attempt.
type InviteOutcome struct {
	Status InviteStatus
	Grant  *Grant
}

var (
	errMissingAccessController = errors.New("access controller is required")
	errMissingPendingStore     = errors.New("pending store is required")
	errMissingDirectory        = errors.New("user directory is required")
	noOpLogger                 = zap.NewNop()
)

// WorkflowConfig describes the dependencies of the invitation workflow.
type WorkflowConfig struct {
	Access    *AccessController
	Notes     NoteStore
	Grants    *GrantStore
	Pending   *PendingStore
	Directory UserDirectory
	Notifier  NotificationDispatcher
	Mail      EmailJobQueue
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Workflow drives the invite / remove / update-permission state machine.
// Notification and email dispatch are best-effort: their failures are logged
// and never fail the primary operation.
type Workflow struct {
	access    *AccessController
	notes     NoteStore
	grants    *GrantStore
	pending   *PendingStore
	directory UserDirectory
	notifier  NotificationDispatcher
	mail      EmailJobQueue
	clock     func() time.Time
	logger    *zap.Logger
}

// NewWorkflow constructs the invitation workflow.
func NewWorkflow(cfg WorkflowConfig) (*Workflow, error) {
	if cfg.Access == nil {
		return nil, errMissingAccessController
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
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Workflow{
		access:    cfg.Access,
		notes:     cfg.Notes,
		grants:    cfg.Grants,
		pending:   cfg.Pending,
		directory: cfg.Directory,
		notifier:  cfg.Notifier,
		mail:      cfg.Mail,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Invite asks to share a note with an email address. The inviter must hold
// ADMIN. An invitee without an account produces a deferred invitation; an
// invitee already holding access produces ErrDuplicateCollaborator.
func (w *Workflow) Invite(ctx context.Context, noteID NoteID, inviterID UserID, inviteeEmail string, permission Permission) (InviteOutcome, error) {
	email, err := NormalizeEmail(inviteeEmail)
	if err != nil {
		return InviteOutcome{}, err
	}
	note, err := w.notes.OwnerAndTitle(ctx, noteID.String())
	if err != nil {
		return InviteOutcome{}, err
	}
	if _, err := w.access.RequireAdminAccess(ctx, noteID.String(), inviterID.String()); err != nil {
		return InviteOutcome{}, err
	}

	invitee, err := w.directory.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		invitation := PendingInvitation{
			NoteID:           noteID.String(),
			InviteeEmail:     email,
			Permission:       permission,
			InviterID:        inviterID.String(),
			CreatedAtSeconds: w.clock().UTC().Unix(),
		}
		if err := w.pending.Upsert(ctx, invitation); err != nil {
			return InviteOutcome{}, err
		}
		w.enqueueMail(ctx, EmailJobPendingInvitation, map[string]any{
			"invitee_email": email,
			"note_id":       noteID.String(),
			"note_title":    note.Title,
			"inviter_id":    inviterID.String(),
			"permission":    permission.Display(),
		})
		return InviteOutcome{Status: InviteStatusDeferred}, nil
	}
	if err != nil {
		return InviteOutcome{}, err
	}

	if invitee.UserID == note.OwnerID {
		return InviteOutcome{}, fmt.Errorf("%w: %s owns %s", ErrDuplicateCollaborator, invitee.UserID, noteID)
	}

	grant := Grant{
		NoteID:           noteID.String(),
		UserID:           invitee.UserID,
		Permission:       permission,
		InvitedBy:        inviterID.String(),
		CreatedAtSeconds: w.clock().UTC().Unix(),
	}
	if err := w.grants.Create(ctx, grant); err != nil {
		return InviteOutcome{}, err
	}

	w.notify(ctx, invitee.UserID, "You were invited to collaborate",
		fmt.Sprintf("You now have %s access to %q.", permission.Display(), note.Title),
		NotificationTypeInvited, noteID.String())
	w.enqueueMail(ctx, EmailJobInvitation, map[string]any{
		"invitee_email": email,
		"note_id":       noteID.String(),
		"note_title":    note.Title,
		"inviter_id":    inviterID.String(),
		"permission":    permission.Display(),
	})

	return InviteOutcome{Status: InviteStatusGranted, Grant: &grant}, nil
}

// RemoveCollaborator deletes a collaborator's grant. The remover must hold
// ADMIN; removing the owner is ErrInvalidOperation; a missing grant is
// ErrNotFound.
func (w *Workflow) RemoveCollaborator(ctx context.Context, noteID NoteID, targetID, removerID UserID) error {
	note, err := w.notes.OwnerAndTitle(ctx, noteID.String())
	if err != nil {
		return err
	}
	if _, err := w.access.RequireAdminAccess(ctx, noteID.String(), removerID.String()); err != nil {
		return err
	}
	if targetID.String() == note.OwnerID {
		return fmt.Errorf("%w: cannot remove the owner of %s", ErrInvalidOperation, noteID)
	}
	if err := w.grants.Delete(ctx, noteID.String(), targetID.String()); err != nil {
		return err
	}

	w.notify(ctx, targetID.String(), "Collaboration access removed",
		fmt.Sprintf("Your access to %q was removed.", note.Title),
		NotificationTypeRemoved, noteID.String())
	return nil
}

// UpdatePermission changes a collaborator's stored permission. The updater
// must hold ADMIN; the owner's permission can never be updated.
func (w *Workflow) UpdatePermission(ctx context.Context, noteID NoteID, targetID UserID, permission Permission, updaterID UserID) (Grant, error) {
	note, err := w.notes.OwnerAndTitle(ctx, noteID.String())
	if err != nil {
		return Grant{}, err
	}
	if _, err := w.access.RequireAdminAccess(ctx, noteID.String(), updaterID.String()); err != nil {
		return Grant{}, err
	}
	if targetID.String() == note.OwnerID {
		return Grant{}, fmt.Errorf("%w: owner permission on %s is immutable", ErrInvalidOperation, noteID)
	}
	if err := w.grants.UpdatePermission(ctx, noteID.String(), targetID.String(), permission); err != nil {
		return Grant{}, err
	}
	grant, err := w.grants.Get(ctx, noteID.String(), targetID.String())
	if err != nil {
		return Grant{}, err
	}

	w.notify(ctx, targetID.String(), "Collaboration access changed",
		fmt.Sprintf("Your access to %q is now %s.", note.Title, permission.Display()),
		NotificationTypePermissionChanged, noteID.String())
	return grant, nil
}

// ActivatePendingInvitations converts every pending invitation addressed to
// the given email into a grant for the newly registered user. Individual
// conversion failures are logged and skipped so registration never aborts.
// It returns the number of grants created.
func (w *Workflow) ActivatePendingInvitations(ctx context.Context, userID UserID, email string) (int, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return 0, err
	}
	invitations, err := w.pending.ListByEmail(ctx, normalized)
	if err != nil {
		return 0, err
	}
	if len(invitations) == 0 {
		return 0, nil
	}

	activated := 0
	for _, invitation := range invitations {
		note, err := w.notes.OwnerAndTitle(ctx, invitation.NoteID)
		if err != nil {
			w.logSkipped(invitation, "note_lookup_failed", err)
			continue
		}
		if note.OwnerID == userID.String() {
			w.logSkipped(invitation, "invitee_owns_note", nil)
			continue
		}
		grant := Grant{
			NoteID:           invitation.NoteID,
			UserID:           userID.String(),
			Permission:       invitation.Permission,
			InvitedBy:        invitation.InviterID,
			CreatedAtSeconds: w.clock().UTC().Unix(),
		}
		if err := w.grants.Create(ctx, grant); err != nil {
			if !errors.Is(err, ErrDuplicateCollaborator) {
				w.logSkipped(invitation, "grant_insert_failed", err)
				continue
			}
		} else {
			activated++
		}
		w.notify(ctx, userID.String(), "You were invited to collaborate",
			fmt.Sprintf("You now have %s access to %q.", invitation.Permission.Display(), note.Title),
			NotificationTypeInvited, invitation.NoteID)
	}

	if err := w.pending.DeleteByEmail(ctx, normalized); err != nil {
		w.logger.Warn("pending invitation cleanup failed",
			zap.String("email", normalized), zap.Error(err))
	}
	return activated, nil
}

func (w *Workflow) notify(ctx context.Context, userID, title, message, notificationType, noteID string) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Create(ctx, userID, title, message, notificationType, noteID); err != nil {
		w.logger.Warn("notification dispatch failed",
			zap.String("user_id", userID),
			zap.String("note_id", noteID),
			zap.String("type", notificationType),
			zap.Error(err))
	}
}

func (w *Workflow) enqueueMail(ctx context.Context, jobName string, payload map[string]any) {
	if w.mail == nil {
		return
	}
	if err := w.mail.Enqueue(ctx, jobName, payload); err != nil {
		w.logger.Warn("email job enqueue failed",
			zap.String("job", jobName), zap.Error(err))
	}
}

func (w *Workflow) logSkipped(invitation PendingInvitation, reason string, err error) {
	fields := []zap.Field{
		zap.String("note_id", invitation.NoteID),
		zap.String("invitee_email", invitation.InviteeEmail),
		zap.String("reason", reason),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	w.logger.Warn("pending invitation skipped", fields...)
}
