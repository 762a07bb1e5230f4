package sharing

import (
	"context"
	"errors"
	"fmt"
)

var (
	errMissingNoteStore  = errors.New("note store is required")
	errMissingGrantStore = errors.New("grant store is required")
)

// AccessController resolves the effective permission a user holds on a note.
// Ownership always wins over any stored grant, which defends against stale
// duplicate rows left behind by earlier ownership changes.
type AccessController struct {
	notes  NoteStore
	grants *GrantStore
}

// NewAccessController constructs an AccessController.
func NewAccessController(notes NoteStore, grants *GrantStore) (*AccessController, error) {
	if notes == nil {
		return nil, errMissingNoteStore
	}
	if grants == nil {
		return nil, errMissingGrantStore
	}
	return &AccessController{notes: notes, grants: grants}, nil
}

// PermissionOf returns the effective permission: ADMIN when the user owns the
// note, otherwise the stored grant's permission, otherwise PermissionNone.
// The note itself must exist; unknown notes yield ErrNotFound.
func (a *AccessController) PermissionOf(ctx context.Context, noteID, userID string) (Permission, error) {
	note, err := a.notes.OwnerAndTitle(ctx, noteID)
	if err != nil {
		return PermissionNone, err
	}
	return a.permissionAgainst(ctx, note, userID)
}

// permissionAgainst resolves effective permission against an already-loaded
// note record, avoiding a second owner lookup on hot paths.
func (a *AccessController) permissionAgainst(ctx context.Context, note NoteRecord, userID string) (Permission, error) {
	if note.OwnerID == userID {
		return PermissionAdmin, nil
	}
	grant, err := a.grants.Get(ctx, note.NoteID, userID)
	if errors.Is(err, ErrNotFound) {
		return PermissionNone, nil
	}
	if err != nil {
		return PermissionNone, err
	}
	return grant.Permission, nil
}

// RequireAccess returns the user's effective permission, or ErrAccessDenied
// when the user holds no permission at all.
func (a *AccessController) RequireAccess(ctx context.Context, noteID, userID string) (Permission, error) {
	permission, err := a.PermissionOf(ctx, noteID, userID)
	if err != nil {
		return PermissionNone, err
	}
	if !permission.AllowsRead() {
		return PermissionNone, fmt.Errorf("%w: %s has no access to %s", ErrAccessDenied, userID, noteID)
	}
	return permission, nil
}

// RequireWriteAccess returns the permission if it allows writing, failing
// ErrAccessDenied for READ or no access.
func (a *AccessController) RequireWriteAccess(ctx context.Context, noteID, userID string) (Permission, error) {
	permission, err := a.PermissionOf(ctx, noteID, userID)
	if err != nil {
		return PermissionNone, err
	}
	if !permission.AllowsWrite() {
		return PermissionNone, fmt.Errorf("%w: %s cannot write %s", ErrAccessDenied, userID, noteID)
	}
	return permission, nil
}

// RequireAdminAccess returns the permission if it is ADMIN (held directly or
// via ownership), failing ErrAccessDenied otherwise.
func (a *AccessController) RequireAdminAccess(ctx context.Context, noteID, userID string) (Permission, error) {
	permission, err := a.PermissionOf(ctx, noteID, userID)
	if err != nil {
		return PermissionNone, err
	}
	if permission != PermissionAdmin {
		return PermissionNone, fmt.Errorf("%w: %s does not administer %s", ErrAccessDenied, userID, noteID)
	}
	return permission, nil
}
