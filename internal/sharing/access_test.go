package sharing

import (
	"context"
	"errors"
	"testing"
)

func TestPermissionOfResolvesOwnerAsAdmin(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")

	permission, err := env.access.PermissionOf(context.Background(), "note-1", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if permission != PermissionAdmin {
		t.Fatalf("expected owner to resolve ADMIN, got %q", permission)
	}
}

func TestPermissionOfOwnershipWinsOverStaleGrant(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")

	// A stale duplicate row must never downgrade the owner.
	grant := Grant{NoteID: "note-1", UserID: "owner-1", Permission: PermissionRead, InvitedBy: "someone"}
	if err := env.grants.Create(context.Background(), grant); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}

	permission, err := env.access.PermissionOf(context.Background(), "note-1", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if permission != PermissionAdmin {
		t.Fatalf("expected ownership to win over stored grant, got %q", permission)
	}
}

func TestPermissionOfReturnsStoredGrant(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")

	tests := []struct {
		name       string
		permission Permission
	}{
		{name: "read", permission: PermissionRead},
		{name: "write", permission: PermissionWrite},
		{name: "admin", permission: PermissionAdmin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := "user-" + tt.name
			grant := Grant{NoteID: "note-1", UserID: userID, Permission: tt.permission, InvitedBy: "owner-1"}
			if err := env.grants.Create(context.Background(), grant); err != nil {
				t.Fatalf("unexpected grant error: %v", err)
			}

			permission, err := env.access.PermissionOf(context.Background(), "note-1", userID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if permission != tt.permission {
				t.Fatalf("expected %q, got %q", tt.permission, permission)
			}
		})
	}
}

func TestPermissionOfReturnsNoneWithoutGrant(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")

	permission, err := env.access.PermissionOf(context.Background(), "note-1", "stranger")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if permission != PermissionNone {
		t.Fatalf("expected no permission, got %q", permission)
	}
}

func TestPermissionOfUnknownNoteFailsNotFound(t *testing.T) {
	env := newTestEnvironment(t)

	_, err := env.access.PermissionOf(context.Background(), "missing", "user-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequireAccessDeniesStrangers(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")

	_, err := env.access.RequireAccess(context.Background(), "note-1", "stranger")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestRequireWriteAccessDeniesReaders(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")
	grant := Grant{NoteID: "note-1", UserID: "reader", Permission: PermissionRead, InvitedBy: "owner-1"}
	if err := env.grants.Create(context.Background(), grant); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}

	if _, err := env.access.RequireAccess(context.Background(), "note-1", "reader"); err != nil {
		t.Fatalf("reader should pass RequireAccess: %v", err)
	}
	_, err := env.access.RequireWriteAccess(context.Background(), "note-1", "reader")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for reader, got %v", err)
	}
}

func TestRequireAdminAccessDeniesWriters(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("note-1", "owner-1", "Plan")
	grant := Grant{NoteID: "note-1", UserID: "writer", Permission: PermissionWrite, InvitedBy: "owner-1"}
	if err := env.grants.Create(context.Background(), grant); err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}

	if _, err := env.access.RequireWriteAccess(context.Background(), "note-1", "writer"); err != nil {
		t.Fatalf("writer should pass RequireWriteAccess: %v", err)
	}
	_, err := env.access.RequireAdminAccess(context.Background(), "note-1", "writer")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for writer, got %v", err)
	}
}
