package sharing

import (
	"context"
	"errors"
	"testing"

	"github.com/inkwell-labs/inkwell/backend/internal/presence"
)

func findCollaborator(t *testing.T, collaborators []Collaborator, userID string) Collaborator {
	t.Helper()
	for _, entry := range collaborators {
		if entry.UserID == userID {
			return entry
		}
	}
	t.Fatalf("collaborator %s not found in %#v", userID, collaborators)
	return Collaborator{}
}

func TestGetCollaboratorsOwnerOnly(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")

	collaborators, err := env.service.GetCollaborators(context.Background(),
		mustNoteID(t, "plan"), mustUserID(t, "owner-o"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collaborators) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(collaborators))
	}
	owner := collaborators[0]
	if !owner.IsOwner || owner.Permission != "admin" {
		t.Fatalf("expected synthesized ADMIN owner entry, got %#v", owner)
	}
	if owner.Online {
		t.Fatalf("owner should be offline without a session")
	}
	if owner.Cursor != nil {
		t.Fatalf("owner should have no cursor")
	}
}

func TestGetCollaboratorsDeniesStrangers(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")

	_, err := env.service.GetCollaborators(context.Background(),
		mustNoteID(t, "plan"), mustUserID(t, "stranger"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestCollaboratorLifecycle(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")
	env.users.add("user-a", "a@example.com")

	ctx := context.Background()
	noteID := mustNoteID(t, "plan")
	owner := mustUserID(t, "owner-o")
	userA := mustUserID(t, "user-a")

	if _, err := env.service.Invite(ctx, noteID, owner, "a@example.com", PermissionWrite); err != nil {
		t.Fatalf("unexpected invite error: %v", err)
	}
	permission, err := env.service.GetUserPermission(ctx, noteID, userA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if permission != PermissionWrite {
		t.Fatalf("expected WRITE, got %q", permission)
	}

	collaborators, err := env.service.Join(ctx, noteID, userA, mustConnectionID(t, "conn1"))
	if err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	if entry := findCollaborator(t, collaborators, "user-a"); !entry.Online {
		t.Fatalf("user-a should be online after join")
	}

	env.service.UpdateCursor(mustConnectionID(t, "conn1"), presence.Cursor{Line: 3, Column: 5})
	collaborators, err = env.service.GetCollaborators(ctx, noteID, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := findCollaborator(t, collaborators, "user-a")
	if entry.Cursor == nil || entry.Cursor.Line != 3 || entry.Cursor.Column != 5 {
		t.Fatalf("expected cursor {3,5}, got %#v", entry.Cursor)
	}

	env.service.Leave(mustConnectionID(t, "conn1"))
	collaborators, err = env.service.GetCollaborators(ctx, noteID, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry = findCollaborator(t, collaborators, "user-a")
	if entry.Online {
		t.Fatalf("user-a should be offline after leave")
	}
	if entry.Cursor != nil {
		t.Fatalf("cursor should be cleared after leave, got %#v", entry.Cursor)
	}
}

func TestDeferredInviteLeavesCollaboratorsUnchanged(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")

	ctx := context.Background()
	noteID := mustNoteID(t, "plan")
	owner := mustUserID(t, "owner-o")

	outcome, err := env.service.Invite(ctx, noteID, owner, "new@x.com", PermissionRead)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Status != InviteStatusDeferred {
		t.Fatalf("expected deferred, got %q", outcome.Status)
	}

	collaborators, err := env.service.GetCollaborators(ctx, noteID, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collaborators) != 1 {
		t.Fatalf("deferred invite must not add collaborators, got %d entries", len(collaborators))
	}
}

func TestWriteCollaboratorCannotInvite(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")
	env.users.add("user-a", "a@example.com")
	env.users.add("user-b", "b@example.com")

	ctx := context.Background()
	noteID := mustNoteID(t, "plan")

	if _, err := env.service.Invite(ctx, noteID, mustUserID(t, "owner-o"), "a@example.com", PermissionWrite); err != nil {
		t.Fatalf("unexpected invite error: %v", err)
	}
	_, err := env.service.Invite(ctx, noteID, mustUserID(t, "user-a"), "b@example.com", PermissionRead)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestJoinRequiresAccess(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")

	_, err := env.service.Join(context.Background(),
		mustNoteID(t, "plan"), mustUserID(t, "stranger"), mustConnectionID(t, "conn1"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	if env.registry.IsUserActive("plan", "stranger") {
		t.Fatalf("denied join must not register a session")
	}
}

func TestUpdateCursorUnknownConnectionIsNoOp(t *testing.T) {
	env := newTestEnvironment(t)

	if _, _, ok := env.service.UpdateCursor(mustConnectionID(t, "ghost"), presence.Cursor{Line: 1}); ok {
		t.Fatalf("unknown connection must be a no-op")
	}
	if _, _, ok := env.service.Leave(mustConnectionID(t, "ghost")); ok {
		t.Fatalf("unknown connection must be a no-op")
	}
}

func TestGetCollaboratedNotesListsGrants(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")
	env.notes.add("roadmap", "owner-r", "Roadmap")
	env.users.add("user-a", "a@example.com")

	ctx := context.Background()
	if _, err := env.service.Invite(ctx, mustNoteID(t, "plan"), mustUserID(t, "owner-o"), "a@example.com", PermissionWrite); err != nil {
		t.Fatalf("unexpected invite error: %v", err)
	}
	if _, err := env.service.Invite(ctx, mustNoteID(t, "roadmap"), mustUserID(t, "owner-r"), "a@example.com", PermissionRead); err != nil {
		t.Fatalf("unexpected invite error: %v", err)
	}

	collaborated, err := env.service.GetCollaboratedNotes(ctx, mustUserID(t, "user-a"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collaborated) != 2 {
		t.Fatalf("expected 2 collaborated notes, got %d", len(collaborated))
	}
	byNote := make(map[string]CollaboratedNote, len(collaborated))
	for _, entry := range collaborated {
		byNote[entry.NoteID] = entry
	}
	if byNote["plan"].Permission != "write" || byNote["roadmap"].Permission != "read" {
		t.Fatalf("unexpected permissions: %#v", byNote)
	}
}

func TestGetCollaborationStats(t *testing.T) {
	env := newTestEnvironment(t)
	env.notes.add("plan", "owner-o", "Plan")
	env.users.add("user-a", "a@example.com")

	ctx := context.Background()
	noteID := mustNoteID(t, "plan")
	owner := mustUserID(t, "owner-o")

	if _, err := env.service.Invite(ctx, noteID, owner, "a@example.com", PermissionWrite); err != nil {
		t.Fatalf("unexpected invite error: %v", err)
	}
	if _, err := env.service.Invite(ctx, noteID, owner, "new@x.com", PermissionRead); err != nil {
		t.Fatalf("unexpected invite error: %v", err)
	}
	if _, err := env.service.Join(ctx, noteID, mustUserID(t, "user-a"), mustConnectionID(t, "conn1")); err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}

	stats, err := env.service.GetCollaborationStats(ctx, noteID, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalCollaborators != 2 {
		t.Fatalf("expected owner + one grant, got %d", stats.TotalCollaborators)
	}
	if stats.OnlineCount != 1 {
		t.Fatalf("expected one online collaborator, got %d", stats.OnlineCount)
	}
	if stats.PendingInvitations != 1 {
		t.Fatalf("expected one pending invitation, got %d", stats.PendingInvitations)
	}
}
