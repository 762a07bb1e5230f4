package sharing

import "context"

// NoteRecord is the slice of a note the collaboration core needs.
type NoteRecord struct {
	NoteID  string
	OwnerID string
	Title   string
}

// NoteStore resolves note ownership. Implementations return ErrNotFound for
// unknown notes and ErrUpstreamUnavailable (wrapped) for storage failures.
type NoteStore interface {
	OwnerAndTitle(ctx context.Context, noteID string) (NoteRecord, error)
}

// UserRecord is the slice of a user account the collaboration core needs.
type UserRecord struct {
	UserID      string
	Email       string
	DisplayName string
}

// UserDirectory resolves user accounts. Lookups return ErrNotFound for
// unknown users.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, userID string) (UserRecord, error)
}

// NotificationDispatcher records an in-app notification for a user.
// Dispatch is best-effort: callers log failures and never propagate them.
type NotificationDispatcher interface {
	Create(ctx context.Context, userID, title, message, notificationType, noteID string) error
}

// EmailJobQueue enqueues an asynchronous email delivery job. Enqueue failures
// are best-effort from the caller's perspective: logged, never propagated.
type EmailJobQueue interface {
	Enqueue(ctx context.Context, jobName string, payload map[string]any) error
}
