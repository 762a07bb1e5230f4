package sharing

import "errors"

// Failure taxonomy shared across the collaboration surface. Callers branch on
// these with errors.Is; anything else bubbling out of the facade is a bug.
var (
	// ErrAccessDenied indicates the acting user lacks sufficient permission.
	ErrAccessDenied = errors.New("sharing: access denied")
	// ErrNotFound indicates a note, grant, or user could not be located.
	ErrNotFound = errors.New("sharing: not found")
	// ErrDuplicateCollaborator indicates a grant already exists for the invitee.
	ErrDuplicateCollaborator = errors.New("sharing: duplicate collaborator")
	// ErrInvalidOperation indicates an attempt to remove or downgrade the owner.
	ErrInvalidOperation = errors.New("sharing: invalid operation")
	// ErrUpstreamUnavailable indicates the durable store or user directory failed.
	ErrUpstreamUnavailable = errors.New("sharing: upstream unavailable")
)
