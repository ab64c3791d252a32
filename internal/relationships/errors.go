package relationships

import "errors"

// Error kinds returned by the relationship graph. Callers match them with errors.Is;
// the wrapped message carries a short, user-safe detail.
var (
	// ErrNotFound indicates a referenced account or relationship record is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation that cannot be treated as a no-op.
	ErrConflict = errors.New("conflict")
	// ErrForbidden indicates the caller may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument indicates a malformed request such as a self-relationship.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrCorruptFriendship indicates a friendship group did not have exactly two members.
	ErrCorruptFriendship = errors.New("friendship group corrupted")
)
