// Package storage holds the errors shared by storage implementations.
package storage

const (
	// ErrNotFound is returned when a row does not exist or belongs to another
	// user. Callers cannot tell the two apart.
	ErrNotFound Error = "not found"
	// ErrUserExists is returned when the username is already registered.
	ErrUserExists Error = "user already exists"
	// ErrInvalidType is returned when an entry references a type the caller
	// does not own.
	ErrInvalidType Error = "invalid type"
	// ErrTypeInUse is returned when deleting a type that entries still
	// reference.
	ErrTypeInUse Error = "type in use"
)

// Error is an error type returned by the storage implementation.
type Error string

func (e Error) Error() string { return string(e) }
