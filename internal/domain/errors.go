package domain

import "errors"

var (
	// ErrInvalidArgument indicates a missing or malformed identifier or value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound indicates the referenced node or project does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInconsistent indicates a dangling parent reference outside orphan
	// promotion, a parent cycle, or a tree depth that disagrees with the chain.
	ErrInconsistent = errors.New("inconsistent scenario tree")

	// ErrDataCorruption indicates a stored payload that cannot be decoded.
	ErrDataCorruption = errors.New("corrupt scenario data")

	// ErrConflict indicates a lost concurrent update or a write against a
	// node whose status forbids it.
	ErrConflict = errors.New("conflict")
)

// ErrorKind classifies an error into the engine's taxonomy.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "INVALID_ARGUMENT"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindInconsistent    ErrorKind = "INCONSISTENT"
	KindDataCorruption  ErrorKind = "DATA_CORRUPTION"
	KindConflict        ErrorKind = "CONFLICT"
	KindInternal        ErrorKind = "INTERNAL"
)

// KindOf reports which taxonomy entry err belongs to. Errors that wrap none
// of the sentinels are KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInconsistent):
		return KindInconsistent
	case errors.Is(err, ErrDataCorruption):
		return KindDataCorruption
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
