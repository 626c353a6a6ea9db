package apperror

import "errors"

// Kind classifies an error for callers that need to branch on it
// (e.g. re-query availability on KindConflict).
type Kind string

const (
	KindInternal          Kind = "internal"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindInvalidSlot       Kind = "invalid_slot"
	KindConflict          Kind = "conflict"
	KindInvalidState      Kind = "invalid_state"
	KindAlreadyFinalized  Kind = "already_finalized"
	KindAlreadyTerminal   Kind = "already_terminal"
	KindInvalidTransition Kind = "invalid_transition"
	KindReasonRequired    Kind = "reason_required"

	// KindConsistency marks a broken invariant found in stored data.
	// It is the only kind that is not recoverable by the caller.
	KindConsistency Kind = "consistency"
)

// AppError is a custom error type that carries a Kind and an optional wrapped cause.
type AppError struct {
	Kind    Kind   // Error category
	Message string // Caller-facing error message
	Err     error  // The underlying error, if any
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with a kind and message.
func New(kind Kind, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
	}
}

// Wrap creates a new AppError wrapping an existing error.
func Wrap(err error, kind Kind, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the Kind of the first AppError in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsFatal reports whether err signals a broken invariant.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindConsistency
}
