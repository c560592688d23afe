// Package errs defines the storage engine's failure taxonomy.
package errs

import "fmt"

// Kind classifies a failure from the storage engine. All kinds except
// Internal are recoverable at the API boundary.
type Kind int

const (
	// Io covers underlying file/OS failures, propagated as-is.
	Io Kind = iota
	// Corruption covers CRC mismatches, bad magic, and impossible offsets.
	Corruption
	// NotFound is a normal negative read result.
	NotFound
	// Expired is a normal negative read result for a TTL'd entry.
	Expired
	// InvalidArgument covers empty keys and over-size keys/values.
	InvalidArgument
	// AlreadyOpen is returned for a second Open on the same data_dir.
	AlreadyOpen
	// Internal marks an invariant violation; it is not recoverable.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case Corruption:
		return "corruption"
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case InvalidArgument:
		return "invalid_argument"
	case AlreadyOpen:
		return "already_open"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the engine's wrapped error type. Path and Offset are populated
// for Corruption errors surfaced during recovery.
type Error struct {
	Kind   Kind
	Path   string
	Offset int64
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s offset=%d)", e.Kind, e.Msg, e.Path, e.Offset)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.ErrNotFound) style matching: any *Error
// target with the same Kind matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WrapCorruption builds a Corruption error carrying the offending path and
// byte offset, per the engine's recovery-error contract.
func WrapCorruption(path string, offset int64, msg string, cause error) *Error {
	return &Error{Kind: Corruption, Path: path, Offset: offset, Msg: msg, Cause: cause}
}

// Sentinels for errors.Is comparisons against a bare kind.
var (
	ErrNotFound        = &Error{Kind: NotFound, Msg: "key not found"}
	ErrExpired         = &Error{Kind: Expired, Msg: "key expired"}
	ErrInvalidArgument = &Error{Kind: InvalidArgument, Msg: "invalid argument"}
	ErrAlreadyOpen     = &Error{Kind: AlreadyOpen, Msg: "data directory already open"}
	ErrInternal        = &Error{Kind: Internal, Msg: "internal invariant violation"}
)
