// Package vaulterr defines the closed error taxonomy used across the vault
// engine, in the style of internal/graph/errors.go's sentinel +
// wrapper-struct pattern: callers classify with errors.Is/errors.As against
// package-level sentinels instead of type-switching on concrete types.
package vaulterr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for policy decisions (retry, surface, ignore).
type Kind int

const (
	// KindTransport covers HTTP/WebSocket transport failures. Retryable
	// for transfers, surfaced otherwise.
	KindTransport Kind = iota
	// KindAPINotFound is a remote 404, mapped to a domain-specific
	// RepoNotFound/FileNotFound at the call site; swallowed for delete.
	KindAPINotFound
	// KindAPIAlreadyExists is a remote 409. Surfaced; triggers auto-rename
	// under the AutoRename upload conflict policy.
	KindAPIAlreadyExists
	// KindInvalidPath is a local path validation failure.
	KindInvalidPath
	// KindInvalidName is a local name validation failure.
	KindInvalidName
	// KindRepoLocked is a state guard. It is computed into browser/details
	// status, never returned from an operation as a hard failure.
	KindRepoLocked
	// KindInvalidPassword is a cipher unlock/verify mismatch.
	KindInvalidPassword
	// KindDecryptFilename is a per-entry filename decryption failure; kept
	// as data on the entry, never propagated as a batch-aborting error.
	KindDecryptFilename
	// KindCanceled is a user/abort cancellation, treated as a non-error
	// success path by callers.
	KindCanceled
	// KindAutosaveNotPossible is raised internally by the autosave ticker
	// and silently ignored.
	KindAutosaveNotPossible
	// KindAlreadyLoading is a guard error: a load was requested while one
	// was already in flight.
	KindAlreadyLoading
	// KindNotDirty is a guard error: save was requested with nothing to
	// save.
	KindNotDirty
	// KindInvalidState is a guard error for an operation attempted from an
	// incompatible state machine state.
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAPINotFound:
		return "api_not_found"
	case KindAPIAlreadyExists:
		return "api_already_exists"
	case KindInvalidPath:
		return "invalid_path"
	case KindInvalidName:
		return "invalid_name"
	case KindRepoLocked:
		return "repo_locked"
	case KindInvalidPassword:
		return "invalid_password"
	case KindDecryptFilename:
		return "decrypt_filename"
	case KindCanceled:
		return "canceled"
	case KindAutosaveNotPossible:
		return "autosave_not_possible"
	case KindAlreadyLoading:
		return "already_loading"
	case KindNotDirty:
		return "not_dirty"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error is the concrete error type for all vault engine failures. It wraps
// a Kind sentinel alongside a user-facing message and optional extra
// context, mirroring the {code, message, extra?} remote error JSON shape.
type Error struct {
	Kind    Kind
	Message string
	Extra   map[string]string
	Err     error // optional wrapped cause, for errors.Unwrap
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vault: %s: %s", e.Kind, e.Message)
	}

	return fmt.Sprintf("vault: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is(err, vaulterr.Sentinel(Kind)) style matching by kind,
// and also supports matching a plain Kind-tagged sentinel against a wrapped
// *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}

	return false
}

// New constructs an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error with the given kind, wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Is reports whether err is a vaulterr.Error of the given kind, looking
// through wrapped errors via errors.As.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	return e.Kind == kind
}

// Sentinel package-level errors for direct errors.Is matching where a bare
// sentinel (rather than extracting Kind) is more idiomatic, mirroring
// graph.ErrNotFound etc.
var (
	ErrRepoNotFound     = &Error{Kind: KindAPINotFound, Message: "repo not found"}
	ErrFileNotFound     = &Error{Kind: KindAPINotFound, Message: "file not found"}
	ErrAlreadyExists    = &Error{Kind: KindAPIAlreadyExists, Message: "already exists"}
	ErrInvalidPassword  = &Error{Kind: KindInvalidPassword, Message: "invalid password"}
	ErrRepoLocked       = &Error{Kind: KindRepoLocked, Message: "repo is locked"}
	ErrCanceled         = &Error{Kind: KindCanceled, Message: "canceled"}
	ErrAlreadyLoading   = &Error{Kind: KindAlreadyLoading, Message: "already loading"}
	ErrNotDirty         = &Error{Kind: KindNotDirty, Message: "not dirty"}
	ErrInvalidState     = &Error{Kind: KindInvalidState, Message: "invalid state"}
)
