package engine

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error classes the engine can raise. The
// dispatcher maps each Kind to a JSON-RPC numeric error code; nothing below
// pkg/dispatch needs to know about wire codes at all.
type Kind int

const (
	// KindInvalidInput covers malformed engine-level input: empty text,
	// a top_k that is not positive, an unrecognized tier name.
	KindInvalidInput Kind = iota
	// KindInvalidParams covers malformed tool-call arguments caught before
	// they ever reach the engine (wrong type, missing required field).
	KindInvalidParams
	// KindEmbedderFailure covers the embedder returning an error.
	KindEmbedderFailure
	// KindStorageFailure covers the storage layer returning an error.
	KindStorageFailure
	// KindDegenerateVector covers a zero-norm vector encountered during
	// Matryoshka slicing or normalization.
	KindDegenerateVector
	// KindNotFound covers an operation addressed at an id that doesn't exist.
	KindNotFound
	// KindInternal covers anything that doesn't fit the above — a defect,
	// not a caller mistake.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidParams:
		return "invalid_params"
	case KindEmbedderFailure:
		return "embedder_failure"
	case KindStorageFailure:
		return "storage_failure"
	case KindDegenerateVector:
		return "degenerate_vector"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the engine's wrap-with-operation-context error, generalizing the
// teacher's root StoreError{Op, Err} idiom to carry an abstract Kind instead
// of being tied to the storage layer alone.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapErr attaches operation and kind context to err, the way the teacher's
// wrapError(op, err) does for StoreError.
func wrapErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind carried by err, defaulting to KindInternal for
// any error not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
