package remote

import (
	"errors"
	"fmt"
)

// Kind classifies a remote store failure for retry routing.
type Kind string

const (
	// KindTransient covers network faults and 5xx responses; the whole cycle
	// or item is eligible for retry.
	KindTransient Kind = "transient"
	// KindRejected covers permission and structural rejections; retrying the
	// same request cannot succeed.
	KindRejected Kind = "rejected"
	// KindDecode covers malformed remote payloads.
	KindDecode Kind = "decode"
)

// Error is the typed failure returned by the tree-store client.
type Error struct {
	Kind   Kind
	Path   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote %s (%s, status %d): %v", e.Kind, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s (%s): %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isKind(err error, kind Kind) bool {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind == kind
	}
	return false
}

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	return isKind(err, KindTransient)
}

// IsRejected reports whether the remote refused the request outright.
func IsRejected(err error) bool {
	return isKind(err, KindRejected)
}

// IsDecode reports whether a remote payload failed to parse.
func IsDecode(err error) bool {
	return isKind(err, KindDecode)
}
