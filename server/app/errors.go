package app

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrMessageNotFound is returned by a Deleter when the message is already gone.
	ErrMessageNotFound = errors.New("message not found.")
	ErrInvalidName     = errors.New("invalid collection name.")
	// ErrChannelNotAccessible is returned by a ChannelResolver for a channel the user cannot see.
	ErrChannelNotAccessible = errors.New("channel not accessible.")
)

// CorruptDataError reports a stored document that exists but cannot be decoded as the
// expected collection. It is never replaced by a default.
type CorruptDataError struct {
	Collection string
	Err        error
}

func (e *CorruptDataError) Error() string {
	return fmt.Sprintf("collection %s is corrupt: %v", e.Collection, e.Err)
}

func (e *CorruptDataError) Unwrap() error {
	return e.Err
}

// ResourceAccessError reports a document that could not be created, read or written.
type ResourceAccessError struct {
	Collection string
	Op         string
	Err        error
}

func (e *ResourceAccessError) Error() string {
	return fmt.Sprintf("failed to %s collection %s: %v", e.Op, e.Collection, e.Err)
}

func (e *ResourceAccessError) Unwrap() error {
	return e.Err
}

// IsCorruptData tells whether err, or anything it wraps, is a CorruptDataError.
func IsCorruptData(err error) bool {
	var corrupt *CorruptDataError
	return errors.As(err, &corrupt)
}

// IsResourceAccess tells whether err, or anything it wraps, is a ResourceAccessError.
func IsResourceAccess(err error) bool {
	var access *ResourceAccessError
	return errors.As(err, &access)
}
