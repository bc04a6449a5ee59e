package fetchers

import (
	"errors"
	"fmt"
)

// Sentinel categories for fetch failures. Not-found is expected during
// iteration and diffing; a source error is fatal to the current
// operation.
var (
	ErrInvalidStory = errors.New("invalid story")
	ErrStorySource  = errors.New("story source error")
)

// Error describes a failure while fetching a story. It matches either
// ErrInvalidStory or ErrStorySource under errors.Is.
type Error struct {
	Key     int
	Message string
	Cause   error
	invalid bool
}

func (e *Error) Error() string {
	kind := "source error"
	if e.invalid {
		kind = "invalid story"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s for key %d: %s: %v", kind, e.Key, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s for key %d: %s", kind, e.Key, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if target == ErrInvalidStory {
		return e.invalid
	}
	if target == ErrStorySource {
		return !e.invalid
	}
	return false
}

// NewInvalidStory reports that no valid story exists for the key.
func NewInvalidStory(key int, message string) *Error {
	return &Error{Key: key, Message: message, invalid: true}
}

// NewSourceError reports that the source itself failed.
func NewSourceError(key int, message string, cause error) *Error {
	return &Error{Key: key, Message: message, Cause: cause}
}

// IsInvalidStory reports whether the error means the story does not
// exist at the source.
func IsInvalidStory(err error) bool {
	return errors.Is(err, ErrInvalidStory)
}
