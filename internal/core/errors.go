package core

import "errors"

// ErrCodeChannelExists is the EventError code for a taken channel name.
const ErrCodeChannelExists = "channel_exists"

var (
	// ErrInvalidArgument marks empty usernames, blank content and similar input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks references to channels that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrChannelExists is returned when a channel name is already taken.
	ErrChannelExists = errors.New("channel already exists")
	// ErrStorageFailure wraps persistence errors that abort a handler.
	ErrStorageFailure = errors.New("storage failure")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
