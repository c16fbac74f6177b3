package relay

import (
	"errors"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrNoMedia is returned when a message carries neither a video nor a document.
	ErrNoMedia = errors.New("relay: message carries no video or document")
	// ErrInvalidDestination is returned for channel identifiers that are neither
	// a signed integer nor an @handle.
	ErrInvalidDestination = errors.New("relay: destination must be a numeric id or @handle")
	// ErrFloodLimit is returned when the configured flood retry bounds are exhausted.
	ErrFloodLimit = errors.New("relay: flood wait limit exceeded")
)

// PlatformError wraps a non-retryable rejection from the Bot API.
type PlatformError struct {
	Err error
}

func (e *PlatformError) Error() string {
	return "relay: platform rejected item: " + e.Reason()
}

func (e *PlatformError) Unwrap() error { return e.Err }

// Reason returns the API description when available.
func (e *PlatformError) Reason() string {
	if e == nil || e.Err == nil {
		return "unknown"
	}
	var apiErr *tele.Error
	if errors.As(e.Err, &apiErr) && apiErr.Description != "" {
		return apiErr.Description
	}
	return e.Err.Error()
}
