// Package services defines the business logic for stored user messages.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrTooManyRecipients is returned when a send names more recipients than
	// the configured cap.
	ErrTooManyRecipients = errors.New("too many recipients")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotImplemented is returned by BroadcastMessage, always.
	ErrNotImplemented = errors.New("broadcast is not implemented")
)
