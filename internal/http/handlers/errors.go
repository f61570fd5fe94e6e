package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, not on
// Message.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// ErrCodeSendFailed: the message and its fan-out were not stored.
	ErrCodeSendFailed = "send_failed"
	// ErrCodeMarkFailed: the unread marker could not be removed.
	ErrCodeMarkFailed = "mark_failed"
	ErrCodeListFailed = "list_failed"
	// ErrCodeTooManyUsers: the recipient list exceeds MAX_RECIPIENTS.
	ErrCodeTooManyUsers   = "too_many_recipients"
	ErrCodeNotImplemented = "not_implemented"
)
