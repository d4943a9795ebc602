package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no banned terms have been found")

	// Validation failures carry the exact message shown to the client.
	ErrStreamIDRequired  = fmt.Errorf("Stream ID required")
	ErrMessageRequired   = fmt.Errorf("Stream ID and message required")
	ErrMessageTooLong    = fmt.Errorf("Message too long (max 500 characters)")
	ErrMessageIDRequired = fmt.Errorf("Message ID required")

	ErrStreamNotFound = fmt.Errorf("Stream not found")
	ErrNotAMember     = fmt.Errorf("You must join the chat first")
	ErrNotModerator   = fmt.Errorf("Insufficient permissions")

	// Infrastructure failures surface a generic message; the underlying
	// cause stays in the server log.
	ErrJoinFailed   = fmt.Errorf("Failed to join chat")
	ErrSendFailed   = fmt.Errorf("Failed to send message")
	ErrDeleteFailed = fmt.Errorf("Failed to delete message")

	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	ErrMessageNotFound     = fmt.Errorf("message not found")
)
