package utils

import "fmt"

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrInvalidToken       = "INVALID_TOKEN"
	ErrInvalidCredentials = "INVALID_CREDENTIALS"

	// Registration errors
	ErrAlreadyRegistered = "ALREADY_REGISTERED"
	ErrInvalidNameLength = "INVALID_NAME_LENGTH"
	ErrUserNotFound      = "USER_NOT_FOUND"

	// Send errors
	ErrSenderNotRegistered   = "SENDER_NOT_REGISTERED"
	ErrReceiverNotRegistered = "RECEIVER_NOT_REGISTERED"
	ErrSelfSend              = "SELF_SEND"
	ErrBlocked               = "BLOCKED"
	ErrPaused                = "PAUSED"

	// Read-marking errors
	ErrMessageNotFound = "MESSAGE_NOT_FOUND"
	ErrAlreadyRead     = "ALREADY_READ"
	ErrNotReceiver     = "NOT_RECEIVER"
	ErrNotRegistered   = "NOT_REGISTERED"

	// Block relation errors
	ErrSelfBlock           = "SELF_BLOCK"
	ErrTargetNotRegistered = "TARGET_NOT_REGISTERED"
	ErrAlreadyBlocked      = "ALREADY_BLOCKED"
	ErrNotBlocked          = "NOT_BLOCKED"

	// Pause switch errors
	ErrNotOwner = "NOT_OWNER"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"

	ErrDatabase = "DATABASE_ERROR"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// Specific error creators for common cases
func NewUserNotFoundError(userID string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userID,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewMessageNotFoundError(messageID uint64) *AppError {
	return &AppError{
		Code:    ErrMessageNotFound,
		Message: fmt.Sprintf("Message not found: %d", messageID),
	}
}

func NewActorTimeoutError(actorName string) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
	}
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound, ErrMessageNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput, ErrInvalidCredentials, ErrInvalidNameLength,
		ErrSelfSend, ErrSelfBlock:
		return 400 // http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return 401 // http.StatusUnauthorized
	case ErrForbidden, ErrNotOwner, ErrNotReceiver, ErrBlocked,
		ErrNotRegistered, ErrSenderNotRegistered, ErrReceiverNotRegistered,
		ErrTargetNotRegistered:
		return 403 // http.StatusForbidden
	case ErrDuplicate, ErrAlreadyRegistered, ErrAlreadyBlocked,
		ErrNotBlocked, ErrAlreadyRead:
		return 409 // http.StatusConflict
	case ErrPaused:
		return 503 // http.StatusServiceUnavailable
	case ErrDatabase, ErrActorTimeout:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
