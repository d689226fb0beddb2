package apperr

import "errors"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notice is a transient message for the person using the dashboard.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func (n Notice) IsZero() bool {
	return n.Message == ""
}

func Success(message string) Notice {
	return Notice{Level: LevelSuccess, Message: message}
}

// NoticeFor converts an operation error into the message shown to the user.
// Errors outside the taxonomy get a generic text so internals never leak.
func NoticeFor(err error, fallback string) Notice {
	if err == nil {
		return Notice{}
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return Notice{Level: LevelError, Message: appErr.Message}
	}
	if fallback == "" {
		fallback = "Something went wrong. Please try again."
	}
	return Notice{Level: LevelError, Message: fallback}
}
