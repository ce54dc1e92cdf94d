package bot

import (
	"errors"
	"fmt"

	"github.com/onnwee/infibot/db"
	"github.com/onnwee/infibot/geminiapi"
)

// ErrorClass categorizes a command failure and determines how it is surfaced
// to the user and logged.
type ErrorClass int

const (
	// ErrorClassUnknown is any failure not matching a known category. The user
	// sees a generic message; full detail goes to the log only.
	ErrorClassUnknown ErrorClass = iota
	// ErrorClassConfigMissing means a feature's credential is not configured.
	ErrorClassConfigMissing
	// ErrorClassPermission means the invoking user may not run the command.
	ErrorClassPermission
	// ErrorClassValidation means a malformed or unusable command argument.
	ErrorClassValidation
	// ErrorClassUpstream means an external service call failed, including a
	// successful call that returned an empty result.
	ErrorClassUpstream
	// ErrorClassStorage means the database was unavailable or busy.
	ErrorClassStorage
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassConfigMissing:
		return "config_missing"
	case ErrorClassPermission:
		return "permission_denied"
	case ErrorClassValidation:
		return "validation"
	case ErrorClassUpstream:
		return "upstream"
	case ErrorClassStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// CommandError is a classified failure raised by a command handler.
// Message is safe to show to the invoking user.
type CommandError struct {
	Class   ErrorClass
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CommandError) Unwrap() error { return e.Err }

// ErrConfigMissing reports a feature disabled by missing configuration.
func ErrConfigMissing(message string) error {
	return &CommandError{Class: ErrorClassConfigMissing, Message: message}
}

// ErrPermissionDenied reports an authorization failure.
func ErrPermissionDenied(message string) error {
	return &CommandError{Class: ErrorClassPermission, Message: message}
}

// ErrValidation reports a malformed command argument with a correction hint.
func ErrValidation(message string) error {
	return &CommandError{Class: ErrorClassValidation, Message: message}
}

// ErrUpstream wraps an external service failure.
func ErrUpstream(message string, err error) error {
	return &CommandError{Class: ErrorClassUpstream, Message: message, Err: err}
}

// Classify maps any error surfacing from a handler to its class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Class
	}
	if errors.Is(err, geminiapi.ErrEmptyResponse) {
		return ErrorClassUpstream
	}
	if db.IsBusy(err) {
		return ErrorClassStorage
	}
	return ErrorClassUnknown
}

// UserMessage maps an error to the text shown to the invoking user.
// Classified errors may include safe upstream detail; unclassified errors
// never leak their raw text.
func UserMessage(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		switch ce.Class {
		case ErrorClassConfigMissing, ErrorClassPermission, ErrorClassValidation:
			return ce.Message
		case ErrorClassUpstream:
			if ce.Err != nil {
				return fmt.Sprintf("%s: %v", ce.Message, ce.Err)
			}
			return ce.Message
		}
	}
	switch Classify(err) {
	case ErrorClassUpstream:
		return fmt.Sprintf("The upstream service returned an error: %v", err)
	case ErrorClassStorage:
		return "The database is busy. Please try again."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}
