package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/yaml-translator/pkg/log"
)

type ErrorType int

const (
	// ErrLoad: source or existing-translation fetch failed. Recoverable.
	ErrLoad ErrorType = iota
	// ErrCache: durable storage read/write/parse failed. Never surfaced.
	ErrCache
	// ErrDelivery: download or upload failed. Recoverable, retryable.
	ErrDelivery
	// ErrValidation: empty or invalid data or input.
	ErrValidation
	ErrNotFound
	ErrParse
	ErrEmpty
	ErrConfig
	ErrUnknown
)

type Error struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func New(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func Newf(errorType ErrorType, format string, args ...any) *Error {
	return New(errorType, fmt.Sprintf(format, args...))
}

func NewWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) WithContext(key string, value any) *Error {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrLoad:
		return "Load"
	case ErrCache:
		return "Cache"
	case ErrDelivery:
		return "Delivery"
	case ErrValidation:
		return "Validation"
	case ErrNotFound:
		return "NotFound"
	case ErrParse:
		return "Parse"
	case ErrEmpty:
		return "Empty"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

// IsErrorType reports whether any *Error in err's chain has the given type.
func IsErrorType(err error, errorType ErrorType) bool {
	for err != nil {
		var appErr *Error
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errorType {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// TypeOf returns the type of the outermost *Error in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return ErrUnknown, false
}

func WrapError(err error, errorType ErrorType, message string) *Error {
	return NewWithCause(errorType, message, err)
}

// Message returns the human-readable message of the outermost *Error,
// or err.Error() for foreign errors.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Cause != nil {
			return appErr.Message + ": " + Message(appErr.Cause)
		}
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// SafeExecute runs fn and converts a panic into an ErrUnknown error.
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = New(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}

// Handle logs err with a remediation hint and reports whether it was a
// typed application error.
func Handle(err error) bool {
	var appErr *Error
	if !errors.As(err, &appErr) {
		log.Error("Unknown error: %v", err)
		return false
	}
	log.Error("Error detail: %v | advice: %s", err, Advice(appErr))
	return true
}

func Advice(err *Error) string {
	switch err.Type {
	case ErrLoad, ErrNotFound:
		return "Check the language code and that the source repository is reachable"
	case ErrParse:
		return "The language file is not a flat YAML or JSON map of strings"
	case ErrEmpty:
		return "The language file contains no entries"
	case ErrCache:
		return "Check that the data directory is writable; progress is kept in memory meanwhile"
	case ErrDelivery:
		return "Check the bot token, chat id and network connectivity, then retry"
	case ErrValidation:
		return "Verify the request parameters"
	case ErrConfig:
		return "Check environment variables and the settings file"
	default:
		return "Review the detailed error information"
	}
}
