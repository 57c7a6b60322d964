package model

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type ErrorCode string

const (
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeUserRejected        ErrorCode = "USER_REJECTED"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeStoreFailure        ErrorCode = "STORE_FAILURE"
	CodeLedgerRejected      ErrorCode = "LEDGER_REJECTED"
	CodeLedgerUnavailable   ErrorCode = "LEDGER_UNAVAILABLE"
	CodeAccessDenied        ErrorCode = "ACCESS_DENIED"
	CodeInternal            ErrorCode = "INTERNAL"
)

// Taxonomy sentinels. Component errors are marked with one of these (errors.Mark)
// so errors.Is holds regardless of how the error was wrapped on the way out.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrUserRejected        = errors.New("user rejected")
	ErrInvalidInput        = errors.New("invalid input")
	ErrStoreFailure        = errors.New("store failure")
	ErrLedgerRejected      = errors.New("ledger rejected")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrAccessDenied        = errors.New("access denied")
)

// ErrSessionInvalidated is returned by operations on a session that was discarded
// after an identity change.
var ErrSessionInvalidated = errors.Mark(errors.New("session invalidated"), ErrProviderUnavailable)

// kinds is ordered: the first matching sentinel wins. UserRejected precedes
// LedgerRejected because a declined transaction carries both marks.
var kinds = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrInvalidInput, CodeInvalidInput},
	{ErrUserRejected, CodeUserRejected},
	{ErrProviderUnavailable, CodeProviderUnavailable},
	{ErrAccessDenied, CodeAccessDenied},
	{ErrLedgerRejected, CodeLedgerRejected},
	{ErrLedgerUnavailable, CodeLedgerUnavailable},
	{ErrStoreFailure, CodeStoreFailure},
}

// KindOf returns the taxonomy code carried by err, or CodeInternal.
func KindOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	return CodeInternal
}

// Advice tells a caller what to do about a failure.
type Advice int

const (
	AdviceNone Advice = iota
	// AdviceRetry: the failure was transient; repeat the same operation.
	AdviceRetry
	// AdviceCorrect: fix the input and try again.
	AdviceCorrect
	// AdviceStop: do not retry without a change in circumstances.
	AdviceStop
)

func (a Advice) String() string {
	switch a {
	case AdviceRetry:
		return "retry"
	case AdviceCorrect:
		return "correct"
	case AdviceStop:
		return "stop"
	default:
		return "none"
	}
}

// AdviceFor maps err onto retry guidance.
func AdviceFor(err error) Advice {
	switch KindOf(err) {
	case "":
		return AdviceNone
	case CodeLedgerUnavailable, CodeStoreFailure, CodeLedgerRejected:
		return AdviceRetry
	case CodeInvalidInput:
		return AdviceCorrect
	default:
		return AdviceStop
	}
}

// Markf wraps a formatted error with the given taxonomy sentinel.
func Markf(sentinel error, format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), sentinel)
}

// MarkWrap wraps err with msg and marks it with sentinel. It returns nil for a nil err.
func MarkWrap(err error, sentinel error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), sentinel)
}

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code" yaml:"code"`
	Message string    `json:"message" yaml:"message"`
	Advice  string    `json:"advice,omitempty" yaml:"advice,omitempty"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// ToCoded projects err onto a CodedError. It returns nil for a nil err.
func ToCoded(err error) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce
	}
	return &CodedError{Code: KindOf(err), Message: err.Error(), Advice: AdviceFor(err).String()}
}
