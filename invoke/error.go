package invoke

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an invocation error so adapters and callers can distinguish
// failure modes without parsing messages. The set is closed; every error the
// orchestrator hands to a protocol adapter carries one of these kinds.
type Kind string

const (
	// KindInputValidation means the raw input failed the tool's input contract.
	KindInputValidation Kind = "INPUT_VALIDATION"
	// KindOutputValidation means the handler's output failed the tool's output contract.
	KindOutputValidation Kind = "OUTPUT_VALIDATION"
	// KindToolExecution means the handler (or a veto hook) failed the call.
	KindToolExecution Kind = "TOOL_EXECUTION"
	// KindMiddlewareControl means a middleware misused the chain: a second
	// proceed call in one execution, or a timeout raised by the timeout wrapper.
	KindMiddlewareControl Kind = "MIDDLEWARE_CONTROL"
	// KindShortCircuit means a middleware ended the chain without calling
	// proceed and left no usable result under the reserved response key.
	KindShortCircuit Kind = "SHORT_CIRCUIT"
	// KindPluginInit means a plugin's init hook failed; fatal at startup.
	KindPluginInit Kind = "PLUGIN_INIT"
	// KindPluginStart means a plugin's start hook failed; fatal at startup.
	KindPluginStart Kind = "PLUGIN_START"
	// KindPluginHook means a secondary plugin hook failed. These are isolated
	// at the boundary that invoked them and never alter the primary outcome.
	KindPluginHook Kind = "PLUGIN_HOOK"
)

// PositionUnknown is used for Error.Position when the offending middleware
// index is not known (for example, the timeout wrapper does not know where it
// sits in the chain).
const PositionUnknown = -1

// Error is a classified invocation error. It flows from the pipeline to the
// orchestrator and on to the protocol adapter without losing its kind or,
// for middleware control errors, the offending middleware's position.
type Error struct {
	Kind     Kind
	Message  string
	Position int // middleware index for KindMiddlewareControl; PositionUnknown otherwise
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError builds a classified error wrapping cause.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Position: PositionUnknown, Cause: cause}
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Position: PositionUnknown}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors without a classification are
// reported as KindToolExecution: anything a middleware or handler returns
// that the pipeline did not raise itself failed the tool call.
func KindOf(err error) Kind {
	if ie, ok := AsError(err); ok {
		return ie.Kind
	}
	return KindToolExecution
}

// Classify wraps err as kind unless it already carries a classification.
func Classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return NewError(kind, "", err)
}
