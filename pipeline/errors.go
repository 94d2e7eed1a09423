package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrServer           = errors.New("server error")
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrNetwork          = errors.New("network error")
	ErrConfig           = errors.New("request configuration error")
	ErrLogicalFailure   = errors.New("logical failure")

	// ErrBodyTooLarge is the cause of a NetworkError whose response body
	// exceeded Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

var outcomeSentinels = [outcomeCount]error{
	Unauthenticated:  ErrUnauthenticated,
	Forbidden:        ErrForbidden,
	NotFound:         ErrNotFound,
	ValidationError:  ErrValidation,
	ServerError:      ErrServer,
	UnexpectedStatus: ErrUnexpectedStatus,
	NetworkError:     ErrNetwork,
	ConfigError:      ErrConfig,
	LogicalFailure:   ErrLogicalFailure,
}

// Error is the rejection returned for every non-success outcome.
//
// Status is zero for ConfigError and for a NetworkError raised before any
// response arrived. Message is the text the
// user was shown. Err carries the underlying transport or encoding error, if
// any.
type Error struct {
	Outcome Outcome
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s (%d): %s: %v", e.Outcome, e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (%d): %s", e.Outcome, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Outcome, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Outcome, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Outcome.
func (e *Error) Is(target error) bool {
	if e.Outcome >= outcomeCount {
		return false
	}
	s := outcomeSentinels[e.Outcome]
	return s != nil && s == target
}

// OutcomeOf extracts the outcome from err. It reports Success for nil and
// false for errors that did not come from a Pipeline.
func OutcomeOf(err error) (Outcome, bool) {
	if err == nil {
		return Success, true
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Outcome, true
	}
	return 0, false
}
