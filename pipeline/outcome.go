package pipeline

import (
	"fmt"
	"net/http"

	"github.com/ledgerops/ledgergate/ui"
)

// Outcome classifies the result of one call.
type Outcome uint8

const (
	Success Outcome = iota
	Unauthenticated
	Forbidden
	NotFound
	ValidationError
	ServerError
	UnexpectedStatus
	NetworkError
	ConfigError
	LogicalFailure

	outcomeCount
)

var outcomeNames = [outcomeCount]string{
	Success:          "success",
	Unauthenticated:  "unauthenticated",
	Forbidden:        "forbidden",
	NotFound:         "not_found",
	ValidationError:  "validation_error",
	ServerError:      "server_error",
	UnexpectedStatus: "unexpected_status",
	NetworkError:     "network_error",
	ConfigError:      "config_error",
	LogicalFailure:   "logical_failure",
}

func (o Outcome) String() string {
	if o >= outcomeCount {
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
	return outcomeNames[o]
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	out := make([]Outcome, 0, outcomeCount)
	for o := Success; o < outcomeCount; o++ {
		out = append(out, o)
	}
	return out
}

// Classify maps an HTTP status to an outcome. It never returns
// NetworkError, ConfigError or LogicalFailure; those are decided before or
// after the status is known.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Success
	case status == http.StatusUnauthorized:
		return Unauthenticated
	case status == http.StatusForbidden:
		return Forbidden
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ValidationError
	case status >= 500 && status < 600:
		return ServerError
	default:
		return UnexpectedStatus
	}
}

// Severity is the notification severity used when reporting o to the user.
func (o Outcome) Severity() ui.Severity {
	switch o {
	case Success:
		return ui.SeverityInfo
	case Unauthenticated, NotFound, ValidationError:
		return ui.SeverityWarning
	default:
		return ui.SeverityError
	}
}

// DefaultMessage is shown when the server supplied no message of its own.
func (o Outcome) DefaultMessage(status int) string {
	switch o {
	case Unauthenticated:
		return "Session expired, please log in again"
	case Forbidden:
		return "You do not have permission to perform this operation"
	case NotFound:
		return "The requested resource does not exist"
	case ValidationError:
		return "Invalid request parameters"
	case ServerError:
		return "Internal server error"
	case UnexpectedStatus:
		return fmt.Sprintf("Request failed (%d)", status)
	case NetworkError:
		return "Network connection failed, please check your network"
	case ConfigError:
		return "Request configuration error"
	case LogicalFailure:
		return "Operation failed"
	default:
		return ""
	}
}
