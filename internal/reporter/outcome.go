package reporter

import (
	"errors"
	"fmt"
)

// Local precondition failures. No request is sent when one of these occurs.
var (
	ErrCompanyCodeMissing = errors.New("Company code is not set. Please initialize the SDK with a valid company code.")
	ErrIdentifierMissing  = errors.New("No affiliate identifier found. Please set one before tracking events by opening a link from an affiliate.")
)

// Status classifies an Outcome.
type Status int

const (
	// StatusSuccess means the backend answered 200.
	StatusSuccess Status = iota
	// StatusFailure means the backend answered with another status.
	StatusFailure
	// StatusError means the request failed locally or in transport.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one report.
type Outcome struct {
	Status  Status
	Code    int
	Message string
	// Err is set for local precondition failures.
	Err error
}

// OK reports whether the backend accepted the report.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

func (o Outcome) String() string {
	return o.Message
}

func success(message string) Outcome {
	return Outcome{Status: StatusSuccess, Code: 200, Message: message}
}

func failure(code int, message string) Outcome {
	return Outcome{Status: StatusFailure, Code: code, Message: message}
}

func transportError(err error) Outcome {
	return Outcome{Status: StatusError, Message: err.Error()}
}

func precondition(err error) Outcome {
	return Outcome{Status: StatusError, Message: err.Error(), Err: err}
}
