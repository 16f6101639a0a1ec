package agent

import (
	"errors"
	"fmt"

	"mibagent/internal/mib"
)

// Status is an SNMP error-status value returned for a failed request.
type Status int

const (
	StatusNoError     Status = 0
	StatusNoSuchName  Status = 2
	StatusGenErr      Status = 5
	StatusNoAccess    Status = 6
	StatusWrongType   Status = 7
	StatusWrongValue  Status = 10
	StatusNotWritable Status = 17
)

func (s Status) String() string {
	switch s {
	case StatusNoError:
		return "noError"
	case StatusNoSuchName:
		return "noSuchName"
	case StatusGenErr:
		return "genErr"
	case StatusNoAccess:
		return "noAccess"
	case StatusWrongType:
		return "wrongType"
	case StatusWrongValue:
		return "wrongValue"
	case StatusNotWritable:
		return "notWritable"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// RequestError aborts a whole request. Index is the 1-based position of
// the offending entry.
type RequestError struct {
	Status Status
	Index  int
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s at index %d: %v", e.Status, e.Index, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusOf extracts status and index from err. Errors that are not
// request errors report genErr at index 0.
func StatusOf(err error) (Status, int) {
	if err == nil {
		return StatusNoError, 0
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status, re.Index
	}
	return StatusGenErr, 0
}

func requestError(status Status, index int, msg string) *RequestError {
	var base error
	switch status {
	case StatusNoAccess:
		base = mib.ErrNotFound
	case StatusNotWritable:
		base = mib.ErrNotWritable
	case StatusWrongType:
		base = mib.ErrWrongType
	case StatusWrongValue:
		base = mib.ErrWrongValue
	default:
		return &RequestError{Status: status, Index: index, Err: errors.New(msg)}
	}
	return &RequestError{Status: status, Index: index, Err: fmt.Errorf("%s: %w", msg, base)}
}
