package jobs

import (
	"errors"
	"fmt"
)

// ErrParse is matched by every extraction result that could not be turned
// into job records.
var ErrParse = errors.New("context too big, unable to parse jobs")

// ParseError describes why a model response was rejected.
type ParseError struct {
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", ErrParse, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", ErrParse, e.Message)
}

func (e *ParseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrParse}
	}
	return []error{ErrParse, e.Cause}
}
