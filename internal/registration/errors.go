package registration

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrRequired          = errors.New("field is required")
	ErrTaxIDLength       = errors.New("tax identifier must have exactly 10 digits")
	ErrInvalidCheckDigit = errors.New("invalid check digit")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrEmailDomain       = errors.New("email domain not accepted")
)

// Wizard transition errors.
var (
	ErrFirstStep           = errors.New("already on the first step")
	ErrLastStep            = errors.New("already on the last step")
	ErrNotConfirmationStep = errors.New("finalize is only available on the confirmation step")
	ErrSubmissionInFlight  = errors.New("a submission is already in progress")
	ErrAlreadySubmitted    = errors.New("registration already submitted")
	ErrActivityCodeLimit   = errors.New("at most 3 economic activity codes are allowed")
	ErrActivityCodeDup     = errors.New("economic activity code already selected")
	ErrContactLimit        = errors.New("at most 7 additional contacts are allowed")
	ErrContactIndex        = errors.New("contact index out of range")
	ErrDocumentKind        = errors.New("unknown document kind")
)

// ValidationError is the single failure reported for a step.
type ValidationError struct {
	Step    Step
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func fieldError(step Step, field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
