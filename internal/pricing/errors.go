package pricing

import "errors"

var (
	// ErrEmptyCart is returned when nothing billable remains.
	ErrEmptyCart = errors.New("pricing: nothing billable in cart")
	// ErrInvalidPlan is returned for plans other than oneTime and monthly.
	ErrInvalidPlan = errors.New("pricing: invalid plan")
	// ErrInvalidEmail is returned when the contact email is not syntactically valid.
	ErrInvalidEmail = errors.New("pricing: invalid email")
	// ErrMissingName is returned when the contact name is blank.
	ErrMissingName = errors.New("pricing: name is required")
)

// ValidationError describes input the caller can fix. Message is safe to show to users.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalid(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
