package cerr

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const ReasonValidationFailed = "VALIDATION_FAILED"

// NewValidationError is an InvalidArgument error with the VALIDATION_FAILED reason.
func NewValidationError(msg string) *Error {
	return NewReasonError(InvalidArgument, ReasonValidationFailed, msg, nil)
}

// WrapValidationError converts validator field errors into one
// InvalidArgument error carrying a Violation per failed field.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewValidationError(err.Error())
	}
	e := NewValidationError("request validation failed")
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		e.AddDetailMessageWithCode(msg, fe.Tag())
	}
	return e
}
