package helper

import "fmt"

// Error wraps an error with the operation that produced it.
// It keeps the original error reachable for errors.Is and errors.As.
type Error struct {
	Operation string
	Original  error
}

// NewError creates a new Error for the given operation
func NewError(operation string, original error) error {
	return &Error{
		Operation: operation,
		Original:  original,
	}
}

func (e *Error) Error() string {
	if e.Original == nil {
		return e.Operation
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Original.Error())
}

func (e *Error) Unwrap() error {
	return e.Original
}
