package service

import (
	"errors"
	"fmt"
)

// ErrMethodNotAllowed is returned for ingest requests other than GET or POST.
var ErrMethodNotAllowed = errors.New("method not allowed")

// ErrInvalidJSON marks a body that is not a JSON object.
var ErrInvalidJSON = errors.New("invalid json")

// ValidationError reports a missing or unparseable payload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Field)
}

func missingField(name string) *ValidationError {
	return &ValidationError{Field: name, Message: "Missing field"}
}

func invalidField(name string) *ValidationError {
	return &ValidationError{Field: name, Message: "Invalid field"}
}
