package auth

import (
	"errors"
	"fmt"
	"scrapebridge/internal/fetch"
	"scrapebridge/internal/graphql"
)

// AuthenticationError is returned when the institution rejected a step, the message is
// the one the institution reported when it reported one.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ConfigurationError is returned when a credential field the chosen path needs is empty.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required credential field: %s", e.Field)
}

// StateError is returned when an entry point is called in a state that does not accept it.
type StateError struct {
	Operation string
	State     State
	// InFlight is set when another entry point was still running.
	InFlight bool
}

func (e *StateError) Error() string {
	if e.InFlight {
		return fmt.Sprintf("%s is not allowed while another operation is running (state %s)", e.Operation, e.State)
	}
	return fmt.Sprintf("%s is not allowed in state %s", e.Operation, e.State)
}

// classify keeps the errors of the lower layers as they are and turns anything else
// the institution returned into an AuthenticationError with the same message.
func classify(err error) error {
	var (
		authErr      *AuthenticationError
		configErr    *ConfigurationError
		transportErr *fetch.TransportError
		graphqlErr   *graphql.GraphqlError
	)
	switch {
	case errors.As(err, &authErr),
		errors.As(err, &configErr),
		errors.As(err, &transportErr),
		errors.As(err, &graphqlErr):
		return err
	}
	return &AuthenticationError{Message: err.Error(), Err: err}
}
