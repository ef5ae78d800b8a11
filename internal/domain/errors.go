package domain

import "fmt"

// Error types for consistent error handling across the BFA.
// Each one maps to a single HTTP status in the handler layer.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing, invalid or expired session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "authentication required"
}

// ErrInvalidCredentials is returned by login for an unknown user and for a
// wrong password alike.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrConflict indicates a resource already exists (e.g. duplicate username).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidOperation indicates a well-formed request that is not allowed,
// such as an admin deleting their own account.
type ErrInvalidOperation struct {
	Message string
}

func (e *ErrInvalidOperation) Error() string {
	return e.Message
}

// ErrGateway indicates the messaging provider answered with a non-success status.
type ErrGateway struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e *ErrGateway) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway error [%s]: status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("gateway error [%s]: %v", e.Service, e.Err)
}

func (e *ErrGateway) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrConfiguration indicates a required setting (e.g. LINE access token) is missing.
type ErrConfiguration struct {
	Setting string
}

func (e *ErrConfiguration) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}
