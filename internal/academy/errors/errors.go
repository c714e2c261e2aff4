// Package errors defines the error taxonomy shared by the relay, payment and
// lead flows. Every typed error matches one sentinel through errors.Is, so
// the HTTP layer can map failures to status codes without type switches.
package errors

import (
	"errors"
	"fmt"
)

// Aliases so callers can import this package in place of the standard one.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

var (
	// ErrInvalidInput indicates missing or malformed required input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured indicates a deployment secret or endpoint is absent.
	ErrNotConfigured = errors.New("not configured")

	// ErrVendor indicates a downstream vendor answered with a non-success status.
	ErrVendor = errors.New("vendor error")

	// ErrTransport indicates a downstream vendor could not be reached.
	ErrTransport = errors.New("transport error")

	// ErrBadSignature indicates a webhook failed its authenticity check.
	ErrBadSignature = errors.New("bad signature")

	// ErrNotFound indicates a correlation id or lead lookup miss.
	ErrNotFound = errors.New("not found")
)

// ValidationError represents missing or malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConfigurationError represents a missing deployment secret.
type ConfigurationError struct {
	Component string
	Setting   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s is not set", e.Component, e.Setting)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrNotConfigured }

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(component, setting string) *ConfigurationError {
	return &ConfigurationError{Component: component, Setting: setting}
}

// RelayError carries a vendor's non-success response.
type RelayError struct {
	Vendor     string
	StatusCode int
	Body       string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s responded with status %d: %s", e.Vendor, e.StatusCode, e.Body)
}

func (e *RelayError) Is(target error) bool { return target == ErrVendor }

// TransportError wraps a network-level failure talking to a vendor.
type TransportError struct {
	Vendor string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Vendor, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// SignatureError reports a webhook signature mismatch. It never carries the
// expected digest.
type SignatureError struct {
	Source string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid %s signature", e.Source)
}

func (e *SignatureError) Is(target error) bool { return target == ErrBadSignature }

// NotFoundError represents a lookup miss.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}
