package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Error types for structured error handling
type ErrorType string

const (
	ErrorTypeSpecUnavailable     ErrorType = "spec_unavailable"
	ErrorTypeSpecMalformed       ErrorType = "spec_malformed"
	ErrorTypeToolNotFound        ErrorType = "tool_not_found"
	ErrorTypeValidation          ErrorType = "validation_failed"
	ErrorTypeSessionRequired     ErrorType = "session_required"
	ErrorTypeSessionNotFound     ErrorType = "session_not_found"
	ErrorTypeForbiddenOrigin     ErrorType = "forbidden_origin"
	ErrorTypeResourceUnavailable ErrorType = "resource_unavailable"
	ErrorTypeUpstreamHTTP        ErrorType = "upstream_http_error"
	ErrorTypeUpstreamNetwork     ErrorType = "upstream_network_error"
	ErrorTypeDatabase            ErrorType = "database"
	ErrorTypeInternal            ErrorType = "internal"
)

type requestIDKey struct{}

// ServerError represents a structured error with context
type ServerError struct {
	Type      ErrorType `json:"kind"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *ServerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ServerError) Unwrap() error {
	return e.Cause
}

// Is matches any *ServerError of the same type, so sentinel-style checks work:
//
//	errors.Is(err, server.NewError(server.ErrorTypeToolNotFound, "", ""))
func (e *ServerError) Is(target error) bool {
	var other *ServerError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

// HTTPStatus maps the error type onto the status code used by the HTTP transport.
func (e *ServerError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeSessionRequired, ErrorTypeValidation, ErrorTypeSpecMalformed:
		return http.StatusBadRequest
	case ErrorTypeSessionNotFound, ErrorTypeToolNotFound:
		return http.StatusNotFound
	case ErrorTypeForbiddenOrigin:
		return http.StatusForbidden
	case ErrorTypeResourceUnavailable, ErrorTypeUpstreamHTTP, ErrorTypeUpstreamNetwork:
		return http.StatusBadGateway
	case ErrorTypeSpecUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new ServerError
func NewError(errType ErrorType, message string, details string) *ServerError {
	return &ServerError{
		Type:      errType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorWithContext creates a new ServerError carrying the request ID found in ctx
func NewErrorWithContext(ctx context.Context, errType ErrorType, message string, details string) *ServerError {
	err := NewError(errType, message, details)
	err.RequestID = RequestIDFromContext(ctx)
	return err
}

// Wrap wraps a standard error as a ServerError
func Wrap(err error, errType ErrorType, message string) *ServerError {
	if err == nil {
		return nil
	}

	wrapped := NewError(errType, message, err.Error())
	wrapped.Cause = err
	return wrapped
}

// WrapWithContext wraps a standard error as a ServerError with context
func WrapWithContext(ctx context.Context, err error, errType ErrorType, message string) *ServerError {
	wrapped := Wrap(err, errType, message)
	if wrapped != nil {
		wrapped.RequestID = RequestIDFromContext(ctx)
	}
	return wrapped
}

// WithRequestID stores a request ID for NewErrorWithContext and WrapWithContext.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// IsType checks if the error (or anything it wraps) is a ServerError of a specific type
func IsType(err error, errType ErrorType) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type == errType
	}
	return false
}

// GetType returns the error type if it's a ServerError, otherwise returns ErrorTypeInternal
func GetType(err error) ErrorType {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Type
	}
	return ErrorTypeInternal
}

// LogError logs the error at a level appropriate for its type
func LogError(logger *zap.Logger, err error) {
	if logger == nil || err == nil {
		return
	}

	fields := []zap.Field{zap.String("kind", string(GetType(err))), zap.Error(err)}
	var serverErr *ServerError
	if errors.As(err, &serverErr) && serverErr.RequestID != "" {
		fields = append(fields, zap.String("request_id", serverErr.RequestID))
	}

	switch GetType(err) {
	case ErrorTypeValidation, ErrorTypeSessionRequired, ErrorTypeSessionNotFound,
		ErrorTypeForbiddenOrigin, ErrorTypeToolNotFound:
		logger.Warn("request rejected", fields...)
	default:
		logger.Error("request failed", fields...)
	}
}
