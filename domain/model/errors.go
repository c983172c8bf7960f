package model

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrUnknownPlatform    = errors.New("unknown platform")
	ErrPlatformDisabled   = errors.New("platform disabled")
	ErrJobNotFound        = errors.New("job not found")
	ErrUnknownJobType     = errors.New("unknown job type")

	ErrValidation        = errors.New("validation failed")
	ErrUnsupported       = errors.New("operation not supported by platform")
	ErrNotImplemented    = errors.New("platform not implemented")
	ErrAuth              = errors.New("platform authentication failed")
	ErrReconnectRequired = errors.New("platform must be reconnected")
	ErrRateLimited       = errors.New("platform rate limit reached")
	ErrTransient         = errors.New("transient platform error")
	ErrProtocol          = errors.New("platform rejected request")
)

// ErrorKind classifies a platform failure.
type ErrorKind string

const (
	KindAuth           ErrorKind = "auth"
	KindProtocol       ErrorKind = "protocol"
	KindTransient      ErrorKind = "transient"
	KindValidation     ErrorKind = "validation"
	KindRateLimited    ErrorKind = "rate_limited"
	KindUnsupported    ErrorKind = "unsupported"
	KindNotImplemented ErrorKind = "not_implemented"
)

// Retryable reports whether the queue may run the job again after this kind of failure.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTransient, KindRateLimited, KindAuth:
		return true
	}
	return false
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindProtocol:
		return ErrProtocol
	case KindTransient:
		return ErrTransient
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	case KindUnsupported:
		return ErrUnsupported
	case KindNotImplemented:
		return ErrNotImplemented
	}
	return ErrProtocol
}

// PlatformError is a classified failure raised inside an adapter or token manager.
// Code carries the platform's own error code untouched.
type PlatformError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *PlatformError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *PlatformError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// NewPlatformError builds a PlatformError with a formatted message.
func NewPlatformError(kind ErrorKind, code string, format string, args ...interface{}) *PlatformError {
	return &PlatformError{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err, falling back on the sentinels and finally transient.
func KindOf(err error) ErrorKind {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrNotImplemented):
		return KindNotImplemented
	case errors.Is(err, ErrAuth), errors.Is(err, ErrReconnectRequired):
		return KindAuth
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	}
	return KindTransient
}
