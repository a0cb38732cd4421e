package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrCancelled is returned when an operator declines a confirmation.
	ErrCancelled = errors.New("operation cancelled")

	// ErrConnection marks a store or provider that could not be reached.
	ErrConnection = errors.New("connection failed")

	// ErrProvider marks an embedding provider failure.
	ErrProvider = errors.New("embedding provider failed")

	// ErrSchema marks a schema guard failure.
	ErrSchema = errors.New("schema guard failed")

	// ErrMapping marks a sync job whose fields could not be transformed.
	ErrMapping = errors.New("field mapping failed")

	// ErrPersistence marks a failed write to either store.
	ErrPersistence = errors.New("persistence failed")

	// ErrEncoding marks a vector that cannot be encoded.
	ErrEncoding = errors.New("vector encoding failed")
)

// ConnectionError reports an unreachable store or provider.
type ConnectionError struct {
	Target string // "mysql", "mongo", "gemini", ...
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// ProviderClass says whether a provider failure may succeed on a later attempt.
type ProviderClass int

const (
	Retryable ProviderClass = iota
	Fatal
)

func (c ProviderClass) String() string {
	if c == Fatal {
		return "fatal"
	}
	return "retryable"
}

// ProviderError is a classified embedding provider failure.
type ProviderError struct {
	Provider   string
	Class      ProviderClass
	StatusCode int // 0 when no HTTP response was received
	Credential bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embedding (%s, status %d): %v", e.Provider, e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s embedding (%s): %v", e.Provider, e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// IsRetryable reports whether err is a provider failure worth retrying later.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Class == Retryable
}

// SchemaError reports a failed schema guard step.
type SchemaError struct {
	Table string
	Step  string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s on %s: %v", e.Step, e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// MappingError reports a sync job field that could not be transformed.
type MappingError struct {
	Queue Entity
	Field string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s.%s: %v", e.Queue, e.Field, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

func (e *MappingError) Is(target error) bool { return target == ErrMapping }

// PersistenceError reports a failed write.
type PersistenceError struct {
	Store string // "relational" or "document"
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// EncodingError reports a vector that cannot be rendered as a vector literal.
type EncodingError struct {
	Index  int // offending component, -1 for an empty vector
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Index < 0 {
		return "encode vector: " + e.Reason
	}
	return fmt.Sprintf("encode vector: component %d %s", e.Index, e.Reason)
}

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }
