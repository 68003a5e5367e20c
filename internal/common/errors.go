package common

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrData        = errors.New("data error")
	ErrConfig      = errors.New("config error")
	ErrTraining    = errors.New("training error")
	ErrNotTrained  = errors.New("model not trained")
	ErrPersistence = errors.New("persistence error")
)

// Error carries the kind of failure plus the operation and offending field.
type Error struct {
	Kind  error
	Op    string
	Field string
	Value any
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Field != "" {
		if e.Value != nil {
			msg += fmt.Sprintf(": %s=%v", e.Field, e.Value)
		} else {
			msg += ": " + e.Field
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DataError reports malformed or missing input data.
func DataError(op, field string, value any, format string, args ...any) error {
	return newError(ErrData, op, field, value, format, args...)
}

// ConfigError reports an invalid configuration value.
func ConfigError(op, field string, value any, format string, args ...any) error {
	return newError(ErrConfig, op, field, value, format, args...)
}

// TrainingError reports input a backend refuses to train on.
func TrainingError(op, field string, value any, format string, args ...any) error {
	return newError(ErrTraining, op, field, value, format, args...)
}

// NotTrainedError reports an operation that needs a trained model.
func NotTrainedError(op string) error {
	return &Error{Kind: ErrNotTrained, Op: op}
}

// PersistenceError wraps a save or load failure.
func PersistenceError(op string, err error) error {
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

func newError(kind error, op, field string, value any, format string, args ...any) error {
	e := &Error{Kind: kind, Op: op, Field: field, Value: value}
	if format != "" {
		e.Err = fmt.Errorf(format, args...)
	}
	return e
}
