package core

import (
	"errors"
	"fmt"
)

var (
	// ErrResultUnavailable is returned by an instrument when the named result
	// does not currently exist.
	ErrResultUnavailable = errors.New("result unavailable")
	// ErrNoValues is returned when saving a measurement without any present reading.
	ErrNoValues = errors.New("measurement has no values")
	// ErrStatusRegression is returned when trying to move an uploaded
	// measurement back to not uploaded.
	ErrStatusRegression = errors.New("upload status can not be reverted")
	// ErrInvalidSettings is returned when a snapshot is missing its identity fields.
	ErrInvalidSettings = errors.New("invalid settings")
)

type ConnectionError struct {
	Host string
	Port int
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("can't connect to instrument %s:%d: %v", e.Host, e.Port, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	ID uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("measurement %d not found", e.ID)
}

// RejectedError is an application level error reported by the ERP.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upload rejected: %s", e.Message)
}

// TransportError wraps connection, timeout and decoding failures talking to the ERP.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upload transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
