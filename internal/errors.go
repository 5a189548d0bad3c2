package internal

import (
	"errors"
	"fmt"
)

// ConnectionError means the mailbox could not be reached or refused the
// credentials. A run that hits it has produced nothing.
type ConnectionError struct {
	Provider string
	Addr     string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s mailbox unreachable: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s mailbox %s unreachable: %v", e.Provider, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse message: " + e.Reason
	}
	return fmt.Sprintf("parse message: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

func IsPersistenceError(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
