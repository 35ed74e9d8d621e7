package command

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error matches exactly one of them with errors.Is.
var (
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidArguments  = errors.New("invalid command arguments")
	ErrProcessingFailure = errors.New("command processing failure")
	ErrUserRights        = errors.New("insufficient user rights")
)

// Registration errors.
var (
	ErrDuplicateTrigger = errors.New("duplicate trigger")
	ErrInvalidTrigger   = errors.New("invalid trigger")
	ErrCommandNotFound  = errors.New("command not found")
)

// Error is a command failure of a known kind.
type Error struct {
	// Kind is one of ErrInvalidCommand, ErrInvalidArguments,
	// ErrProcessingFailure or ErrUserRights.
	Kind error

	// Command is the argument string or trigger the error refers to.
	Command string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case ErrInvalidArguments:
		msg = fmt.Sprintf("arguments for command %q are invalid: %s", e.Command, e.Message)
	case ErrUserRights:
		msg = fmt.Sprintf("no rights to execute %q: %s", e.Command, e.Message)
	case ErrProcessingFailure:
		msg = fmt.Sprintf("command %q failed: %s", e.Command, e.Message)
	default:
		msg = fmt.Sprintf("command %q is invalid: %s", e.Command, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidCommand reports an unknown or malformed command.
func InvalidCommand(command, message string) error {
	return &Error{Kind: ErrInvalidCommand, Command: command, Message: message}
}

// InvalidArguments reports a known command called with bad arguments.
func InvalidArguments(command, message string) error {
	return &Error{Kind: ErrInvalidArguments, Command: command, Message: message}
}

// ProcessingFailure reports a command that could not complete.
func ProcessingFailure(command, message string, err error) error {
	return &Error{Kind: ErrProcessingFailure, Command: command, Message: message, Err: err}
}

// UserRights reports a user calling a command they may not use.
func UserRights(command, message string) error {
	return &Error{Kind: ErrUserRights, Command: command, Message: message}
}

// Declared reports whether err carries one of the declared error kinds.
func Declared(err error) bool {
	return errors.Is(err, ErrInvalidCommand) ||
		errors.Is(err, ErrInvalidArguments) ||
		errors.Is(err, ErrProcessingFailure) ||
		errors.Is(err, ErrUserRights)
}
