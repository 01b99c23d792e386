package command

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand indicates the command name is not registered. The
	// lookup happens before any analyzer traffic.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrDuplicateCommand indicates a second registration under a name
	// already taken.
	ErrDuplicateCommand = errors.New("command already registered")

	// ErrNoActionAvailable indicates the analyzer offered no code action
	// matching what the command asked for at the given position.
	ErrNoActionAvailable = errors.New("no matching code action available")

	// ErrUnsupported indicates the analyzer did not advertise the
	// capability a command depends on.
	ErrUnsupported = errors.New("analyzer does not support this operation")
)

// InvalidArgumentsError reports arguments that failed schema validation.
// It is produced before any analyzer traffic.
type InvalidArgumentsError struct {
	Command string
	Reason  string
}

// Error implements the error interface.
func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Command, e.Reason)
}

func invalidArgs(command, format string, args ...any) *InvalidArgumentsError {
	return &InvalidArgumentsError{Command: command, Reason: fmt.Sprintf(format, args...)}
}
