package ollama

import (
	"errors"
	"strings"
)

// ErrNonZeroExit matches every *CommandError.
var ErrNonZeroExit = errors.New("command exited with non-zero status")

// ErrUnavailable is returned by CheckAvailability when ollama cannot be started.
var ErrUnavailable = errors.New("ollama not found or not running")

// CommandError reports a synchronous operation whose process exited unsuccessfully.
type CommandError struct {
	Message  string // e.g. "ollama list failed"
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return e.Message + ": " + e.Stderr
}

// Is lets errors.Is(err, ErrNonZeroExit) match.
func (e *CommandError) Is(target error) bool {
	return target == ErrNonZeroExit
}

func newCommandError(message string, code int, stderr []byte) *CommandError {
	return &CommandError{Message: message, ExitCode: code, Stderr: strings.TrimSpace(string(stderr))}
}
