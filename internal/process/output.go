package process

import (
	"fmt"
)

// NoExitCode is reported when a process could not be waited on or was
// terminated by a signal.
const NoExitCode = -1

// SpawnError reports that the OS refused to start a program
// (not found, permission denied, ...). Its message is the OS error text.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return e.Err.Error()
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// CapturedOutput is the result of a buffered run.
// A non-zero exit is not an error: callers inspect ExitCode.
type CapturedOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode *int  // nil when the process was signalled or never started
	SpawnErr error // *SpawnError when the program could not be started
}

// Success reports whether the process started and exited with code 0.
func (o CapturedOutput) Success() bool {
	return o.SpawnErr == nil && o.ExitCode != nil && *o.ExitCode == 0
}

// Code returns the exit code, or NoExitCode when there is none.
func (o CapturedOutput) Code() int {
	if o.ExitCode == nil {
		return NoExitCode
	}
	return *o.ExitCode
}

// Channel identifies which pipe a streamed line came from.
type Channel int

const (
	Stdout Channel = iota
	Stderr
)

func (c Channel) String() string {
	switch c {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// StreamedLine is one line of output from a streaming process.
type StreamedLine struct {
	Channel Channel
	Text    string
}

// Termination is delivered exactly once per stream, after the last line.
type Termination struct {
	ExitCode int   // NoExitCode if the process was signalled or could not be waited on
	Err      error // wait error other than a plain non-zero exit
}

// Success reports whether the stream ended with exit code 0.
func (t Termination) Success() bool {
	return t.ExitCode == 0 && t.Err == nil
}
