package process

import (
	"strings"
)

// Invocation names a program and its ordered arguments.
// It is a value type; NewInvocation copies args so callers may reuse their slice.
type Invocation struct {
	Program string
	Args    []string
}

// NewInvocation builds an Invocation from a program and arguments.
func NewInvocation(program string, args ...string) Invocation {
	return Invocation{Program: program, Args: append([]string(nil), args...)}
}

// ParseCommandLine splits a command line on whitespace into program and arguments.
// Quoting is not interpreted. ok is false for blank input.
func ParseCommandLine(line string) (inv Invocation, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Invocation{}, false
	}
	return NewInvocation(fields[0], fields[1:]...), true
}

// String renders the invocation as it would be typed in a shell, without quoting.
func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Program
	}
	return i.Program + " " + strings.Join(i.Args, " ")
}
