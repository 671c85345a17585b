package process

// Status is the lifecycle state of one invocation.
//
//	Pending -> Running -> Succeeded | FailedNonZeroExit
//	Pending -> FailedToSpawn
type Status int

const (
	// StatusPending indicates the process has not yet started.
	StatusPending Status = iota
	// StatusRunning indicates the process is running.
	StatusRunning
	// StatusSucceeded indicates the process exited with code 0.
	StatusSucceeded
	// StatusFailedToSpawn indicates the OS could not start the program.
	StatusFailedToSpawn
	// StatusFailedNonZeroExit indicates the process exited unsuccessfully or was killed.
	StatusFailedNonZeroExit
)

// String returns a human-readable string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailedToSpawn:
		return "failed_to_spawn"
	case StatusFailedNonZeroExit:
		return "failed_non_zero_exit"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the invocation can no longer change state.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailedToSpawn || s == StatusFailedNonZeroExit
}

// StatusOf classifies a buffered result.
func StatusOf(out CapturedOutput) Status {
	switch {
	case out.SpawnErr != nil:
		return StatusFailedToSpawn
	case out.Success():
		return StatusSucceeded
	default:
		return StatusFailedNonZeroExit
	}
}
