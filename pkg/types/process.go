package types

// ProcessStatus is the lifecycle state of a background process. The terminal
// states are absorbing: a process never returns to running.
type ProcessStatus string

const (
	ProcessRunning ProcessStatus = "running"
	ProcessExited  ProcessStatus = "exited"
	ProcessKilled  ProcessStatus = "killed"
	ProcessFailed  ProcessStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s ProcessStatus) Terminal() bool {
	return s == ProcessExited || s == ProcessKilled || s == ProcessFailed
}

// BackgroundProcess is a shell execution detached from its originating tool
// call but still owned by the session that spawned it.
type BackgroundProcess struct {
	ID         string        `json:"id"`
	ToolCallID string        `json:"toolCallID,omitempty"`
	Command    string        `json:"command,omitempty"`
	Status     ProcessStatus `json:"status"`
	ExitCode   *int          `json:"exitCode,omitempty"`
	StartedAt  int64         `json:"startedAt"`
	EndedAt    *int64        `json:"endedAt,omitempty"`
}
