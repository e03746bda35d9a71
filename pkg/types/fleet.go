package types

import "strings"

// TerminalIDPrefix disambiguates PTY-backed fleet entries from task IDs.
const TerminalIDPrefix = "sess:"

// FleetAgentType distinguishes the two kinds of fleet entries.
type FleetAgentType string

const (
	FleetTask     FleetAgentType = "task"
	FleetTerminal FleetAgentType = "terminal"
)

// TaskStatus is the lifecycle state of a sub-agent task.
type TaskStatus string

const (
	TaskQueued         TaskStatus = "queued"
	TaskRunning        TaskStatus = "running"
	TaskAwaitingReport TaskStatus = "awaiting_report"
	TaskCompleted      TaskStatus = "completed"
	TaskFailed         TaskStatus = "failed"
	TaskTerminated     TaskStatus = "terminated"
)

// Active reports whether the task can still be terminated.
func (s TaskStatus) Active() bool {
	return s == TaskQueued || s == TaskRunning || s == TaskAwaitingReport
}

// FleetAgent is a unifying view over sub-agent tasks and PTY sessions. It is
// derived at query time and never stored.
type FleetAgent struct {
	ID        string         `json:"id"`
	Type      FleetAgentType `json:"type"`
	Label     string         `json:"label"`
	Status    string         `json:"status"`
	CreatedAt int64          `json:"createdAt"`
}

// TerminalFleetID converts a raw PTY session ID to its fleet namespace form.
func TerminalFleetID(sessionID string) string {
	return TerminalIDPrefix + sessionID
}

// SplitFleetID returns the raw ID and whether the target is terminal-backed.
func SplitFleetID(id string) (raw string, terminal bool) {
	if strings.HasPrefix(id, TerminalIDPrefix) {
		return strings.TrimPrefix(id, TerminalIDPrefix), true
	}
	return id, false
}
