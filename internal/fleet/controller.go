// Package fleet unifies sub-agent tasks and PTY terminal sessions under one
// addressable namespace. Terminal entries carry the "sess:" ID prefix; bare
// IDs are task IDs. The controller owns no state: it derives its view from
// the task and terminal services at query time.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/internal/shell"
	"github.com/lattice-dev/lattice/internal/task"
	"github.com/lattice-dev/lattice/pkg/types"
)

// KillAll is the sentinel target that terminates the whole fleet.
const KillAll = "all"

var (
	// ErrScopeRequired is returned for operations issued without a scope.
	ErrScopeRequired = errors.New("fleet scope is required")
	// ErrNotFound is returned when the target does not exist in the scope.
	ErrNotFound = errors.New("fleet target not found")
	// ErrTaskNotSteerable rejects steering a task-backed target. Tasks run
	// autonomously; only terminal sessions accept injected input.
	ErrTaskNotSteerable = errors.New("target is a task and cannot be steered; only sess:-prefixed terminal sessions accept input")
)

// TaskService is the sub-agent task side of the fleet.
type TaskService interface {
	ListDescendantTasks(scope string, statuses ...types.TaskStatus) ([]task.Info, error)
	TerminateDescendantTask(ctx context.Context, scope, taskID string) ([]string, error)
}

// TerminalService is the PTY session side of the fleet.
type TerminalService interface {
	ListSessions(scope string) []shell.SessionMeta
	GetSessionMeta(id string) *shell.SessionMeta
	SendInput(id string, data []byte) error
	Interrupt(id string) error
	Close(id string) error
}

// KillResult reports the outcome of a Kill call. Partial failure is normal:
// Killed holds every ID actually terminated (task IDs bare, terminal IDs
// prefixed), Errors maps each failed target to its error text. Success is
// true iff at least one target was killed or no target errored.
type KillResult struct {
	Success bool              `json:"success"`
	Killed  []string          `json:"killed"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Controller merges the task and terminal services into the fleet namespace.
type Controller struct {
	tasks      TaskService
	terminals  TerminalService
	bus        *event.Bus
	steerGrace time.Duration
}

func NewController(tasks TaskService, terminals TerminalService, bus *event.Bus, steerGrace time.Duration) *Controller {
	return &Controller{
		tasks:      tasks,
		terminals:  terminals,
		bus:        bus,
		steerGrace: steerGrace,
	}
}

// List returns the scope's fleet: every descendant task followed by every
// terminal session, as one sequence.
func (c *Controller) List(ctx context.Context, scope string) ([]types.FleetAgent, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}

	infos, err := c.tasks.ListDescendantTasks(scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	agents := make([]types.FleetAgent, 0, len(infos))
	for _, info := range infos {
		agents = append(agents, types.FleetAgent{
			ID:        info.TaskID,
			Type:      types.FleetTask,
			Label:     info.Title,
			Status:    string(info.Status),
			CreatedAt: info.CreatedAt,
		})
	}

	for _, meta := range c.terminals.ListSessions(scope) {
		status := "running"
		if !meta.Running {
			status = "exited"
		}
		agents = append(agents, types.FleetAgent{
			ID:        types.TerminalFleetID(meta.ID),
			Type:      types.FleetTerminal,
			Label:     meta.Label,
			Status:    status,
			CreatedAt: meta.CreatedAt,
		})
	}
	return agents, nil
}

// Kill terminates one fleet target, or the whole fleet when target is "all".
// Task termination cascades over descendants and the result enumerates every
// terminated ID; terminal termination is a direct close. A failing target
// never aborts the batch.
func (c *Controller) Kill(ctx context.Context, scope, target string) (*KillResult, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}

	res := &KillResult{Errors: make(map[string]string)}

	if target == KillAll {
		c.killAll(ctx, scope, res)
	} else if raw, isTerminal := types.SplitFleetID(target); isTerminal {
		c.killTerminal(raw, res)
	} else {
		c.killTask(ctx, scope, raw, res)
	}

	res.Success = len(res.Killed) > 0 || len(res.Errors) == 0
	if len(res.Errors) == 0 {
		res.Errors = nil
	}

	if len(res.Killed) > 0 && c.bus != nil {
		c.bus.Publish(event.Event{
			Type: event.FleetKilled,
			Data: event.FleetKilledData{Scope: scope, KilledIDs: res.Killed},
		})
	}
	return res, nil
}

func (c *Controller) killAll(ctx context.Context, scope string, res *KillResult) {
	infos, err := c.tasks.ListDescendantTasks(scope,
		types.TaskQueued, types.TaskRunning, types.TaskAwaitingReport)
	if err != nil {
		res.Errors[KillAll] = err.Error()
	} else {
		// Cascades overlap: a task killed as a descendant must not be
		// re-targeted.
		done := make(map[string]bool)
		for _, info := range infos {
			if done[info.TaskID] {
				continue
			}
			killed, err := c.tasks.TerminateDescendantTask(ctx, scope, info.TaskID)
			if err != nil {
				res.Errors[info.TaskID] = err.Error()
				continue
			}
			for _, id := range killed {
				done[id] = true
				res.Killed = append(res.Killed, id)
			}
		}
	}

	for _, meta := range c.terminals.ListSessions(scope) {
		c.killTerminal(meta.ID, res)
	}
}

func (c *Controller) killTask(ctx context.Context, scope, taskID string, res *KillResult) {
	killed, err := c.tasks.TerminateDescendantTask(ctx, scope, taskID)
	if err != nil {
		res.Errors[taskID] = err.Error()
		return
	}
	res.Killed = append(res.Killed, killed...)
}

func (c *Controller) killTerminal(rawID string, res *KillResult) {
	fleetID := types.TerminalFleetID(rawID)
	if err := c.terminals.Close(rawID); err != nil {
		res.Errors[fleetID] = err.Error()
		return
	}
	res.Killed = append(res.Killed, fleetID)
}

// Steer injects a new directive into a terminal session. Only terminal
// targets are steerable: a task target is rejected before any service call.
// With interrupt set, SIGINT is sent first and the controller waits the grace
// period so the previous command has observably stopped before the directive
// arrives. The directive is always submitted with a trailing newline.
func (c *Controller) Steer(ctx context.Context, target, message string, interrupt bool) error {
	raw, isTerminal := types.SplitFleetID(target)
	if !isTerminal {
		return fmt.Errorf("%s: %w", target, ErrTaskNotSteerable)
	}

	if c.terminals.GetSessionMeta(raw) == nil {
		return fmt.Errorf("%s: %w", target, ErrNotFound)
	}

	if interrupt {
		if err := c.terminals.Interrupt(raw); err != nil {
			return fmt.Errorf("failed to interrupt %s: %w", target, err)
		}
		select {
		case <-time.After(c.steerGrace):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !strings.HasSuffix(message, "\n") {
		message += "\n"
	}
	if err := c.terminals.SendInput(raw, []byte(message)); err != nil {
		return fmt.Errorf("failed to steer %s: %w", target, err)
	}
	logging.Debug().Str("target", target).Bool("interrupt", interrupt).Msg("steered terminal")
	return nil
}
