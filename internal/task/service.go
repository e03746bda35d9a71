// Package task owns the sub-agent task tree. Tasks are scoped to the session
// that spawned them and may spawn descendants of their own; termination of a
// task cascades over its subtree.
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/pkg/types"
)

var (
	// ErrScopeRequired is returned for operations issued without a scope.
	ErrScopeRequired = errors.New("task scope is required")
	// ErrTaskNotFound is returned when the task does not exist in the scope.
	ErrTaskNotFound = errors.New("task not found")
)

// Info is the query-time view of one task. Depth is the distance from a root
// task in the same scope.
type Info struct {
	TaskID    string           `json:"taskId"`
	Title     string           `json:"title"`
	Status    types.TaskStatus `json:"status"`
	CreatedAt int64            `json:"createdAt"`
	Depth     int              `json:"depth"`
}

type record struct {
	id        string
	scope     string
	parentID  string
	title     string
	status    types.TaskStatus
	createdAt int64
	cancel    context.CancelFunc
}

// Service is the in-memory task table.
type Service struct {
	mu    sync.Mutex
	tasks map[string]*record
}

func NewService() *Service {
	return &Service{tasks: make(map[string]*record)}
}

// Spawn registers a new queued task and returns its ID. parentID may be empty
// for a root task. cancel, when non-nil, is invoked on termination so the
// running sub-agent observes the kill.
func (s *Service) Spawn(scope, parentID, title string, cancel context.CancelFunc) (string, error) {
	if scope == "" {
		return "", ErrScopeRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID != "" {
		parent, ok := s.tasks[parentID]
		if !ok || parent.scope != scope {
			return "", fmt.Errorf("parent %s: %w", parentID, ErrTaskNotFound)
		}
	}

	id := ulid.Make().String()
	s.tasks[id] = &record{
		id:        id,
		scope:     scope,
		parentID:  parentID,
		title:     title,
		status:    types.TaskQueued,
		createdAt: time.Now().UnixMilli(),
		cancel:    cancel,
	}
	return id, nil
}

// UpdateStatus moves a task through its lifecycle. Terminal states are
// absorbing: updates on terminated/completed/failed tasks are ignored.
func (s *Service) UpdateStatus(taskID string, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}
	if !rec.status.Active() {
		return nil
	}
	rec.status = status
	return nil
}

// ListDescendantTasks returns the scope's task tree flattened in depth-first
// order, each entry annotated with its depth. When statuses is non-empty the
// result is filtered to those statuses; depth is still computed against the
// full tree so filtered views keep their shape.
func (s *Service) ListDescendantTasks(scope string, statuses ...types.TaskStatus) ([]Info, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	children := s.childIndexLocked(scope)

	wanted := func(st types.TaskStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if st == want {
				return true
			}
		}
		return false
	}

	var out []Info
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		rec := s.tasks[id]
		if wanted(rec.status) {
			out = append(out, Info{
				TaskID:    rec.id,
				Title:     rec.title,
				Status:    rec.status,
				CreatedAt: rec.createdAt,
				Depth:     depth,
			})
		}
		for _, child := range children[id] {
			walk(child, depth+1)
		}
	}
	for _, root := range children[""] {
		walk(root, 0)
	}
	return out, nil
}

// TerminateDescendantTask terminates a task and every descendant beneath it,
// returning all IDs actually terminated. Tasks already in a terminal state
// are skipped rather than reported as failures.
func (s *Service) TerminateDescendantTask(ctx context.Context, scope, taskID string) ([]string, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[taskID]
	if !ok || rec.scope != scope {
		return nil, fmt.Errorf("%s: %w", taskID, ErrTaskNotFound)
	}

	children := s.childIndexLocked(scope)

	var terminated []string
	var kill func(id string)
	kill = func(id string) {
		target := s.tasks[id]
		if target.status.Active() {
			target.status = types.TaskTerminated
			if target.cancel != nil {
				target.cancel()
			}
			terminated = append(terminated, id)
			logging.Debug().Str("taskID", id).Str("scope", scope).Msg("task terminated")
		}
		for _, child := range children[id] {
			kill(child)
		}
	}
	kill(taskID)
	return terminated, nil
}

// Remove drops finished tasks from the table. Active tasks are kept.
func (s *Service) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.tasks[taskID]; ok && !rec.status.Active() {
		delete(s.tasks, taskID)
	}
}

// childIndexLocked builds parentID -> child IDs for one scope, children
// ordered by creation time. Roots are indexed under the empty parent ID.
func (s *Service) childIndexLocked(scope string) map[string][]string {
	children := make(map[string][]string)
	for id, rec := range s.tasks {
		if rec.scope != scope {
			continue
		}
		children[rec.parentID] = append(children[rec.parentID], id)
	}
	for parent := range children {
		ids := children[parent]
		sort.Slice(ids, func(i, j int) bool {
			a, b := s.tasks[ids[i]], s.tasks[ids[j]]
			if a.createdAt != b.createdAt {
				return a.createdAt < b.createdAt
			}
			return a.id < b.id
		})
	}
	return children
}
