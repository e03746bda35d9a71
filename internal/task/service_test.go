package task

import (
	"context"
	"errors"
	"testing"

	"github.com/lattice-dev/lattice/pkg/types"
)

func mustSpawn(t *testing.T, s *Service, scope, parentID, title string, cancel context.CancelFunc) string {
	t.Helper()
	id, err := s.Spawn(scope, parentID, title, cancel)
	if err != nil {
		t.Fatalf("Spawn(%q, %q): %v", scope, title, err)
	}
	return id
}

func TestListDescendantTasks_DepthAnnotation(t *testing.T) {
	s := NewService()
	root := mustSpawn(t, s, "sess-1", "", "research", nil)
	child := mustSpawn(t, s, "sess-1", root, "read docs", nil)
	grandchild := mustSpawn(t, s, "sess-1", child, "summarize", nil)
	other := mustSpawn(t, s, "sess-1", "", "review", nil)
	mustSpawn(t, s, "sess-2", "", "unrelated scope", nil)

	infos, err := s.ListDescendantTasks("sess-1")
	if err != nil {
		t.Fatalf("ListDescendantTasks: %v", err)
	}
	if len(infos) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(infos))
	}

	depths := make(map[string]int)
	for _, info := range infos {
		depths[info.TaskID] = info.Depth
	}
	if depths[root] != 0 || depths[other] != 0 {
		t.Errorf("roots must have depth 0, got %v", depths)
	}
	if depths[child] != 1 {
		t.Errorf("child depth = %d, want 1", depths[child])
	}
	if depths[grandchild] != 2 {
		t.Errorf("grandchild depth = %d, want 2", depths[grandchild])
	}

	// Depth-first: the subtree of root comes out contiguous.
	if infos[0].TaskID != root || infos[1].TaskID != child || infos[2].TaskID != grandchild {
		t.Errorf("unexpected traversal order: %+v", infos)
	}
}

func TestListDescendantTasks_StatusFilterKeepsDepth(t *testing.T) {
	s := NewService()
	root := mustSpawn(t, s, "sess-1", "", "root", nil)
	child := mustSpawn(t, s, "sess-1", root, "child", nil)
	if err := s.UpdateStatus(child, types.TaskRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	infos, err := s.ListDescendantTasks("sess-1", types.TaskRunning)
	if err != nil {
		t.Fatalf("ListDescendantTasks: %v", err)
	}
	if len(infos) != 1 || infos[0].TaskID != child {
		t.Fatalf("expected only the running child, got %+v", infos)
	}
	if infos[0].Depth != 1 {
		t.Errorf("filtered view lost depth: got %d, want 1", infos[0].Depth)
	}
}

func TestTerminateDescendantTask_Cascades(t *testing.T) {
	s := NewService()

	var cancelled []string
	track := func(id string) context.CancelFunc {
		return func() { cancelled = append(cancelled, id) }
	}

	root := mustSpawn(t, s, "sess-1", "", "root", nil)
	child1 := mustSpawn(t, s, "sess-1", root, "child1", nil)
	child2 := mustSpawn(t, s, "sess-1", root, "child2", nil)
	grandchild := mustSpawn(t, s, "sess-1", child1, "grandchild", nil)
	s.tasks[root].cancel = track(root)
	s.tasks[grandchild].cancel = track(grandchild)

	// A finished descendant is skipped, not reported.
	if err := s.UpdateStatus(child2, types.TaskCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	terminated, err := s.TerminateDescendantTask(context.Background(), "sess-1", root)
	if err != nil {
		t.Fatalf("TerminateDescendantTask: %v", err)
	}

	want := map[string]bool{root: true, child1: true, grandchild: true}
	if len(terminated) != len(want) {
		t.Fatalf("terminated = %v, want ids %v", terminated, want)
	}
	for _, id := range terminated {
		if !want[id] {
			t.Errorf("unexpected terminated id %s", id)
		}
	}
	if len(cancelled) != 2 {
		t.Errorf("expected 2 cancel funcs invoked, got %v", cancelled)
	}

	infos, _ := s.ListDescendantTasks("sess-1", types.TaskTerminated)
	if len(infos) != 3 {
		t.Errorf("expected 3 terminated tasks in listing, got %+v", infos)
	}
}

func TestTerminateDescendantTask_Errors(t *testing.T) {
	s := NewService()
	root := mustSpawn(t, s, "sess-1", "", "root", nil)

	if _, err := s.TerminateDescendantTask(context.Background(), "", root); !errors.Is(err, ErrScopeRequired) {
		t.Errorf("empty scope: got %v, want ErrScopeRequired", err)
	}
	if _, err := s.TerminateDescendantTask(context.Background(), "sess-1", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("missing task: got %v, want ErrTaskNotFound", err)
	}
	// Wrong scope cannot reach another session's task.
	if _, err := s.TerminateDescendantTask(context.Background(), "sess-2", root); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("cross-scope: got %v, want ErrTaskNotFound", err)
	}
}

func TestUpdateStatus_TerminalStatesAbsorb(t *testing.T) {
	s := NewService()
	id := mustSpawn(t, s, "sess-1", "", "task", nil)

	if err := s.UpdateStatus(id, types.TaskFailed); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	// A later update must not resurrect the task.
	if err := s.UpdateStatus(id, types.TaskRunning); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	infos, _ := s.ListDescendantTasks("sess-1")
	if infos[0].Status != types.TaskFailed {
		t.Errorf("status = %s, want failed", infos[0].Status)
	}
}

func TestSpawn_UnknownParentRejected(t *testing.T) {
	s := NewService()
	if _, err := s.Spawn("sess-1", "missing", "orphan", nil); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("got %v, want ErrTaskNotFound", err)
	}
}
