// Package process provides the background-process ledger: the session-scoped
// view of shell commands that started attached to a tool call and may be
// detached from it.
package process

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/pkg/types"
)

// ErrNoSession is returned for operations before a session is attached.
var ErrNoSession = errors.New("ledger has no active session")

// Service is the process table the ledger observes and commands. The ledger
// owns no process state of its own.
type Service interface {
	ListProcesses(scope string) []*types.BackgroundProcess
	TerminateProcess(ctx context.Context, id string) error
}

// Snapshot is one ledger state publication. Seq is monotonically increasing;
// consumers must discard snapshots older than the newest they have applied.
type Snapshot struct {
	Seq                   uint64
	Processes             []*types.BackgroundProcess
	ForegroundToolCallIDs []string
	PendingTerminationIDs []string
}

// Ledger tracks which tool calls still hold a foreground shell command and
// mirrors the process table for exactly one session at a time.
type Ledger struct {
	svc Service

	mu          sync.Mutex
	sessionID   string
	foreground  map[string]string // toolCallID -> processID
	pendingKill map[string]bool   // processID -> optimistic marker
	subscribers map[uint64]chan Snapshot
	nextSubID   uint64
	seq         uint64
	last        *Snapshot

	unsubscribe []func()
}

// NewLedger creates a ledger bound to sessionID, observing svc. The ledger
// refreshes on process lifecycle events from bus.
func NewLedger(sessionID string, svc Service, bus *event.Bus) *Ledger {
	l := &Ledger{
		svc:         svc,
		sessionID:   sessionID,
		foreground:  make(map[string]string),
		pendingKill: make(map[string]bool),
		subscribers: make(map[uint64]chan Snapshot),
	}

	if bus != nil {
		for _, t := range []event.EventType{event.ProcessStarted, event.ProcessExited} {
			l.unsubscribe = append(l.unsubscribe, bus.Subscribe(t, func(e event.Event) {
				data, ok := e.Data.(event.ProcessData)
				if !ok {
					return
				}
				l.mu.Lock()
				match := data.SessionID == l.sessionID
				l.mu.Unlock()
				if match {
					l.Refresh()
				}
			}))
		}
	}

	return l
}

// Reset switches the active session, discarding all current foreground and
// pending state. A ledger is scoped to exactly one session at a time.
func (l *Ledger) Reset(sessionID string) {
	l.mu.Lock()
	l.sessionID = sessionID
	l.foreground = make(map[string]string)
	l.pendingKill = make(map[string]bool)
	l.last = nil
	l.mu.Unlock()

	l.Refresh()
}

// Subscribe returns a live feed of ledger snapshots. The current state is
// delivered first. The channel is closed when ctx is cancelled so the owner
// can release the listener; consumers must not rely on garbage collection.
func (l *Ledger) Subscribe(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 16)

	l.mu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = ch
	initial := l.buildSnapshotLocked()
	l.seq++
	initial.Seq = l.seq
	l.last = &initial
	l.mu.Unlock()

	ch <- initial

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subscribers, id)
		// Closed under the lock: publication also sends under the lock,
		// so no send can race the close.
		close(ch)
		l.mu.Unlock()
	}()

	return ch
}

// TrackForeground records that a tool call holds a foreground command.
func (l *Ledger) TrackForeground(toolCallID, processID string) {
	l.mu.Lock()
	l.foreground[toolCallID] = processID
	l.mu.Unlock()

	l.Refresh()
}

// SendToBackground explicitly detaches one tool call's command.
// Detaching a tool call that holds no foreground command is a no-op: the
// command may have finished the instant before, and that race is not an
// error.
func (l *Ledger) SendToBackground(toolCallID string) {
	l.mu.Lock()
	delete(l.foreground, toolCallID)
	l.mu.Unlock()

	l.Refresh()
}

// OnMessageSent detaches every foreground command. Called when the user
// sends a new message: the conversation must never block on a shell command
// still holding a tool call's foreground slot. Idempotent.
func (l *Ledger) OnMessageSent() {
	l.mu.Lock()
	changed := len(l.foreground) > 0
	if changed {
		l.foreground = make(map[string]string)
	}
	l.mu.Unlock()

	if changed {
		logging.ForSession(l.sessionID).Debug().Msg("auto-backgrounded foreground commands")
	}
	l.Refresh()
}

// Terminate requests termination of a process. The pending marker is set
// before the request so the UI reacts immediately; it is rolled back on
// failure so the user can retry. On success the marker stays until the feed
// reports the process out of running, avoiding a one-tick "alive again"
// flicker between the request and the removal event.
func (l *Ledger) Terminate(ctx context.Context, processID string) error {
	l.mu.Lock()
	if l.sessionID == "" {
		l.mu.Unlock()
		return ErrNoSession
	}
	l.pendingKill[processID] = true
	l.mu.Unlock()
	l.Refresh()

	if err := l.svc.TerminateProcess(ctx, processID); err != nil {
		l.mu.Lock()
		delete(l.pendingKill, processID)
		l.mu.Unlock()
		l.Refresh()
		return err
	}

	l.Refresh()
	return nil
}

// Close drops the ledger's event subscriptions.
func (l *Ledger) Close() {
	for _, unsub := range l.unsubscribe {
		unsub()
	}
}

// Refresh rebuilds the snapshot from the service and publishes it if anything
// actually changed. Pending-termination markers are cleared for processes no
// longer running, since an ID slot conceptually tied to the same tool call
// can be reused by a new process.
func (l *Ledger) Refresh() {
	l.mu.Lock()

	snap := l.buildSnapshotLocked()

	if l.last != nil && snapshotsEqual(l.last, &snap) {
		l.mu.Unlock()
		return
	}

	l.seq++
	snap.Seq = l.seq
	l.last = &snap

	// Sends stay under the lock so they cannot race a Subscribe teardown
	// closing the channel. All sends are non-blocking.
	for _, ch := range l.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow consumer: drop the oldest buffered snapshot. Seq lets
			// the consumer detect the gap.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
	l.mu.Unlock()
}

func (l *Ledger) buildSnapshotLocked() Snapshot {
	var processes []*types.BackgroundProcess
	if l.sessionID != "" {
		processes = l.svc.ListProcesses(l.sessionID)
	}
	sort.Slice(processes, func(i, j int) bool {
		return processes[i].ID < processes[j].ID
	})

	running := make(map[string]bool, len(processes))
	for _, p := range processes {
		if p.Status == types.ProcessRunning {
			running[p.ID] = true
		}
	}
	for id := range l.pendingKill {
		if !running[id] {
			delete(l.pendingKill, id)
		}
	}

	// Foreground entries whose process has finished no longer hold a slot.
	foreground := make([]string, 0, len(l.foreground))
	for toolCallID, processID := range l.foreground {
		if running[processID] {
			foreground = append(foreground, toolCallID)
		}
	}
	sort.Strings(foreground)

	pending := make([]string, 0, len(l.pendingKill))
	for id := range l.pendingKill {
		pending = append(pending, id)
	}
	sort.Strings(pending)

	return Snapshot{
		Processes:             processes,
		ForegroundToolCallIDs: foreground,
		PendingTerminationIDs: pending,
	}
}

// snapshotsEqual is the set-equality gate before publishing: same length and
// membership on every field means nothing actually changed downstream.
func snapshotsEqual(a, b *Snapshot) bool {
	if len(a.Processes) != len(b.Processes) ||
		len(a.ForegroundToolCallIDs) != len(b.ForegroundToolCallIDs) ||
		len(a.PendingTerminationIDs) != len(b.PendingTerminationIDs) {
		return false
	}
	for i, p := range a.Processes {
		q := b.Processes[i]
		if p.ID != q.ID || p.Status != q.Status {
			return false
		}
	}
	for i, id := range a.ForegroundToolCallIDs {
		if id != b.ForegroundToolCallIDs[i] {
			return false
		}
	}
	for i, id := range a.PendingTerminationIDs {
		if id != b.PendingTerminationIDs[i] {
			return false
		}
	}
	return true
}
