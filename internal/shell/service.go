// Package shell owns the process table and terminal sessions spawned by agent
// sessions. It is the authoritative side of the background-process ledger and
// the terminal half of the fleet namespace.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"mvdan.cc/sh/v3/syntax"

	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/pkg/types"
)

const (
	// SigkillTimeout is how long a process gets to honor SIGTERM before
	// the whole process group is killed.
	SigkillTimeout = 200 * time.Millisecond

	// MaxBufferedOutput caps the per-session output ring.
	MaxBufferedOutput = 256 * 1024
)

var (
	// ErrNotFound is returned for unknown process or session IDs.
	ErrNotFound = errors.New("not found")
)

// SessionMeta describes a terminal session.
type SessionMeta struct {
	ID        string `json:"id"`
	Scope     string `json:"scope"`
	Label     string `json:"label"`
	Slug      string `json:"slug"`
	CreatedAt int64  `json:"createdAt"`
	Running   bool   `json:"running"`
}

// Service manages shell processes and terminal sessions. Processes are
// one-shot commands attached to tool calls; terminals are long-lived shells
// that accept injected input.
type Service struct {
	shell string
	bus   *event.Bus

	mu        sync.Mutex
	processes map[string]*process
	terminals map[string]*terminal
}

type process struct {
	info  *types.BackgroundProcess
	scope string
	cmd   *exec.Cmd
	done  chan struct{}
}

type terminal struct {
	meta  SessionMeta
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// NewService creates a shell service.
func NewService(bus *event.Bus) *Service {
	return &Service{
		shell:     detectShell(),
		bus:       bus,
		processes: make(map[string]*process),
		terminals: make(map[string]*terminal),
	}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

// validateCommand rejects command lines that do not parse as shell syntax,
// before anything is spawned.
func validateCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return errors.New("empty command")
	}
	parser := syntax.NewParser()
	if _, err := parser.Parse(strings.NewReader(command), ""); err != nil {
		return fmt.Errorf("invalid shell command: %w", err)
	}
	return nil
}

// StartProcess spawns a shell command attached to a tool call. The process
// runs in its own process group so the whole tree can be terminated.
func (s *Service) StartProcess(ctx context.Context, scope, toolCallID, command, workDir string) (*types.BackgroundProcess, error) {
	if scope == "" {
		return nil, errors.New("scope required")
	}
	if err := validateCommand(command); err != nil {
		return nil, err
	}

	cmd := exec.Command(s.shell, "-c", command)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	info := &types.BackgroundProcess{
		ID:         ulid.Make().String(),
		ToolCallID: toolCallID,
		Command:    command,
		Status:     types.ProcessRunning,
		StartedAt:  time.Now().UnixMilli(),
	}

	p := &process{info: info, scope: scope, cmd: cmd, done: make(chan struct{})}

	s.mu.Lock()
	s.processes[info.ID] = p
	s.mu.Unlock()

	s.publish(event.ProcessStarted, scope, info)

	go s.reap(p)

	return s.snapshotProcess(p), nil
}

// reap waits for process exit and records the terminal status. Killed status
// is only set by TerminateProcess; everything else is exited or failed.
func (s *Service) reap(p *process) {
	err := p.cmd.Wait()

	s.mu.Lock()
	if p.info.Status == types.ProcessRunning {
		code := 0
		if p.cmd.ProcessState != nil {
			code = p.cmd.ProcessState.ExitCode()
		}
		p.info.ExitCode = &code

		switch {
		case err == nil:
			p.info.Status = types.ProcessExited
		case p.cmd.ProcessState != nil && p.cmd.ProcessState.Exited():
			p.info.Status = types.ProcessExited
		default:
			p.info.Status = types.ProcessFailed
		}
	}
	now := time.Now().UnixMilli()
	p.info.EndedAt = &now
	scope := p.scope
	info := s.snapshotProcessLocked(p)
	s.mu.Unlock()

	close(p.done)
	s.publish(event.ProcessExited, scope, info)
}

// ListProcesses returns the process table for one scope.
func (s *Service) ListProcesses(scope string) []*types.BackgroundProcess {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*types.BackgroundProcess
	for _, p := range s.processes {
		if p.scope == scope {
			out = append(out, s.snapshotProcessLocked(p))
		}
	}
	return out
}

// GetProcess returns one process by ID.
func (s *Service) GetProcess(id string) (*types.BackgroundProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.processes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.snapshotProcessLocked(p), nil
}

// TerminateProcess stops a process: SIGTERM to the group, SIGKILL after the
// grace timeout. Terminating an already-finished process is an error so the
// caller can roll back optimistic state.
func (s *Service) TerminateProcess(ctx context.Context, id string) error {
	s.mu.Lock()
	p, ok := s.processes[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if p.info.Status != types.ProcessRunning {
		s.mu.Unlock()
		return fmt.Errorf("process %s already %s", id, p.info.Status)
	}
	p.info.Status = types.ProcessKilled
	cmd := p.cmd
	s.mu.Unlock()

	killGroup(cmd)

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Remove drops a finished process from the table.
func (s *Service) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.processes[id]; ok && p.info.Status.Terminal() {
		delete(s.processes, id)
	}
}

// StartTerminal spawns a long-lived shell session that accepts injected
// input. The command is the shell invocation; an empty command starts the
// user's shell.
func (s *Service) StartTerminal(ctx context.Context, scope, label, command string) (*SessionMeta, error) {
	if scope == "" {
		return nil, errors.New("scope required")
	}

	var cmd *exec.Cmd
	if command == "" {
		cmd = exec.Command(s.shell)
	} else {
		if err := validateCommand(command); err != nil {
			return nil, err
		}
		cmd = exec.Command(s.shell, "-c", command)
	}
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start terminal: %w", err)
	}

	term := &terminal{
		meta: SessionMeta{
			ID:        ulid.Make().String(),
			Scope:     scope,
			Label:     label,
			Slug:      slugify(label),
			CreatedAt: time.Now().UnixMilli(),
			Running:   true,
		},
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.terminals[term.meta.ID] = term
	s.mu.Unlock()

	go func() {
		cmd.Wait()
		s.mu.Lock()
		term.meta.Running = false
		s.mu.Unlock()
		close(term.done)
	}()

	return ptrMeta(term.meta), nil
}

// ListSessions returns terminal sessions for one scope.
func (s *Service) ListSessions(scope string) []SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []SessionMeta
	for _, t := range s.terminals {
		if t.meta.Scope == scope {
			out = append(out, t.meta)
		}
	}
	return out
}

// GetSessionMeta returns metadata for one terminal session, or nil.
func (s *Service) GetSessionMeta(id string) *SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.terminals[id]
	if !ok {
		return nil
	}
	return ptrMeta(t.meta)
}

// SendInput writes bytes to a terminal's stdin.
func (s *Service) SendInput(id string, data []byte) error {
	s.mu.Lock()
	t, ok := s.terminals[id]
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("failed to send input: %w", err)
	}
	return nil
}

// Interrupt sends SIGINT to a terminal's process group.
func (s *Service) Interrupt(id string) error {
	s.mu.Lock()
	t, ok := s.terminals[id]
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if t.cmd.Process == nil {
		return ErrNotFound
	}
	return syscall.Kill(-t.cmd.Process.Pid, syscall.SIGINT)
}

// Close terminates a terminal session directly. No cascade: a terminal has
// no descendants.
func (s *Service) Close(id string) error {
	s.mu.Lock()
	t, ok := s.terminals[id]
	if ok {
		delete(s.terminals, id)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}

	t.stdin.Close()
	killGroup(t.cmd)

	select {
	case <-t.done:
	case <-time.After(5 * time.Second):
		logging.Warn().Str("terminal", id).Msg("terminal did not exit after kill")
	}
	return nil
}

// killGroup sends SIGTERM to the process group, then SIGKILL after the grace
// timeout if the group is still alive.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid := cmd.Process.Pid

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return
	}

	time.AfterFunc(SigkillTimeout, func() {
		syscall.Kill(-pgid, syscall.SIGKILL)
	})
}

func (s *Service) publish(t event.EventType, scope string, info *types.BackgroundProcess) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: t,
		Data: event.ProcessData{SessionID: scope, Process: info},
	})
}

// snapshotProcess copies process info so callers never share the live struct.
func (s *Service) snapshotProcess(p *process) *types.BackgroundProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotProcessLocked(p)
}

func (s *Service) snapshotProcessLocked(p *process) *types.BackgroundProcess {
	info := *p.info
	return &info
}

func slugify(label string) string {
	slug := strings.ToLower(strings.TrimSpace(label))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(slug, "-")
}

func ptrMeta(m SessionMeta) *SessionMeta {
	return &m
}
