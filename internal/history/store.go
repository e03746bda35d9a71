// Package history provides the durable, append-ordered message record for a
// session and the compaction boundary resolver over it.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/pkg/types"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("history store closed")
)

// Store is the append-ordered record of one session's messages. Appends are
// serialized: there is exactly one writer per session. Each message is
// persisted as one JSON object per line on an append-only log.
type Store struct {
	sessionID string
	path      string
	bus       *event.Bus

	mu       sync.Mutex
	file     *os.File
	messages []*types.Message
	nextSeq  int64
	closed   bool
}

// Open opens (or creates) the history log for a session under dir. Existing
// lines are replayed to rebuild the in-memory order and the sequence counter.
func Open(dir, sessionID string, bus *event.Bus) (*Store, error) {
	if sessionID == "" {
		return nil, errors.New("session id required")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	path := filepath.Join(dir, sessionID+".jsonl")
	s := &Store{
		sessionID: sessionID,
		path:      path,
		bus:       bus,
		nextSeq:   1,
	}

	if err := s.replay(); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history log: %w", err)
	}
	s.file = file

	return s, nil
}

// replay loads existing messages from the log. Lines that fail to decode are
// skipped: a torn final line from a crashed writer must not block reopening.
func (s *Store) replay() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read history log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg types.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Warn().Str("session", s.sessionID).Err(err).Msg("skipping corrupt history line")
			continue
		}

		s.messages = append(s.messages, &msg)
		if msg.Metadata.HistorySequence >= s.nextSeq {
			s.nextSeq = msg.Metadata.HistorySequence + 1
		}
	}

	return scanner.Err()
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Append assigns the next history sequence to msg and appends it. The
// assigned sequence is never mutated afterwards. Returns the stored message.
func (s *Store) Append(ctx context.Context, msg *types.Message) (*types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	err := s.appendLocked(msg)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	// Published after the lock is released so a subscriber may call back
	// into the store without deadlocking.
	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.MessageCreated,
			Data: event.MessageCreatedData{SessionID: s.sessionID, Message: msg},
		})
	}

	return msg, nil
}

func (s *Store) appendLocked(msg *types.Message) error {
	if s.closed {
		return ErrClosed
	}

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	msg.SessionID = s.sessionID
	msg.Metadata.HistorySequence = s.nextSeq
	if msg.Metadata.Timestamp == 0 {
		msg.Metadata.Timestamp = time.Now().UnixMilli()
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync history log: %w", err)
	}

	s.nextSeq++
	s.messages = append(s.messages, msg)
	return nil
}

// Messages returns the full ordered message sequence. The returned slice is a
// snapshot; the messages themselves are shared and must not be mutated.
func (s *Store) Messages(ctx context.Context) ([]*types.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*types.Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Close flushes and closes the underlying log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
