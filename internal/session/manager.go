package session

import (
	"fmt"
	"sync"

	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/history"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/internal/process"
	"github.com/lattice-dev/lattice/internal/provider"
	"github.com/lattice-dev/lattice/internal/shell"
)

// Manager opens runtimes on demand and keeps one per session. A session's
// history store has a single writer, so a runtime is never duplicated.
type Manager struct {
	cfg       *config.Config
	providers *provider.Registry
	shellSvc  *shell.Service
	bus       *event.Bus

	mu       sync.Mutex
	runtimes map[string]*managed
}

type managed struct {
	runtime *Runtime
	store   *history.Store
	ledger  *process.Ledger
}

func NewManager(cfg *config.Config, providers *provider.Registry, shellSvc *shell.Service, bus *event.Bus) *Manager {
	return &Manager{
		cfg:       cfg,
		providers: providers,
		shellSvc:  shellSvc,
		bus:       bus,
		runtimes:  make(map[string]*managed),
	}
}

// Get returns the session's runtime and ledger, opening them on first use.
func (m *Manager) Get(sessionID string) (*Runtime, *process.Ledger, error) {
	if sessionID == "" {
		return nil, nil, fmt.Errorf("session ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.runtimes[sessionID]; ok {
		return entry.runtime, entry.ledger, nil
	}

	store, err := history.Open(m.cfg.DataDir, sessionID, m.bus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session %s: %w", sessionID, err)
	}

	ledger := process.NewLedger(sessionID, m.shellSvc, m.bus)

	runtime, err := NewRuntime(Config{
		Store:     store,
		Ledger:    ledger,
		Providers: m.providers,
		Bus:       m.bus,
		ModelRef:  m.cfg.Model,
		CacheTTL:  provider.CacheTTLShort,
	})
	if err != nil {
		ledger.Close()
		store.Close()
		return nil, nil, err
	}

	m.runtimes[sessionID] = &managed{runtime: runtime, store: store, ledger: ledger}
	return runtime, ledger, nil
}

// Close releases every open session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.runtimes {
		entry.ledger.Close()
		if err := entry.store.Close(); err != nil {
			logging.Error().Err(err).Str("sessionID", id).Msg("failed to close history store")
		}
		delete(m.runtimes, id)
	}
}
