package transcript

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lattice-dev/lattice/internal/event"
)

var (
	// ErrShareNotFound is returned for unknown or revoked tokens.
	ErrShareNotFound = errors.New("share not found")
	// ErrShareExpired is returned when a share's lifetime has lapsed.
	ErrShareExpired = errors.New("share expired")
)

// ShareInfo describes a published transcript.
type ShareInfo struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionID"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// ShareManager issues and revokes tokens for published transcripts. Sharing
// a session twice returns the existing share.
type ShareManager struct {
	mu        sync.RWMutex
	shares    map[string]*ShareInfo // token -> share
	bySession map[string]string     // sessionID -> token
	baseURL   string
	bus       *event.Bus
}

func NewShareManager(baseURL string, bus *event.Bus) *ShareManager {
	if baseURL == "" {
		baseURL = "https://lattice.dev/t"
	}
	return &ShareManager{
		shares:    make(map[string]*ShareInfo),
		bySession: make(map[string]string),
		baseURL:   baseURL,
		bus:       bus,
	}
}

// Share publishes a session's transcript and returns the share. expiresIn of
// zero means the share never expires.
func (m *ShareManager) Share(sessionID string, expiresIn time.Duration) (*ShareInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token, ok := m.bySession[sessionID]; ok {
		if info, ok := m.shares[token]; ok {
			return info, nil
		}
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate share token: %w", err)
	}

	info := &ShareInfo{
		Token:     token,
		SessionID: sessionID,
		URL:       fmt.Sprintf("%s/%s", m.baseURL, token),
		CreatedAt: time.Now(),
	}
	if expiresIn > 0 {
		info.ExpiresAt = info.CreatedAt.Add(expiresIn)
	}

	m.shares[token] = info
	m.bySession[sessionID] = token

	if m.bus != nil {
		m.bus.Publish(event.Event{
			Type: event.TranscriptShared,
			Data: event.TranscriptSharedData{SessionID: sessionID, Token: token},
		})
	}
	return info, nil
}

// Revoke removes a session's share.
func (m *ShareManager) Revoke(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.bySession[sessionID]
	if !ok {
		return ErrShareNotFound
	}
	delete(m.shares, token)
	delete(m.bySession, sessionID)
	return nil
}

// Resolve looks up a share by token, enforcing expiry.
func (m *ShareManager) Resolve(token string) (*ShareInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.shares[token]
	if !ok {
		return nil, ErrShareNotFound
	}
	if !info.ExpiresAt.IsZero() && time.Now().After(info.ExpiresAt) {
		return nil, ErrShareExpired
	}
	return info, nil
}

// CleanExpired drops lapsed shares and returns how many were removed.
func (m *ShareManager) CleanExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	count := 0
	for token, info := range m.shares {
		if !info.ExpiresAt.IsZero() && now.After(info.ExpiresAt) {
			delete(m.shares, token)
			delete(m.bySession, info.SessionID)
			count++
		}
	}
	return count
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes)[:22], nil
}
