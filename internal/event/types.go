package event

import "github.com/lattice-dev/lattice/pkg/types"

// MessageCreatedData is the payload for MessageCreated events.
type MessageCreatedData struct {
	SessionID string         `json:"sessionID"`
	Message   *types.Message `json:"message"`
}

// MessageUpdatedData is the payload for MessageUpdated events.
type MessageUpdatedData struct {
	SessionID string         `json:"sessionID"`
	Message   *types.Message `json:"message"`
}

// SessionCompactedData is the payload for SessionCompacted events.
type SessionCompactedData struct {
	SessionID string `json:"sessionID"`
	Epoch     int    `json:"epoch"`
}

// ProcessData is the payload for process lifecycle events.
type ProcessData struct {
	SessionID string                   `json:"sessionID"`
	Process   *types.BackgroundProcess `json:"process"`
}

// FleetKilledData is the payload for FleetKilled events.
type FleetKilledData struct {
	Scope     string   `json:"scope"`
	KilledIDs []string `json:"killedIDs"`
}

// TranscriptSharedData is the payload for TranscriptShared events.
type TranscriptSharedData struct {
	SessionID string `json:"sessionID"`
	Token     string `json:"token"`
}
