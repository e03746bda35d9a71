// Package types defines the shared data model for the lattice agent runtime.
package types

import "encoding/json"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CompactionTrigger identifies who requested a compaction. Only these values
// are considered well formed; anything else marks the boundary as corrupt.
var knownCompactionTriggers = map[string]bool{
	"user": true,
	"auto": true,
}

// Message represents one turn in a session's conversation.
type Message struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionID,omitempty"`
	Role      Role            `json:"role"`
	Parts     []Part          `json:"-"`
	Metadata  MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata carries ordering and compaction fields. HistorySequence is
// assigned once at append time and never changes.
type MessageMetadata struct {
	HistorySequence int64 `json:"historySequence,omitempty"`
	Timestamp       int64 `json:"timestamp,omitempty"`

	// Compaction fields. An assistant message with all three set (and a
	// positive epoch, and a known trigger) is a durable compaction boundary.
	CompactionBoundary bool   `json:"compactionBoundary,omitempty"`
	CompactionEpoch    int    `json:"compactionEpoch,omitempty"`
	Compacted          string `json:"compacted,omitempty"`
}

// IsCompactionBoundary reports whether the message is a durable compaction
// boundary. Boundary-shaped messages that fail any sub-check (wrong role,
// missing or non-positive epoch, unknown trigger) are not durable.
func (m *Message) IsCompactionBoundary() bool {
	if m.Role != RoleAssistant {
		return false
	}
	if !m.Metadata.CompactionBoundary {
		return false
	}
	if m.Metadata.CompactionEpoch <= 0 {
		return false
	}
	return knownCompactionTriggers[m.Metadata.Compacted]
}

// IsCompactionSummary reports whether the message carries a compaction summary,
// durable or not. Used for display, not for boundary resolution.
func (m *Message) IsCompactionSummary() bool {
	return m.Role == RoleAssistant && m.Metadata.Compacted != ""
}

// MarshalJSON flattens parts into the JSON form so a message is a single
// self-contained object on the history log.
func (m Message) MarshalJSON() ([]byte, error) {
	type Alias Message
	aux := struct {
		Alias
		Parts []json.RawMessage `json:"parts,omitempty"`
	}{Alias: Alias(m)}

	for _, part := range m.Parts {
		raw, err := json.Marshal(part)
		if err != nil {
			return nil, err
		}
		aux.Parts = append(aux.Parts, raw)
	}

	return json.Marshal(aux)
}

// UnmarshalJSON restores typed parts from their tagged JSON form.
func (m *Message) UnmarshalJSON(data []byte) error {
	type Alias Message
	aux := struct {
		*Alias
		Parts []json.RawMessage `json:"parts,omitempty"`
	}{Alias: (*Alias)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.Parts = m.Parts[:0]
	for _, raw := range aux.Parts {
		part, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, part)
	}

	return nil
}
