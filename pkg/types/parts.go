package types

import (
	"encoding/json"
	"fmt"
)

// Part represents a typed content fragment of a message.
type Part interface {
	PartType() string
	PartID() string
}

// ToolState tracks the lifecycle of a dynamic tool invocation.
type ToolState string

const (
	ToolStateInputStreaming  ToolState = "input-streaming"
	ToolStateInputAvailable  ToolState = "input-available"
	ToolStateOutputAvailable ToolState = "output-available"
	ToolStateOutputRedacted  ToolState = "output-redacted"
)

// TextPart is plain text content.
type TextPart struct {
	ID   string `json:"id"`
	Type string `json:"type"` // always "text"
	Text string `json:"text"`
}

func (p *TextPart) PartType() string { return "text" }
func (p *TextPart) PartID() string   { return p.ID }

// ReasoningPart is model-internal deliberation. Never included in exports.
type ReasoningPart struct {
	ID   string `json:"id"`
	Type string `json:"type"` // always "reasoning"
	Text string `json:"text"`
}

func (p *ReasoningPart) PartType() string { return "reasoning" }
func (p *ReasoningPart) PartID() string   { return p.ID }

// ToolPart is a dynamic tool invocation, possibly with nested sub-calls.
type ToolPart struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"` // always "dynamic-tool"
	ToolCallID  string         `json:"toolCallID"`
	ToolName    string         `json:"toolName"`
	State       ToolState      `json:"state"`
	Input       map[string]any `json:"input,omitempty"`
	Output      *string        `json:"output,omitempty"`
	NestedCalls []*ToolPart    `json:"nestedCalls,omitempty"`
}

func (p *ToolPart) PartType() string { return "dynamic-tool" }
func (p *ToolPart) PartID() string   { return p.ID }

// UnmarshalPart decodes a JSON part by its type tag.
func UnmarshalPart(data []byte) (Part, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "reasoning":
		var p ReasoningPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "dynamic-tool":
		var p ToolPart
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown part type: %q", probe.Type)
	}
}
