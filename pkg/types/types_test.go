package types

import (
	"encoding/json"
	"testing"
)

func TestMessage_RoundTripParts(t *testing.T) {
	output := "total 4"
	msg := Message{
		ID:   "msg-1",
		Role: RoleAssistant,
		Parts: []Part{
			&TextPart{ID: "p1", Type: "text", Text: "running ls"},
			&ReasoningPart{ID: "p2", Type: "reasoning", Text: "user wants a listing"},
			&ToolPart{
				ID:         "p3",
				Type:       "dynamic-tool",
				ToolCallID: "call-1",
				ToolName:   "bash",
				State:      ToolStateOutputAvailable,
				Output:     &output,
				NestedCalls: []*ToolPart{
					{ID: "p4", Type: "dynamic-tool", ToolCallID: "call-2", ToolName: "read", State: ToolStateInputAvailable},
				},
			},
		},
		Metadata: MessageMetadata{HistorySequence: 7, Timestamp: 1700000000000},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(decoded.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(decoded.Parts))
	}
	tool, ok := decoded.Parts[2].(*ToolPart)
	if !ok {
		t.Fatalf("expected ToolPart, got %T", decoded.Parts[2])
	}
	if tool.Output == nil || *tool.Output != "total 4" {
		t.Errorf("tool output not preserved: %v", tool.Output)
	}
	if len(tool.NestedCalls) != 1 || tool.NestedCalls[0].ToolName != "read" {
		t.Errorf("nested calls not preserved: %+v", tool.NestedCalls)
	}
	if decoded.Metadata.HistorySequence != 7 {
		t.Errorf("historySequence lost: %d", decoded.Metadata.HistorySequence)
	}
}

func TestUnmarshalPart_UnknownType(t *testing.T) {
	_, err := UnmarshalPart([]byte(`{"id":"x","type":"hologram"}`))
	if err == nil {
		t.Fatal("expected error for unknown part type")
	}
}

func TestMessage_IsCompactionBoundary(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{
			name: "valid boundary",
			msg: Message{Role: RoleAssistant, Metadata: MessageMetadata{
				CompactionBoundary: true, CompactionEpoch: 1, Compacted: "user"}},
			want: true,
		},
		{
			name: "auto trigger",
			msg: Message{Role: RoleAssistant, Metadata: MessageMetadata{
				CompactionBoundary: true, CompactionEpoch: 3, Compacted: "auto"}},
			want: true,
		},
		{
			name: "wrong role",
			msg: Message{Role: RoleUser, Metadata: MessageMetadata{
				CompactionBoundary: true, CompactionEpoch: 1, Compacted: "user"}},
			want: false,
		},
		{
			name: "missing epoch",
			msg: Message{Role: RoleAssistant, Metadata: MessageMetadata{
				CompactionBoundary: true, Compacted: "user"}},
			want: false,
		},
		{
			name: "negative epoch",
			msg: Message{Role: RoleAssistant, Metadata: MessageMetadata{
				CompactionBoundary: true, CompactionEpoch: -2, Compacted: "user"}},
			want: false,
		},
		{
			name: "corrupt trigger",
			msg: Message{Role: RoleAssistant, Metadata: MessageMetadata{
				CompactionBoundary: true, CompactionEpoch: 1, Compacted: "???"}},
			want: false,
		},
		{
			name: "no boundary flag",
			msg: Message{Role: RoleAssistant, Metadata: MessageMetadata{
				CompactionEpoch: 1, Compacted: "user"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.IsCompactionBoundary(); got != tt.want {
				t.Errorf("IsCompactionBoundary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSplitFleetID(t *testing.T) {
	raw, terminal := SplitFleetID("sess:abc123")
	if !terminal || raw != "abc123" {
		t.Errorf("expected terminal abc123, got %q terminal=%v", raw, terminal)
	}

	raw, terminal = SplitFleetID("task-9")
	if terminal || raw != "task-9" {
		t.Errorf("expected task task-9, got %q terminal=%v", raw, terminal)
	}
}
