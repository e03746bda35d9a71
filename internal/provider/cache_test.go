package provider

import (
	"context"
	"encoding/json"
	"testing"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	r := NewRegistry()
	r.RegisterInfo(Info{
		ID:   "anthropic",
		Name: "Anthropic",
		CacheControl: CacheCapability{
			Supported:       true,
			BreakpointLimit: 4,
		},
	})
	r.RegisterInfo(Info{
		ID:   "basic",
		Name: "Basic",
	})
	return r
}

func testRequest() *Request {
	return &Request{
		Model:  "claude-sonnet-4-20250514",
		System: &schema.Message{Role: schema.System, Content: "You are a coding agent."},
		Messages: []*schema.Message{
			{Role: schema.User, Content: "hello"},
			{Role: schema.Assistant, Content: "hi"},
			{Role: schema.User, Content: "list files"},
		},
		Tools: []Tool{
			NewRemoteTool(&schema.ToolInfo{Name: "web_search"}),
			NewRemoteTool(&schema.ToolInfo{Name: "read"}),
		},
	}
}

func countBreakpoints(req *Request) int {
	n := 0
	if MessageCacheControl(req.System) != nil {
		n++
	}
	for _, msg := range req.Messages {
		if MessageCacheControl(msg) != nil {
			n++
		}
	}
	for _, t := range req.Tools {
		if t.CacheControl() != nil {
			n++
		}
	}
	return n
}

func TestPlanCacheControl_Placement(t *testing.T) {
	r := testRegistry()
	req := testRequest()

	out := r.PlanCacheControl("anthropic", req, CacheTTLDefault)
	require.NotSame(t, req, out)

	assert.NotNil(t, MessageCacheControl(out.System), "system prompt should carry a breakpoint")
	assert.Nil(t, MessageCacheControl(out.Messages[0]))
	assert.Nil(t, MessageCacheControl(out.Messages[1]))
	assert.NotNil(t, MessageCacheControl(out.Messages[2]), "last message should carry a breakpoint")

	assert.Nil(t, out.Tools[0].CacheControl(), "only the last tool gets a marker")
	assert.NotNil(t, out.Tools[1].CacheControl())
}

func TestPlanCacheControl_NeverExceedsLimitMinusOne(t *testing.T) {
	r := NewRegistry()
	r.RegisterInfo(Info{
		ID:           "tight",
		CacheControl: CacheCapability{Supported: true, BreakpointLimit: 2},
	})

	out := r.PlanCacheControl("tight", testRequest(), CacheTTLDefault)

	// Limit 2 leaves a budget of 1: only the system prompt is decorated.
	assert.Equal(t, 1, countBreakpoints(out))
	assert.NotNil(t, MessageCacheControl(out.System))
	assert.Nil(t, out.Tools[1].CacheControl())
}

func TestPlanCacheControl_UnsupportedProviderIsNoOp(t *testing.T) {
	r := testRegistry()
	req := testRequest()

	assert.Same(t, req, r.PlanCacheControl("basic", req, CacheTTLDefault))
	assert.Same(t, req, r.PlanCacheControl("unknown", req, CacheTTLDefault))
}

func TestPlanCacheControl_DoesNotMutateInput(t *testing.T) {
	r := testRegistry()
	req := testRequest()

	_ = r.PlanCacheControl("anthropic", req, CacheTTLShort)

	assert.Nil(t, MessageCacheControl(req.System))
	for _, msg := range req.Messages {
		assert.Nil(t, MessageCacheControl(msg))
	}
	for _, tool := range req.Tools {
		assert.Nil(t, tool.CacheControl())
	}
}

func TestPlanCacheControl_TTLSelection(t *testing.T) {
	r := testRegistry()

	out := r.PlanCacheControl("anthropic", testRequest(), CacheTTLLong)
	cc := MessageCacheControl(out.System)
	require.NotNil(t, cc)
	assert.Equal(t, "ephemeral", cc.Type)
	assert.Equal(t, "1h", cc.TTL)

	out = r.PlanCacheControl("anthropic", testRequest(), CacheTTLDefault)
	cc = MessageCacheControl(out.System)
	require.NotNil(t, cc)
	assert.Empty(t, cc.TTL, "default TTL defers to the provider")
}

func TestPlanCacheControl_EmptyToolsAndMessages(t *testing.T) {
	r := testRegistry()
	req := &Request{
		Model:  "claude-sonnet-4-20250514",
		System: &schema.Message{Role: schema.System, Content: "sys"},
	}

	out := r.PlanCacheControl("anthropic", req, CacheTTLDefault)
	assert.Equal(t, 1, countBreakpoints(out))
}

// stubInvokable is a minimal local tool implementation for clone tests.
type stubInvokable struct {
	name string
}

func (s *stubInvokable) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{Name: s.name}, nil
}

func (s *stubInvokable) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...einotool.Option) (string, error) {
	var args map[string]any
	_ = json.Unmarshal([]byte(argumentsInJSON), &args)
	return "ok", nil
}

func TestLocalTool_CloneKeepsExecutionBehavior(t *testing.T) {
	impl := &stubInvokable{name: "bash"}
	tool := NewLocalTool(&schema.ToolInfo{Name: "bash"}, impl)

	clone := tool.WithCacheControl(CacheControl{Type: "ephemeral"})

	local, ok := clone.(*LocalTool)
	require.True(t, ok)
	assert.Same(t, impl, local.Impl(), "clone must share the executable")
	assert.NotNil(t, clone.CacheControl())
	assert.Nil(t, tool.CacheControl(), "original untouched")
}

func TestRemoteTool_CloneIsFieldForField(t *testing.T) {
	info := &schema.ToolInfo{Name: "web_search"}
	tool := NewRemoteTool(info)

	clone := tool.WithCacheControl(CacheControl{Type: "ephemeral", TTL: "5m"})

	remote, ok := clone.(*RemoteTool)
	require.True(t, ok)
	assert.Same(t, info, remote.ToolInfo())
	assert.Equal(t, "5m", clone.CacheControl().TTL)
	assert.Nil(t, tool.CacheControl())
}
