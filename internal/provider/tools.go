package provider

import (
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// Tool is a tool descriptor sent with an outbound request. The two concrete
// kinds form an explicit tagged union: LocalTool executes on our side and its
// clone must preserve the executable, RemoteTool is a pure descriptor cloned
// field for field.
type Tool interface {
	// ToolInfo returns the wire-level tool definition.
	ToolInfo() *schema.ToolInfo

	// CacheControl returns the attached cache annotation, if any.
	CacheControl() *CacheControl

	// WithCacheControl returns a copy of the tool carrying the annotation.
	// The receiver is never mutated.
	WithCacheControl(cc CacheControl) Tool
}

// LocalTool is a tool whose implementation executes locally.
type LocalTool struct {
	info *schema.ToolInfo
	impl einotool.InvokableTool
	cc   *CacheControl
}

// NewLocalTool creates a locally executable tool descriptor.
func NewLocalTool(info *schema.ToolInfo, impl einotool.InvokableTool) *LocalTool {
	return &LocalTool{info: info, impl: impl}
}

func (t *LocalTool) ToolInfo() *schema.ToolInfo   { return t.info }
func (t *LocalTool) CacheControl() *CacheControl  { return t.cc }
func (t *LocalTool) Impl() einotool.InvokableTool { return t.impl }

// WithCacheControl clones the descriptor. The clone carries the same
// execution behavior: impl is shared, only the annotation differs.
func (t *LocalTool) WithCacheControl(cc CacheControl) Tool {
	return &LocalTool{info: t.info, impl: t.impl, cc: &cc}
}

// RemoteTool is a tool executed remotely or statelessly by the provider.
type RemoteTool struct {
	info *schema.ToolInfo
	cc   *CacheControl
}

// NewRemoteTool creates a remote tool descriptor.
func NewRemoteTool(info *schema.ToolInfo) *RemoteTool {
	return &RemoteTool{info: info}
}

func (t *RemoteTool) ToolInfo() *schema.ToolInfo  { return t.info }
func (t *RemoteTool) CacheControl() *CacheControl { return t.cc }

// WithCacheControl clones the descriptor field for field and attaches the
// annotation without altering behavior.
func (t *RemoteTool) WithCacheControl(cc CacheControl) Tool {
	return &RemoteTool{info: t.info, cc: &cc}
}

// toolInfos extracts the wire definitions for binding to a chat model.
func toolInfos(tools []Tool) []*schema.ToolInfo {
	if len(tools) == 0 {
		return nil
	}
	infos := make([]*schema.ToolInfo, len(tools))
	for i, t := range tools {
		infos[i] = t.ToolInfo()
	}
	return infos
}
