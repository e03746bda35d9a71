// Package provider provides the LLM provider abstraction and the cache
// control planner for outbound requests.
package provider

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// Provider represents an LLM provider.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Info returns the provider's capability metadata.
	Info() Info

	// CreateCompletion creates a streaming completion.
	CreateCompletion(ctx context.Context, req *Request) (*Stream, error)
}

// Info describes a provider's capabilities.
type Info struct {
	ID           string
	Name         string
	Models       []Model
	CacheControl CacheCapability
}

// Model describes a single model offered by a provider.
type Model struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProviderID      string `json:"providerID"`
	ContextLength   int    `json:"contextLength"`
	MaxOutputTokens int    `json:"maxOutputTokens"`
	SupportsTools   bool   `json:"supportsTools"`
}

// CacheCapability describes a provider's prompt cache support.
type CacheCapability struct {
	// Supported reports whether the provider honors cache breakpoints.
	Supported bool

	// BreakpointLimit is the provider-documented maximum number of cache
	// breakpoints per request.
	BreakpointLimit int
}

// Request is a fully assembled outbound model request. System is separate
// from Messages so the planner can decorate it independently.
type Request struct {
	Model       string            `json:"model"`
	System      *schema.Message   `json:"system,omitempty"`
	Messages    []*schema.Message `json:"messages"`
	Tools       []Tool            `json:"tools,omitempty"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

// Stream wraps an Eino stream reader.
type Stream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewStream creates a new completion stream.
func NewStream(reader *schema.StreamReader[*schema.Message]) *Stream {
	return &Stream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *Stream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *Stream) Close() {
	s.reader.Close()
}
