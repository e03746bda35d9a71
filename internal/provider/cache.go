package provider

import "github.com/cloudwego/eino/schema"

// CacheTTL selects the provider cache lifetime for a breakpoint.
type CacheTTL string

const (
	// CacheTTLDefault defers to the provider's implicit default.
	CacheTTLDefault CacheTTL = ""
	// CacheTTLShort is the short cache lifetime.
	CacheTTLShort CacheTTL = "5m"
	// CacheTTLLong is the long cache lifetime.
	CacheTTLLong CacheTTL = "1h"
)

// CacheControl is a cache-breakpoint annotation in the provider's
// cache-control contract.
type CacheControl struct {
	Type string `json:"type"` // always "ephemeral"
	TTL  string `json:"ttl,omitempty"`
}

// cacheControlKey is the message Extra key carrying the annotation.
const cacheControlKey = "cache_control"

// MessageCacheControl returns the annotation attached to a message, if any.
func MessageCacheControl(msg *schema.Message) *CacheControl {
	if msg == nil || msg.Extra == nil {
		return nil
	}
	cc, ok := msg.Extra[cacheControlKey].(CacheControl)
	if !ok {
		return nil
	}
	return &cc
}

// PlanCacheControl returns a decorated copy of req with cache-breakpoint
// hints for the named provider. The input request is never mutated.
//
// Breakpoints are placed at the locations that maximize prefix reuse:
//
//  1. the system prompt, which rarely changes,
//  2. the last conversation message, marking everything before it stable,
//  3. the last tool definition only: provider caching is prefix based, so
//     one marker covers the whole tool block and marking every tool would
//     waste the provider's limited breakpoint budget.
//
// The planner never emits more than the provider limit minus one breakpoints;
// the remaining slot is reserved. Providers without cache support get the
// request back unchanged (same pointer).
func (r *Registry) PlanCacheControl(providerID string, req *Request, ttl CacheTTL) *Request {
	info, ok := r.InfoFor(providerID)
	if !ok || !info.CacheControl.Supported {
		return req
	}

	budget := info.CacheControl.BreakpointLimit - 1
	if budget <= 0 {
		return req
	}

	cc := CacheControl{Type: "ephemeral", TTL: string(ttl)}

	out := *req
	out.Messages = append([]*schema.Message(nil), req.Messages...)
	out.Tools = append([]Tool(nil), req.Tools...)

	if out.System != nil && budget > 0 {
		out.System = withCacheControl(out.System, cc)
		budget--
	}

	if n := len(out.Messages); n > 0 && budget > 0 {
		out.Messages[n-1] = withCacheControl(out.Messages[n-1], cc)
		budget--
	}

	if n := len(out.Tools); n > 0 && budget > 0 {
		out.Tools[n-1] = out.Tools[n-1].WithCacheControl(cc)
		budget--
	}

	return &out
}

// withCacheControl clones msg and attaches the annotation. The original
// message and its Extra map are left untouched.
func withCacheControl(msg *schema.Message, cc CacheControl) *schema.Message {
	clone := *msg
	clone.Extra = make(map[string]any, len(msg.Extra)+1)
	for k, v := range msg.Extra {
		clone.Extra[k] = v
	}
	clone.Extra[cacheControlKey] = cc
	return &clone
}
