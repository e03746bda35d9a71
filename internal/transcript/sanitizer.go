// Package transcript produces portable, privacy-aware exports of a session's
// history. A sanitized transcript is built from a frozen copy of the message
// list and never touches the live session.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/microcosm-cc/bluemonday"

	"github.com/lattice-dev/lattice/pkg/types"
)

// DefaultMaxOutputBytes caps tool output size in exports. Anything larger is
// replaced with a redaction notice.
const DefaultMaxOutputBytes = 16 * 1024

// secretPatterns match credential-shaped content in tool outputs. Matching
// output is withheld wholesale rather than partially masked.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password|credential)s?\s*[:=]\s*\S+`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
}

// Options configures sanitization.
type Options struct {
	// MaxOutputBytes caps tool output size; 0 uses DefaultMaxOutputBytes.
	MaxOutputBytes int
	// KeepHTML skips the HTML strip on text parts.
	KeepHTML bool
}

func (o Options) maxOutput() int {
	if o.MaxOutputBytes <= 0 {
		return DefaultMaxOutputBytes
	}
	return o.MaxOutputBytes
}

// htmlPolicy strips all markup. Shared: bluemonday policies are safe for
// concurrent use.
var htmlPolicy = bluemonday.StrictPolicy()

// Sanitize returns export-safe copies of messages. The input is never
// mutated. Reasoning parts are dropped entirely; tool outputs that are
// oversized or secret-shaped are withheld and the tool state flipped to
// output-redacted; HTML is stripped from text parts unless opts.KeepHTML.
func Sanitize(messages []types.Message, opts Options) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		clean := msg
		clean.Parts = sanitizeParts(msg.Parts, opts)
		out = append(out, clean)
	}
	return out
}

func sanitizeParts(parts []types.Part, opts Options) []types.Part {
	var out []types.Part
	for _, part := range parts {
		switch p := part.(type) {
		case *types.ReasoningPart:
			// Model-internal deliberation never leaves the runtime.
			continue
		case *types.TextPart:
			cp := *p
			if !opts.KeepHTML {
				cp.Text = htmlPolicy.Sanitize(cp.Text)
			}
			out = append(out, &cp)
		case *types.ToolPart:
			out = append(out, sanitizeToolPart(p, opts))
		default:
			out = append(out, part)
		}
	}
	return out
}

func sanitizeToolPart(p *types.ToolPart, opts Options) *types.ToolPart {
	cp := *p
	cp.NestedCalls = nil
	for _, nested := range p.NestedCalls {
		cp.NestedCalls = append(cp.NestedCalls, sanitizeToolPart(nested, opts))
	}

	if cp.Output != nil && mustRedact(*cp.Output, opts.maxOutput()) {
		cp.Output = nil
		cp.State = types.ToolStateOutputRedacted
	}
	return &cp
}

func mustRedact(output string, maxBytes int) bool {
	if len(output) > maxBytes {
		return true
	}
	for _, pat := range secretPatterns {
		if pat.MatchString(output) {
			return true
		}
	}
	return false
}

// WriteJSONL sanitizes messages and streams them to w, one JSON object per
// line, each annotated with sessionID.
func WriteJSONL(w io.Writer, sessionID string, messages []types.Message, opts Options) error {
	bw := bufio.NewWriter(w)
	for _, msg := range Sanitize(messages, opts) {
		msg.SessionID = sessionID
		line, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
		}
		if _, err := bw.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write transcript: %w", err)
		}
	}
	return bw.Flush()
}
