// Package session is the runtime glue for one agent conversation: it owns
// the history store, the background-process ledger, and request assembly for
// the model provider.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/history"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/internal/process"
	"github.com/lattice-dev/lattice/internal/provider"
	"github.com/lattice-dev/lattice/pkg/types"
)

const (
	// MaxRetries is the maximum number of retries for provider errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute
)

// newRetryBackoff creates an exponential backoff with jitter for provider
// retries.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// Runtime drives one session. All message appends go through the runtime, so
// there is exactly one writer per history store.
type Runtime struct {
	store     *history.Store
	ledger    *process.Ledger
	providers *provider.Registry
	bus       *event.Bus

	providerID   string
	modelID      string
	systemPrompt string
	maxTokens    int
	cacheTTL     provider.CacheTTL

	// mu serializes turns: appending the user message and assembling the
	// outbound window must not interleave with another turn.
	mu sync.Mutex
}

// Config assembles a Runtime.
type Config struct {
	Store        *history.Store
	Ledger       *process.Ledger
	Providers    *provider.Registry
	Bus          *event.Bus
	SystemPrompt string
	ModelRef     string // "provider/model"
	MaxTokens    int
	CacheTTL     provider.CacheTTL
}

func NewRuntime(cfg Config) (*Runtime, error) {
	providerID, modelID, err := provider.ParseModelRef(cfg.ModelRef)
	if err != nil {
		return nil, err
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &Runtime{
		store:        cfg.Store,
		ledger:       cfg.Ledger,
		providers:    cfg.Providers,
		bus:          cfg.Bus,
		providerID:   providerID,
		modelID:      modelID,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    maxTokens,
		cacheTTL:     cfg.CacheTTL,
	}, nil
}

// SessionID returns the session this runtime drives.
func (r *Runtime) SessionID() string {
	return r.store.SessionID()
}

// Messages returns the session's full ordered history.
func (r *Runtime) Messages(ctx context.Context) ([]*types.Message, error) {
	return r.store.Messages(ctx)
}

// SendUserMessage appends a user turn to history and returns the streaming
// completion for it. Any foregrounded shell commands are detached before the
// turn starts: a new user message always reclaims the foreground.
func (r *Runtime) SendUserMessage(ctx context.Context, text string) (*types.Message, *provider.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := &types.Message{
		Role: types.RoleUser,
		Parts: []types.Part{
			&types.TextPart{ID: ulid.Make().String(), Type: "text", Text: text},
		},
	}
	msg, err := r.store.Append(ctx, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append user message: %w", err)
	}

	if r.ledger != nil {
		r.ledger.OnMessageSent()
	}

	req, err := r.buildRequest(ctx)
	if err != nil {
		return nil, nil, err
	}

	stream, err := r.createCompletion(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return msg, stream, nil
}

// RecordAssistantMessage appends a completed assistant turn.
func (r *Runtime) RecordAssistantMessage(ctx context.Context, parts []types.Part) (*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Append(ctx, &types.Message{
		Role:  types.RoleAssistant,
		Parts: parts,
	})
}

// Compact records a compaction summary as a durable boundary. Subsequent
// outbound requests start at the summary instead of the full history.
func (r *Runtime) Compact(ctx context.Context, trigger, summary string) (*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	messages, err := r.store.Messages(ctx)
	if err != nil {
		return nil, err
	}

	epoch := 0
	for _, m := range messages {
		if m.IsCompactionBoundary() && m.Metadata.CompactionEpoch > epoch {
			epoch = m.Metadata.CompactionEpoch
		}
	}

	msg := &types.Message{
		Role: types.RoleAssistant,
		Parts: []types.Part{
			&types.TextPart{ID: ulid.Make().String(), Type: "text", Text: summary},
		},
		Metadata: types.MessageMetadata{
			CompactionBoundary: true,
			CompactionEpoch:    epoch + 1,
			Compacted:          trigger,
		},
	}
	msg, err = r.store.Append(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to record compaction summary: %w", err)
	}

	if r.bus != nil {
		r.bus.Publish(event.Event{
			Type: event.SessionCompacted,
			Data: event.SessionCompactedData{SessionID: r.SessionID(), Epoch: epoch + 1},
		})
	}
	return msg, nil
}

// buildRequest assembles the outbound window: history from the latest
// durable compaction boundary, the system prompt, and cache breakpoints.
func (r *Runtime) buildRequest(ctx context.Context) (*provider.Request, error) {
	messages, err := r.store.Messages(ctx)
	if err != nil {
		return nil, err
	}
	window := history.SliceFromLatestCompactionBoundary(messages)

	req := &provider.Request{
		Model:     r.modelID,
		Messages:  toSchemaMessages(window),
		MaxTokens: r.maxTokens,
	}
	if r.systemPrompt != "" {
		req.System = schema.SystemMessage(r.systemPrompt)
	}
	return r.providers.PlanCacheControl(r.providerID, req, r.cacheTTL), nil
}

func (r *Runtime) createCompletion(ctx context.Context, req *provider.Request) (*provider.Stream, error) {
	prov, err := r.providers.Get(r.providerID)
	if err != nil {
		return nil, err
	}

	retry := newRetryBackoff(ctx)
	for {
		stream, err := prov.CreateCompletion(ctx, req)
		if err == nil {
			return stream, nil
		}

		next := retry.NextBackOff()
		if next == backoff.Stop {
			return nil, fmt.Errorf("completion failed after retries: %w", err)
		}
		logging.Warn().Err(err).Dur("retryIn", next).Msg("completion failed, retrying")
		select {
		case <-time.After(next):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// toSchemaMessages converts history messages to the provider wire form. Tool
// invocations are rendered as text context; reasoning never leaves the
// runtime.
func toSchemaMessages(messages []*types.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		content := renderParts(msg.Parts)
		if content == "" {
			continue
		}
		switch msg.Role {
		case types.RoleAssistant:
			out = append(out, schema.AssistantMessage(content, nil))
		case types.RoleSystem:
			out = append(out, schema.SystemMessage(content))
		default:
			out = append(out, schema.UserMessage(content))
		}
	}
	return out
}

func renderParts(parts []types.Part) string {
	var sb strings.Builder
	for _, part := range parts {
		switch p := part.(type) {
		case *types.TextPart:
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(p.Text)
		case *types.ToolPart:
			if p.Output == nil {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "[%s] %s", p.ToolName, *p.Output)
		}
	}
	return sb.String()
}
