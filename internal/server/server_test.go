package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/fleet"
	"github.com/lattice-dev/lattice/internal/provider"
	"github.com/lattice-dev/lattice/internal/session"
	"github.com/lattice-dev/lattice/internal/shell"
	"github.com/lattice-dev/lattice/internal/task"
	"github.com/lattice-dev/lattice/internal/transcript"
	"github.com/lattice-dev/lattice/pkg/types"
)

type echoProvider struct{}

func (echoProvider) ID() string { return "anthropic" }

func (echoProvider) Info() provider.Info {
	return provider.Info{
		ID:           "anthropic",
		CacheControl: provider.CacheCapability{Supported: true, BreakpointLimit: 4},
	}
}

func (echoProvider) CreateCompletion(ctx context.Context, req *provider.Request) (*provider.Stream, error) {
	last := req.Messages[len(req.Messages)-1]
	reader := schema.StreamReaderFromArray([]*schema.Message{
		schema.AssistantMessage("echo: "+last.Content, nil),
	})
	return provider.NewStream(reader), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *event.Bus) {
	t.Helper()

	cfg := &config.Config{
		Model:   "anthropic/claude-sonnet-4-20250514",
		DataDir: t.TempDir(),
	}

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	registry := provider.NewRegistry()
	registry.Register(echoProvider{})

	shellSvc := shell.NewService(bus)
	taskSvc := task.NewService()
	sessions := session.NewManager(cfg, registry, shellSvc, bus)
	t.Cleanup(sessions.Close)

	srv := New(DefaultConfig(), Deps{
		Bus:      bus,
		Sessions: sessions,
		Shell:    shellSvc,
		Tasks:    taskSvc,
		Fleet:    fleet.NewController(taskSvc, shellSvc, bus, 10*time.Millisecond),
		Shares:   transcript.NewShareManager("https://lattice.dev/t", bus),
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, bus
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestSendMessageRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/session/sess-1/message", sendMessageRequest{Text: "hello"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out sendMessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, types.RoleUser, out.UserMessage.Role)
	assert.Equal(t, types.RoleAssistant, out.AssistantMessage.Role)

	text, ok := out.AssistantMessage.Parts[0].(*types.TextPart)
	require.True(t, ok)
	assert.Equal(t, "echo: hello", text.Text)
}

func TestGetMessagesOrdered(t *testing.T) {
	ts, _ := newTestServer(t)

	postJSON(t, ts.URL+"/session/sess-1/message", sendMessageRequest{Text: "one"}).Body.Close()
	postJSON(t, ts.URL+"/session/sess-1/message", sendMessageRequest{Text: "two"}).Body.Close()

	resp, err := http.Get(ts.URL + "/session/sess-1/message")
	require.NoError(t, err)
	defer resp.Body.Close()

	var messages []types.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&messages))
	require.Len(t, messages, 4)
	for i := 1; i < len(messages); i++ {
		assert.Greater(t, messages[i].Metadata.HistorySequence, messages[i-1].Metadata.HistorySequence)
	}
}

func TestCompactEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	postJSON(t, ts.URL+"/session/sess-1/message", sendMessageRequest{Text: "context"}).Body.Close()

	resp := postJSON(t, ts.URL+"/session/sess-1/compact", compactRequest{Trigger: "user", Summary: "the story so far"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg types.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	assert.True(t, msg.IsCompactionBoundary())
	assert.Equal(t, 1, msg.Metadata.CompactionEpoch)
}

func TestSteerTaskTargetRejected(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/session/sess-1/fleet/steer", steerFleetRequest{
		Target:  "some-task-id",
		Message: "change course",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, ErrCodeNotSteerable, errResp.Error.Code)
}

func TestKillAllEmptyFleet(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/session/sess-1/fleet/kill", killFleetRequest{Target: "all"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res fleet.KillResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.True(t, res.Success)
	assert.Empty(t, res.Killed)
}

func TestTranscriptExportIsJSONL(t *testing.T) {
	ts, _ := newTestServer(t)

	postJSON(t, ts.URL+"/session/sess-1/message", sendMessageRequest{Text: "hello"}).Body.Close()

	resp, err := http.Get(ts.URL + "/session/sess-1/transcript")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	lines := 0
	for scanner.Scan() {
		lines++
		var msg types.Message
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg), "line %d", lines)
		assert.Equal(t, "sess-1", msg.SessionID)
	}
	assert.Equal(t, 2, lines)
}

func TestShareLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/session/sess-1/share", shareRequest{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info transcript.ShareInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.NotEmpty(t, info.Token)
	assert.True(t, strings.HasPrefix(info.URL, "https://lattice.dev/t/"))

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/session/sess-1/share", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusOK, del.StatusCode)
}

func TestSendMessageValidation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/session/sess-1/message", sendMessageRequest{Text: ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
