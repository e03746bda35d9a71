package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestForSessionChainsAndTagsSession(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, Output: &buf})

	ForSession("ses_123").Debug().Msg("auto-backgrounded foreground commands")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"session":"ses_123"`)
	assert.Contains(t, out, "auto-backgrounded foreground commands")
}
