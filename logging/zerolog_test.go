package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Swind/go-task-graph/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestZerologLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	var logger core.Logger = NewZerologLogger(zerolog.New(&buf))

	logger.Warn("pool exhausted",
		core.F("worker", 3),
		core.F("capacity", int64(4096)),
		core.F("reason", errors.New("full")),
		core.F("pinned", true),
		core.F("mode", core.ModeBackground),
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	got := lines[0]
	assert.Equal(t, "warn", got["level"])
	assert.Equal(t, "pool exhausted", got["message"])
	assert.EqualValues(t, 3, got["worker"])
	assert.EqualValues(t, 4096, got["capacity"])
	assert.Equal(t, "full", got["reason"])
	assert.Equal(t, true, got["pinned"])
	assert.EqualValues(t, core.ModeBackground, got["mode"])
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	logger.Debug("hidden", core.F("k", "v"))
	logger.Info("shown")
	logger.Error("bad")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
}

// TestZerologLogger_GraphLifecycle verifies a graph logs through the adapter
func TestZerologLogger_GraphLifecycle(t *testing.T) {
	var buf bytes.Buffer
	g, err := core.NewGraph(&core.GraphConfig{
		Workers: 1,
		Logger:  NewZerologLogger(zerolog.New(&buf)),
	})
	require.NoError(t, err)
	require.NoError(t, g.Shutdown())

	var messages []string
	for _, line := range decodeLines(t, &buf) {
		messages = append(messages, line["message"].(string))
	}
	assert.Equal(t, []string{"graph started", "graph stopped"}, messages)
}
