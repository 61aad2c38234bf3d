package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithBaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", ServiceName: "transport-ledger", Environment: "test", Output: &buf})

	logger.Debug("hidden")
	logger.Info("bill posted", "bill_id", "bill-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "bill posted", rec["msg"])
	assert.Equal(t, "transport-ledger", rec["service"])
	assert.Equal(t, "test", rec["environment"])
	assert.Equal(t, "bill-1", rec["bill_id"])
	assert.True(t, strings.HasSuffix(rec["time"].(string), "Z"), "time is UTC")
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "text", Output: &buf})
	logger.Debug("derived", "postings", 3)

	assert.Contains(t, buf.String(), "msg=derived")
	assert.Contains(t, buf.String(), "postings=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
