package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendEnvelopeBot/internal/ports"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestZeroLogger_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelInfo)
	ctx := ports.WithSymbol(context.Background(), "BTCUSDT")

	l.Debug(ctx, "hidden")
	l.Info(ctx, "opened", map[string]interface{}{"qty": 0.5})
	l.Error(context.Background(), errors.New("boom"), "failed")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "opened", lines[0]["message"])
	assert.Equal(t, "BTCUSDT", lines[0]["symbol"])
	assert.Equal(t, 0.5, lines[0]["qty"])

	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
	assert.NotContains(t, lines[1], "symbol")
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bot.log")
	l := New(Config{Level: LevelDebug, FilePath: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1})

	l.Warn(context.Background(), "written")
	require.NoError(t, l.Close())

	assert.FileExists(t, path)
}
