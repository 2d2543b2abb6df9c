package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: "debug", Output: &buf}).EngineLogger()

	log.LogOperation("checkin", "op-1", "/proj/Foo/model", 15*time.Millisecond, nil)
	log.LogOperation("checkout", "op-2", "/proj/Foo/model", time.Millisecond, errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "assetstore", lines[0]["service"])
	assert.Equal(t, "engine", lines[0]["component"])
	assert.Equal(t, "checkin", lines[0]["operation"])
	assert.Equal(t, "op-1", lines[0]["op_id"])

	assert.Equal(t, "error", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: "warn", Output: &buf})

	log.Info("hidden").Send()
	log.LogLockConflict("checkout", "/proj/Foo/model", "bob", time.Now())

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "bob", lines[0]["holder"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Config{Level: "info", Output: &buf}).WithFields(map[string]interface{}{"user": "ann"})
	log.Info("hello").Send()

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "ann", lines[0]["user"])
	assert.Equal(t, "hello", lines[0]["msg"])
}

func TestNopDiscards(t *testing.T) {
	Nop().Error("nothing").Send()
}
