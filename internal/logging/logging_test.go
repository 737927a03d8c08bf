package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter("info", "json", &buf)
		require.NoError(t, err)

		logger.Debug("hidden")
		logger.Info("target ready", zap.String("target", "web"), zap.Int("agents", 3))
		require.NoError(t, logger.Sync())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "target ready", entry["msg"])
		assert.Equal(t, "web", entry["target"])
		assert.EqualValues(t, 3, entry["agents"])
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewWithWriter("DEBUG", "", &buf)
		require.NoError(t, err)

		logger.Debug("ramp up finished", zap.String("target", "web"))
		require.NoError(t, logger.Sync())

		assert.Contains(t, buf.String(), "DEBUG")
		assert.Contains(t, buf.String(), "ramp up finished")
		assert.Contains(t, buf.String(), `"target": "web"`)
	})
}

func TestNewErrors(t *testing.T) {
	_, err := New("loud", "json")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = New("info", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}
