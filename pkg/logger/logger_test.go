package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("verbose"))
}

func TestNamedAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info").Named("jobs")

	l.Info().Str("job", "mark-overdue").Msg("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "jobs", entry["component"])
	assert.Equal(t, "mark-overdue", entry["job"])
	assert.Equal(t, "done", entry["message"])
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
}
