package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsSecretKeys(t *testing.T) {
	got := sanitizeKVs([]interface{}{"user_id", "u1", "refresh_token", "abc", "Password", "hunter2"})
	assert.Equal(t, []interface{}{"user_id", "u1", "refresh_token", "[REDACTED]", "Password", "[REDACTED]"}, got)
}

func TestSanitizeKeepsDanglingValue(t *testing.T) {
	got := sanitizeKVs([]interface{}{"node_id", "n1", "orphan"})
	assert.Equal(t, []interface{}{"node_id", "n1", "orphan"}, got)
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.With("component", "tree").Warn("consistency fault", "parent_id", "p1", "api_key", "k")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "tree", fields["component"])
		assert.Equal(t, "p1", fields["parent_id"])
		assert.Equal(t, "[REDACTED]", fields["api_key"])
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	log, err := New("test")
	if assert.NoError(t, err) {
		log.Info("dropped")
	}
}
