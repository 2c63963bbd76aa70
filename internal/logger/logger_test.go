package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, Config{Format: "json", Level: "info"})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("Applied filter", zap.String("dimension", "hours"))
	require.NoError(t, log.Sync())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Applied filter", line["msg"])
	assert.Equal(t, "hours", line["dimension"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewInvalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Config{Format: "json", Level: "loud"})
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, Config{Format: "xml", Level: "info"})
	assert.Error(t, err)

	_, err = New(&bytes.Buffer{}, NewConfig())
	assert.NoError(t, err)
}
