package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "warn", LevelWarn.String())
}

func TestLogger_SetLevel(t *testing.T) {
	l := New(LevelInfo)
	assert.Equal(t, LevelInfo, l.GetLevel())

	child := l.With(String("component", "test"))
	l.SetLevel(LevelError)
	// children share the atomic level
	assert.Equal(t, LevelError, child.GetLevel())
}

func TestNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.Info("ignored", Int("n", 1), Error(errors.New("boom")), Strings("ids", []string{"a"}))
		l.With(Bool("b", true)).Warn("ignored")
	})
}

func TestNewWithOptions_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sheetsync.log")
	l, err := NewWithOptions(Options{Level: LevelDebug, OutputPaths: []string{path}})
	require.NoError(t, err)

	l.With(String("document_id", "doc")).Debug("Message received", Int("pending", 2))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "Message received", entry["msg"])
	assert.Equal(t, "doc", entry["document_id"])
	assert.EqualValues(t, 2, entry["pending"])
}

func TestNewWithOptions_InvalidEncoding(t *testing.T) {
	_, err := NewWithOptions(Options{Encoding: "xml"})
	assert.Error(t, err)
}
