package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{" error ", zerolog.ErrorLevel, false},
		{"off", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestZerologAdapterWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.DebugLevel)

	log.Error("DetectorContext", errors.New("boom"), map[string]interface{}{"attempt": 2})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DetectorContext", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "error", entry["level"])
}

func TestZerologAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(&buf, zerolog.InfoLevel)

	log.Debug("AdaptiveExtractor", "attempt", nil)
	assert.Zero(t, buf.Len())

	log.Info("AdaptiveExtractor", "accepted", nil)
	assert.Contains(t, buf.String(), "accepted")
}

func TestConsoleLoggerWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf, zerolog.WarnLevel)

	log.Info("ShutdownManager", "hidden", nil)
	log.Warning("AdaptiveExtractor", "threshold floor reached below target", map[string]interface{}{"features": 3})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "threshold floor reached below target")
	assert.Contains(t, out, "features=3")
	assert.Contains(t, out, "component=AdaptiveExtractor")
}
