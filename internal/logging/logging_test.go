package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{" warn ", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"trace", zerolog.TraceLevel, false},
		{"off", zerolog.Disabled, false},
		{"verbose", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", FormatJSON, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("page", "3").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"visible"`)
	assert.Contains(t, out, `"page":"3"`)
	assert.Contains(t, out, `"time":`)
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", FormatConsole, &buf)
	require.NoError(t, err)

	logger.Debug().Msg("decision trace")

	assert.Contains(t, buf.String(), "decision trace")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", FormatJSON, nil)
	assert.Error(t, err)

	_, err = New("info", "xml", nil)
	assert.Error(t, err)
}
