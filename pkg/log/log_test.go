package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{in: "error", want: LogLevelError},
		{in: "warn", want: LogLevelWarn},
		{in: "info", want: LogLevelInfo},
		{in: "debug", want: LogLevelDebug},
		{in: "trace", want: LogLevelTrace},
		{in: "loud", want: LogLevelError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_levelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(buf, "", 0, LogLevelWarn)

	logger.Debug("hidden %d", 1)
	logger.Warn("scope %d missing", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	entry := map[string]string{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "scope 7 missing", entry["msg"])
}

func TestSetDefaultLogger(t *testing.T) {
	previous := Default()
	defer SetDefaultLogger(previous)

	buf := &bytes.Buffer{}
	SetDefaultLogger(New(buf, "", 0, LogLevelTrace))
	Trace("tick %d", 3)

	assert.Contains(t, buf.String(), `"msg":"tick 3"`)
}
