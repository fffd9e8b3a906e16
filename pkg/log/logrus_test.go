package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestSimpleFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("debug", &buf).WithFields(map[string]interface{}{
		"station":   "s1",
		"component": "control",
	})

	logger.Warnf("Channel %s", "closed")

	line := buf.String()
	if !strings.Contains(line, "[WAR] Channel closed") {
		t.Errorf("Expected truncated level and message, got %q", line)
	}
	if !strings.HasSuffix(line, " component=control station=s1\n") {
		t.Errorf("Expected sorted fields at the end, got %q", line)
	}
}

func TestWriterLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("info", &buf)

	logger.Debugf("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected debug to be filtered at info level, got %q", buf.String())
	}

	logger = NewWriterLogger("not-a-level", &buf)
	logger.Infof("shown")
	if !strings.Contains(buf.String(), "[INF] shown") {
		t.Errorf("Expected unknown level to fall back to info, got %q", buf.String())
	}
}
