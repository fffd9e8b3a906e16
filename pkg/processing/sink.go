package processing

import (
	"encoding/json"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
)

// LoggingSink logs a short JSON summary of every snapshot at debug level.
type LoggingSink struct {
	logger customlog.Logger
}

// NewLoggingSink creates a new logging sink
func NewLoggingSink(logger customlog.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Name() string { return "log" }

// Publish logs the snapshot
func (s *LoggingSink) Publish(snapshot protocol.Snapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if len(jsonData) > 100 {
		s.logger.Debugf("Telemetry: %s...", string(jsonData[:100]))
	} else {
		s.logger.Debugf("Telemetry: %s", string(jsonData))
	}
	return nil
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(protocol.Snapshot) error
}

func (f SinkFunc) Name() string { return f.SinkName }

func (f SinkFunc) Publish(snapshot protocol.Snapshot) error { return f.Fn(snapshot) }
