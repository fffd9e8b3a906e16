package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
	"github.com/open-teleop/station/pkg/zeromq"
)

// telemetry-tail prints the snapshots a station publishes on ZeroMQ as one
// JSON object per line.
func main() {
	address := flag.String("address", "tcp://127.0.0.1:5556", "station telemetry PUB address")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger := customlog.NewWriterLogger(*logLevel, os.Stderr)

	sub, err := zeromq.NewTelemetrySubscriber(*address, logger)
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", *address, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	err = sub.Run(ctx, func(snapshot protocol.Snapshot, stationID string) {
		line := struct {
			Station string `json:"station"`
			protocol.Snapshot
		}{stationID, snapshot}
		if err := enc.Encode(line); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		logger.Errorf("Subscriber stopped: %v", err)
		os.Exit(1)
	}
}
