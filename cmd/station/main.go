package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/open-teleop/station/domain/display"
	"github.com/open-teleop/station/domain/telemetry"
	"github.com/open-teleop/station/domain/teleop"
	"github.com/open-teleop/station/pkg/api"
	"github.com/open-teleop/station/pkg/channel"
	"github.com/open-teleop/station/pkg/config"
	"github.com/open-teleop/station/pkg/control"
	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/metrics"
	"github.com/open-teleop/station/pkg/mqtt"
	"github.com/open-teleop/station/pkg/processing"
	"github.com/open-teleop/station/pkg/zeromq"
	"github.com/open-teleop/station/services"
)

func main() {
	defaultDir := os.Getenv(config.EnvConfigDir)
	if defaultDir == "" {
		defaultDir = "config"
	}
	configDir := flag.String("config-dir", defaultDir, "directory holding station.yaml or station.toml")
	flag.Parse()

	bootCfg, err := config.LoadBootstrapConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load bootstrap configuration: %v", err)
	}

	logger, err := customlog.NewLogrusLogger(bootCfg.Logging.Level, bootCfg.Logging.LogPath, "station")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	metrics.RegisterMetrics()

	configService, err := services.NewStationConfigService(bootCfg.Data.StationConfigPath(), logger)
	if err != nil {
		logger.Fatalf("Failed to create config service: %v", err)
	}
	cfg := configService.GetCurrentConfig()
	if cfg == nil {
		logger.Warnf("No station configuration at %s, starting with the gated profile defaults", bootCfg.Data.StationConfigPath())
		cfg = &config.Config{Version: "1.0", ConfigID: "default", Protocol: config.ProtocolConfig{Profile: "gated"}}
	}
	stationID := cfg.StationID
	if stationID == "" {
		stationID = uuid.NewString()
	}
	logger = logger.WithField("station", stationID)

	profile, err := cfg.BuildProfile()
	if err != nil {
		logger.Fatalf("Invalid protocol configuration: %v", err)
	}
	params, err := cfg.BuildParams(profile)
	if err != nil {
		logger.Fatalf("Invalid control configuration: %v", err)
	}
	mode, err := cfg.InitialMode()
	if err != nil {
		logger.Fatalf("Invalid control mode: %v", err)
	}
	logger.Infof("Protocol profile %s: tick %s, gating %s, %d byte command frames",
		profile.Name, profile.TickInterval, profile.Gating, profile.Command.FrameLength)

	// The channel hands inbound frames to the loop, which is built after it.
	var loop *control.Loop
	robotChannel := channel.NewWebsocketChannel(bootCfg.Robot.URL, func(frame []byte) { loop.OnFrame(frame) }, logger)
	robotChannel.SetReconnectInterval(bootCfg.Robot.ReconnectInterval())
	robotChannel.SetWriteTimeout(bootCfg.Robot.WriteTimeout())

	loop, err = control.NewLoop(profile, params, robotChannel, logger)
	if err != nil {
		logger.Fatalf("Failed to create control loop: %v", err)
	}
	if err := loop.SetMode(mode); err != nil {
		logger.Fatalf("Failed to set control mode: %v", err)
	}

	// Telemetry fan-out
	dispatcher := processing.NewDispatcher("telemetry", bootCfg.Sinks.Workers, bootCfg.Sinks.QueueSize, logger)
	telemetryService := telemetry.NewTelemetryService(3 * profile.TickInterval)
	hub := api.NewTelemetryHub(logger)
	dispatcher.AddSink(telemetryService)
	dispatcher.AddSink(hub)
	if bootCfg.Sinks.Log {
		dispatcher.AddSink(processing.NewLoggingSink(logger))
	}
	closers := setupExternalSinks(bootCfg.Sinks, stationID, dispatcher, logger)
	dispatcher.Start()
	loop.SetSink(dispatcher)

	// Operator surface
	if bootCfg.Auth.Password == "" {
		logger.Warnf("No operator password set (%s), authorization is disabled", config.EnvPassword)
	}
	teleopService := teleop.NewTeleopService(loop, bootCfg.Auth.Password, logger)
	displayService := display.NewDisplayService(loop, cfg.Display.Images)
	inputHandler := api.NewInputHandler(loop, cfg.InputMargin(), logger)
	configService.SetApplier(&loopApplier{loop: loop, display: displayService, logger: logger})

	app := api.NewApp("Open-Teleop Station", bootCfg.Logging.Level == "debug")
	api.RegisterRoutes(app, api.Routes{
		Teleop:    teleopService,
		Telemetry: telemetryService,
		Display:   displayService,
		Config:    configService,
		Input:     inputHandler,
		Hub:       hub,
		Sinks:     dispatcher,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := robotChannel.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Robot channel stopped: %v", err)
		}
	}()
	go func() {
		if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Control loop stopped: %v", err)
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", bootCfg.Server.HTTPPort)
		logger.Infof("Operator API listening on %s, robot at %s", addr, bootCfg.Robot.URL)
		if err := app.Listen(addr); err != nil {
			logger.Errorf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down station...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	_ = robotChannel.Close()
	dispatcher.Stop()
	for _, c := range closers {
		c()
	}
	logger.Infof("Station exited properly")
}

// setupExternalSinks connects the optional ZeroMQ and MQTT sinks. A sink
// that cannot start is logged and skipped.
func setupExternalSinks(cfg config.SinksConfig, stationID string, d *processing.Dispatcher, logger customlog.Logger) []func() {
	var closers []func()

	if cfg.ZeroMQ.Enabled {
		pub, err := zeromq.NewTelemetryPublisher(cfg.ZeroMQ.PublishBindAddress, stationID, logger)
		if err != nil {
			logger.Errorf("ZeroMQ telemetry sink disabled: %v", err)
		} else {
			d.AddSink(pub)
			closers = append(closers, pub.Close)
		}
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.Connect(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    "station-" + stationID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
			Retain:      cfg.MQTT.Retain,
		}, logger)
		if err != nil {
			logger.Errorf("MQTT telemetry sink disabled: %v", err)
		} else {
			d.AddSink(pub)
			closers = append(closers, pub.Close)
		}
	}

	return closers
}
