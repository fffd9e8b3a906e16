package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-teleop/station/pkg/config"
	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
	"github.com/open-teleop/station/pkg/robot"
)

func main() {
	var (
		port            = flag.Int("port", 8081, "websocket listen port")
		profileName     = flag.String("profile", protocol.ProfileGated, "protocol profile (gated or legacy)")
		interval        = flag.Duration("telemetry-interval", 0, "telemetry period, defaults to the profile tick")
		overrideTimeout = flag.Duration("override-timeout", time.Second, "override lease")
		priorityTimeout = flag.Duration("priority-timeout", time.Second, "drive and arm priority lease")
		images          = flag.String("images", "logo,smile,warning", "comma separated display image names")
		logLevel        = flag.String("log-level", "info", "log level")
		envFile         = flag.String("env-file", ".env", "optional env file")
	)
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("%v", err)
	}
	logger, err := customlog.NewLogrusLogger(*logLevel, "", "robotsim")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	profile, err := protocol.LookupProfile(*profileName)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if *interval <= 0 {
		*interval = profile.TickInterval
	}

	opts := robot.DefaultOptions(profile)
	opts.OverrideTimeout = *overrideTimeout
	opts.PriorityTimeout = *priorityTimeout
	opts.Images = strings.Split(*images, ",")

	rover := robot.NewRover(opts, logger)
	server := robot.NewServer(rover, *interval, logger)

	app := fiber.New(fiber.Config{
		AppName:               "Open-Teleop Robot Simulator",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	server.Register(app)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go server.Run(ctx)

	go func() {
		addr := fmt.Sprintf(":%d", *port)
		logger.Infof("Simulated rover (%s profile) listening on %s/ws, telemetry every %s", profile.Name, addr, *interval)
		if err := app.Listen(addr); err != nil {
			logger.Errorf("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("Shutting down simulator...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
}
