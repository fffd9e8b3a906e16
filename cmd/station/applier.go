package main

import (
	"fmt"

	"github.com/open-teleop/station/domain/display"
	"github.com/open-teleop/station/pkg/config"
	"github.com/open-teleop/station/pkg/control"
	customlog "github.com/open-teleop/station/pkg/log"
)

// loopApplier pushes an updated station configuration into the running
// loop. Rate, gating, timeouts, IK envelope, tunables, mode and display
// images apply live; frame layout changes need a restart.
type loopApplier struct {
	loop    *control.Loop
	display *display.DisplayService
	logger  customlog.Logger
}

func (a *loopApplier) ApplyConfig(cfg *config.Config) error {
	next, err := cfg.BuildProfile()
	if err != nil {
		return err
	}
	running := a.loop.Profile()
	if next.Command != running.Command || next.Telemetry != running.Telemetry {
		return fmt.Errorf("frame layout change from %s to %s needs a restart", running.Name, next.Name)
	}

	params, err := cfg.BuildParams(next)
	if err != nil {
		return err
	}
	if err := a.loop.ApplyParams(params); err != nil {
		return err
	}
	mode, err := cfg.InitialMode()
	if err != nil {
		return err
	}
	if err := a.loop.SetMode(mode); err != nil {
		return err
	}
	a.display.SetImages(cfg.Display.Images)

	a.logger.Infof("Applied station configuration %s (tick %s, gating %s)", cfg.ConfigID, params.TickInterval, params.Gating)
	return nil
}
