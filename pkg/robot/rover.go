// Package robot simulates the rover side of the link: it decodes command
// frames, arbitrates between connected stations and reports telemetry.
package robot

import (
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-teleop/station/pkg/log"
	"github.com/open-teleop/station/pkg/protocol"
)

// Options configures a simulated rover.
type Options struct {
	Profile         protocol.Profile
	Arm             ArmGeometry
	OverrideTimeout time.Duration
	PriorityTimeout time.Duration
	// Images are the names of the pictures the display can show.
	Images []string
}

// DefaultOptions returns a rover for profile with one second leases.
func DefaultOptions(profile protocol.Profile) Options {
	return Options{
		Profile:         profile,
		Arm:             DefaultArm(),
		OverrideTimeout: time.Second,
		PriorityTimeout: time.Second,
		Images:          []string{"logo", "smile", "warning"},
	}
}

// Rover is the simulated vehicle state.
type Rover struct {
	opts    Options
	logger  customlog.Logger
	arbiter *Arbiter

	mu         sync.Mutex
	powered    bool
	left       float64
	right      float64
	driveSpeed float64
	joints     []float64
	display    uint8
}

// NewRover returns a powered off rover with the arm pointing straight up.
func NewRover(opts Options, logger customlog.Logger) *Rover {
	if logger == nil {
		logger = customlog.Discard()
	}
	joints := make([]float64, opts.Profile.Command.Joints)
	for i := range joints {
		joints[i] = 0.5
	}
	if len(joints) > 2 {
		joints[2] = 1
	}
	return &Rover{
		opts:       opts,
		logger:     logger.WithField("component", "rover"),
		arbiter:    NewArbiter(opts.OverrideTimeout, opts.PriorityTimeout),
		driveSpeed: 1,
		joints:     joints,
	}
}

// HandleFrame decodes and applies one command frame from client. It reports
// whether the command was accepted by arbitration.
func (r *Rover) HandleFrame(client int32, frame []byte, now time.Time) (bool, error) {
	cmd, err := protocol.DecodeCommand(frame, r.opts.Profile.Command)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.arbiter.Accept(client, cmd, now) {
		r.logger.Debugf("Client %d: %s rejected by arbitration", client, cmd.Tag())
		return false, nil
	}

	switch c := cmd.(type) {
	case protocol.PowerOff:
		r.powered = false
		r.logger.Infof("Client %d: power off", client)
	case protocol.PowerOn:
		r.powered = true
		r.logger.Infof("Client %d: power on", client)
	case protocol.Drive:
		r.left, r.right = c.Left, c.Right
	case protocol.JointTarget:
		// The arm holds its pose while powered off.
		if r.powered {
			copy(r.joints, c.Joints)
		}
	case protocol.IKTarget:
		if r.powered {
			f := r.opts.Arm.InverseKinematics(protocol.Position{X: c.X, Y: c.Y, Z: c.Z})
			copy(r.joints, f[:])
		}
	case protocol.DisplaySelect:
		if int(c.Index) >= len(r.opts.Images) {
			return false, fmt.Errorf("display index %d out of range", c.Index)
		}
		r.display = c.Index
		r.logger.Infof("Client %d: showing %s", client, r.opts.Images[c.Index])
	case protocol.DriveSpeed:
		r.driveSpeed = protocol.ClampUnit(c.Speed)
	}
	return true, nil
}

// Snapshot is the telemetry a client sees at now.
func (r *Rover) Snapshot(client int32, now time.Time) protocol.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := protocol.Snapshot{
		Authority:      r.arbiter.Authority(client, now),
		BatteryVoltage: 16.4,
		BatteryCurrent: 0.3,
		CellVoltages:   [4]float32{4.1, 4.1, 4.1, 4.1},
		Joints:         append([]float64(nil), r.joints...),
		Position:       r.opts.Arm.ForwardKinematics(r.joints),
	}
	if r.powered {
		s.LeftSpeed = protocol.ClampSigned(r.left*r.driveSpeed) * 100
		s.RightSpeed = protocol.ClampSigned(r.right*r.driveSpeed) * 100
		s.BatteryCurrent += float32(abs(s.LeftSpeed)+abs(s.RightSpeed)) / 50
	}
	return s
}

// Frame encodes the telemetry frame for client at now.
func (r *Rover) Frame(client int32, now time.Time) []byte {
	return protocol.EncodeTelemetry(r.Snapshot(client, now), r.opts.Profile.Telemetry)
}

// Release forgets the leases of a disconnected client.
func (r *Rover) Release(client int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arbiter.Release(client)
}

// Powered reports whether the actuators are enabled.
func (r *Rover) Powered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powered
}

// Display returns the index of the image on screen.
func (r *Rover) Display() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.display
}

// Images lists the display images.
func (r *Rover) Images() []string {
	return append([]string(nil), r.opts.Images...)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
