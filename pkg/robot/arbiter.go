package robot

import (
	"time"

	"github.com/open-teleop/station/pkg/protocol"
)

const noOwner int32 = -1

type lease struct {
	owner int32
	until time.Time
}

func (l lease) active(now time.Time) bool { return now.Before(l.until) }

// current returns the owner while the lease holds, else -1.
func (l lease) current(now time.Time) int32 {
	if !now.After(l.until) && !l.until.IsZero() {
		return l.owner
	}
	return noOwner
}

// Arbiter decides which client's commands the rover obeys.
//
// An override command always wins and renews the sender's override lease.
// While someone else holds the override, commands without it are ignored;
// the holder sending a plain command gives the override up. Drive and arm
// commands additionally need the group's priority lease, which goes to the
// first sender and is renewed by its commands. Override commands skip the
// priority check.
type Arbiter struct {
	OverrideTimeout time.Duration
	PriorityTimeout time.Duration

	override lease
	drive    lease
	arm      lease
}

// NewArbiter returns an arbiter with no leases held.
func NewArbiter(overrideTimeout, priorityTimeout time.Duration) *Arbiter {
	return &Arbiter{
		OverrideTimeout: overrideTimeout,
		PriorityTimeout: priorityTimeout,
		override:        lease{owner: noOwner},
		drive:           lease{owner: noOwner},
		arm:             lease{owner: noOwner},
	}
}

// Accept reports whether cmd from client should be applied at now, updating
// the leases.
func (a *Arbiter) Accept(client int32, cmd protocol.Command, now time.Time) bool {
	if cmd.Tag() == protocol.TagDriveSpeed {
		return true
	}
	if !a.acceptOverride(client, cmd.OverrideFlag(), now) {
		return false
	}
	if cmd.OverrideFlag() {
		return true
	}
	switch cmd.Tag() {
	case protocol.TagDrive:
		return a.acceptPriority(&a.drive, client, now)
	case protocol.TagJointTarget, protocol.TagIKTarget:
		return a.acceptPriority(&a.arm, client, now)
	default:
		return true
	}
}

func (a *Arbiter) acceptOverride(client int32, override bool, now time.Time) bool {
	if override {
		a.override = lease{owner: client, until: now.Add(a.OverrideTimeout)}
		return true
	}
	if client == a.override.owner {
		a.override.until = time.Time{}
	}
	return !a.override.active(now)
}

func (a *Arbiter) acceptPriority(l *lease, client int32, now time.Time) bool {
	if l.active(now) {
		if l.owner == client {
			l.until = now.Add(a.PriorityTimeout)
			return true
		}
		return false
	}
	*l = lease{owner: client, until: now.Add(a.PriorityTimeout)}
	return true
}

// Authority is the telemetry header for client at now.
func (a *Arbiter) Authority(client int32, now time.Time) protocol.Authority {
	return protocol.Authority{
		ClientID:        client,
		DrivePriorityID: a.drive.current(now),
		ArmPriorityID:   a.arm.current(now),
		OverrideID:      a.override.current(now),
	}
}

// Release drops every lease held by client.
func (a *Arbiter) Release(client int32) {
	for _, l := range []*lease{&a.override, &a.drive, &a.arm} {
		if l.owner == client {
			*l = lease{owner: noOwner}
		}
	}
}
