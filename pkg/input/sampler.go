// Package input turns pointer and touch coordinates reported against an
// on-screen joystick widget into normalized two-axis samples.
package input

import (
	"math"
	"sync"
)

// DefaultMargin is the overscan tolerance, as a fraction of the widget size,
// within which a pointer still counts as on the stick.
const DefaultMargin = 0.2

// Sample is a normalized joystick reading. X and Y are in [-1, 1].
type Sample struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Active bool    `json:"active"`
}

// Finite reports whether both axes are finite numbers.
func (s Sample) Finite() bool {
	return finite(s.X) && finite(s.Y)
}

// Reset returns the idle sample.
func Reset() Sample {
	return Sample{}
}

// Rect is a widget bounding box in screen coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right edge of the rectangle.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom edge of the rectangle.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Point is a pointer or touch coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Valid reports whether r has a positive, finite size and finite edges.
func (r Rect) Valid() bool {
	return r.Width > 0 && r.Height > 0 &&
		finite(r.Left) && finite(r.Top) &&
		finite(r.Width) && finite(r.Height) &&
		finite(r.Right()) && finite(r.Bottom())
}

// Contains reports whether p lies strictly inside r expanded by margin*size
// on every side. An invalid rectangle contains nothing.
func (r Rect) Contains(p Point, margin float64) bool {
	if !r.Valid() {
		return false
	}
	mx := r.Width * margin
	my := r.Height * margin
	return p.X > r.Left-mx && p.X < r.Right()+mx &&
		p.Y > r.Top-my && p.Y < r.Bottom()+my
}

// SamplePoint maps p against r. Outside the expanded region the sample is
// reset.
func SamplePoint(p Point, r Rect, margin float64) Sample {
	if !r.Contains(p, margin) {
		return Reset()
	}
	return Sample{
		X:      lerpClamp(p.X, r.Left, r.Right(), -1, 1),
		Y:      lerpClamp(p.Y, r.Top, r.Bottom(), -1, 1),
		Active: true,
	}
}

// SampleTouches accepts the first touch that falls inside the expanded
// region and ignores the rest.
func SampleTouches(points []Point, r Rect, margin float64) Sample {
	for _, p := range points {
		if r.Contains(p, margin) {
			return SamplePoint(p, r, margin)
		}
	}
	return Reset()
}

func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return (y0 + y1) / 2
	}
	return (y0*(x1-x) + y1*(x-x0)) / (x1 - x0)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// clamp maps NaN to the middle of the range.
func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return (lo + hi) / 2
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func lerpClamp(x, x0, x1, y0, y1 float64) float64 {
	return clamp(lerp(x, x0, x1, y0, y1), y0, y1)
}

// EventType names the pointer events a Sampler understands.
type EventType string

const (
	EventMove  EventType = "move"
	EventTouch EventType = "touch"
	EventLeave EventType = "leave"
	EventEnd   EventType = "end"
)

// Event is one pointer or touch update for a stick.
type Event struct {
	Stick  string    `json:"stick"`
	Type   EventType `json:"type"`
	Rect   Rect      `json:"rect"`
	Points []Point   `json:"points,omitempty"`
}

// Sampler holds the latest sample of one named stick.
type Sampler struct {
	name   string
	margin float64

	mu      sync.Mutex
	current Sample
}

// NewSampler creates a sampler. A non-positive margin disables overscan.
func NewSampler(name string, margin float64) *Sampler {
	if margin < 0 {
		margin = 0
	}
	return &Sampler{name: name, margin: margin}
}

// Name of the stick.
func (s *Sampler) Name() string { return s.name }

// Apply updates the sample from an event and returns the new value.
// A move event uses only the first point; a touch event scans all of them.
func (s *Sampler) Apply(ev Event) Sample {
	var next Sample
	switch ev.Type {
	case EventMove:
		if len(ev.Points) > 0 {
			next = SamplePoint(ev.Points[0], ev.Rect, s.margin)
		}
	case EventTouch:
		next = SampleTouches(ev.Points, ev.Rect, s.margin)
	default:
		// leave, end and anything unknown release the stick
		next = Reset()
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next
}

// Current returns the latest sample.
func (s *Sampler) Current() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
