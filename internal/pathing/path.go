// Package pathing implements the multi-waypoint path engine from spec.md
// §4.7: an ordered list of waypoints, each with its own approach speed and
// arrival dwell time, advanced one tick at a time.
package pathing

import "github.com/duskforge/fusioncore/internal/geom"

// State is a path's lifecycle stage.
type State int

const (
	// Pending has not started moving yet; the first Tick call transitions
	// it to Moving.
	Pending State = iota
	// Moving is actively interpolating toward the current waypoint.
	Moving
	// Waiting is dwelling at a waypoint it just reached.
	Waiting
	// Done has consumed every waypoint of a non-cycling path.
	Done
)

// Waypoint is one stop along a Path.
type Waypoint struct {
	Pos          geom.Vec3
	Speed        float64 // units/second used to approach this waypoint
	DwellSeconds float64 // seconds to wait here after arriving, 0 for none
}

// Path is a resumable, tickable walk through a list of waypoints.
type Path struct {
	Points []Waypoint
	Cycle  bool

	cursor        int
	state         State
	waitRemaining int
}

// NewPath builds a path over points. An empty point list is valid and
// immediately Done.
func NewPath(points []Waypoint, cycle bool) *Path {
	p := &Path{Points: points, Cycle: cycle}
	if len(points) == 0 {
		p.state = Done
	}
	return p
}

// State reports the path's current lifecycle stage.
func (p *Path) State() State { return p.state }

// Cursor reports the index of the waypoint currently being approached (or
// just reached, while Waiting).
func (p *Path) Cursor() int { return p.cursor }

// Tick advances pos by one tick at the given simulation rate and returns
// true exactly when the current segment's target waypoint was reached this
// tick (spec §4.7). ticksPerSecond must be > 0.
func (p *Path) Tick(pos *geom.Vec3, ticksPerSecond float64) bool {
	switch p.state {
	case Pending:
		p.state = Moving
		return p.Tick(pos, ticksPerSecond)

	case Moving:
		if p.cursor >= len(p.Points) {
			p.state = Done
			return false
		}
		wp := p.Points[p.cursor]
		dist := wp.Speed / ticksPerSecond
		next, arrived := pos.StepToward(wp.Pos, dist)
		*pos = next
		if !arrived {
			return false
		}

		if wp.DwellSeconds > 0 {
			p.waitRemaining = int(wp.DwellSeconds * ticksPerSecond)
			if p.waitRemaining < 1 {
				p.waitRemaining = 1
			}
			p.state = Waiting
			return true
		}
		p.advanceCursor()
		return true

	case Waiting:
		if p.waitRemaining <= 1 {
			p.state = Moving
			p.advanceCursor()
			return false
		}
		p.waitRemaining--
		return false

	case Done:
		return false
	}
	return false
}

func (p *Path) advanceCursor() {
	p.cursor++
	if p.cursor >= len(p.Points) {
		if p.Cycle {
			p.cursor = 0
		} else {
			p.cursor = len(p.Points) - 1
			p.state = Done
		}
	}
}
