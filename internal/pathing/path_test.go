package pathing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/geom"
)

func TestPathProgressMonotonic(t *testing.T) {
	path := NewPath([]Waypoint{
		{Pos: geom.Vec3{X: 10}, Speed: 5},
		{Pos: geom.Vec3{X: 20}, Speed: 5},
	}, false)

	pos := geom.Vec3{}
	const tps = 20.0

	lastDistTravelled := 0.0
	prevPos := pos
	for i := 0; i < 200 && path.State() != Done; i++ {
		lastCursor := path.Cursor()
		path.Tick(&pos, tps)
		assert.GreaterOrEqual(t, path.Cursor(), lastCursor, "cursor must never go backwards")

		step := pos.Distance(prevPos)
		assert.GreaterOrEqual(t, step, 0.0)
		lastDistTravelled += step
		prevPos = pos
	}

	require.Equal(t, Done, path.State())
	assert.InDelta(t, 20.0, pos.X, 0.001)
	assert.Greater(t, lastDistTravelled, 0.0)
}

func TestPathDwellThenAdvance(t *testing.T) {
	path := NewPath([]Waypoint{
		{Pos: geom.Vec3{X: 1}, Speed: 100, DwellSeconds: 0.1},
		{Pos: geom.Vec3{X: 2}, Speed: 100},
	}, false)

	pos := geom.Vec3{}
	const tps = 20.0 // 0.1s dwell == 2 ticks

	path.Tick(&pos, tps) // Pending -> Moving (recurses) and reaches first waypoint
	require.Equal(t, Waiting, path.State())

	path.Tick(&pos, tps)
	path.Tick(&pos, tps)
	assert.Equal(t, Moving, path.State())
	assert.Equal(t, 1, path.Cursor())
}

func TestPathCycleWraps(t *testing.T) {
	path := NewPath([]Waypoint{
		{Pos: geom.Vec3{X: 1}, Speed: 1000},
		{Pos: geom.Vec3{X: 0}, Speed: 1000},
	}, true)

	pos := geom.Vec3{}
	for i := 0; i < 10; i++ {
		path.Tick(&pos, 20)
	}
	assert.NotEqual(t, Done, path.State())
}

func TestEmptyPathIsDone(t *testing.T) {
	path := NewPath(nil, false)
	assert.Equal(t, Done, path.State())
	pos := geom.Vec3{}
	assert.False(t, path.Tick(&pos, 20))
}
