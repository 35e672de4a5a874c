// Package geom has the small numeric helpers shared by the path engine, the
// AI leaves, and the entity map: world positions, chunk coordinates, and the
// distance/angle math used to drive entities toward a target. Grounded on
// original_source/src/helpers.rs, which is a flat bag of the same kind of
// function rather than its own abstraction.
package geom

import "math"

// Vec3 is a world position or displacement.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Length returns the Euclidean norm of v.
func (v Vec3) Length() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Distance returns the Euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// Normalize returns a unit vector in the direction of v, or the zero vector
// if v has zero length.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// StepToward moves v towards target by at most dist units, snapping to
// target if it is closer than that. The second return value reports whether
// the target was reached this step.
func (v Vec3) StepToward(target Vec3, dist float64) (Vec3, bool) {
	delta := target.Sub(v)
	remaining := delta.Length()
	if remaining <= dist || remaining == 0 {
		return target, true
	}
	return v.Add(delta.Scale(dist / remaining)), false
}

// ChunkCoord is an integer 2D chunk coordinate.
type ChunkCoord struct {
	X, Z int
}

// ChebyshevDistance returns max(|dx|, |dz|), the metric spec.md §4.4 uses
// for chunk visibility radius.
func (c ChunkCoord) ChebyshevDistance(o ChunkCoord) int {
	dx := c.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := c.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// ChunkOf quantizes a world position into a chunk coordinate given the
// chunk's side length.
func ChunkOf(pos Vec3, chunkSide float64) ChunkCoord {
	return ChunkCoord{
		X: int(math.Floor(pos.X / chunkSide)),
		Z: int(math.Floor(pos.Z / chunkSide)),
	}
}

// RotationToward returns the yaw angle (radians) pointing from v to target,
// used by entities that face their direction of travel.
func RotationToward(v, target Vec3) float64 {
	return math.Atan2(target.Z-v.Z, target.X-v.X)
}
