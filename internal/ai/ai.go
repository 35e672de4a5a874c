// Package ai implements the behavior tree engine from spec.md §4.6:
// composable Sequence/Selector nodes over leaves for pathing, following,
// roaming, aggro scanning, and death/respawn, each resumable across ticks
// via its own cursor/state fields (spec.md §9: "a tagged variant rather than
// trait-object boxes").
package ai

import (
	"math/rand"
	"time"

	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/pathing"
)

// Status is a node's outcome for one tick, per spec.md §4.6.
type Status int

const (
	Success Status = iota
	Failure
	Running
)

// Agent is the narrow capability surface a behavior tree ticks against. It
// is implemented by internal/entity's NPC type; keeping it here (rather
// than importing entity) is what lets ai avoid an import cycle with entity.
type Agent interface {
	ID() entitymap.EntityID
	World() *entitymap.EntityMap
	Clients() entitymap.ClientResolver
	Rand() *rand.Rand
	TicksPerSecond() float64

	Position() geom.Vec3
	SetPosition(geom.Vec3)
	Speed() float64

	IsAlive() bool
	Team() int32
	Level() int32

	Home() geom.Vec3
	AssignedPath() *pathing.Path

	// ResolveEntityPosition reports a neighbor's current position and
	// aliveness. ok is false if the entity no longer exists.
	ResolveEntityPosition(id entitymap.EntityID) (pos geom.Vec3, alive bool, ok bool)
	AssignedEntity() (entitymap.EntityID, bool)
	CombatTarget() (entitymap.EntityID, bool)
	SetCombatTarget(id entitymap.EntityID)
	ClearCombatTarget()

	// BroadcastMove emits the NPC_MOVE packet used on path-segment arrival.
	BroadcastMove()

	// Dead leaf support.
	SpawnPosition() geom.Vec3
	DechunkDelay() time.Duration
	RegenDelay() time.Duration
	IsSummoned() bool
	Despawn()   // detach from the chunk map; triggers exit packets
	Respawn()   // reset HP, set position to spawn, re-attach to the chunk
	MarkPermaDead()
}

// Node is one behavior tree node: a Sequence, a Selector, or a leaf.
type Node interface {
	Tick(now time.Time, agent Agent) Status
	// Clone deep-copies this node (and, for composites, its children) so
	// that a shared template can be instantiated once per NPC without any
	// aliased mutable state.
	Clone() Node
}
