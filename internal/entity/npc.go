package entity

import (
	"math/rand"
	"time"

	"github.com/duskforge/fusioncore/internal/ai"
	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/pathing"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// NPC is the non-player entity variant from spec.md §3/§4.5: a type-driven
// combatant stepped by a cloned behavior tree (internal/ai), optionally
// following an assigned path or loosely following another entity.
type NPC struct {
	spatial
	combatStats

	NPCType int32
	GroupID string
	HasGroup bool

	AssignedPathPtr *pathing.Path
	LooseFollowID   entitymap.EntityID
	HasLooseFollow  bool

	Interacting map[entitymap.EntityID]time.Time // player -> last-seen-interacting time

	Summoned  bool
	PermaDead bool

	SpawnPos       geom.Vec3
	DechunkAfter   time.Duration
	RegenAfter     time.Duration
	InteractRange  time.Duration

	tree    ai.Node
	rng     *rand.Rand
	tps     float64
	world   *entitymap.EntityMap
	clients entitymap.ClientResolver

	combatTargetID entitymap.EntityID
	hasCombatTarget bool
}

var (
	_ entitymap.Entity    = (*NPC)(nil)
	_ entitymap.Combatant = (*NPC)(nil)
	_ ai.Agent             = (*NPC)(nil)
)

// NewNPC builds an NPC and clones treeTemplate for it, per spec.md §4.6
// ("the tree is cloned per NPC").
func NewNPC(id entitymap.EntityID, treeTemplate ai.Node, ticksPerSecond float64) *NPC {
	return &NPC{
		spatial: spatial{ID: id},
		tree:    treeTemplate.Clone(),
		rng:     rand.New(rand.NewSource(int64(id))),
		tps:     ticksPerSecond,
		Interacting: make(map[entitymap.EntityID]time.Time),
	}
}

func (n *NPC) Kind() entitymap.EntityKind { return entitymap.KindNPC }

func (n *NPC) SendEnter(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktNPCEnter, encodePosition(&n.spatial))
}

func (n *NPC) SendExit(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktNPCExit, encodePosition(&n.spatial))
}

// Tick implements spec.md §4.5's NPC.tick: skip the AI tree entirely while a
// player is within interact range, otherwise drive the tree and then the
// movement leg it selected.
func (n *NPC) Tick(now time.Time, world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	n.world = world
	n.clients = clients
	for pid, lastSeen := range n.Interacting {
		if now.Sub(lastSeen) > n.InteractRange {
			delete(n.Interacting, pid)
		}
	}
	if len(n.Interacting) > 0 {
		return nil
	}

	n.tree.Tick(now, n)
	return nil
}

func (n *NPC) Cleanup(world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	return nil
}

// MarkInteracting records that player is currently within interact range;
// called by the packet handler that processes an NPC-talk request.
func (n *NPC) MarkInteracting(player entitymap.EntityID, now time.Time) {
	n.Interacting[player] = now
}

// --- ai.Agent ---

func (n *NPC) ID() entitymap.EntityID            { return n.spatial.ID }
func (n *NPC) World() *entitymap.EntityMap       { return n.world }
func (n *NPC) Clients() entitymap.ClientResolver { return nil }
func (n *NPC) Rand() *rand.Rand                  { return n.rng }
func (n *NPC) TicksPerSecond() float64           { return n.tps }
func (n *NPC) Position() geom.Vec3               { return n.Pos }
func (n *NPC) SetPosition(p geom.Vec3)           { n.Pos = p }
func (n *NPC) Speed() float64                    { return n.spatial.Speed }
func (n *NPC) IsAlive() bool                     { return !n.combatStats.IsDead() }
func (n *NPC) Team() int32                       { return n.combatStats.Team }
func (n *NPC) Level() int32                      { return n.combatStats.Level }
func (n *NPC) Home() geom.Vec3                   { return n.SpawnPos }
func (n *NPC) AssignedPath() *pathing.Path       { return n.AssignedPathPtr }

func (n *NPC) ResolveEntityPosition(id entitymap.EntityID) (geom.Vec3, bool, bool) {
	if n.world == nil {
		return geom.Vec3{}, false, false
	}
	e, ok := n.world.Get(id)
	if !ok {
		return geom.Vec3{}, false, false
	}
	alive := true
	if cb, ok := e.(entitymap.Combatant); ok {
		alive = !cb.IsDead()
	}
	return e.GetPosition(), alive, true
}

func (n *NPC) AssignedEntity() (entitymap.EntityID, bool) { return n.LooseFollowID, n.HasLooseFollow }
func (n *NPC) CombatTarget() (entitymap.EntityID, bool)   { return n.combatTargetID, n.hasCombatTarget }
func (n *NPC) SetCombatTarget(id entitymap.EntityID) {
	n.combatTargetID = id
	n.hasCombatTarget = true
}
func (n *NPC) ClearCombatTarget() { n.hasCombatTarget = false }

// BroadcastMove re-chunks the NPC at its new position and emits NPC_MOVE to
// its neighbors. Called by the behavior tree leaves only when a path tick
// actually produced movement (segment arrival), matching
// original_source/src/entity/npc.rs's tick_movement_along_path, which
// re-chunks only "if path.tick(&mut self.position)" returned true — never
// unconditionally every tick.
func (n *NPC) BroadcastMove() {
	if n.world == nil {
		return
	}
	coord := n.world.ChunkOf(n.Pos)
	_ = n.world.Update(n.spatial.ID, &coord, n.clients)

	if n.clients == nil {
		return
	}
	n.world.ForEachAroundEntity(n.spatial.ID, n.clients, func(_ entitymap.EntityID, sink entitymap.ClientSink) {
		_ = sink.Send(codec.PktNPCMove, encodePosition(&n.spatial))
	})
}

func (n *NPC) SpawnPosition() geom.Vec3    { return n.SpawnPos }
func (n *NPC) DechunkDelay() time.Duration { return n.DechunkAfter }
func (n *NPC) RegenDelay() time.Duration   { return n.RegenAfter }
func (n *NPC) IsSummoned() bool            { return n.Summoned }

// Despawn detaches the NPC from the chunk map, passing the live resolver
// through so recomputeVisibility runs and emits NPC_EXIT to neighbors who
// had it in view (spec.md §4.6).
func (n *NPC) Despawn() {
	if n.world != nil {
		_ = n.world.Update(n.spatial.ID, nil, n.clients)
	}
}

func (n *NPC) Respawn() {
	n.combatStats.Reset()
	n.Pos = n.SpawnPos
	if n.world != nil {
		coord := n.world.ChunkOf(n.Pos)
		_ = n.world.Update(n.spatial.ID, &coord, nil)
	}
}

func (n *NPC) MarkPermaDead() { n.PermaDead = true }
