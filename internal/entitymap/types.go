// Package entitymap implements the chunked spatial index from spec.md §4.4:
// a 2D grid of chunks scoped by instance, per-player visibility sets, O(1)
// neighbor queries, and the enter/exit broadcast fan-out those updates
// trigger. It also hosts the Entity/Combatant capability-set interfaces from
// §4.5 so that internal/entity's concrete types and this package's storage
// can refer to each other without an import cycle (entity depends on
// entitymap, never the reverse).
package entitymap

import (
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// EntityID identifies any tracked entity: positive for players (PC-ID,
// AllocatePlayerID), negative for NPCs, eggs and other objects
// (AllocateObjectID), per spec.md §3.
type EntityID int64

// EntityKind distinguishes the four entity variants from spec.md §4.5.
type EntityKind int

const (
	KindPlayer EntityKind = iota
	KindNPC
	KindEgg
	KindSlider
)

// TickMode controls whether the scheduler (C11) steps an entity on a given
// fast tick, per spec.md §4.4.
type TickMode int

const (
	// Never is never ticked by the scheduler (e.g. a detached/despawned
	// entity awaiting GC).
	Never TickMode = iota
	// WhenLoaded is ticked only while visible to at least one player.
	WhenLoaded
	// Always is ticked every fast tick regardless of visibility.
	Always
)

// InstanceKey scopes a chunk to a map/instance/channel triple so that
// entities in different instances never see each other even at identical
// chunk coordinates (spec.md §4.4).
type InstanceKey struct {
	MapNumber      int32
	InstanceNumber int32
	Channel        int32
}

// ClientSink is the minimal surface the entity map needs to push a packet
// to a connected client. internal/netio's client record implements it.
type ClientSink interface {
	Send(id codec.PacketID, body []byte) error
}

// ClientResolver looks up the live ClientSink for a player entity, if any
// (NPCs, eggs, and sliders never resolve to one). internal/netio's
// connection manager implements it; the entity map never owns clients
// itself (spec.md §9: "the connection manager remains the exclusive owner
// of the socket/buffers").
type ClientResolver interface {
	Resolve(id EntityID) (ClientSink, bool)
}

// Entity is the capability set every tracked object exposes, per spec.md
// §4.5. state is an opaque pointer to shard-specific session state (trades,
// groups, buyback lists, DB handle) that a concrete Tick/Cleanup
// implementation type-asserts back to its own package's type; keeping it
// opaque here is what lets entitymap avoid importing shardstate.
type Entity interface {
	Kind() EntityKind
	GetID() EntityID
	GetInstance() InstanceKey
	GetPosition() geom.Vec3
	GetRotation() float64
	GetSpeed() float64
	SetPosition(geom.Vec3)
	SetRotation(float64)
	SendEnter(sink ClientSink) error
	SendExit(sink ClientSink) error
	Tick(now time.Time, world *EntityMap, clients ClientResolver, state any) *protoerr.Error
	Cleanup(world *EntityMap, clients ClientResolver, state any) *protoerr.Error
}

// Combatant is the additional capability set combat-eligible entities
// (Player, NPC) expose, per spec.md §4.5.
type Combatant interface {
	GetHP() int32
	GetMaxHP() int32
	GetLevel() int32
	GetTeam() int32
	GetCharType() int32
	GetStyle() int32
	GetDefense() int32
	GetSinglePower() int32
	GetMultiPower() int32
	GetAggroFactor() float64
	TakeDamage(amount int32, source EntityID) int32
	Reset()
	IsDead() bool
}
