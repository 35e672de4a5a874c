package entity

import (
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// Egg is the respawnable world-pickup entity variant (spec.md §3, §4.5).
type Egg struct {
	spatial

	EggType     int32
	Summoned    bool
	RespawnAt   time.Time
	HasRespawn  bool
}

var _ entitymap.Entity = (*Egg)(nil)

func (e *Egg) Kind() entitymap.EntityKind { return entitymap.KindEgg }

func (e *Egg) SendEnter(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktNPCEnter, encodePosition(&e.spatial))
}

func (e *Egg) SendExit(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktNPCExit, encodePosition(&e.spatial))
}

// Tick implements spec.md §4.5's Egg.tick: once a pending respawn timer
// elapses, clear it and re-insert into the chunk map, reappearing to nearby
// players.
func (e *Egg) Tick(now time.Time, world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	if !e.HasRespawn || now.Before(e.RespawnAt) {
		return nil
	}
	e.HasRespawn = false
	coord := world.ChunkOf(e.Pos)
	return world.Update(e.ID, &coord, clients)
}

func (e *Egg) Cleanup(world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	return nil
}
