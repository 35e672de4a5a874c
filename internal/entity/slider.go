package entity

import (
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/pathing"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// Slider is a scripted moving transport (spec.md §4.5): pure path following
// with no combat or AI tree.
type Slider struct {
	spatial

	Path *pathing.Path
	TPS  float64
}

var _ entitymap.Entity = (*Slider)(nil)

func (s *Slider) Kind() entitymap.EntityKind { return entitymap.KindSlider }

func (s *Slider) SendEnter(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktNPCEnter, encodePosition(&s.spatial))
}

func (s *Slider) SendExit(sink entitymap.ClientSink) error {
	return sink.Send(codec.PktNPCExit, encodePosition(&s.spatial))
}

// Tick implements spec.md §4.5's Slider.tick: step the path and broadcast
// TRANSPORTATION_MOVE on each segment arrival.
func (s *Slider) Tick(now time.Time, world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	if s.Path == nil {
		return nil
	}
	arrived := s.Path.Tick(&s.Pos, s.TPS)
	coord := world.ChunkOf(s.Pos)
	if err := world.Update(s.ID, &coord, clients); err != nil {
		return err
	}
	if arrived && clients != nil {
		world.ForEachAroundEntity(s.ID, clients, func(_ entitymap.EntityID, sink entitymap.ClientSink) {
			_ = sink.Send(codec.PktTransportationMove, encodePosition(&s.spatial))
		})
	}
	return nil
}

func (s *Slider) Cleanup(world *entitymap.EntityMap, clients entitymap.ClientResolver, state any) *protoerr.Error {
	return nil
}
