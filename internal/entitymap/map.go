package entitymap

import (
	"fmt"
	"sort"

	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

type chunkKey struct {
	instance InstanceKey
	coord    geom.ChunkCoord
}

type chunk struct {
	entities map[EntityID]struct{}
	viewers  map[EntityID]struct{} // player EntityIDs that currently see this chunk
}

func newChunk() *chunk {
	return &chunk{entities: make(map[EntityID]struct{}), viewers: make(map[EntityID]struct{})}
}

type location struct {
	key      chunkKey
	attached bool
}

// EntityMap is the chunked spatial index described in spec.md §4.4. It is
// not safe for concurrent use: per spec.md §5, all mutation happens on the
// single event-loop goroutine, so no internal locking is needed or wanted.
type EntityMap struct {
	chunkSide        float64
	visibilityRadius int

	chunks     map[chunkKey]*chunk
	locations  map[EntityID]location
	entities   map[EntityID]Entity
	tickModes  map[EntityID]TickMode
	visibility map[EntityID]map[EntityID]struct{} // player id -> visible entity ids

	nextPlayerID EntityID
	nextObjectID EntityID // NPCs and eggs: counts down through negative space
}

// NewEntityMap creates an empty index. chunkSide is the world-unit length
// of one chunk's edge; visibilityRadius is the Chebyshev-distance chunk
// radius used by GetAroundEntity (default 1 per spec.md §4.4).
func NewEntityMap(chunkSide float64, visibilityRadius int) *EntityMap {
	return &EntityMap{
		chunkSide:        chunkSide,
		visibilityRadius: visibilityRadius,
		chunks:           make(map[chunkKey]*chunk),
		locations:        make(map[EntityID]location),
		entities:         make(map[EntityID]Entity),
		tickModes:        make(map[EntityID]TickMode),
		visibility:       make(map[EntityID]map[EntityID]struct{}),
		nextPlayerID:     1,
		nextObjectID:     -1,
	}
}

// AllocatePlayerID hands out the next shard-local PC-ID.
func (m *EntityMap) AllocatePlayerID() EntityID {
	id := m.nextPlayerID
	m.nextPlayerID++
	return id
}

// AllocateObjectID hands out the next shard-local NPC/egg ID, drawn from the
// negative half of the ID space so it can never collide with a PC-ID.
func (m *EntityMap) AllocateObjectID() EntityID {
	id := m.nextObjectID
	m.nextObjectID--
	return id
}

// ChunkOf quantizes a world position into this map's chunk coordinates.
func (m *EntityMap) ChunkOf(pos geom.Vec3) geom.ChunkCoord {
	return geom.ChunkOf(pos, m.chunkSide)
}

// Track takes ownership of e, assigning it tick mode mode. The caller must
// already have allocated e's ID via AllocatePlayerID/AllocateObjectID (or,
// for a player re-entering at a known UID-derived PC-ID, reused one). The
// entity starts in the unchunked pool; call Update to place it in the grid.
func (m *EntityMap) Track(e Entity, mode TickMode) {
	id := e.GetID()
	m.entities[id] = e
	m.tickModes[id] = mode
	m.locations[id] = location{attached: false}
	if e.Kind() == KindPlayer {
		m.visibility[id] = make(map[EntityID]struct{})
	}
}

// Untrack detaches id from the grid entirely and returns its Entity for the
// caller to dispose of (player logout, permadeath cleanup).
func (m *EntityMap) Untrack(id EntityID) (Entity, bool) {
	e, ok := m.entities[id]
	if !ok {
		return nil, false
	}
	m.removeFromChunk(id)
	delete(m.entities, id)
	delete(m.tickModes, id)
	delete(m.locations, id)
	delete(m.visibility, id)
	for _, vis := range m.visibility {
		delete(vis, id)
	}
	return e, true
}

// SetTick changes id's tick mode. A no-op if id is not tracked.
func (m *EntityMap) SetTick(id EntityID, mode TickMode) {
	if _, ok := m.entities[id]; ok {
		m.tickModes[id] = mode
	}
}

// Get returns the tracked Entity for id, if any.
func (m *EntityMap) Get(id EntityID) (Entity, bool) {
	e, ok := m.entities[id]
	return e, ok
}

func (m *EntityMap) removeFromChunk(id EntityID) {
	loc, ok := m.locations[id]
	if !ok || !loc.attached {
		return
	}
	if c, ok := m.chunks[loc.key]; ok {
		delete(c.entities, id)
		if len(c.entities) == 0 && len(c.viewers) == 0 {
			delete(m.chunks, loc.key)
		}
	}
}

func (m *EntityMap) chunkAt(key chunkKey) *chunk {
	c, ok := m.chunks[key]
	if !ok {
		c = newChunk()
		m.chunks[key] = c
	}
	return c
}

// Update moves id between chunks, or to the unchunked pool when toChunk is
// nil (spec.md §4.4: "despawned but still tracked"). When clients is
// non-nil, every affected player's visibility set is recomputed and
// enter/exit packets are emitted for the delta (spec.md §4.4 visibility
// invariant).
func (m *EntityMap) Update(id EntityID, toChunk *geom.ChunkCoord, clients ClientResolver) *protoerr.Error {
	e, ok := m.entities[id]
	if !ok {
		return protoerr.New("entitymap.Update", protoerr.Warning, fmt.Errorf("unknown entity %d", id))
	}

	m.removeFromChunk(id)

	if toChunk == nil {
		m.locations[id] = location{attached: false}
	} else {
		key := chunkKey{instance: e.GetInstance(), coord: *toChunk}
		m.chunkAt(key).entities[id] = struct{}{}
		m.locations[id] = location{key: key, attached: true}
	}

	if clients != nil {
		m.recomputeVisibility(clients)
	}
	return nil
}

// recomputeVisibility walks every tracked player and reconciles their
// visibility set against their current chunk neighborhood, emitting enter
// and exit packets for the delta. This is the direct implementation of the
// invariant in spec.md §4.4 and §8 item 4.
func (m *EntityMap) recomputeVisibility(clients ClientResolver) {
	for playerID, player := range m.entities {
		if player.Kind() != KindPlayer {
			continue
		}
		oldVis := m.visibility[playerID]
		newVisSlice := m.GetAroundEntity(playerID)
		newVis := make(map[EntityID]struct{}, len(newVisSlice))
		for _, id := range newVisSlice {
			newVis[id] = struct{}{}
		}

		sink, hasSink := clients.Resolve(playerID)

		for id := range newVis {
			if _, already := oldVis[id]; already {
				continue
			}
			if hasSink {
				if other, ok := m.entities[id]; ok {
					_ = other.SendEnter(sink)
				}
			}
		}
		for id := range oldVis {
			if _, still := newVis[id]; still {
				continue
			}
			if hasSink {
				if other, ok := m.entities[id]; ok {
					_ = other.SendExit(sink)
				}
			}
		}

		m.visibility[playerID] = newVis
		m.syncChunkViewers(playerID, newVis)
	}
}

// syncChunkViewers keeps each chunk's viewer set (the set of players who can
// currently see into it) consistent with the player's new visibility set.
func (m *EntityMap) syncChunkViewers(playerID EntityID, newVis map[EntityID]struct{}) {
	for _, c := range m.chunks {
		delete(c.viewers, playerID)
	}
	for id := range newVis {
		if loc, ok := m.locations[id]; ok && loc.attached {
			m.chunkAt(loc.key).viewers[playerID] = struct{}{}
		}
	}
}

// GetAroundEntity returns every entity whose chunk is within the configured
// visibility radius of id's chunk and in the same instance (spec.md §4.4).
// id itself is excluded. Returns nil if id is unchunked. Per spec.md §2's
// "O(1) neighbor queries", this keys directly into the bounded
// (2*radius+1)^2 window of neighbor coordinates rather than scanning every
// live chunk.
func (m *EntityMap) GetAroundEntity(id EntityID) []EntityID {
	loc, ok := m.locations[id]
	if !ok || !loc.attached {
		return nil
	}

	var out []EntityID
	r := m.visibilityRadius
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			key := chunkKey{
				instance: loc.key.instance,
				coord:    geom.ChunkCoord{X: loc.key.coord.X + dx, Z: loc.key.coord.Z + dz},
			}
			c, ok := m.chunks[key]
			if !ok {
				continue
			}
			for eid := range c.entities {
				if eid == id {
					continue
				}
				out = append(out, eid)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ForEachAroundEntity resolves each of id's chunk neighbors to a live
// ClientSink (skipping entities with none, e.g. NPCs) and invokes f for
// each.
func (m *EntityMap) ForEachAroundEntity(id EntityID, clients ClientResolver, f func(EntityID, ClientSink)) {
	for _, nid := range m.GetAroundEntity(id) {
		if sink, ok := clients.Resolve(nid); ok {
			f(nid, sink)
		}
	}
}

// ValidateProximity fails with a Warning if any pair of the listed entities
// exceeds range in Euclidean distance, or is in a different instance
// (spec.md §4.4).
func (m *EntityMap) ValidateProximity(ids []EntityID, rng float64) *protoerr.Error {
	for i := 0; i < len(ids); i++ {
		a, ok := m.entities[ids[i]]
		if !ok {
			return protoerr.New("entitymap.ValidateProximity", protoerr.Warning, fmt.Errorf("unknown entity %d", ids[i]))
		}
		for j := i + 1; j < len(ids); j++ {
			b, ok := m.entities[ids[j]]
			if !ok {
				return protoerr.New("entitymap.ValidateProximity", protoerr.Warning, fmt.Errorf("unknown entity %d", ids[j]))
			}
			if a.GetInstance() != b.GetInstance() {
				return protoerr.New("entitymap.ValidateProximity", protoerr.Warning,
					fmt.Errorf("entities %d and %d are in different instances", ids[i], ids[j]))
			}
			if a.GetPosition().Distance(b.GetPosition()) > rng {
				return protoerr.New("entitymap.ValidateProximity", protoerr.Warning,
					fmt.Errorf("entities %d and %d exceed range %.2f", ids[i], ids[j], rng))
			}
		}
	}
	return nil
}

// FindPlayers returns the IDs of tracked players matching pred.
func (m *EntityMap) FindPlayers(pred func(Entity) bool) []EntityID {
	return m.find(KindPlayer, pred)
}

// FindNPCs returns the IDs of tracked NPCs matching pred.
func (m *EntityMap) FindNPCs(pred func(Entity) bool) []EntityID {
	return m.find(KindNPC, pred)
}

func (m *EntityMap) find(kind EntityKind, pred func(Entity) bool) []EntityID {
	var out []EntityID
	for id, e := range m.entities {
		if e.Kind() != kind {
			continue
		}
		if pred == nil || pred(e) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TickableIDs returns, in deterministic ascending-ID order, every entity
// eligible to be stepped this fast tick: Always-mode entities, plus
// WhenLoaded-mode entities that are in at least one player's visibility set
// (spec.md §4.4).
func (m *EntityMap) TickableIDs() []EntityID {
	loaded := make(map[EntityID]struct{})
	for _, vis := range m.visibility {
		for id := range vis {
			loaded[id] = struct{}{}
		}
	}

	var out []EntityID
	for id, mode := range m.tickModes {
		switch mode {
		case Always:
			out = append(out, id)
		case WhenLoaded:
			if _, ok := loaded[id]; ok {
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Count returns the number of tracked entities, for telemetry.
func (m *EntityMap) Count() int { return len(m.entities) }
