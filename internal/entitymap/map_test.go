package entitymap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

type fakeEntity struct {
	id       EntityID
	kind     EntityKind
	instance InstanceKey
	pos      geom.Vec3
	rot      float64
	enters   int
	exits    int
}

func (f *fakeEntity) Kind() EntityKind            { return f.kind }
func (f *fakeEntity) GetID() EntityID             { return f.id }
func (f *fakeEntity) GetInstance() InstanceKey     { return f.instance }
func (f *fakeEntity) GetPosition() geom.Vec3       { return f.pos }
func (f *fakeEntity) GetRotation() float64         { return f.rot }
func (f *fakeEntity) GetSpeed() float64            { return 100 }
func (f *fakeEntity) SetPosition(p geom.Vec3)      { f.pos = p }
func (f *fakeEntity) SetRotation(r float64)        { f.rot = r }
func (f *fakeEntity) SendEnter(ClientSink) error   { f.enters++; return nil }
func (f *fakeEntity) SendExit(ClientSink) error    { f.exits++; return nil }
func (f *fakeEntity) Tick(time.Time, *EntityMap, ClientResolver, any) *protoerr.Error    { return nil }
func (f *fakeEntity) Cleanup(*EntityMap, ClientResolver, any) *protoerr.Error { return nil }

type fakeSink struct{ id EntityID }

func (fakeSink) Send(codec.PacketID, []byte) error { return nil }

type fakeResolver struct {
	sinks map[EntityID]ClientSink
}

func (r fakeResolver) Resolve(id EntityID) (ClientSink, bool) {
	s, ok := r.sinks[id]
	return s, ok
}

const chunkSide = 81920.0

func TestRegistryConsistency(t *testing.T) {
	m := NewEntityMap(chunkSide, 1)
	a := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer}
	m.Track(a, Always)

	for id, e := range m.entities {
		loc, ok := m.locations[id]
		require.True(t, ok)
		if loc.attached {
			c, ok := m.chunks[loc.key]
			require.True(t, ok)
			_, inChunk := c.entities[id]
			assert.True(t, inChunk)
		}
		_ = e
	}

	coord := m.ChunkOf(geom.Vec3{})
	require.Nil(t, m.Update(a.id, &coord, nil))

	loc := m.locations[a.id]
	require.True(t, loc.attached)
	c := m.chunks[loc.key]
	_, inChunk := c.entities[a.id]
	assert.True(t, inChunk)

	_, untracked := m.Untrack(a.id)
	assert.True(t, untracked)
	_, stillThere := m.Get(a.id)
	assert.False(t, stillThere)
}

// TestVisibilitySymmetry mirrors scenario S3: two players far apart, then
// one moves next to the other; exactly one enter packet should fire each
// way and no exits.
func TestVisibilitySymmetry(t *testing.T) {
	m := NewEntityMap(chunkSide, 1)

	a := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer, pos: geom.Vec3{X: 0}}
	b := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer, pos: geom.Vec3{X: 800_000}}
	m.Track(a, Always)
	m.Track(b, Always)

	resolver := fakeResolver{sinks: map[EntityID]ClientSink{
		a.id: fakeSink{a.id},
		b.id: fakeSink{b.id},
	}}

	coordA := m.ChunkOf(a.pos)
	coordB := m.ChunkOf(b.pos)
	require.Nil(t, m.Update(a.id, &coordA, resolver))
	require.Nil(t, m.Update(b.id, &coordB, resolver))

	assert.Empty(t, m.GetAroundEntity(a.id))
	assert.Empty(t, m.GetAroundEntity(b.id))

	// Move B next to A.
	b.pos = a.pos
	newCoord := m.ChunkOf(b.pos)
	require.Nil(t, m.Update(b.id, &newCoord, resolver))

	assert.Equal(t, 1, a.enters, "B should receive exactly one enter packet for A")
	assert.Equal(t, 1, b.enters, "A should receive exactly one enter packet for B")
	assert.Equal(t, 0, a.exits)
	assert.Equal(t, 0, b.exits)

	vis := m.GetAroundEntity(a.id)
	require.Len(t, vis, 1)
	assert.Equal(t, b.id, vis[0])
}

func TestTickableIDsRespectsMode(t *testing.T) {
	m := NewEntityMap(chunkSide, 1)
	player := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer}
	m.Track(player, Always)

	alwaysNPC := &fakeEntity{id: m.AllocateObjectID(), kind: KindNPC}
	m.Track(alwaysNPC, Always)

	loadedNPC := &fakeEntity{id: m.AllocateObjectID(), kind: KindNPC}
	m.Track(loadedNPC, WhenLoaded)

	neverNPC := &fakeEntity{id: m.AllocateObjectID(), kind: KindNPC}
	m.Track(neverNPC, Never)

	coord := m.ChunkOf(geom.Vec3{})
	resolver := fakeResolver{sinks: map[EntityID]ClientSink{player.id: fakeSink{player.id}}}
	require.Nil(t, m.Update(player.id, &coord, resolver))
	require.Nil(t, m.Update(alwaysNPC.id, &coord, nil))
	require.Nil(t, m.Update(loadedNPC.id, &coord, nil))
	require.Nil(t, m.Update(neverNPC.id, &coord, nil))

	// Recompute visibility now that the NPCs are in the grid.
	require.Nil(t, m.Update(player.id, &coord, resolver))

	ids := m.TickableIDs()
	assert.Contains(t, ids, alwaysNPC.id)
	assert.Contains(t, ids, loadedNPC.id)
	assert.NotContains(t, ids, neverNPC.id)
}

func TestValidateProximity(t *testing.T) {
	m := NewEntityMap(chunkSide, 1)
	a := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer, pos: geom.Vec3{X: 0}}
	b := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer, pos: geom.Vec3{X: 10}}
	m.Track(a, Never)
	m.Track(b, Never)

	assert.Nil(t, m.ValidateProximity([]EntityID{a.id, b.id}, 20))
	assert.NotNil(t, m.ValidateProximity([]EntityID{a.id, b.id}, 5))

	c := &fakeEntity{id: m.AllocatePlayerID(), kind: KindPlayer, pos: geom.Vec3{}, instance: InstanceKey{MapNumber: 1}}
	m.Track(c, Never)
	assert.NotNil(t, m.ValidateProximity([]EntityID{a.id, c.id}, 1000))
}
