package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/ai"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/pathing"
)

func TestPlayerPassiveRegenRespectsFourSecondCadence(t *testing.T) {
	world := entitymap.NewEntityMap(1000, 1)
	p := &Player{spatial: spatial{ID: world.AllocatePlayerID()}}
	p.combatStats = combatStats{HP: 50, MaxHP: 100}
	world.Track(p, entitymap.Always)

	start := time.Unix(0, 0)
	require.Nil(t, p.Tick(start, world, nil, nil))
	assert.Equal(t, int32(50), p.HP, "first tick only seeds the regen clock")

	require.Nil(t, p.Tick(start.Add(4*time.Second), world, nil, nil))
	assert.Equal(t, int32(70), p.HP)

	require.Nil(t, p.Tick(start.Add(5*time.Second), world, nil, nil))
	assert.Equal(t, int32(70), p.HP, "no regen before the next 4s boundary")
}

func TestPlayerRunningTaskFailsAfterDeadline(t *testing.T) {
	world := entitymap.NewEntityMap(1000, 1)
	p := &Player{spatial: spatial{ID: world.AllocatePlayerID()}}
	p.combatStats = combatStats{HP: 1, MaxHP: 1}
	start := time.Unix(0, 0)
	p.RunningTasks = []*RunningTask{{MissionID: 1, Deadline: start.Add(time.Second)}}

	require.Nil(t, p.Tick(start.Add(2*time.Second), world, nil, nil))
	assert.Empty(t, p.RunningTasks)
}

func TestEggRespawnReappearsOnSchedule(t *testing.T) {
	world := entitymap.NewEntityMap(1000, 1)
	e := &Egg{spatial: spatial{ID: world.AllocateObjectID()}}
	e.HasRespawn = true
	e.RespawnAt = time.Unix(10, 0)
	world.Track(e, entitymap.Always)

	require.Nil(t, e.Tick(time.Unix(5, 0), world, nil, nil))
	assert.True(t, e.HasRespawn)

	require.Nil(t, e.Tick(time.Unix(10, 0), world, nil, nil))
	assert.False(t, e.HasRespawn)
}

func TestSliderFollowsPathToArrival(t *testing.T) {
	world := entitymap.NewEntityMap(1000, 1)
	path := pathing.NewPath([]pathing.Waypoint{{Pos: geom.Vec3{X: 5}, Speed: 1000}}, false)
	s := &Slider{spatial: spatial{ID: world.AllocateObjectID()}, Path: path, TPS: 20}
	world.Track(s, entitymap.Always)

	for i := 0; i < 5 && path.State() != pathing.Done; i++ {
		require.Nil(t, s.Tick(time.Unix(int64(i), 0), world, nil, nil))
	}
	assert.Equal(t, pathing.Done, path.State())
	assert.InDelta(t, 5.0, s.Pos.X, 0.001)
}

func TestNPCSkipsAIWhileInteracting(t *testing.T) {
	world := entitymap.NewEntityMap(1000, 1)
	tree := ai.BuildMobTree(ai.MobTreeConfig{RoamRadiusMin: 5, RoamRadiusMax: 10, RoamSpeed: 100})
	n := NewNPC(world.AllocateObjectID(), tree, 20)
	n.combatStats = combatStats{HP: 10, MaxHP: 10}
	n.InteractRange = time.Second
	n.SpawnPos = geom.Vec3{}
	world.Track(n, entitymap.Always)

	now := time.Unix(0, 0)
	n.MarkInteracting(entitymap.EntityID(5), now)
	startPos := n.Pos
	require.Nil(t, n.Tick(now, world, nil, nil))
	assert.Equal(t, startPos, n.Pos, "AI tree must not move the NPC while a player is interacting")
}

func TestNPCRoamsWhenIdle(t *testing.T) {
	world := entitymap.NewEntityMap(1000, 1)
	tree := ai.BuildMobTree(ai.MobTreeConfig{RoamRadiusMin: 50, RoamRadiusMax: 80, RoamSpeed: 500})
	n := NewNPC(world.AllocateObjectID(), tree, 20)
	n.combatStats = combatStats{HP: 10, MaxHP: 10}
	n.SpawnPos = geom.Vec3{}
	n.InteractRange = time.Second
	world.Track(n, entitymap.Always)

	moved := false
	now := time.Unix(0, 0)
	for i := 0; i < 50; i++ {
		require.Nil(t, n.Tick(now.Add(time.Duration(i)*50*time.Millisecond), world, nil, nil))
		if n.Pos.Distance(geom.Vec3{}) > 0.01 {
			moved = true
			break
		}
	}
	assert.True(t, moved, "an idle NPC with no combat target should roam")
}
