package ai

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/pathing"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

type testAgent struct {
	id       entitymap.EntityID
	pos      geom.Vec3
	home     geom.Vec3
	alive    bool
	team     int32
	level    int32
	speed    float64
	rng      *rand.Rand
	tps      float64
	path     *pathing.Path
	assigned entitymap.EntityID
	hasAssigned bool
	combat      entitymap.EntityID
	hasCombat   bool
	moves    int
	despawned bool
	respawned bool
	permaDead bool
	summoned  bool
	dechunkDelay time.Duration
	regenDelay   time.Duration
	world *entitymap.EntityMap
	neighbors map[entitymap.EntityID]geom.Vec3
	neighborAlive map[entitymap.EntityID]bool
}

func newTestAgent() *testAgent {
	return &testAgent{
		alive: true,
		tps:   20,
		rng:   rand.New(rand.NewSource(1)),
		neighbors:     map[entitymap.EntityID]geom.Vec3{},
		neighborAlive: map[entitymap.EntityID]bool{},
	}
}

func (a *testAgent) ID() entitymap.EntityID            { return a.id }
func (a *testAgent) World() *entitymap.EntityMap       { return a.world }
func (a *testAgent) Clients() entitymap.ClientResolver { return nil }
func (a *testAgent) Rand() *rand.Rand                  { return a.rng }
func (a *testAgent) TicksPerSecond() float64           { return a.tps }
func (a *testAgent) Position() geom.Vec3                { return a.pos }
func (a *testAgent) SetPosition(p geom.Vec3)            { a.pos = p }
func (a *testAgent) Speed() float64                     { return a.speed }
func (a *testAgent) IsAlive() bool                      { return a.alive }
func (a *testAgent) Team() int32                        { return a.team }
func (a *testAgent) Level() int32                       { return a.level }
func (a *testAgent) Home() geom.Vec3                    { return a.home }
func (a *testAgent) AssignedPath() *pathing.Path        { return a.path }
func (a *testAgent) ResolveEntityPosition(id entitymap.EntityID) (geom.Vec3, bool, bool) {
	pos, ok := a.neighbors[id]
	if !ok {
		return geom.Vec3{}, false, false
	}
	return pos, a.neighborAlive[id], true
}
func (a *testAgent) AssignedEntity() (entitymap.EntityID, bool) { return a.assigned, a.hasAssigned }
func (a *testAgent) CombatTarget() (entitymap.EntityID, bool)   { return a.combat, a.hasCombat }
func (a *testAgent) SetCombatTarget(id entitymap.EntityID)      { a.combat = id; a.hasCombat = true }
func (a *testAgent) ClearCombatTarget()                         { a.hasCombat = false }
func (a *testAgent) BroadcastMove()                             { a.moves++ }
func (a *testAgent) SpawnPosition() geom.Vec3                   { return a.home }
func (a *testAgent) DechunkDelay() time.Duration                { return a.dechunkDelay }
func (a *testAgent) RegenDelay() time.Duration                  { return a.regenDelay }
func (a *testAgent) IsSummoned() bool                           { return a.summoned }
func (a *testAgent) Despawn()                                   { a.despawned = true }
func (a *testAgent) Respawn()                                   { a.respawned = true; a.alive = true }
func (a *testAgent) MarkPermaDead()                             { a.permaDead = true }

func TestCheckAliveTogglesWithAgentState(t *testing.T) {
	var n Node = CheckAlive{}
	agent := newTestAgent()
	assert.Equal(t, Success, n.Tick(time.Time{}, agent))
	agent.alive = false
	assert.Equal(t, Failure, n.Tick(time.Time{}, agent))
}

func TestDeadDechunksThenRespawnsAfterDelays(t *testing.T) {
	agent := newTestAgent()
	agent.alive = false
	agent.dechunkDelay = 2 * time.Second
	agent.regenDelay = 3 * time.Second

	d := &Dead{}
	start := time.Unix(0, 0)

	require.Equal(t, Running, d.Tick(start, agent))
	assert.False(t, agent.despawned)

	require.Equal(t, Running, d.Tick(start.Add(2*time.Second), agent))
	assert.True(t, agent.despawned, "should despawn once dechunk delay elapses")
	assert.False(t, agent.respawned)

	require.Equal(t, Running, d.Tick(start.Add(4*time.Second), agent))
	assert.False(t, agent.respawned, "regen delay has not elapsed yet")

	agent.alive = false // Respawn() in the fake only flips alive true; keep dead until the final tick
	require.Equal(t, Success, d.Tick(start.Add(6*time.Second), agent))
	assert.True(t, agent.respawned)
}

func TestDeadStaysPermaDeadWhenSummoned(t *testing.T) {
	agent := newTestAgent()
	agent.alive = false
	agent.summoned = true

	d := &Dead{}
	start := time.Unix(0, 0)
	d.Tick(start, agent)
	d.Tick(start.Add(time.Hour), agent)
	require.Equal(t, Success, d.Tick(start.Add(2*time.Hour), agent))
	assert.True(t, agent.permaDead)
	assert.False(t, agent.respawned)
}

func TestFollowEntityFailsOnlyWhenTargetMissingOrDead(t *testing.T) {
	agent := newTestAgent()
	f := &FollowEntity{Source: CombatTargetSource, FollowDistance: 1, Speed: 10}

	// No target at all.
	assert.Equal(t, Failure, f.Tick(time.Time{}, agent))

	agent.SetCombatTarget(entitymap.EntityID(5))
	agent.neighbors[5] = geom.Vec3{X: 100}
	agent.neighborAlive[5] = true
	assert.Equal(t, Running, f.Tick(time.Time{}, agent))

	agent.neighborAlive[5] = false
	assert.Equal(t, Failure, f.Tick(time.Time{}, agent))
	_, stillSet := agent.CombatTarget()
	assert.False(t, stillSet, "a dead target should be cleared")
}

func TestScanForTargetsOnlySucceedsOnce(t *testing.T) {
	m := entitymap.NewEntityMap(1000, 1)
	agent := newTestAgent()
	agent.world = m
	agent.id = m.AllocateObjectID()
	agent.team = 1

	s := &ScanForTargets{Radius: 50}
	// No world neighbors registered yet -> Failure.
	assert.Equal(t, Failure, s.Tick(time.Time{}, agent))

	agent.SetCombatTarget(entitymap.EntityID(99))
	assert.Equal(t, Failure, s.Tick(time.Time{}, agent), "must not re-scan once a target is set")
}

// fakeCombatant is a minimal entitymap.Entity + entitymap.Combatant double
// for exercising ScanForTargets against a real EntityMap, mirroring the
// entitymap package's own fakeEntity test double.
type fakeCombatant struct {
	id       entitymap.EntityID
	pos      geom.Vec3
	team     int32
	level    int32
	aggro    float64
	dead     bool
}

func (f *fakeCombatant) Kind() entitymap.EntityKind        { return entitymap.KindNPC }
func (f *fakeCombatant) GetID() entitymap.EntityID         { return f.id }
func (f *fakeCombatant) GetInstance() entitymap.InstanceKey { return entitymap.InstanceKey{} }
func (f *fakeCombatant) GetPosition() geom.Vec3            { return f.pos }
func (f *fakeCombatant) GetRotation() float64              { return 0 }
func (f *fakeCombatant) GetSpeed() float64                 { return 0 }
func (f *fakeCombatant) SetPosition(p geom.Vec3)           { f.pos = p }
func (f *fakeCombatant) SetRotation(float64)               {}
func (f *fakeCombatant) SendEnter(entitymap.ClientSink) error { return nil }
func (f *fakeCombatant) SendExit(entitymap.ClientSink) error  { return nil }
func (f *fakeCombatant) Tick(time.Time, *entitymap.EntityMap, entitymap.ClientResolver, any) *protoerr.Error {
	return nil
}
func (f *fakeCombatant) Cleanup(*entitymap.EntityMap, entitymap.ClientResolver, any) *protoerr.Error {
	return nil
}

func (f *fakeCombatant) GetHP() int32          { return 1 }
func (f *fakeCombatant) GetMaxHP() int32       { return 1 }
func (f *fakeCombatant) GetLevel() int32       { return f.level }
func (f *fakeCombatant) GetTeam() int32        { return f.team }
func (f *fakeCombatant) GetCharType() int32    { return 0 }
func (f *fakeCombatant) GetStyle() int32       { return 0 }
func (f *fakeCombatant) GetDefense() int32     { return 0 }
func (f *fakeCombatant) GetSinglePower() int32 { return 0 }
func (f *fakeCombatant) GetMultiPower() int32  { return 0 }
func (f *fakeCombatant) GetAggroFactor() float64 {
	if f.aggro == 0 {
		return 1
	}
	return f.aggro
}
func (f *fakeCombatant) TakeDamage(int32, entitymap.EntityID) int32 { return 0 }
func (f *fakeCombatant) Reset()                                     {}
func (f *fakeCombatant) IsDead() bool                               { return f.dead }

// TestScanForTargetsAccumulatesOverManyTicks mirrors scenario S4: a single
// stationary opposing combatant within radius must accumulate aggro for
// ceil(threshold/up_rate) ticks before acquisition fires, not on the first
// tick it is seen.
func TestScanForTargetsAccumulatesOverManyTicks(t *testing.T) {
	m := entitymap.NewEntityMap(1000, 1)

	agent := newTestAgent()
	agent.world = m
	agent.id = m.AllocateObjectID()
	agent.team = 1
	agent.level = 10

	enemy := &fakeCombatant{id: m.AllocatePlayerID(), team: 2, level: 10}
	m.Track(enemy, entitymap.Never)

	coord := m.ChunkOf(geom.Vec3{})
	require.Nil(t, m.Update(enemy.id, &coord, nil))

	// Register the agent itself in the map so GetAroundEntity resolves a
	// neighborhood for it.
	npc := &fakeCombatant{id: agent.id, team: 1, level: 10}
	m.Track(npc, entitymap.Never)
	require.Nil(t, m.Update(agent.id, &coord, nil))

	s := &ScanForTargets{
		Radius:         500,
		DistanceFactor: 0.1,
		LevelFactor:    0,
		UpRate:         1,
		DownRate:       1,
		Threshold:      100,
	}

	for i := 0; i < 99; i++ {
		require.Equal(t, Failure, s.Tick(time.Time{}, agent), "tick %d should not yet acquire", i+1)
	}
	assert.Equal(t, Success, s.Tick(time.Time{}, agent), "should acquire on the 100th tick")

	target, ok := agent.CombatTarget()
	require.True(t, ok)
	assert.Equal(t, enemy.id, target)
}

func TestRandomRoamAroundNeverTerminates(t *testing.T) {
	agent := newTestAgent()
	agent.home = geom.Vec3{}
	r := &RandomRoamAround{RadiusMin: 10, RadiusMax: 20, Speed: 500}
	for i := 0; i < 500; i++ {
		require.Equal(t, Running, r.Tick(time.Time{}, agent))
	}
}

func TestMobTreeClonesAreIndependent(t *testing.T) {
	template := BuildMobTree(MobTreeConfig{
		AggroRadius: 10, FollowDistance: 1, FollowSpeed: 10,
		RoamRadiusMin: 5, RoamRadiusMax: 10, RoamSpeed: 10,
	})
	a := template.Clone()
	b := template.Clone()

	agentA := newTestAgent()
	agentA.world = entitymap.NewEntityMap(1000, 1)
	agentA.id = agentA.world.AllocateObjectID()
	agentB := newTestAgent()
	agentB.world = entitymap.NewEntityMap(1000, 1)
	agentB.id = agentB.world.AllocateObjectID()

	a.Tick(time.Time{}, agentA)
	b.Tick(time.Time{}, agentB)

	assert.NotSame(t, a, b)
}
