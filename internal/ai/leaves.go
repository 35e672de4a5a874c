package ai

import (
	"math"
	"time"

	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/pathing"
)

// CheckAlive succeeds while the agent is alive and fails otherwise. It is
// stateless; Clone returns a fresh zero value.
type CheckAlive struct{}

func (CheckAlive) Tick(_ time.Time, agent Agent) Status {
	if agent.IsAlive() {
		return Success
	}
	return Failure
}

func (CheckAlive) Clone() Node { return CheckAlive{} }

// Dead drives the dechunk/wait/respawn state machine once an NPC dies:
// despawn after DechunkAfter has elapsed, then either respawn after
// RegenAfter (non-summoned mobs) or stay permanently dead (summoned ones),
// per spec.md §4.6.
type Dead struct {
	deadSince time.Time
	dechunked bool
}

func (d *Dead) Tick(now time.Time, agent Agent) Status {
	if agent.IsAlive() {
		d.deadSince = time.Time{}
		d.dechunked = false
		return Failure
	}

	if d.deadSince.IsZero() {
		d.deadSince = now
	}

	if !d.dechunked {
		if now.Sub(d.deadSince) >= agent.DechunkDelay() {
			agent.Despawn()
			d.dechunked = true
		}
		return Running
	}

	if now.Sub(d.deadSince) < agent.DechunkDelay()+agent.RegenDelay() {
		return Running
	}

	if agent.IsSummoned() {
		agent.MarkPermaDead()
		return Success
	}

	agent.Respawn()
	d.deadSince = time.Time{}
	d.dechunked = false
	return Success
}

func (d *Dead) Clone() Node { return &Dead{} }

// FollowAssignedPath steps the agent along its configured waypoint path
// (spec.md §4.7), broadcasting NPC_MOVE on every segment arrival. It
// succeeds once the path reaches Done and fails if the agent has no
// assigned path at all.
type FollowAssignedPath struct{}

func (FollowAssignedPath) Tick(_ time.Time, agent Agent) Status {
	path := agent.AssignedPath()
	if path == nil {
		return Failure
	}
	pos := agent.Position()
	arrived := path.Tick(&pos, agent.TicksPerSecond())
	agent.SetPosition(pos)
	if arrived {
		agent.BroadcastMove()
	}
	if path.State() == pathing.Done {
		return Success
	}
	return Running
}

func (FollowAssignedPath) Clone() Node { return FollowAssignedPath{} }

// TargetSource selects which of an Agent's two target slots FollowEntity
// tracks.
type TargetSource int

const (
	AssignedTargetSource TargetSource = iota
	CombatTargetSource
)

// FollowEntity steps the agent toward whichever entity TargetSource
// resolves to, stopping FollowDistance short of it. Per spec.md §8 item 6
// it returns Failure if and only if the target is missing or dead;
// otherwise it is perpetually Running (closing or holding distance).
type FollowEntity struct {
	Source         TargetSource
	FollowDistance float64
	Speed          float64
	GiveUpRange    float64 // 0 disables the leash check
}

func (f *FollowEntity) Tick(_ time.Time, agent Agent) Status {
	var targetID entitymap.EntityID
	var ok bool
	switch f.Source {
	case AssignedTargetSource:
		targetID, ok = agent.AssignedEntity()
	case CombatTargetSource:
		targetID, ok = agent.CombatTarget()
	}
	if !ok {
		return Failure
	}

	pos, alive, exists := agent.ResolveEntityPosition(targetID)
	if !exists || !alive {
		if f.Source == CombatTargetSource {
			agent.ClearCombatTarget()
		}
		return Failure
	}

	self := agent.Position()
	dist := self.Distance(pos)
	if f.GiveUpRange > 0 && dist > f.GiveUpRange {
		if f.Source == CombatTargetSource {
			agent.ClearCombatTarget()
		}
		return Failure
	}

	if dist > f.FollowDistance {
		stepDist := f.Speed / agent.TicksPerSecond()
		next, _ := self.StepToward(pos, stepDist)
		agent.SetPosition(next)
	}
	return Running
}

func (f *FollowEntity) Clone() Node {
	clone := *f
	return &clone
}

// RandomRoamAround makes an idle NPC wander within an annulus around its
// home position, dwelling between legs, per spec.md §4.6. It never
// terminates: every tick returns Running.
type RandomRoamAround struct {
	RadiusMin, RadiusMax float64
	Speed                float64
	DwellMin, DwellMax   time.Duration

	path          *pathing.Path
	waiting       bool
	waitRemaining int
}

func (r *RandomRoamAround) Tick(_ time.Time, agent Agent) Status {
	if r.waiting {
		r.waitRemaining--
		if r.waitRemaining <= 0 {
			r.waiting = false
		}
		return Running
	}

	if r.path == nil || r.path.State() == pathing.Done {
		r.path = pathing.NewPath([]pathing.Waypoint{{Pos: r.randomPoint(agent), Speed: r.Speed}}, false)
	}

	pos := agent.Position()
	arrived := r.path.Tick(&pos, agent.TicksPerSecond())
	agent.SetPosition(pos)
	if arrived {
		agent.BroadcastMove()
	}

	if r.path.State() == pathing.Done {
		dwell := r.DwellMin
		if r.DwellMax > r.DwellMin {
			dwell += time.Duration(agent.Rand().Int63n(int64(r.DwellMax - r.DwellMin)))
		}
		if dwell > 0 {
			r.waitRemaining = int(dwell.Seconds() * agent.TicksPerSecond())
			if r.waitRemaining > 0 {
				r.waiting = true
			}
		}
	}
	return Running
}

func (r *RandomRoamAround) randomPoint(agent Agent) geom.Vec3 {
	home := agent.Home()
	angle := agent.Rand().Float64() * 2 * math.Pi
	radius := r.RadiusMin
	if r.RadiusMax > r.RadiusMin {
		radius += agent.Rand().Float64() * (r.RadiusMax - r.RadiusMin)
	}
	return geom.Vec3{
		X: home.X + radius*math.Cos(angle),
		Y: home.Y,
		Z: home.Z + radius*math.Sin(angle),
	}
}

func (r *RandomRoamAround) Clone() Node {
	return &RandomRoamAround{
		RadiusMin: r.RadiusMin,
		RadiusMax: r.RadiusMax,
		Speed:     r.Speed,
		DwellMin:  r.DwellMin,
		DwellMax:  r.DwellMax,
	}
}

// ScanForTargets maintains a per-target aggro accumulator against every
// live enemy-team combatant within Radius, per spec.md §4.6's
// `ScanForTargets(target-team?, radius, dist_coef, lvl_coef,
// (up_rate,down_rate), threshold)`: each tick, every opposing combatant
// currently in range bumps its accumulator by
// `(UpRate + level_diff*LevelFactor + dist*DistanceFactor) * target_aggro_factor`;
// once an accumulator crosses Threshold that target is acquired, the whole
// accumulator map is cleared, and the leaf reports Success. Targets not seen
// this tick decay by DownRate and are dropped once they reach zero. It
// reports Failure if no accumulator crossed Threshold this tick; if a combat
// target is already set, the scan is skipped entirely (something else in the
// tree already owns that branch) and it reports Failure.
//
// Grounded on original_source/src/ai.rs's ScanForTargets (the `aggros`
// HashMap<EntityID, f32> and its up/down-rate bookkeeping), with the "decay
// applies only to entities not seen this tick" rule spec.md §4.6 spells out
// explicitly.
type ScanForTargets struct {
	Radius         float64
	DistanceFactor float64
	LevelFactor    float64
	UpRate         float64
	DownRate       float64
	Threshold      float64

	aggros map[entitymap.EntityID]float64
}

func (s *ScanForTargets) Tick(_ time.Time, agent Agent) Status {
	if _, already := agent.CombatTarget(); already {
		return Failure
	}

	if s.aggros == nil {
		s.aggros = make(map[entitymap.EntityID]float64)
	}

	world := agent.World()
	self := agent.Position()
	seen := make(map[entitymap.EntityID]struct{})

	for _, nid := range world.GetAroundEntity(agent.ID()) {
		e, ok := world.Get(nid)
		if !ok {
			continue
		}
		cb, ok := e.(entitymap.Combatant)
		if !ok || cb.IsDead() || cb.GetTeam() == agent.Team() {
			continue
		}
		dist := self.Distance(e.GetPosition())
		if dist > s.Radius {
			continue
		}

		seen[nid] = struct{}{}
		levelDiff := float64(agent.Level() - cb.GetLevel())
		up := (s.UpRate + levelDiff*s.LevelFactor + dist*s.DistanceFactor) * cb.GetAggroFactor()
		s.aggros[nid] += up
		if s.aggros[nid] >= s.Threshold {
			agent.SetCombatTarget(nid)
			s.aggros = make(map[entitymap.EntityID]float64)
			return Success
		}
	}

	for nid, aggro := range s.aggros {
		if _, ok := seen[nid]; ok {
			continue
		}
		aggro -= s.DownRate
		if aggro <= 0 {
			delete(s.aggros, nid)
			continue
		}
		s.aggros[nid] = aggro
	}

	return Failure
}

func (s *ScanForTargets) Clone() Node {
	return &ScanForTargets{
		Radius:         s.Radius,
		DistanceFactor: s.DistanceFactor,
		LevelFactor:    s.LevelFactor,
		UpRate:         s.UpRate,
		DownRate:       s.DownRate,
		Threshold:      s.Threshold,
	}
}
