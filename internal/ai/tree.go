package ai

import "time"

// MobTreeConfig parameterizes the standard NPC behavior tree built by
// BuildMobTree, per spec.md §4.6: scan for aggro, chase and hold position on
// whatever is found, otherwise walk an assigned path or roam near home, and
// handle death/respawn when none of that applies.
type MobTreeConfig struct {
	AggroRadius         float64
	AggroDistanceFactor float64
	AggroLevelFactor    float64
	AggroUpRate         float64
	AggroDownRate       float64
	AggroThreshold      float64
	FollowDistance      float64
	FollowSpeed         float64
	LeashRange          float64
	HasAssignedPath     bool
	RoamRadiusMin       float64
	RoamRadiusMax       float64
	RoamSpeed           float64
	RoamDwellMin        time.Duration
	RoamDwellMax        time.Duration
}

// BuildMobTree assembles one fresh tree instance for a single NPC. Callers
// keep a template built once per mob type and Clone it per spawned instance.
func BuildMobTree(cfg MobTreeConfig) Node {
	idle := Node(&RandomRoamAround{
		RadiusMin: cfg.RoamRadiusMin,
		RadiusMax: cfg.RoamRadiusMax,
		Speed:     cfg.RoamSpeed,
		DwellMin:  cfg.RoamDwellMin,
		DwellMax:  cfg.RoamDwellMax,
	})
	if cfg.HasAssignedPath {
		idle = NewSelector(FollowAssignedPath{}, idle)
	}

	combat := NewSequence(
		&ScanForTargets{
			Radius:         cfg.AggroRadius,
			DistanceFactor: cfg.AggroDistanceFactor,
			LevelFactor:    cfg.AggroLevelFactor,
			UpRate:         cfg.AggroUpRate,
			DownRate:       cfg.AggroDownRate,
			Threshold:      cfg.AggroThreshold,
		},
		&FollowEntity{
			Source:         CombatTargetSource,
			FollowDistance: cfg.FollowDistance,
			Speed:          cfg.FollowSpeed,
			GiveUpRange:    cfg.LeashRange,
		},
	)

	alive := NewSequence(
		CheckAlive{},
		NewSelector(
			&FollowEntity{Source: CombatTargetSource, FollowDistance: cfg.FollowDistance, Speed: cfg.FollowSpeed, GiveUpRange: cfg.LeashRange},
			combat,
			idle,
		),
	)

	return NewSelector(alive, &Dead{})
}
