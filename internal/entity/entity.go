// Package entity implements the four entity variants from spec.md §4.5:
// Player, NPC, Egg, and Slider. Each satisfies entitymap.Entity (and, for
// Player/NPC, entitymap.Combatant) so the entity map can hold them
// uniformly; none of them import entitymap's storage internals, only its
// exported capability interfaces.
package entity

import (
	"encoding/binary"
	"math/rand"

	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
)

// combatStats holds the Combatant fields shared verbatim by Player and NPC.
// Embedding it gives both variants the same accessor bodies without
// duplicating them, the way the teacher's marshal types share field blocks.
type combatStats struct {
	HP          int32
	MaxHP       int32
	Level       int32
	Team        int32
	CharType    int32
	Style       int32
	Defense     int32
	SinglePower int32
	MultiPower  int32
	AggroFactor float64
}

func (c *combatStats) GetHP() int32             { return c.HP }
func (c *combatStats) GetMaxHP() int32          { return c.MaxHP }
func (c *combatStats) GetLevel() int32          { return c.Level }
func (c *combatStats) GetTeam() int32           { return c.Team }
func (c *combatStats) GetCharType() int32       { return c.CharType }
func (c *combatStats) GetStyle() int32          { return c.Style }
func (c *combatStats) GetDefense() int32        { return c.Defense }
func (c *combatStats) GetSinglePower() int32    { return c.SinglePower }
func (c *combatStats) GetMultiPower() int32     { return c.MultiPower }
func (c *combatStats) GetAggroFactor() float64  { return c.AggroFactor }
func (c *combatStats) IsDead() bool             { return c.HP <= 0 }
func (c *combatStats) Reset()                   { c.HP = c.MaxHP }

// TakeDamage applies mitigated damage and returns the amount actually dealt,
// clamped so HP never drops below zero.
func (c *combatStats) TakeDamage(amount int32, _ entitymap.EntityID) int32 {
	dealt := amount - c.Defense
	if dealt < 0 {
		dealt = 0
	}
	if dealt > c.HP {
		dealt = c.HP
	}
	c.HP -= dealt
	return dealt
}

// spatial holds the Entity capability set's positional fields, shared by
// every variant.
type spatial struct {
	ID       entitymap.EntityID
	Instance entitymap.InstanceKey
	Pos      geom.Vec3
	Rotation float64
	Speed    float64
}

func (s *spatial) GetID() entitymap.EntityID           { return s.ID }
func (s *spatial) GetInstance() entitymap.InstanceKey  { return s.Instance }
func (s *spatial) GetPosition() geom.Vec3              { return s.Pos }
func (s *spatial) GetRotation() float64                { return s.Rotation }
func (s *spatial) GetSpeed() float64                   { return s.Speed }
func (s *spatial) SetPosition(p geom.Vec3)             { s.Pos = p }
func (s *spatial) SetRotation(r float64)                { s.Rotation = r }

// encodePosition is the body layout shared by every movement/enter/exit
// broadcast: entity id, instance key, position, rotation. Concrete packets
// append their own trailer fields after this prefix.
func encodePosition(s *spatial) []byte {
	buf := make([]byte, 8+12+4+4+24+8)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(s.ID))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(s.Instance.MapNumber))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(s.Instance.InstanceNumber))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(s.Instance.Channel))
	off += 4
	putFloat64 := func(v float64) {
		binary.LittleEndian.PutUint64(buf[off:], mathFloatBits(v))
		off += 8
	}
	putFloat64(s.Pos.X)
	putFloat64(s.Pos.Y)
	putFloat64(s.Pos.Z)
	putFloat64(s.Rotation)
	return buf[:off]
}

func mathFloatBits(v float64) uint64 {
	return uint64(int64(v * 1000)) // fixed-point milliunits, matches the teacher's wire-struct convention of avoiding raw float reinterpretation across platforms
}

// rngFor seeds a deterministic PRNG from an entity ID, per spec.md §8 item 9
// (tick determinism given a frozen entity set and a fixed seed).
func rngFor(id entitymap.EntityID) *rand.Rand {
	return rand.New(rand.NewSource(int64(id)))
}
